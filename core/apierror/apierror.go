// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package apierror provides the structured errors returned by the REST API.
//
// There are two kinds of errors. Invalid requests are caused by the client: a bad filter field,
// a malformed body, an unsupported media type, a missing record or a missing permission. API errors
// are caused by the server; an operation failed without a specific validation error attached.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the slug reported as "type" in the error body
type Kind string

// all supported error kinds
const (
	KindInvalidRequest Kind = "invalid_request_error"
	KindAPI            Kind = "api_error"
)

// Error is a structured API error
type Error struct {
	Kind    Kind
	Message string
	Status  int
	// Param is the name of the offending field or query parameter, if any
	Param string
	// Err is the underlying cause, it is never shown to the client
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Param != "" {
		msg += " (" + e.Param + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the cause of the error
func (e *Error) Unwrap() error {
	return e.Err
}

// Body returns the user visible shape of the error. "param" is only present for
// invalid requests which carry a field name.
func (e *Error) Body() map[string]interface{} {
	body := map[string]interface{}{
		"type":    string(e.Kind),
		"message": e.Message,
	}
	if e.Kind == KindInvalidRequest && e.Param != "" {
		body["param"] = e.Param
	}
	return body
}

// Wrap returns a copy of the error with the cause attached
func (e *Error) Wrap(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// InvalidRequest returns a client error with the given http status
func InvalidRequest(status int, message, param string) *Error {
	return &Error{
		Kind:    KindInvalidRequest,
		Message: message,
		Status:  status,
		Param:   param,
	}
}

// BadRequest returns a 400 invalid request error
func BadRequest(message, param string) *Error {
	return InvalidRequest(http.StatusBadRequest, message, param)
}

// NotFound returns a 404 invalid request error
func NotFound(message string) *Error {
	return InvalidRequest(http.StatusNotFound, message, "")
}

// Forbidden returns a 403 invalid request error
func Forbidden(message, param string) *Error {
	return InvalidRequest(http.StatusForbidden, message, param)
}

// UnsupportedMediaType returns a 415 invalid request error
func UnsupportedMediaType(contentType string) *Error {
	return InvalidRequest(http.StatusUnsupportedMediaType,
		fmt.Sprintf("Unsupported media type '%s', expected application/json", contentType), "")
}

// API returns an unclassified server error with status 500
func API(message string, cause error) *Error {
	return &Error{
		Kind:    KindAPI,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     cause,
	}
}

// From classifies an arbitrary error. Structured errors are returned as they are,
// everything else becomes an unclassified API error.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return API("An error occurred with our API", err)
}
