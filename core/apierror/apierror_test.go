package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBodyCarriesParamOnlyForInvalidRequests(t *testing.T) {
	err := BadRequest("Invalid filter field", "name")
	assert.Equal(t, map[string]interface{}{
		"type":    "invalid_request_error",
		"message": "Invalid filter field",
		"param":   "name",
	}, err.Body())

	apiErr := API("Operation failed", nil)
	apiErr.Param = "ignored"
	assert.Equal(t, map[string]interface{}{
		"type":    "api_error",
		"message": "Operation failed",
	}, apiErr.Body())
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	notFound := NotFound("no such post")
	wrapped := fmt.Errorf("list: %w", notFound)
	assert.Same(t, notFound, From(wrapped))

	cause := errors.New("connection refused")
	classified := From(cause)
	assert.Equal(t, KindAPI, classified.Kind)
	assert.Equal(t, http.StatusInternalServerError, classified.Status)
	assert.True(t, errors.Is(classified, cause))
}

func TestWrapKeepsOriginal(t *testing.T) {
	base := Forbidden("Permission denied", "")
	cause := errors.New("role missing")
	wrapped := base.Wrap(cause)

	assert.Nil(t, base.Err)
	assert.Equal(t, cause, wrapped.Err)
	assert.Equal(t, http.StatusForbidden, wrapped.Status)
	assert.Contains(t, wrapped.Error(), "role missing")
}

func TestUnsupportedMediaType(t *testing.T) {
	err := UnsupportedMediaType("text/plain")
	assert.Equal(t, http.StatusUnsupportedMediaType, err.Status)
	assert.Equal(t, KindInvalidRequest, err.Kind)
}
