// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/scaffold/core/logger"
)

// IsPretty returns true if the response to r should be indented. The pretty parameter
// decides, otherwise interactive clients like curl or a browser get indented output.
func IsPretty(r *http.Request) bool {
	if raw := r.URL.Query().Get("pretty"); raw != "" {
		if pretty, err := strconv.ParseBool(raw); err == nil {
			return pretty
		}
	}
	agent := r.Header.Get("User-Agent")
	if strings.HasPrefix(agent, "curl/") {
		return true
	}
	return strings.HasPrefix(agent, "Mozilla/") && r.Header.Get("X-Requested-With") == ""
}

// Encode encodes v as JSON without HTML escaping. Pretty output is indented by two
// spaces and ends with a newline.
func Encode(v interface{}, pretty bool) ([]byte, error) {
	data, err := json.MarshalWithOption(v, json.DisableHTMLEscape())
	if err != nil || !pretty {
		return data, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (b *Backend) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	data, err := Encode(v, IsPretty(r))
	if err != nil {
		logger.FromContext(r.Context()).WithError(err).Errorln("cannot encode response")
		http.Error(w, `{"type":"api_error","message":"An error occurred with our API"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}
