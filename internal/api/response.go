package api

import (
	"encoding/json"
	"net/http"

	dErrors "procura/pkg/domain-errors"
)

// Response is a successful backend answer.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return dErrors.New(dErrors.CodeUpstream, "empty response body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstream, "malformed response body")
	}
	return nil
}
