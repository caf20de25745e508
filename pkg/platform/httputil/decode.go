package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	dErrors "procura/pkg/domain-errors"
	request "procura/pkg/platform/middleware/request"
)

// maxFormMemory bounds multipart parsing for portal forms.
const maxFormMemory = 1 << 20

// DecodeJSON decodes a JSON request body into the target type.
// On failure it writes a bad_request response and returns nil, false.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(r.Context(), "failed to decode request body",
			"error", err,
			"request_id", request.GetRequestID(r.Context()),
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	return &req, true
}

// FormDecoder is implemented by request types that can be filled from an
// HTML form submission.
type FormDecoder interface {
	DecodeForm(values map[string][]string)
}

// DecodeBody decodes a JSON body, or a form body when the request carries a
// form content type and T implements FormDecoder.
func DecodeBody[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")) //nolint:errcheck // empty or invalid means JSON
	if mediaType != "application/x-www-form-urlencoded" && mediaType != "multipart/form-data" {
		return DecodeJSON[T](w, r, logger)
	}

	var req T
	fd, ok := any(&req).(FormDecoder)
	if !ok {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "form bodies are not accepted here"))
		return nil, false
	}
	if err := parseForm(r, mediaType); err != nil {
		logger.WarnContext(r.Context(), "failed to parse form body",
			"error", err,
			"request_id", request.GetRequestID(r.Context()),
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid form body"))
		return nil, false
	}
	fd.DecodeForm(r.PostForm)
	return &req, true
}

func parseForm(r *http.Request, mediaType string) error {
	if mediaType == "multipart/form-data" {
		return r.ParseMultipartForm(maxFormMemory)
	}
	return r.ParseForm()
}

// Validatable is implemented by request types that support validation.
type Validatable interface {
	Validate() error
}

// Normalizable is implemented by request types that support normalization.
type Normalizable interface {
	Normalize()
}

// Sanitizable is implemented by request types that support sanitization.
type Sanitizable interface {
	Sanitize()
}

// PrepareRequest sanitizes, normalizes, and validates a request.
func PrepareRequest(req any) error {
	if s, ok := req.(Sanitizable); ok {
		s.Sanitize()
	}
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := req.(Validatable); ok {
		return v.Validate()
	}
	return nil
}

// DecodeAndPrepare combines body decoding with request preparation.
//
// Usage:
//
//	req, ok := httputil.DecodeAndPrepare[models.LoginRequest](w, r, h.logger)
//	if !ok {
//	    return
//	}
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	req, ok := DecodeBody[T](w, r, logger)
	if !ok {
		return nil, false
	}

	if err := PrepareRequest(req); err != nil {
		logger.WarnContext(r.Context(), "invalid request",
			"error", err,
			"request_id", request.GetRequestID(r.Context()),
		)
		// Preserve original error code if it's already a domain error
		var domainErr *dErrors.Error
		if errors.As(err, &domainErr) {
			WriteError(w, err)
		} else {
			WriteError(w, dErrors.New(dErrors.CodeValidation, err.Error()))
		}
		return nil, false
	}

	return req, true
}
