package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "procura/pkg/domain-errors"
)

// retryAfterSeconds is advertised when the backend could not be reached.
const retryAfterSeconds = "5"

// ErrorResponse is the JSON body the portal writes for failed requests.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError centralizes domain error translation to HTTP responses. Failures
// to reach the backend carry a Retry-After hint.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		if domainErr.Code == dErrors.CodeTransport || domainErr.Code == dErrors.CodeTimeout {
			w.Header().Set("Retry-After", retryAfterSeconds)
		}
		WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), ErrorResponse{
			Error:       DomainCodeToHTTPCode(domainErr.Code),
			Description: domainErr.Message,
		})
		return
	}

	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: DomainCodeToHTTPCode(dErrors.CodeInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to portal HTTP status codes.
// Backend-side failures surface as gateway errors.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeInvalidCredentials, dErrors.CodeUnauthorized, dErrors.CodeMalformedToken:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeTransport, dErrors.CodeUpstream:
		return http.StatusBadGateway
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to the JSON error string.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeBadRequest:
		return "bad_request"
	case dErrors.CodeValidation:
		return "validation_error"
	case dErrors.CodeInvalidCredentials:
		return "invalid_credentials"
	case dErrors.CodeUnauthorized, dErrors.CodeMalformedToken:
		return "unauthorized"
	case dErrors.CodeForbidden:
		return "access_denied"
	case dErrors.CodeTransport:
		return "backend_unavailable"
	case dErrors.CodeUpstream:
		return "backend_error"
	case dErrors.CodeTimeout:
		return "backend_timeout"
	default:
		return "internal_error"
	}
}
