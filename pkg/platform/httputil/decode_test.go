package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "procura/pkg/domain-errors"
)

// searchRequest decodes from JSON only.
type searchRequest struct {
	Query string `json:"q"`
	Limit int    `json:"limit"`
}

// credentialsForm accepts both JSON and form bodies and runs every preparation step.
type credentialsForm struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	sanitized bool
	validated bool
}

func (f *credentialsForm) DecodeForm(values map[string][]string) {
	if v := values["email"]; len(v) > 0 {
		f.Email = v[0]
	}
	if v := values["password"]; len(v) > 0 {
		f.Password = v[0]
	}
}

func (f *credentialsForm) Sanitize()  { f.sanitized = true }
func (f *credentialsForm) Normalize() { f.Email = strings.ToLower(f.Email) }

func (f *credentialsForm) Validate() error {
	f.validated = true
	if f.Email == "" {
		return errors.New("email is required")
	}
	if f.Password == "" {
		return dErrors.New(dErrors.CodeBadRequest, "password is required")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestDecodeJSON(t *testing.T) {
	t.Run("successful decode", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"q":"rebar","limit":5}`))
		w := httptest.NewRecorder()

		result, ok := DecodeJSON[searchRequest](w, req, discardLogger())

		require.True(t, ok)
		assert.Equal(t, "rebar", result.Query)
		assert.Equal(t, 5, result.Limit)
	})

	t.Run("invalid JSON is a bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{invalid}`))
		w := httptest.NewRecorder()

		result, ok := DecodeJSON[searchRequest](w, req, discardLogger())

		assert.False(t, ok)
		assert.Nil(t, result)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "bad_request", decodeError(t, w).Error)
	})
}

func TestDecodeBody_Form(t *testing.T) {
	t.Run("form body fills a FormDecoder", func(t *testing.T) {
		form := url.Values{"email": {"Buyer@Example.com"}, "password": {"pw"}}
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()

		result, ok := DecodeBody[credentialsForm](w, req, discardLogger())

		require.True(t, ok)
		assert.Equal(t, "Buyer@Example.com", result.Email)
		assert.Equal(t, "pw", result.Password)
	})

	t.Run("form body rejected for JSON-only types", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader("q=x"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()

		_, ok := DecodeBody[searchRequest](w, req, discardLogger())

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDecodeAndPrepare(t *testing.T) {
	t.Run("runs every preparation step", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"email":"A@B.CO","password":"pw"}`))
		w := httptest.NewRecorder()

		result, ok := DecodeAndPrepare[credentialsForm](w, req, discardLogger())

		require.True(t, ok)
		assert.True(t, result.sanitized)
		assert.True(t, result.validated)
		assert.Equal(t, "a@b.co", result.Email)
	})

	t.Run("plain validation error maps to validation_error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"password":"pw"}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[credentialsForm](w, req, discardLogger())

		assert.False(t, ok)
		body := decodeError(t, w)
		assert.Equal(t, "validation_error", body.Error)
		assert.Contains(t, body.Description, "email is required")
	})

	t.Run("domain error code is preserved", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"email":"a@b.co"}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[credentialsForm](w, req, discardLogger())

		assert.False(t, ok)
		assert.Equal(t, "bad_request", decodeError(t, w).Error)
	})
}

func TestPrepareRequest_NonPreparableTypes(t *testing.T) {
	assert.NoError(t, PrepareRequest(&searchRequest{Query: "x"}))
}
