package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	dErrors "procura/pkg/domain-errors"
	request "procura/pkg/platform/middleware/request"
)

// maxResponseBytes bounds how much of a backend response is read.
const maxResponseBytes = 4 << 20

type response struct {
	status int
	body   []byte
}

func (r response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// send performs one JSON call against the backend. A non-2xx status is not an
// error here; only failures to get a response are.
func (s *Service) send(ctx context.Context, method, path string, body any, bearer string) (response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return response{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return response{}, dErrors.Wrap(err, dErrors.CodeInternal, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	requestID := request.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(request.HeaderRequestID, requestID)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.ObserveRequest(method, 0, time.Since(start))
		return response{}, transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	s.metrics.ObserveRequest(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return response{}, transportError(ctx, err)
	}
	return response{status: resp.StatusCode, body: raw}, nil
}

// transportError classifies a failure to reach the backend.
func transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "backend request timed out")
	case errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTransport, "backend request cancelled")
	default:
		return dErrors.Wrap(err, dErrors.CodeTransport, "backend unreachable")
	}
}
