package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"procura/internal/auth/models"
	"procura/internal/platform/tracer"
	dErrors "procura/pkg/domain-errors"
	httpErrors "procura/pkg/http-errors"
	request "procura/pkg/platform/middleware/request"
)

// maxResponseBytes bounds how much of a backend response is read.
const maxResponseBytes = 8 << 20

var errBackendUnavailable = dErrors.New(dErrors.CodeTransport, "backend unavailable")

// Request sends an authorized call to path (relative to the base URL).
// body, when non-nil, is sent as JSON. Non-2xx answers are returned as domain
// errors wrapping *httpErrors.HTTPError.
func (c *Client) Request(ctx context.Context, method, path string, body any) (resp *Response, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanRequest,
		tracer.String(tracer.AttrMethod, method),
		tracer.String(tracer.AttrPath, path),
	)
	defer func() { span.End(err) }()

	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.Token(token))

	resp, err = c.send(ctx, method, path, payload, token)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized && token != "" && c.canRefresh() {
		fresh, refreshErr := c.refresher.RefreshAccessToken(ctx)
		if refreshErr != nil {
			if dErrors.IsSessionInvalidating(refreshErr) {
				c.invalidate(ctx, token, "refresh_rejected", refreshErr)
			}
			return nil, refreshErr
		}
		token = fresh
		span.SetAttributes(tracer.Bool(tracer.AttrRetried, true), tracer.Token(token))
		resp, err = c.send(ctx, method, path, payload, token)
		if err != nil {
			return nil, err
		}
	}
	span.SetAttributes(tracer.Int(tracer.AttrStatus, resp.Status))

	if resp.Status < 200 || resp.Status >= 300 {
		httpErr := httpErrors.New(resp.Status, resp.Body)
		err = httpErr.ToDomain()
		switch resp.Status {
		case http.StatusUnauthorized:
			c.invalidate(ctx, token, "unauthorized", err)
		case http.StatusForbidden:
			c.invalidate(ctx, token, "forbidden", err)
		}
		return nil, err
	}
	return resp, nil
}

// Get is Request with GET and no body.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, nil)
}

func (c *Client) canRefresh() bool {
	return c.autoRefresh && c.refresher != nil
}

// accessToken returns the token to send. A malformed stored token ends the
// session without a request; a JWT close to expiry is refreshed first.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "read access token")
	}
	if token == "" {
		return "", nil
	}
	if !models.WellFormedToken(token) {
		err = dErrors.New(dErrors.CodeMalformedToken, "stored access token is malformed")
		c.invalidate(ctx, token, "malformed_token", err)
		return "", err
	}

	if !c.canRefresh() || c.refreshSkew <= 0 {
		return token, nil
	}
	claims, ok := models.ParseAccessClaims(token)
	if !ok || !claims.ExpiresWithin(c.now(), c.refreshSkew) {
		return token, nil
	}

	fresh, err := c.refresher.RefreshAccessToken(ctx)
	switch {
	case err == nil:
		return fresh, nil
	case dErrors.IsSessionInvalidating(err):
		c.invalidate(ctx, token, "refresh_rejected", err)
		return "", err
	default:
		c.logger.WarnContext(ctx, "proactive token refresh failed, using current token",
			"error", err,
			"request_id", request.GetRequestID(ctx),
		)
		return token, nil
	}
}

// send performs one HTTP exchange through the circuit breaker.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (*Response, error) {
	if c.breaker != nil && !c.breaker.Allow() {
		return nil, errBackendUnavailable
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		c.abandonProbe()
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set(request.HeaderRequestID, uuid.NewString())

	start := time.Now()
	httpResp, err := c.client.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(method, 0, time.Since(start))
		if errors.Is(err, context.Canceled) {
			c.abandonProbe()
		} else {
			c.recordOutcome(ctx, false)
		}
		return nil, transportError(ctx, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	c.metrics.ObserveRequest(method, httpResp.StatusCode, time.Since(start))
	if err != nil {
		c.recordOutcome(ctx, false)
		return nil, transportError(ctx, err)
	}
	c.recordOutcome(ctx, !httpErrors.IsServerError(httpResp.StatusCode))

	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: raw}, nil
}

func (c *Client) recordOutcome(ctx context.Context, healthy bool) {
	if c.breaker == nil {
		return
	}
	if healthy {
		if change := c.breaker.RecordSuccess(); change.Closed {
			c.metrics.SetBreakerOpen(false)
			c.logger.InfoContext(ctx, "backend circuit closed", "breaker", c.breaker.Name())
		}
		return
	}
	if change := c.breaker.RecordFailure(); change.Opened {
		c.metrics.SetBreakerOpen(true)
		c.logger.WarnContext(ctx, "backend circuit opened", "breaker", c.breaker.Name())
	}
}

func (c *Client) abandonProbe() {
	if c.breaker != nil {
		c.breaker.Abandon()
	}
}

// invalidate reports, once per failed call, that token proved unusable.
func (c *Client) invalidate(ctx context.Context, token, reason string, cause error) {
	c.metrics.IncrementInvalidation(reason)
	c.logger.WarnContext(ctx, "session invalidated by request layer",
		"reason", reason,
		"token_fp", tracer.Fingerprint(token),
		"request_id", request.GetRequestID(ctx),
	)
	if c.invalidator != nil {
		c.invalidator.InvalidateSession(ctx, token, cause)
	}
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "encode request body")
	}
	return raw, nil
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
