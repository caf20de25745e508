package service

import (
	"context"

	request "procura/pkg/platform/middleware/request"
)

// logEvent writes a structured session event. Token values are never passed here.
func (s *Service) logEvent(ctx context.Context, event string, attributes ...any) {
	if requestID := request.GetRequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	s.logger.InfoContext(ctx, event, append(attributes, "event", event)...)
}

func (s *Service) logFailure(ctx context.Context, event string, err error, attributes ...any) {
	if requestID := request.GetRequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	s.logger.WarnContext(ctx, event, append(attributes, "event", event, "error", err)...)
}
