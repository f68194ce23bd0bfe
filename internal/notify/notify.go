// Package notify delivers user-facing completion notifications.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// ErrEmptyToken is returned when a message has no device to go to.
var ErrEmptyToken = errors.New("device token cannot be empty")

// Message is a push notification with an optional data payload.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Sink sends a message to the device identified by token.
type Sink interface {
	Send(ctx context.Context, token string, msg Message) error
}

// LogSink records messages in the log instead of delivering them.
// It is used when push delivery is disabled.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink writing to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "notify"))}
}

// Send implements Sink.
func (s *LogSink) Send(ctx context.Context, token string, msg Message) error {
	if token == "" {
		return ErrEmptyToken
	}
	attrs := []any{slog.String("title", msg.Title), slog.String("body", msg.Body)}
	for k, v := range msg.Data {
		attrs = append(attrs, slog.String("data_"+k, v))
	}
	s.logger.InfoContext(ctx, "notification suppressed, delivery disabled", attrs...)
	return nil
}
