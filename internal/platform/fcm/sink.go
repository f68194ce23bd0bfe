// Package fcm delivers notifications through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/phrazzld/genflow/internal/config"
	"github.com/phrazzld/genflow/internal/notify"
	"google.golang.org/api/option"
)

// messenger is the subset of *messaging.Client used by Sink.
type messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Sink implements notify.Sink on top of FCM.
type Sink struct {
	client messenger
	sound  string
	logger *slog.Logger
}

var _ notify.Sink = (*Sink)(nil)

// NewSink initializes a Firebase app from the configured service account file.
func NewSink(ctx context.Context, cfg config.NotificationConfig, logger *slog.Logger) (*Sink, error) {
	if cfg.CredentialsFile == "" {
		return nil, errors.New("fcm credentials file cannot be empty")
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging client: %w", err)
	}

	return newSink(client, cfg.Sound, logger), nil
}

func newSink(client messenger, sound string, logger *slog.Logger) *Sink {
	return &Sink{
		client: client,
		sound:  sound,
		logger: logger.With(slog.String("component", "fcm")),
	}
}

// Send implements notify.Sink.
func (s *Sink) Send(ctx context.Context, token string, msg notify.Message) error {
	if token == "" {
		return notify.ErrEmptyToken
	}

	m := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	}
	if s.sound != "" {
		m.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: s.sound}},
		}
	}

	id, err := s.client.Send(ctx, m)
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}

	s.logger.DebugContext(ctx, "notification sent", slog.String("message_id", id))
	return nil
}
