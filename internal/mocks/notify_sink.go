package mocks

import (
	"context"

	"github.com/phrazzld/genflow/internal/notify"
	"github.com/stretchr/testify/mock"
)

// TestifyMockSink is a notify.Sink for use with testify/mock.
type TestifyMockSink struct {
	mock.Mock
}

var _ notify.Sink = (*TestifyMockSink)(nil)

// Send is a mock implementation of notify.Sink.Send
func (m *TestifyMockSink) Send(ctx context.Context, token string, msg notify.Message) error {
	args := m.Called(ctx, token, msg)
	return args.Error(0)
}
