// Package notify delivers outbound messages to players and the admin.
// Delivery is best effort: it runs after the state change that caused it is
// committed, and failures are logged and counted but never returned to the
// code that triggered them.
package notify

import (
	"context"
	"log/slog"
)

// Sender pushes a text message to a channel address.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// LogSender only logs messages. It is used when no transport is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to, body string) error {
	slog.InfoContext(ctx, "notify: message", "to", to, "body", body)
	return nil
}
