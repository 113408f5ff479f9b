// Package notify delivers operator-facing call summaries to a side channel.
//
// Notifications are best-effort: callers log delivery failures and move on.
// A call is never blocked or failed because the operator channel is down.
package notify

import (
	"context"
	"log/slog"
)

// Notifier delivers a short text message to the operator channel.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Compile-time check: Log must implement Notifier.
var _ Notifier = (*Log)(nil)

// Log is the fallback Notifier used when no operator channel is configured.
// It writes the message to the application log at info level.
type Log struct{}

// Send logs the message.
func (Log) Send(ctx context.Context, text string) error {
	slog.InfoContext(ctx, "call summary", "summary", text)
	return nil
}
