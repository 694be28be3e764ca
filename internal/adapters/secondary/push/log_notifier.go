package push

import (
	"context"
	"log/slog"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
)

// LogNotifier is a push provider that writes each push to the log instead
// of calling a real provider.
type LogNotifier struct {
	logger *slog.Logger
}

var _ ports.PushNotifier = (*LogNotifier)(nil)

// NewLogNotifier creates a new logging push provider.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger.With("component", "push_notifier"),
	}
}

// PushToUsers logs the push.
func (n *LogNotifier) PushToUsers(ctx context.Context, userIDs []string, title, body, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.logger.InfoContext(ctx, "mock push sent",
		"recipients", userIDs,
		"title", title,
		"body", body,
		"link", link,
	)
	return nil
}
