package agent

import (
	"log/slog"
	"time"

	"github.com/openpapers/papersync/internal/remote"
)

// Notifier surfaces sync outcomes to the UI layer. The desktop shell
// plugs in its own implementation; the agent ships a log-backed one.
type Notifier interface {
	TaskSucceeded(task Task)
	TaskFailed(task Task, attempts int, err error)
	RemoteChange(n remote.Notification)
	Status(s remote.Status)
}

// LogNotifier writes notifications to the structured log. Honors the
// ui.showNotifications toggle; the duration is forwarded so a UI shim
// tailing the log knows how long to display each entry.
type LogNotifier struct {
	enabled  bool
	duration time.Duration
	logger   *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(enabled bool, duration time.Duration, logger *slog.Logger) *LogNotifier {
	return &LogNotifier{enabled: enabled, duration: duration, logger: logger}
}

func (n *LogNotifier) TaskSucceeded(task Task) {
	if !n.enabled {
		return
	}

	n.logger.Info("synced",
		slog.String("op", task.Op.String()),
		slog.String("path", task.Path),
		slog.Duration("display", n.duration),
	)
}

func (n *LogNotifier) TaskFailed(task Task, attempts int, err error) {
	if !n.enabled {
		return
	}

	// Terminal failures always carry enough context for a manual retry:
	// path, operation kind, and the last error.
	n.logger.Error("sync failed",
		slog.String("op", task.Op.String()),
		slog.String("path", task.Path),
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()),
		slog.Duration("display", n.duration),
	)
}

func (n *LogNotifier) RemoteChange(notif remote.Notification) {
	if !n.enabled {
		return
	}

	n.logger.Info("remote change",
		slog.String("type", notif.Type),
		slog.String("path", notif.Path),
		slog.String("device", notif.Device),
	)
}

func (n *LogNotifier) Status(s remote.Status) {
	if !n.enabled {
		return
	}

	n.logger.Info("connection status", slog.String("status", s.String()))
}
