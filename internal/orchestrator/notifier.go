package orchestrator

import (
	"tunnelctl/pkg/logging"
)

// Notifier receives user-facing connect/disconnect events. Implementations
// are external collaborators: a desktop notification bridge, a console
// printer, a test recorder.
type Notifier interface {
	Notify(title, body string)
}

// LogNotifier renders notifications through the logging subsystem. It is the
// default sink for console operation.
type LogNotifier struct{}

// Notify logs the notification at info level.
func (LogNotifier) Notify(title, body string) {
	logging.Info("Notification", "%s: %s", title, body)
}
