package notify

import "log"

// Severity matches the toast severities rendered by the UI shell.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityError   Severity = "error"
)

// Notification is a user-facing toast message.
type Notification struct {
	Severity Severity
	Summary  string
	Detail   string
}

// Func receives notifications emitted by the engine.
type Func func(Notification)

// Log is a Func that writes notifications to the standard logger. Used by the
// CLI shell and as a default when no UI sink is attached.
func Log(n Notification) {
	log.Printf("[%s] %s: %s", n.Severity, n.Summary, n.Detail)
}

// Discard drops all notifications.
func Discard(Notification) {}
