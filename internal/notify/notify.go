package notify

import (
	"fmt"
	"time"

	"github.com/hochfrequenz/claude-issue-loop/internal/domain"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	Issue   string // Optional issue reference
}

// Notifier is the interface for sending notifications. Sends are
// fire-and-forget: callers ignore the error beyond logging.
type Notifier interface {
	Send(n Notification) error
}

// ForRunResult builds the notification for a finished run
func ForRunResult(res domain.RunResult) Notification {
	n := Notification{
		Issue:   res.Issue.Identifier,
		Message: fmt.Sprintf("%d iteration(s) in %s", res.Iterations, res.Duration.Round(time.Second)),
	}

	switch res.Status {
	case domain.RunCompleted:
		n.Title = fmt.Sprintf("%s completed", res.Issue.Identifier)
		n.Type = NotifySuccess
	case domain.RunMaxIterations:
		n.Title = fmt.Sprintf("%s hit the iteration budget", res.Issue.Identifier)
		n.Type = NotifyWarning
	default:
		n.Title = fmt.Sprintf("%s failed", res.Issue.Identifier)
		n.Message = res.Error
		n.Type = NotifyError
	}

	return n
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }
