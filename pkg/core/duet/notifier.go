package duet

import (
	"context"
	"log/slog"
)

// NotificationPrefix marks injected status text so the narrator can tell it
// apart from user speech.
const NotificationPrefix = "[SYSTEM NOTIFICATION] "

// DefaultNotifyQueueSize bounds pending notifications.
const DefaultNotifyQueueSize = 32

// TextSender is the speaking-session surface the notifier needs.
type TextSender interface {
	SendText(text string) error
}

// Notifier delivers status messages into the speaking session. Notify never
// blocks; delivery failures are logged.
type Notifier struct {
	target TextSender
	queue  chan string
	logger *slog.Logger
}

func NewNotifier(target TextSender, size int, logger *slog.Logger) *Notifier {
	if size <= 0 {
		size = DefaultNotifyQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{target: target, queue: make(chan string, size), logger: logger}
}

// Notify enqueues msg. A full queue drops it.
func (n *Notifier) Notify(msg string) {
	select {
	case n.queue <- msg:
	default:
		n.logger.Warn("notification dropped", "reason", "queue_full", "message", msg)
	}
}

// Run sends queued messages until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			if err := n.target.SendText(NotificationPrefix + msg); err != nil {
				n.logger.Warn("notification delivery failed", "error", err)
			}
		}
	}
}
