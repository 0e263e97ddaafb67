package service

import (
	"context"

	"gymhub/api/internal/queue"
)

// Notifier hands events to the outbound notification channel.
type Notifier interface {
	Notify(ctx context.Context, event queue.Event) error
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, queue.Event) error { return nil }

func notifierOrNoop(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
