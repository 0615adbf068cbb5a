// Package alert contains the collaborators that make a detected touch
// noticeable: notifications with a cooldown and a sound player that reports
// when playback ends.
package alert

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Notifier delivers a user-visible notification.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Throttled drops notifications that arrive within cooldown of the last delivered one.
type Throttled struct {
	next     Notifier
	cooldown time.Duration
	now      func() time.Time

	mu      sync.Mutex
	last    time.Time
	sent    bool
	dropped int
}

// NewThrottled wraps next with a cooldown window.
func NewThrottled(next Notifier, cooldown time.Duration) *Throttled {
	return &Throttled{next: next, cooldown: cooldown, now: time.Now}
}

// Notify forwards the notification unless the cooldown is still running.
// Dropped notifications are not errors.
func (t *Throttled) Notify(ctx context.Context, title, body string) error {
	t.mu.Lock()
	now := t.now()
	if t.sent && now.Sub(t.last) < t.cooldown {
		t.dropped++
		t.mu.Unlock()
		return nil
	}
	t.last = now
	t.sent = true
	t.mu.Unlock()

	return t.next.Notify(ctx, title, body)
}

// Dropped returns how many notifications were suppressed.
func (t *Throttled) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier logging through logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, title, body string) error {
	n.logger.Warn(title, zap.String("body", body))
	return nil
}
