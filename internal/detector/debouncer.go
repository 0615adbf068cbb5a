package detector

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kozaktomas/touch-guard/internal/alert"
)

// AlertResult reports what one Update did.
type AlertResult struct {
	Alerting        bool `json:"alerting"`
	Played          bool `json:"played"`
	NotifyRequested bool `json:"notify_requested"`
}

// AlertDebouncer turns per-frame touch decisions into alerts. The sound
// plays again only after the previous playback ended. Notifications are
// requested on every touched frame; the notifier decides what to drop.
type AlertDebouncer struct {
	player   alert.Player
	notifier alert.Notifier
	text     alert.Text
	logger   *zap.Logger

	canFire  atomic.Bool
	alerting atomic.Bool
}

// NewAlertDebouncer wires the collaborators. player and notifier may be nil.
func NewAlertDebouncer(player alert.Player, notifier alert.Notifier, text alert.Text, logger *zap.Logger) *AlertDebouncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &AlertDebouncer{player: player, notifier: notifier, text: text, logger: logger}
	d.canFire.Store(true)
	if player != nil {
		player.OnEnd(func() { d.canFire.Store(true) })
	}
	return d
}

// Update applies the decision for one frame.
func (d *AlertDebouncer) Update(ctx context.Context, touched bool) AlertResult {
	d.alerting.Store(touched)
	res := AlertResult{Alerting: touched}
	if !touched {
		return res
	}

	if d.player != nil && d.canFire.CompareAndSwap(true, false) {
		if err := d.player.Play(ctx); err != nil {
			// No end callback will follow a failed start.
			d.canFire.Store(true)
			d.logger.Warn("alert sound failed", zap.Error(err))
		} else {
			res.Played = true
		}
	}

	if d.notifier != nil {
		res.NotifyRequested = true
		if err := d.notifier.Notify(ctx, d.text.Title, d.text.Body); err != nil {
			d.logger.Warn("alert notification failed", zap.Error(err))
		}
	}
	return res
}

// Alerting reports the touched state of the latest frame.
func (d *AlertDebouncer) Alerting() bool {
	return d.alerting.Load()
}

// CanFire reports whether the next touched frame may start the sound.
func (d *AlertDebouncer) CanFire() bool {
	return d.canFire.Load()
}

// Clear drops the visible alert, used when inference stops.
func (d *AlertDebouncer) Clear() {
	d.alerting.Store(false)
}
