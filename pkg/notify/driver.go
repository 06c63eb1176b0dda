package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"tomato/pkg/protocol"
)

// Action ids offered on every announcement.
const (
	ActionReady  = "ready"
	ActionRemind = "remind"
)

// DefaultActions are the choices shown on an announcement. Only ActionReady
// acknowledges; any other outcome snoozes.
var DefaultActions = []Action{
	{ID: ActionReady, Label: "Ready"},
	{ID: ActionRemind, Label: "Remind me later"},
}

// Source publishes cycle state. *scheduler.Scheduler implements it.
type Source interface {
	Watch() (protocol.CycleInfo, <-chan struct{})
}

// Sink accepts control actions. *scheduler.Scheduler implements it.
type Sink interface {
	Submit(ctx context.Context, a protocol.ControlAction) error
}

// Driver invokes the backend once per announcement and submits the resulting
// action. Invocations never overlap.
type Driver struct {
	backend Backend
	source  Source
	sink    Sink
	actions []Action
	timeout time.Duration
	log     *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithTimeout bounds each backend invocation. An expired invocation counts as
// no selection. Zero means unbounded.
func WithTimeout(d time.Duration) Option {
	return func(dr *Driver) { dr.timeout = d }
}

// WithLogger sets the driver's logger.
func WithLogger(l *slog.Logger) Option {
	return func(dr *Driver) {
		if l != nil {
			dr.log = l.With("component", "notify")
		}
	}
}

// NewDriver creates a Driver.
func NewDriver(backend Backend, source Source, sink Sink, opts ...Option) *Driver {
	d := &Driver{
		backend: backend,
		source:  source,
		sink:    sink,
		actions: DefaultActions,
		log:     slog.Default().With("component", "notify"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run watches the source until ctx is done. It returns nil on cancellation
// and an error only when the sink stops accepting actions.
func (d *Driver) Run(ctx context.Context) error {
	var last string
	for {
		info, changed := d.source.Watch()
		if info.NeedsAck && info.Announcement != last {
			last = info.Announcement
			action, ok := d.announce(ctx, info)
			if ctx.Err() != nil {
				return nil
			}
			if !ok {
				continue
			}
			if err := d.sink.Submit(ctx, action); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("submit %s: %w", action, err)
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}

// announce shows one notification and maps the outcome. ok is false when the
// announcement was replaced while the notification was open: its answer
// belongs to a transition that is no longer pending.
func (d *Driver) announce(ctx context.Context, info protocol.CycleInfo) (protocol.ControlAction, bool) {
	nctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if d.timeout > 0 {
		var cancelTimeout context.CancelFunc
		nctx, cancelTimeout = context.WithTimeout(nctx, d.timeout)
		defer cancelTimeout()
	}

	var superseded atomic.Bool
	go d.watchSuperseded(nctx, info.Announcement, cancel, &superseded)

	log := d.log.With("announcement", info.Announcement, "next", info.NextPhase)
	sel, err := d.backend.Notify(nctx, Message(info.NextPhase), d.actions)
	if superseded.Load() || !d.current(info.Announcement) {
		log.Debug("announcement superseded")
		return 0, false
	}
	switch {
	case err != nil:
		if ctx.Err() == nil {
			log.Warn("notification failed", "error", err)
		}
		return protocol.Snooze, true
	case sel.ActionID == ActionReady:
		log.Info("notification acknowledged")
		return protocol.Acknowledge, true
	default:
		log.Debug("notification closed without acknowledgment", "selection", sel.ActionID)
		return protocol.Snooze, true
	}
}

// watchSuperseded cancels the open notification once the source publishes
// anything other than the announcement it was opened for. Intermediate values
// may be skipped, so a newer announcement counts the same as a started phase.
func (d *Driver) watchSuperseded(ctx context.Context, announcement string, cancel context.CancelFunc, flag *atomic.Bool) {
	for {
		info, changed := d.source.Watch()
		if !info.NeedsAck || info.Announcement != announcement {
			flag.Store(true)
			cancel()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
	}
}

// current reports whether announcement is still the published pending one.
func (d *Driver) current(announcement string) bool {
	info, _ := d.source.Watch()
	return info.NeedsAck && info.Announcement == announcement
}

// Message is the notification text for a pending transition into next.
func Message(next protocol.Phase) string {
	switch next {
	case protocol.PhaseBusy:
		return "Break is over. Ready to get back to work?"
	case protocol.PhaseShortBreak:
		return "Time for a short break."
	case protocol.PhaseLongBreak:
		return "Set complete. Time for a long break."
	default:
		return fmt.Sprintf("Next up: %s", next)
	}
}
