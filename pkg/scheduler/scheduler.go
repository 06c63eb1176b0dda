// Package scheduler owns the pomodoro phase state machine. It publishes the
// current CycleInfo to observers, consumes control actions from a bounded
// queue, and blocks every phase boundary after the first behind an
// announce-until-acknowledged escalation loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"tomato/pkg/broadcast"
	"tomato/pkg/protocol"

	"github.com/google/uuid"
)

// ErrStopped is returned to producers once the scheduler is no longer
// consuming actions.
var ErrStopped = errors.New("scheduler stopped")

// SetSize is the number of Busy phases in one set. The break after the last
// one is a long break.
const SetSize = 4

// Recorder receives scheduler events. Production impl is the history store.
type Recorder interface {
	Record(ctx context.Context, ev protocol.Event) error
}

// Durations holds the configured length of each phase.
type Durations struct {
	Busy       time.Duration
	ShortBreak time.Duration
	LongBreak  time.Duration
}

// For returns the configured duration of p.
func (d Durations) For(p protocol.Phase) time.Duration {
	switch p {
	case protocol.PhaseShortBreak:
		return d.ShortBreak
	case protocol.PhaseLongBreak:
		return d.LongBreak
	default:
		return d.Busy
	}
}

// Validate rejects non-positive phase lengths.
func (d Durations) Validate() error {
	if d.Busy <= 0 || d.ShortBreak <= 0 || d.LongBreak <= 0 {
		return fmt.Errorf("phase durations must be positive (busy=%s short=%s long=%s)", d.Busy, d.ShortBreak, d.LongBreak)
	}
	return nil
}

// Config holds Scheduler configuration.
type Config struct {
	Durations      Durations
	Unit           time.Duration // Unit GET INFO answers in (default 1s).
	RemindInterval time.Duration // Re-announcement delay (default 60s).
	DrainWindow    time.Duration // Stale-action drain before announcing (default 100ms).
	QueueSize      int           // Action queue capacity (default 16).
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Durations.Busy == 0 {
		out.Durations.Busy = 25 * time.Minute
	}
	if out.Durations.ShortBreak == 0 {
		out.Durations.ShortBreak = 5 * time.Minute
	}
	if out.Durations.LongBreak == 0 {
		out.Durations.LongBreak = 15 * time.Minute
	}
	if out.Unit == 0 {
		out.Unit = protocol.DefaultUnit
	}
	if out.RemindInterval == 0 {
		out.RemindInterval = time.Minute
	}
	if out.DrainWindow == 0 {
		out.DrainWindow = 100 * time.Millisecond
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 16
	}
	return out
}

// Option configures optional Scheduler collaborators.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l.With("component", "scheduler")
		}
	}
}

// WithRecorder sets the event recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.nowFunc = now }
}

// Scheduler is the sole writer of CycleInfo.
type Scheduler struct {
	cfg       Config
	durations *broadcast.Value[Durations]
	state     *broadcast.Value[protocol.CycleInfo]
	actions   chan protocol.ControlAction
	done      chan struct{}
	running   atomic.Bool

	recorder Recorder
	log      *slog.Logger
	nowFunc  func() time.Time
}

// New creates a Scheduler. It does not start the cycle; call Run.
func New(cfg Config, opts ...Option) *Scheduler {
	resolved := cfg.withDefaults()
	s := &Scheduler{
		cfg:       resolved,
		durations: broadcast.NewValue(resolved.Durations),
		actions:   make(chan protocol.ControlAction, resolved.QueueSize),
		done:      make(chan struct{}),
		log:       slog.Default().With("component", "scheduler"),
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = broadcast.NewValue(protocol.CycleInfo{
		Phase:     protocol.PhaseBusy,
		NextPhase: breakAfter(0),
		StartedAt: s.nowFunc(),
	})
	return s
}

// Snapshot returns the most recently published CycleInfo.
func (s *Scheduler) Snapshot() protocol.CycleInfo {
	return s.state.Get()
}

// Watch returns the current CycleInfo and a channel closed on the next publish.
func (s *Scheduler) Watch() (protocol.CycleInfo, <-chan struct{}) {
	info, _, changed := s.state.Load()
	return info, changed
}

// DurationFor returns the currently configured duration of p.
func (s *Scheduler) DurationFor(p protocol.Phase) time.Duration {
	return s.durations.Get().For(p)
}

// Unit returns the time unit remaining-time answers are expressed in.
func (s *Scheduler) Unit() time.Duration {
	return s.cfg.Unit
}

// Remaining returns how long is left in the current phase at now; negative
// when overdue.
func (s *Scheduler) Remaining(now time.Time) time.Duration {
	info := s.state.Get()
	return info.Remaining(s.DurationFor(info.Phase), now)
}

// SetDurations swaps the phase lengths. A phase already running is re-timed
// against its original start.
func (s *Scheduler) SetDurations(d Durations) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.durations.Publish(d)
	s.log.Info("durations updated", "busy", d.Busy, "short_break", d.ShortBreak, "long_break", d.LongBreak)
	return nil
}

// Submit enqueues a control action. It blocks while the queue is full and
// fails with ErrStopped once Run has returned.
func (s *Scheduler) Submit(ctx context.Context, a protocol.ControlAction) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	select {
	case s.actions <- a:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("submit %s: %w", a, ctx.Err())
	}
}

// Run drives the cycle until ctx is cancelled. The first Busy phase starts
// immediately; every later phase waits for an acknowledgment.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("scheduler already running")
	}
	defer close(s.done)

	first := true
	for {
		for pos := range SetSize {
			brk := breakAfter(pos)

			if !first {
				if err := s.escalate(ctx, protocol.PhaseBusy); err != nil {
					return ignoreCancel(err)
				}
			}
			first = false

			s.startPhase(ctx, protocol.PhaseBusy, brk, pos)
			if err := s.hold(ctx); err != nil {
				return ignoreCancel(err)
			}

			if err := s.escalate(ctx, brk); err != nil {
				return ignoreCancel(err)
			}
			s.startPhase(ctx, brk, protocol.PhaseBusy, pos)
			if err := s.hold(ctx); err != nil {
				return ignoreCancel(err)
			}
		}
	}
}

// breakAfter returns the break that follows the Busy phase at position pos.
func breakAfter(pos int) protocol.Phase {
	if pos == SetSize-1 {
		return protocol.PhaseLongBreak
	}
	return protocol.PhaseShortBreak
}

func (s *Scheduler) startPhase(ctx context.Context, phase, next protocol.Phase, pos int) {
	info := protocol.CycleInfo{
		Phase:     phase,
		NextPhase: next,
		StartedAt: s.nowFunc(),
	}
	s.state.Publish(info)
	s.log.Info("phase started", "phase", phase, "next", next, "position", pos, "duration", s.DurationFor(phase))
	s.record(ctx, protocol.Event{Kind: protocol.EventPhaseStarted, Phase: phase, NextPhase: next, At: info.StartedAt})
}

// hold suspends until the current phase's configured duration has elapsed.
// Actions arriving meanwhile are discarded: no transition is pending.
func (s *Scheduler) hold(ctx context.Context) error {
	info := s.state.Get()
	for {
		durations, _, resized := s.durations.Load()
		wait := info.StartedAt.Add(durations.For(info.Phase)).Sub(s.nowFunc())
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-resized:
			timer.Stop()
		case a := <-s.actions:
			timer.Stop()
			s.log.Debug("discarded action, no transition pending", "action", a, "phase", info.Phase)
		}
	}
}

// escalate announces the transition to next until one Acknowledge arrives.
// The current phase stays published (and overdue) for the whole loop.
func (s *Scheduler) escalate(ctx context.Context, next protocol.Phase) error {
	cur := s.state.Get()
	if err := s.drainStale(ctx); err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		info := protocol.CycleInfo{
			Phase:        cur.Phase,
			NextPhase:    next,
			NeedsAck:     true,
			StartedAt:    cur.StartedAt,
			Announcement: uuid.NewString(),
		}
		s.state.Publish(info)
		s.log.Info("transition announced", "phase", cur.Phase, "next", next, "attempt", attempt, "announcement", info.Announcement)
		s.record(ctx, protocol.Event{Kind: protocol.EventAnnounced, Phase: cur.Phase, NextPhase: next, Announcement: info.Announcement, At: s.nowFunc()})

		acked, err := s.awaitAck(ctx, info)
		if err != nil {
			return err
		}
		if acked {
			s.log.Info("transition acknowledged", "next", next, "announcement", info.Announcement)
			s.record(ctx, protocol.Event{Kind: protocol.EventAcknowledged, Phase: cur.Phase, NextPhase: next, Announcement: info.Announcement, At: s.nowFunc()})
			return nil
		}
	}
}

// awaitAck races the action queue against the re-announcement delay. Snooze
// only keeps waiting; the delay decides when to announce again.
func (s *Scheduler) awaitAck(ctx context.Context, info protocol.CycleInfo) (bool, error) {
	timer := time.NewTimer(s.cfg.RemindInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
			return false, nil
		case a := <-s.actions:
			switch a {
			case protocol.Acknowledge:
				return true, nil
			case protocol.Snooze:
				s.log.Debug("snoozed", "next", info.NextPhase, "announcement", info.Announcement)
				s.record(ctx, protocol.Event{Kind: protocol.EventSnoozed, Phase: info.Phase, NextPhase: info.NextPhase, Announcement: info.Announcement, At: s.nowFunc()})
			default:
				s.log.Warn("ignored unknown action", "action", a)
			}
		}
	}
}

// drainStale discards actions that arrive within the drain window, so a late
// reply to a previous announcement cannot acknowledge this one.
func (s *Scheduler) drainStale(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.DrainWindow)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case a := <-s.actions:
			s.log.Debug("drained stale action", "action", a)
		}
	}
}

func (s *Scheduler) record(ctx context.Context, ev protocol.Event) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, ev); err != nil && ctx.Err() == nil {
		s.log.Warn("record event", "kind", ev.Kind, "error", err)
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
