package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/cbegin/drumseq-go/internal/engine"
)

// ErrConsumerUnreachable marks a tick that could not hand its events to the
// engine. Transport is stopped when it happens.
var ErrConsumerUnreachable = errors.New("scheduler: engine unreachable")

// Engine is what the scheduler drives. *engine.Engine satisfies it.
type Engine interface {
	CurrentTime() float64
	Activate() error
	Trigger(v engine.Voice, at, gain float64) error
	ChokeAt(at float64)
}

const (
	DefaultLookahead   = 0.1
	DefaultInterval    = 25 * time.Millisecond
	DefaultStartMargin = 0.05
)

type config struct {
	lookahead   float64
	interval    time.Duration
	startMargin float64
	manual      bool
	log         *slog.Logger
	onChange    func()
	state       State
}

type Option func(*config)

// WithLookahead sets how far ahead of the engine clock steps are committed.
func WithLookahead(seconds float64) Option {
	return func(c *config) {
		if seconds > 0 {
			c.lookahead = seconds
		}
	}
}

// WithInterval sets the polling period of the timer loop.
func WithInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithStartMargin sets the delay between Start and the first step.
func WithStartMargin(seconds float64) Option {
	return func(c *config) {
		if seconds >= 0 {
			c.startMargin = seconds
		}
	}
}

// WithManualTick disables the timer loop. The caller drives Tick, which is
// how offline renders and tests step the scheduler deterministically.
func WithManualTick() Option {
	return func(c *config) {
		c.manual = true
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithOnChange registers a callback run after every parameter mutation, off
// the scheduler lock.
func WithOnChange(fn func()) Option {
	return func(c *config) {
		c.onChange = fn
	}
}

// WithState seeds the initial parameters.
func WithState(s State) Option {
	return func(c *config) {
		c.state = s
	}
}

// Scheduler turns the pattern into timed engine triggers, staying lookahead
// seconds ahead of the engine clock.
type Scheduler struct {
	eng         Engine
	log         *slog.Logger
	lookahead   float64
	interval    time.Duration
	startMargin float64
	manual      bool
	onChange    func()
	events      hub

	mu      sync.Mutex
	state   State
	playing bool
	step    int
	next    float64
	err     error
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(e Engine, opts ...Option) *Scheduler {
	cfg := config{
		lookahead:   DefaultLookahead,
		interval:    DefaultInterval,
		startMargin: DefaultStartMargin,
		log:         slog.Default(),
		state:       DefaultState(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Scheduler{
		eng:         e,
		log:         cfg.log,
		lookahead:   cfg.lookahead,
		interval:    cfg.interval,
		startMargin: cfg.startMargin,
		manual:      cfg.manual,
		onChange:    cfg.onChange,
		state:       cfg.state.Clamped(),
	}
}

// Subscribe returns a buffered event channel and a function that closes it.
// Events are dropped for subscribers that do not keep up.
func (s *Scheduler) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

// Start activates the engine and begins scheduling from step 0, startMargin
// seconds ahead of the engine clock. It is a no-op while playing.
func (s *Scheduler) Start() error {
	if s.Playing() {
		return nil
	}
	if err := s.eng.Activate(); err != nil {
		if !errors.Is(err, engine.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", engine.ErrDeviceUnavailable, err)
		}
		s.log.Warn("cannot play", "err", err)
		return err
	}

	s.mu.Lock()
	if s.playing {
		s.mu.Unlock()
		return nil
	}
	s.playing = true
	s.step = 0
	s.next = s.eng.CurrentTime() + s.startMargin
	s.err = nil
	ctx, cancel := context.WithCancel(context.Background())
	var done chan struct{}
	if !s.manual {
		done = make(chan struct{})
		s.cancel, s.done = cancel, done
	}
	tempo := s.state.Tempo
	s.mu.Unlock()

	s.log.Info("transport started", "bpm", tempo)
	s.events.publish(Event{Kind: EventStarted})
	if err := s.tick(ctx); err != nil {
		cancel()
		return err
	}
	if s.manual {
		cancel()
		return nil
	}
	go s.loop(ctx, done)
	return nil
}

// Stop cancels the pending tick and rewinds to step 0. Events already handed
// to the engine play out. It is a no-op while stopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return
	}
	cancel, done := s.haltLocked()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.log.Info("transport stopped")
	s.events.publish(Event{Kind: EventStopped})
}

// haltLocked resets transport and detaches the timer loop, returning what the
// caller needs to shut it down.
func (s *Scheduler) haltLocked() (context.CancelFunc, chan struct{}) {
	s.playing = false
	s.step = 0
	s.next = 0
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	return cancel, done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTimer(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if err := s.tick(ctx); err != nil {
			return
		}
		// re-armed only once the tick is done, so ticks never overlap
		t.Reset(s.interval)
	}
}

// Tick commits every step that falls inside the lookahead window. The timer
// loop calls it on its own; with WithManualTick the caller does. A failing
// trigger stops transport and the error is returned.
func (s *Scheduler) Tick() error {
	return s.tick(context.Background())
}

// tick runs one scheduling pass. ctx belongs to the run that owns the call; a
// cancelled ctx means that run was stopped and the tick is dropped.
func (s *Scheduler) tick(ctx context.Context) error {
	s.mu.Lock()
	if !s.playing || ctx.Err() != nil {
		s.mu.Unlock()
		return nil
	}
	steps, err := s.scheduleLocked()
	if err != nil {
		s.err = err
		if cancel, _ := s.haltLocked(); cancel != nil {
			cancel()
		}
	}
	s.mu.Unlock()

	s.events.publish(steps...)
	if err != nil {
		s.log.Error("scheduling stopped", "err", err)
		s.events.publish(Event{Kind: EventError, Err: err}, Event{Kind: EventStopped})
	}
	return err
}

func (s *Scheduler) scheduleLocked() (events []Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic at step %d: %v", ErrConsumerUnreachable, s.step, r)
		}
	}()
	horizon := s.eng.CurrentTime() + s.lookahead
	for s.next < horizon {
		dur := StepDuration(s.state.Tempo)
		at := s.next
		if s.step%2 == 1 {
			at += s.state.Swing * dur
		}
		for _, v := range engine.Voices() {
			if !s.state.Pattern[v][s.step] || !s.state.Mix.Audible(v) {
				continue
			}
			if v == engine.ClosedHat {
				s.eng.ChokeAt(at)
			}
			if err := s.eng.Trigger(v, at, s.state.Mix[v].Volume); err != nil {
				return events, fmt.Errorf("%w: %v at step %d: %w", ErrConsumerUnreachable, v, s.step, err)
			}
		}
		events = append(events, Event{Kind: EventStep, Step: s.step, At: at})
		s.next += dur
		s.step = (s.step + 1) % Steps
	}
	return events, nil
}

// Err returns the failure that last stopped transport, if any. Start clears it.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// CurrentStep is the next step to be scheduled.
func (s *Scheduler) CurrentStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// NextEventTime is the un-swung audio time of CurrentStep.
func (s *Scheduler) NextEventTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Tempo() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Tempo
}

func (s *Scheduler) Swing() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Swing
}

func (s *Scheduler) Pattern() Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Pattern
}

func (s *Scheduler) Mix() Mix {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Mix
}

// update applies fn under the lock and, if it reports a change, notifies.
// Steps already committed keep the values they were scheduled with.
func (s *Scheduler) update(fn func(st *State) bool) {
	s.mu.Lock()
	changed := fn(&s.state)
	s.mu.Unlock()
	if !changed {
		return
	}
	s.events.publish(Event{Kind: EventChanged})
	if s.onChange != nil {
		s.onChange()
	}
}

// SetState replaces every parameter at once, clamped to range.
func (s *Scheduler) SetState(st State) {
	st = st.Clamped()
	s.update(func(cur *State) bool {
		if *cur == st {
			return false
		}
		*cur = st
		return true
	})
}

// SetTempo clamps bpm to [MinTempo, MaxTempo]. NaN is ignored.
func (s *Scheduler) SetTempo(bpm float64) {
	if math.IsNaN(bpm) {
		return
	}
	bpm = clampTempo(bpm)
	s.update(func(st *State) bool {
		if st.Tempo == bpm {
			return false
		}
		st.Tempo = bpm
		return true
	})
}

// SetSwing clamps the swing fraction to [0, MaxSwing]. NaN is ignored.
func (s *Scheduler) SetSwing(swing float64) {
	if math.IsNaN(swing) {
		return
	}
	swing = clampSwing(swing)
	s.update(func(st *State) bool {
		if st.Swing == swing {
			return false
		}
		st.Swing = swing
		return true
	})
}

func (s *Scheduler) Toggle(v engine.Voice, step int) {
	s.update(func(st *State) bool {
		if !validCell(v, step) {
			return false
		}
		st.Pattern.Toggle(v, step)
		return true
	})
}

func (s *Scheduler) SetStep(v engine.Voice, step int, on bool) {
	s.update(func(st *State) bool {
		if !validCell(v, step) || st.Pattern[v][step] == on {
			return false
		}
		st.Pattern.SetStep(v, step, on)
		return true
	})
}

func (s *Scheduler) ClearRow(v engine.Voice) {
	s.update(func(st *State) bool {
		if !v.Valid() || st.Pattern[v] == [Steps]bool{} {
			return false
		}
		st.Pattern.ClearRow(v)
		return true
	})
}

func (s *Scheduler) SetPattern(p Pattern) {
	s.update(func(st *State) bool {
		if st.Pattern == p {
			return false
		}
		st.Pattern = p
		return true
	})
}

// SetVolume clamps the channel gain to [0, 1].
func (s *Scheduler) SetVolume(v engine.Voice, volume float64) {
	if math.IsNaN(volume) {
		return
	}
	volume = clampVolume(volume)
	s.update(func(st *State) bool {
		if !v.Valid() || st.Mix[v].Volume == volume {
			return false
		}
		st.Mix[v].Volume = volume
		return true
	})
}

func (s *Scheduler) SetMuted(v engine.Voice, muted bool) {
	s.update(func(st *State) bool {
		if !v.Valid() || st.Mix[v].Muted == muted {
			return false
		}
		st.Mix[v].Muted = muted
		return true
	})
}

func (s *Scheduler) SetSoloed(v engine.Voice, soloed bool) {
	s.update(func(st *State) bool {
		if !v.Valid() || st.Mix[v].Soloed == soloed {
			return false
		}
		st.Mix[v].Soloed = soloed
		return true
	})
}
