package drumseq

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cbegin/drumseq-go/internal/effects"
	"github.com/cbegin/drumseq-go/internal/engine"
	"github.com/cbegin/drumseq-go/internal/scheduler"
	"github.com/cbegin/drumseq-go/internal/snapshot"
)

type Option func(*sessionConfig)

type sessionConfig struct {
	sampleRate   int
	store        snapshot.Store
	key          string
	sampleDir    string
	watchSamples bool
	log          *slog.Logger
	offline      bool
	output       engine.OutputFactory
	glue         bool
	saveTimeout  time.Duration
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		sampleRate:  48000,
		key:         snapshot.DefaultKey,
		log:         slog.Default(),
		saveTimeout: 2 * time.Second,
	}
}

func WithSampleRate(sampleRate int) Option {
	return func(cfg *sessionConfig) {
		cfg.sampleRate = sampleRate
	}
}

// WithStore persists the pattern and mix to store after every change.
func WithStore(store snapshot.Store) Option {
	return func(cfg *sessionConfig) {
		cfg.store = store
	}
}

func WithSnapshotKey(key string) Option {
	return func(cfg *sessionConfig) {
		if key != "" {
			cfg.key = key
		}
	}
}

// WithSampleDir binds kick.wav, snare.ogg and friends from dir in the
// background at startup.
func WithSampleDir(dir string) Option {
	return func(cfg *sessionConfig) {
		cfg.sampleDir = dir
	}
}

// WithWatchSamples rebinds sample slots when files in the sample dir change.
func WithWatchSamples(enabled bool) Option {
	return func(cfg *sessionConfig) {
		cfg.watchSamples = enabled
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cfg *sessionConfig) {
		if l != nil {
			cfg.log = l
		}
	}
}

// WithOffline detaches the session from the audio device. The scheduler is
// then ticked by hand and the engine clock advanced through Engine().Process.
func WithOffline() Option {
	return func(cfg *sessionConfig) {
		cfg.offline = true
	}
}

// WithOutput replaces the audio device.
func WithOutput(f engine.OutputFactory) Option {
	return func(cfg *sessionConfig) {
		cfg.output = f
	}
}

// WithGlue puts a compressor and ceiling on the master mix, live and in
// renders.
func WithGlue(enabled bool) Option {
	return func(cfg *sessionConfig) {
		cfg.glue = enabled
	}
}

// Session is one sequencer instance: an engine, the scheduler driving it and
// the snapshot persistence around them.
type Session struct {
	id     uuid.UUID
	log    *slog.Logger
	engine *engine.Engine
	sched  *scheduler.Scheduler
	store  snapshot.Store
	key    string
	glue   bool

	saveTimeout time.Duration
	dirty       chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

func NewSession(opts ...Option) (*Session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate < engine.MinSampleRate {
		return nil, fmt.Errorf("sampleRate %d below %d", cfg.sampleRate, engine.MinSampleRate)
	}

	id := uuid.New()
	log := cfg.log.With("session", id.String())
	engOpts := []engine.Option{engine.WithLogger(log)}
	if cfg.offline {
		engOpts = append(engOpts, engine.Offline())
	} else if cfg.output != nil {
		engOpts = append(engOpts, engine.WithOutput(cfg.output))
	}
	if cfg.glue {
		engOpts = append(engOpts, engine.WithMaster(effects.NewGlue(cfg.sampleRate)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:          id,
		log:         log,
		engine:      engine.New(cfg.sampleRate, engOpts...),
		store:       cfg.store,
		key:         cfg.key,
		glue:        cfg.glue,
		saveTimeout: cfg.saveTimeout,
		dirty:       make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}

	state := scheduler.DefaultState()
	if s.store != nil {
		st, err := snapshot.Load(ctx, s.store, s.key)
		if err != nil {
			log.Warn("persisted state ignored, using defaults", "key", s.key, "err", err)
		}
		state = st
	}
	schedOpts := []scheduler.Option{
		scheduler.WithLogger(log),
		scheduler.WithState(state),
		scheduler.WithOnChange(s.markDirty),
	}
	if cfg.offline {
		schedOpts = append(schedOpts, scheduler.WithManualTick())
	}
	s.sched = scheduler.New(s.engine, schedOpts...)

	if s.store != nil {
		s.wg.Add(1)
		go s.persist()
	}
	if cfg.sampleDir != "" {
		s.startSampleLoading(cfg.sampleDir, cfg.watchSamples)
	}
	log.Info("session ready", "sampleRate", cfg.sampleRate, "offline", cfg.offline)
	return s, nil
}

func (s *Session) startSampleLoading(dir string, watch bool) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		n := s.engine.LoadSlots(s.ctx, dir)
		s.log.Info("sample slots loaded", "dir", dir, "bound", n)
		if !watch {
			return
		}
		if err := s.engine.WatchSlots(s.ctx, dir, nil); err != nil {
			s.log.Warn("sample watch unavailable", "dir", dir, "err", err)
		}
	}()
}

func (s *Session) ID() string                      { return s.id.String() }
func (s *Session) Engine() *engine.Engine          { return s.engine }
func (s *Session) Scheduler() *scheduler.Scheduler { return s.sched }

// Activate unlocks audio output. Call it from the first user gesture.
func (s *Session) Activate() error {
	return s.engine.Activate()
}

func (s *Session) Start() error {
	return s.sched.Start()
}

func (s *Session) Stop() {
	s.sched.Stop()
}

// Toggle starts a stopped transport and stops a running one.
func (s *Session) Toggle() error {
	if s.sched.Playing() {
		s.sched.Stop()
		return nil
	}
	return s.sched.Start()
}

// TriggerKey auditions the voice bound to a live-play key. It reports
// whether r is one of those keys.
func (s *Session) TriggerKey(r rune) bool {
	v, ok := engine.VoiceForKey(r)
	if !ok {
		return false
	}
	if err := s.Trigger(v); err != nil {
		s.log.Warn("audition failed", "voice", v, "err", err)
	}
	return true
}

// Trigger plays v immediately at full gain.
func (s *Session) Trigger(v engine.Voice) error {
	return s.TriggerGain(v, 1)
}

// TriggerGain plays v immediately. Live input counts as a user gesture, so
// the engine is activated first.
func (s *Session) TriggerGain(v engine.Voice, gain float64) error {
	if err := s.engine.Activate(); err != nil {
		return err
	}
	return s.engine.Trigger(v, s.engine.CurrentTime(), gain)
}

// LoadSample decodes location into v's slot. On failure the slot falls back
// to synthesis (or silence for the user slot) and the error is returned.
func (s *Session) LoadSample(ctx context.Context, v engine.Voice, location string) error {
	buf, err := s.engine.DecodeLocation(ctx, location)
	if err != nil {
		s.engine.BindSample(v, nil)
		s.log.Warn("sample not loaded", "voice", v, "location", location, "err", err)
		return err
	}
	s.engine.BindSample(v, buf)
	s.log.Info("sample loaded", "voice", v, "location", location, "seconds", buf.Duration())
	return nil
}

// ParseSampleBinding splits a voice=location argument such as
// "kick=samples/808.wav" or "sample=https://host/loop.ogg".
func ParseSampleBinding(arg string) (engine.Voice, string, error) {
	name, location, ok := strings.Cut(arg, "=")
	if !ok || strings.TrimSpace(location) == "" {
		return 0, "", fmt.Errorf("sample binding %q: want voice=location", arg)
	}
	v, err := engine.ParseVoice(name)
	if err != nil {
		return 0, "", fmt.Errorf("sample binding %q: %w", arg, err)
	}
	return v, strings.TrimSpace(location), nil
}

func (s *Session) SetUserSamplePitch(semitones float64) int {
	return s.engine.SetUserSamplePitch(semitones)
}

// Watch subscribes to scheduler events. Call the returned function to stop.
func (s *Session) Watch() (<-chan scheduler.Event, func()) {
	return s.sched.Subscribe()
}

// Save writes the current state to the store now.
func (s *Session) Save(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if err := snapshot.Save(ctx, s.store, s.key, s.sched.State()); err != nil {
		return fmt.Errorf("saving %s: %w", s.key, err)
	}
	return nil
}

func (s *Session) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// persist saves the latest state after each burst of changes.
func (s *Session) persist() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.dirty:
			s.saveNow()
		}
	}
}

func (s *Session) saveNow() {
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()
	if err := s.Save(ctx); err != nil {
		s.log.Warn("snapshot not saved", "err", err)
	}
}

// Close stops transport, flushes a pending save and releases the device.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.sched.Stop()
		s.cancel()
		s.wg.Wait()
		select {
		case <-s.dirty:
			s.saveNow()
		default:
		}
		err = s.engine.Close()
		s.log.Info("session closed")
	})
	return err
}
