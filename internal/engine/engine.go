package engine

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/cbegin/drumseq-go/internal/audio"
	"github.com/cbegin/drumseq-go/internal/dsp"
	"github.com/cbegin/drumseq-go/internal/effects"
)

// State is the lifecycle of the engine's audio clock.
type State int

const (
	StateSuspended State = iota
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "suspended"
	}
}

// Output is the device end of the engine. *audio.Player satisfies it.
type Output interface {
	Play()
	Pause()
	IsPlaying() bool
	Stop() error
}

// OutputFactory opens an output pulling frames from src.
type OutputFactory func(sampleRate int, src audio.SampleSource) (Output, error)

// DeviceOutput opens the shared ebiten output device.
func DeviceOutput(sampleRate int, src audio.SampleSource) (Output, error) {
	p, err := audio.NewPlayer(sampleRate, src)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type config struct {
	output OutputFactory
	log    *slog.Logger
	seed   int64
	curve  dsp.Curve
	client *http.Client
	master effects.Processor
}

type Option func(*config)

// WithOutput replaces the output device factory.
func WithOutput(f OutputFactory) Option {
	return func(c *config) {
		c.output = f
	}
}

// Offline detaches the engine from any device. The clock advances only when
// the caller invokes Process.
func Offline() Option {
	return func(c *config) {
		c.output = nil
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithSeed fixes the noise generator seed so renders are reproducible.
func WithSeed(seed int64) Option {
	return func(c *config) {
		c.seed = seed
	}
}

// WithCurve selects the envelope interpolation for synthesized voices.
func WithCurve(curve dsp.Curve) Option {
	return func(c *config) {
		c.curve = curve
	}
}

// WithHTTPClient sets the client DecodeLocation uses for URLs.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		if client != nil {
			c.client = client
		}
	}
}

// WithMaster runs the summed mix through p before it leaves the engine.
func WithMaster(p effects.Processor) Option {
	return func(c *config) {
		c.master = p
	}
}

// Engine renders scheduled voices against its own sample clock. It owns the
// sample slots, the user-sample pitch and the open-hat registry.
type Engine struct {
	mu         sync.Mutex
	sampleRate int
	log        *slog.Logger
	client     *http.Client
	openOutput OutputFactory
	output     Output
	deviceErr  error
	state      State
	curve      dsp.Curve
	noise      *dsp.Noise
	master     effects.Processor

	frame  int64
	active []*source
	open   map[*source]struct{}
	slots  [NumVoices]*Buffer
	pitch  int
}

// MinSampleRate is the lowest rate sessions, renders and configs accept.
const MinSampleRate = 8000

func New(sampleRate int, opts ...Option) *Engine {
	cfg := config{
		output: DeviceOutput,
		log:    slog.Default(),
		seed:   time.Now().UnixNano(),
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	return &Engine{
		sampleRate: sampleRate,
		log:        cfg.log,
		client:     cfg.client,
		openOutput: cfg.output,
		curve:      cfg.curve,
		noise:      dsp.NewNoise(cfg.seed),
		master:     cfg.master,
		open:       make(map[*source]struct{}),
	}
}

func (e *Engine) SampleRate() int { return e.sampleRate }

// CurrentTime is the audio clock in seconds: frames rendered so far.
func (e *Engine) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return float64(e.frame) / float64(e.sampleRate)
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Activate opens the output on first use and resumes it if suspended. It is
// the explicit stand-in for a user gesture unlocking audio.
func (e *Engine) Activate() error {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.openOutput == nil {
		e.state = StateRunning
		e.mu.Unlock()
		return nil
	}
	if e.output == nil {
		out, err := e.openOutput(e.sampleRate, e)
		if err != nil {
			e.deviceErr = err
			e.mu.Unlock()
			e.log.Warn("audio device unavailable", "err", err)
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		e.output = out
		e.deviceErr = nil
	}
	out := e.output
	e.state = StateRunning
	e.mu.Unlock()

	// Play may pull frames right away; e.mu must be free.
	if !out.IsPlaying() {
		out.Play()
	}
	return nil
}

// Suspend pauses the device. The clock stops with it.
func (e *Engine) Suspend() {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	e.state = StateSuspended
	out := e.output
	e.mu.Unlock()
	if out != nil {
		out.Pause()
	}
}

func (e *Engine) Close() error {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return nil
	}
	e.state = StateClosed
	out := e.output
	e.output = nil
	e.active = nil
	clear(e.open)
	e.mu.Unlock()
	if out != nil {
		return out.Stop()
	}
	return nil
}

func (e *Engine) frames(seconds float64) int64 {
	return int64(math.Round(seconds * float64(e.sampleRate)))
}

// frameFor converts an audio-clock time to a frame, never earlier than now.
func (e *Engine) frameFor(at float64) int64 {
	if math.IsNaN(at) || math.IsInf(at, -1) {
		return e.frame
	}
	if math.IsInf(at, 1) {
		return math.MaxInt64
	}
	f := e.frames(at)
	if f < e.frame {
		return e.frame
	}
	return f
}

// Trigger schedules voice v to start at audio time at. gain scales the
// voice's own level and is used as given. A closed hat chokes ringing open
// hats at its own start time first.
func (e *Engine) Trigger(v Voice, at, gain float64) error {
	if !v.Valid() {
		return fmt.Errorf("engine: unknown voice %d", int(v))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return ErrClosed
	}
	if e.deviceErr != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, e.deviceErr)
	}
	start := e.frameFor(at)
	if v == ClosedHat {
		e.chokeLocked(start)
	}
	var srcs []*source
	if b := e.slots[v]; b != nil {
		srcs = []*source{e.playSample(v, b, start, gain)}
	} else {
		srcs = e.synthesize(v, start, gain)
	}
	for _, s := range srcs {
		s.cut = -1
		e.active = append(e.active, s)
		if v == OpenHat {
			e.open[s] = struct{}{}
		}
	}
	return nil
}

// Choke silences every ringing open hat now and empties the registry.
func (e *Engine) Choke() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chokeLocked(e.frame)
}

// ChokeAt cuts registered open hats at audio time at (or now, if earlier).
// Open hats scheduled to start after the cut never sound.
func (e *Engine) ChokeAt(at float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chokeLocked(e.frameFor(at))
}

func (e *Engine) chokeLocked(cut int64) {
	for s := range e.open {
		if s.cut < 0 || cut < s.cut {
			s.cut = cut
		}
	}
	clear(e.open)
}

// OpenVoices is the size of the open-hat registry.
func (e *Engine) OpenVoices() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.open)
}

// ActiveVoiceCount returns the number of sources still scheduled or sounding.
func (e *Engine) ActiveVoiceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Process renders len(dst)/2 interleaved stereo frames and advances the clock.
func (e *Engine) Process(dst []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	frames := len(dst) / 2
	sr := float64(e.sampleRate)
	for f := 0; f < frames; f++ {
		pos := e.frame
		var l, r float64
		for _, s := range e.active {
			if pos < s.start || pos >= s.limit() {
				continue
			}
			sl, sr2 := s.gen.frame(float64(pos-s.start) / sr)
			l += sl
			r += sr2
		}
		if e.master != nil {
			l, r = e.master.Process(l, r)
		}
		dst[f*2] = float32(l)
		dst[f*2+1] = float32(r)
		e.frame++
	}
	e.reap()
}

// reap drops sources that have finished and forgets finished open hats.
func (e *Engine) reap() {
	live := e.active[:0]
	for _, s := range e.active {
		if e.frame >= s.limit() {
			delete(e.open, s)
			continue
		}
		live = append(live, s)
	}
	for i := len(live); i < len(e.active); i++ {
		e.active[i] = nil
	}
	e.active = live
}

// PitchRate converts a semitone offset to a playback rate.
func PitchRate(semitones int) float64 {
	return math.Pow(2, float64(semitones)/12)
}

// SetUserSamplePitch clamps semitones to [-24, 24], rounds it and stores it
// for subsequent user-sample triggers. It returns the stored value.
func (e *Engine) SetUserSamplePitch(semitones float64) int {
	if math.IsNaN(semitones) {
		semitones = 0
	}
	p := int(math.Round(math.Max(-24, math.Min(24, semitones))))
	e.mu.Lock()
	e.pitch = p
	e.mu.Unlock()
	return p
}

func (e *Engine) UserSamplePitch() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pitch
}
