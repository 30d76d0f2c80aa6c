package scheduler

import (
	"math"

	"github.com/cbegin/drumseq-go/internal/engine"
)

// Steps is the number of sixteenth notes in the one-bar loop.
const Steps = 16

const (
	DefaultTempo  = 100.0
	MinTempo      = 20.0
	MaxTempo      = 300.0
	MaxSwing      = 0.6
	DefaultVolume = 0.9
)

// Pattern is the step grid, one row per voice in engine.Voice order.
type Pattern [engine.NumVoices][Steps]bool

// DefaultPattern is a basic backbeat: kick on 1 and 9, snare on 5 and 13,
// closed hat on every eighth.
func DefaultPattern() Pattern {
	var p Pattern
	p[engine.Kick][0] = true
	p[engine.Kick][8] = true
	p[engine.Snare][4] = true
	p[engine.Snare][12] = true
	for i := 0; i < Steps; i += 2 {
		p[engine.ClosedHat][i] = true
	}
	return p
}

func validCell(v engine.Voice, step int) bool {
	return v.Valid() && step >= 0 && step < Steps
}

func (p *Pattern) Active(v engine.Voice, step int) bool {
	return validCell(v, step) && p[v][step]
}

func (p *Pattern) Toggle(v engine.Voice, step int) {
	if validCell(v, step) {
		p[v][step] = !p[v][step]
	}
}

func (p *Pattern) SetStep(v engine.Voice, step int, on bool) {
	if validCell(v, step) {
		p[v][step] = on
	}
}

func (p *Pattern) ClearRow(v engine.Voice) {
	if v.Valid() {
		p[v] = [Steps]bool{}
	}
}

// Channel is one voice's mixer strip.
type Channel struct {
	Volume float64
	Muted  bool
	Soloed bool
}

// Mix holds a channel per voice.
type Mix [engine.NumVoices]Channel

func DefaultMix() Mix {
	var m Mix
	for i := range m {
		m[i].Volume = DefaultVolume
	}
	return m
}

// Audible reports whether v sounds under the current mute/solo settings. Any
// solo wins over every mute.
func (m *Mix) Audible(v engine.Voice) bool {
	if !v.Valid() {
		return false
	}
	for _, ch := range m {
		if ch.Soloed {
			return m[v].Soloed
		}
	}
	return !m[v].Muted
}

// State is the full user-editable parameter set.
type State struct {
	Tempo   float64
	Swing   float64
	Pattern Pattern
	Mix     Mix
}

func DefaultState() State {
	return State{
		Tempo:   DefaultTempo,
		Pattern: DefaultPattern(),
		Mix:     DefaultMix(),
	}
}

// StepDuration is the length of a sixteenth note at bpm.
func StepDuration(bpm float64) float64 {
	return 60 / bpm / 4
}

func clampTempo(bpm float64) float64 {
	return clamp(bpm, MinTempo, MaxTempo)
}

func clampSwing(s float64) float64 {
	return clamp(s, 0, MaxSwing)
}

func clampVolume(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// Clamped returns s with every parameter inside its range. Non-finite
// values fall back to defaults.
func (s State) Clamped() State {
	if math.IsNaN(s.Tempo) || math.IsInf(s.Tempo, 0) {
		s.Tempo = DefaultTempo
	}
	s.Tempo = clampTempo(s.Tempo)
	if math.IsNaN(s.Swing) {
		s.Swing = 0
	}
	s.Swing = clampSwing(s.Swing)
	for i := range s.Mix {
		if math.IsNaN(s.Mix[i].Volume) {
			s.Mix[i].Volume = DefaultVolume
		}
		s.Mix[i].Volume = clampVolume(s.Mix[i].Volume)
	}
	return s
}
