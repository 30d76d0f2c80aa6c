package engine

import (
	"math"

	"github.com/cbegin/drumseq-go/internal/dsp"
)

// generator produces one stereo frame t seconds after its source started.
// It is called once per frame, in order, so it may keep running state.
type generator interface {
	frame(t float64) (l, r float64)
}

// source is one scheduled sound on the audio clock.
type source struct {
	gen   generator
	voice Voice
	start int64 // first frame
	end   int64 // natural end, exclusive
	cut   int64 // choke frame, -1 when not choked
}

func (s *source) limit() int64 {
	if s.cut >= 0 && s.cut < s.end {
		return s.cut
	}
	return s.end
}

// kickGen is a sine with exponential pitch and amplitude sweeps.
type kickGen struct {
	sampleRate float64
	phase      float64
	pitch      dsp.Sweep
	amp        dsp.Sweep
}

func (g *kickGen) frame(t float64) (float64, float64) {
	v := dsp.Sine(g.phase) * g.amp.At(t)
	g.phase += g.pitch.At(t) / g.sampleRate
	return v, v
}

// toneGen is a fixed-frequency oscillator under an envelope.
type toneGen struct {
	sampleRate float64
	freq       float64
	phase      float64
	wave       func(float64) float64
	env        dsp.Envelope
}

func (g *toneGen) frame(t float64) (float64, float64) {
	v := g.wave(g.phase) * g.env.At(t)
	g.phase += g.freq / g.sampleRate
	return v, v
}

// noiseGen is filtered white noise under an envelope.
type noiseGen struct {
	noise  *dsp.Noise
	filter *dsp.Biquad
	env    dsp.Envelope
}

func (g *noiseGen) frame(t float64) (float64, float64) {
	v := g.filter.Process(g.noise.Next()) * g.env.At(t)
	return v, v
}

// sampleGen plays a decoded buffer at a fixed rate with linear interpolation.
type sampleGen struct {
	buf  *Buffer
	rate float64
	gain float64
	pos  float64
}

func (g *sampleGen) frame(float64) (float64, float64) {
	i := int(g.pos)
	frac := g.pos - float64(i)
	l0, r0 := g.buf.At(i)
	l1, r1 := g.buf.At(i + 1)
	g.pos += g.rate
	return (l0 + (l1-l0)*frac) * g.gain, (r0 + (r1-r0)*frac) * g.gain
}

// sampleFrames is how many output frames a buffer lasts at rate.
func sampleFrames(b *Buffer, rate float64) int64 {
	if rate <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(b.Frames()) / rate))
}
