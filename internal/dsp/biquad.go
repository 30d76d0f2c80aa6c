package dsp

import "math"

// Default resonance values matching a web-audio BiquadFilterNode: band-pass
// uses Q=1 directly, high-pass interprets its default Q=1 in dB.
var (
	BandPassQ = 1.0
	HighPassQ = math.Pow(10, 1.0/20.0)
)

// Biquad is a second order IIR section (RBJ audio EQ cookbook), direct form I.
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	x1, x2     float64
	y1, y2     float64
}

// NewBandPass returns a constant 0 dB peak gain band-pass centred on freq.
func NewBandPass(sampleRate, freq, q float64) *Biquad {
	_, alpha, cosw := coefficients(sampleRate, freq, q)
	return normalize(alpha, 0, -alpha, 1+alpha, -2*cosw, 1-alpha)
}

// NewHighPass returns a resonant high-pass with cutoff freq.
func NewHighPass(sampleRate, freq, q float64) *Biquad {
	_, alpha, cosw := coefficients(sampleRate, freq, q)
	return normalize((1+cosw)/2, -(1 + cosw), (1+cosw)/2, 1+alpha, -2*cosw, 1-alpha)
}

func coefficients(sampleRate, freq, q float64) (w0, alpha, cosw float64) {
	nyquist := sampleRate / 2
	if freq >= nyquist {
		freq = nyquist * 0.999
	}
	if freq <= 0 {
		freq = 1
	}
	if q <= 0 {
		q = 1e-4
	}
	w0 = 2 * math.Pi * freq / sampleRate
	alpha = math.Sin(w0) / (2 * q)
	return w0, alpha, math.Cos(w0)
}

func normalize(b0, b1, b2, a0, a1, a2 float64) *Biquad {
	return &Biquad{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: a1 / a0,
		a2: a2 / a0,
	}
}

func (f *Biquad) Process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

func (f *Biquad) Reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}
