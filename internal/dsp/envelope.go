package dsp

import "math"

// Floor is the near-silence level envelopes start from and decay back to.
const Floor = 1e-5

// Curve selects the interpolation used between envelope breakpoints.
type Curve int

const (
	CurveExp Curve = iota
	CurveLinear
)

func (c Curve) String() string {
	if c == CurveLinear {
		return "linear"
	}
	return "exp"
}

// Envelope is an attack/decay gain contour. It sits at Floor when the voice
// starts, reaches Peak after Attack seconds and falls back to Floor at
// Duration. Times are relative to the voice start.
type Envelope struct {
	Peak     float64
	Attack   float64
	Duration float64
	Curve    Curve
}

// DefaultAttack is the rise time shared by every percussive envelope.
const DefaultAttack = 0.005

func NewEnvelope(peak, duration float64, curve Curve) Envelope {
	return Envelope{Peak: peak, Attack: DefaultAttack, Duration: duration, Curve: curve}
}

// At returns the envelope gain t seconds after the voice start.
func (e Envelope) At(t float64) float64 {
	if t < 0 {
		return 0
	}
	peak := e.Peak
	if e.Curve == CurveExp {
		// exponential ramps cannot cross or touch zero
		peak = math.Max(Floor, peak)
	}
	switch {
	case t < e.Attack:
		return e.ramp(Floor, peak, t/e.Attack)
	case t < e.Duration && e.Duration > e.Attack:
		return e.ramp(peak, Floor, (t-e.Attack)/(e.Duration-e.Attack))
	default:
		return Floor
	}
}

func (e Envelope) ramp(from, to, frac float64) float64 {
	if e.Curve == CurveLinear {
		return from + (to-from)*frac
	}
	return ExpRamp(from, to, frac)
}

// ExpRamp interpolates exponentially from -> to at frac in [0,1]. When the
// endpoints are zero or of opposite sign the start value is held, which is how
// web-audio style parameter automation behaves.
func ExpRamp(from, to, frac float64) float64 {
	if frac >= 1 {
		return to
	}
	if frac <= 0 {
		return from
	}
	if from*to <= 0 {
		return from
	}
	return from * math.Pow(to/from, frac)
}

// Sweep is a single exponential ramp that holds its end value afterwards.
type Sweep struct {
	From, To float64
	Duration float64
}

func (s Sweep) At(t float64) float64 {
	if s.Duration <= 0 {
		return s.To
	}
	return ExpRamp(s.From, s.To, t/s.Duration)
}
