package effects

import "math"

type CompressorParams struct {
	ThresholdDB float64
	Ratio       float64
	AttackMs    float64
	ReleaseMs   float64
	MakeupDB    float64
}

// Compressor reduces gain once the linked stereo envelope passes the
// threshold. Both channels get the same gain so the image does not shift.
type Compressor struct {
	threshold float64
	slope     float64
	attack    float64
	release   float64
	makeup    float64
	env       float64
}

func dbToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

func coefficient(ms float64, sampleRate int) float64 {
	if ms <= 0 {
		return 1
	}
	return 1 - math.Exp(-1/(ms*float64(sampleRate)/1000))
}

func NewCompressor(sampleRate int, p CompressorParams) *Compressor {
	ratio := math.Max(1, p.Ratio)
	return &Compressor{
		threshold: dbToGain(p.ThresholdDB),
		slope:     1/ratio - 1,
		attack:    coefficient(p.AttackMs, sampleRate),
		release:   coefficient(p.ReleaseMs, sampleRate),
		makeup:    dbToGain(p.MakeupDB),
	}
}

func (c *Compressor) Process(l, r float64) (float64, float64) {
	peak := math.Max(math.Abs(l), math.Abs(r))
	if peak > c.env {
		c.env += c.attack * (peak - c.env)
	} else {
		c.env += c.release * (peak - c.env)
	}
	g := c.gain() * c.makeup
	return l * g, r * g
}

func (c *Compressor) gain() float64 {
	if c.env <= c.threshold {
		return 1
	}
	return math.Pow(c.env/c.threshold, c.slope)
}

// GainReduction is the current reduction in dB, zero or negative.
func (c *Compressor) GainReduction() float64 {
	return 20 * math.Log10(c.gain())
}

func (c *Compressor) Reset() {
	c.env = 0
}

// Ceiling hard-clips both channels at a fixed level.
type Ceiling struct {
	limit float64
}

func NewCeiling(db float64) *Ceiling {
	return &Ceiling{limit: dbToGain(db)}
}

func (c *Ceiling) Process(l, r float64) (float64, float64) {
	return math.Max(-c.limit, math.Min(c.limit, l)), math.Max(-c.limit, math.Min(c.limit, r))
}

func (c *Ceiling) Reset() {}
