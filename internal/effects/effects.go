package effects

// Processor transforms one stereo frame of the master mix.
type Processor interface {
	Process(l, r float64) (float64, float64)
	Reset()
}

// Chain runs processors in order.
type Chain struct {
	procs []Processor
}

func NewChain(procs ...Processor) *Chain {
	return &Chain{procs: procs}
}

func (c *Chain) Process(l, r float64) (float64, float64) {
	for _, p := range c.procs {
		l, r = p.Process(l, r)
	}
	return l, r
}

func (c *Chain) Reset() {
	for _, p := range c.procs {
		p.Reset()
	}
}

func (c *Chain) Add(p Processor) {
	c.procs = append(c.procs, p)
}

func (c *Chain) Len() int { return len(c.procs) }

// NewGlue is the master bus preset: gentle compression into a ceiling just
// under full scale.
func NewGlue(sampleRate int) *Chain {
	return NewChain(
		NewCompressor(sampleRate, CompressorParams{ThresholdDB: -12, Ratio: 3, AttackMs: 10, ReleaseMs: 120, MakeupDB: 2}),
		NewCeiling(-0.3),
	)
}
