package dsp

import (
	"math"
	"math/rand"
)

// Sine evaluates a unit sine at phase measured in cycles.
func Sine(phase float64) float64 {
	return math.Sin(2 * math.Pi * phase)
}

// Triangle evaluates a unit triangle at phase measured in cycles. It starts at
// zero and rises, like the sine.
func Triangle(phase float64) float64 {
	p := phase - math.Floor(phase)
	switch {
	case p < 0.25:
		return 4 * p
	case p < 0.75:
		return 2 - 4*p
	default:
		return 4*p - 4
	}
}

// Noise is a seeded white noise source in [-1, 1).
type Noise struct {
	rng *rand.Rand
}

func NewNoise(seed int64) *Noise {
	return &Noise{rng: rand.New(rand.NewSource(seed))}
}

func (n *Noise) Next() float64 {
	return n.rng.Float64()*2 - 1
}
