package engine

import "github.com/cbegin/drumseq-go/internal/dsp"

// Synthesis constants. Durations are seconds.
const (
	kickStartHz   = 150.0
	kickEndHz     = 40.0
	kickSweep     = 0.25
	kickDecay     = 0.35
	kickDecayTo   = 0.0001
	kickStop      = 0.5
	snareNoise    = 0.2
	snareBandHz   = 1800.0
	snarePeak     = 0.6
	snareBodyHz   = 180.0
	snareBodyEnv  = 0.12
	snareBodyPeak = 0.3
	snareBodyStop = 0.15
	clapHighHz    = 1200.0
	clapEnv       = 0.12
	clapPeak      = 0.5
	hatHighHz     = 6000.0

	// SampleLevel is the base gain of every sample-backed voice.
	SampleLevel = 0.85
)

var clapOffsets = [...]float64{0, 0.02, 0.04}

// hatRecipe describes one hi-hat flavour: how long the noise lasts, how long
// the envelope takes and its peak.
type hatRecipe struct {
	noise    float64
	envelope float64
	peak     float64
}

var (
	closedHat = hatRecipe{noise: 0.05, envelope: 0.07, peak: 0.25}
	openHat   = hatRecipe{noise: 0.4, envelope: 0.35, peak: 0.35}
)

// synthesize builds the sources for a synthesized hit starting at frame start.
// The caller holds e.mu.
func (e *Engine) synthesize(v Voice, start int64, gain float64) []*source {
	sr := float64(e.sampleRate)
	switch v {
	case Kick:
		return []*source{{
			voice: v,
			start: start,
			end:   start + e.frames(kickStop),
			gen: &kickGen{
				sampleRate: sr,
				pitch:      dsp.Sweep{From: kickStartHz, To: kickEndHz, Duration: kickSweep},
				amp:        dsp.Sweep{From: 1 * gain, To: kickDecayTo, Duration: kickDecay},
			},
		}}
	case Snare:
		noise := &source{
			voice: v,
			start: start,
			end:   start + e.frames(snareNoise),
			gen: &noiseGen{
				noise:  e.noise,
				filter: dsp.NewBandPass(sr, snareBandHz, dsp.BandPassQ),
				env:    dsp.NewEnvelope(snarePeak*gain, snareNoise, e.curve),
			},
		}
		body := &source{
			voice: v,
			start: start,
			end:   start + e.frames(snareBodyStop),
			gen: &toneGen{
				sampleRate: sr,
				freq:       snareBodyHz,
				wave:       dsp.Triangle,
				env:        dsp.NewEnvelope(snareBodyPeak*gain, snareBodyEnv, e.curve),
			},
		}
		return []*source{noise, body}
	case Clap:
		out := make([]*source, 0, len(clapOffsets))
		for _, off := range clapOffsets {
			at := start + e.frames(off)
			out = append(out, &source{
				voice: v,
				start: at,
				end:   at + e.frames(clapEnv),
				gen: &noiseGen{
					noise:  e.noise,
					filter: dsp.NewHighPass(sr, clapHighHz, dsp.HighPassQ),
					env:    dsp.NewEnvelope(clapPeak*gain, clapEnv, e.curve),
				},
			})
		}
		return out
	case ClosedHat, OpenHat:
		r := closedHat
		if v == OpenHat {
			r = openHat
		}
		return []*source{{
			voice: v,
			start: start,
			end:   start + e.frames(min(r.noise, r.envelope)),
			gen: &noiseGen{
				noise:  e.noise,
				filter: dsp.NewHighPass(sr, hatHighHz, dsp.HighPassQ),
				env:    dsp.NewEnvelope(r.peak*gain, r.envelope, e.curve),
			},
		}}
	}
	// the user slot has no synthesized fallback
	return nil
}

// playSample builds a source for a bound buffer. Only the user slot is pitched.
func (e *Engine) playSample(v Voice, b *Buffer, start int64, gain float64) *source {
	rate := float64(b.SampleRate) / float64(e.sampleRate)
	if v == UserSample {
		rate *= PitchRate(e.pitch)
	}
	return &source{
		voice: v,
		start: start,
		end:   start + sampleFrames(b, rate),
		gen:   &sampleGen{buf: b, rate: rate, gain: SampleLevel * gain},
	}
}
