package drumseq

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/cbegin/drumseq-go/internal/effects"
	"github.com/cbegin/drumseq-go/internal/engine"
	"github.com/cbegin/drumseq-go/internal/scheduler"
)

// renderChunk matches the live scheduler's polling period.
const renderChunk = 0.025

// RenderBars bounces bars loops of state to interleaved stereo samples with
// synthesized voices. The first step lands on sample 0.
func RenderBars(state scheduler.State, sampleRate int, bars int) ([]float32, error) {
	return renderBars(state, sampleRate, bars, nil, 0, false)
}

// Render bounces the session's current state with its bound samples.
func (s *Session) Render(bars int) ([]float32, error) {
	var slots [engine.NumVoices]*engine.Buffer
	for _, v := range engine.Voices() {
		slots[v] = s.engine.Sample(v)
	}
	return renderBars(s.sched.State(), s.engine.SampleRate(), bars, &slots, s.engine.UserSamplePitch(), s.glue)
}

func renderBars(state scheduler.State, sampleRate, bars int, slots *[engine.NumVoices]*engine.Buffer, pitch int, glue bool) ([]float32, error) {
	if sampleRate < engine.MinSampleRate {
		return nil, fmt.Errorf("sampleRate %d below %d", sampleRate, engine.MinSampleRate)
	}
	if bars <= 0 {
		return nil, errors.New("bars must be positive")
	}
	opts := []engine.Option{engine.Offline(), engine.WithSeed(1)}
	if glue {
		opts = append(opts, engine.WithMaster(effects.NewGlue(sampleRate)))
	}
	eng := engine.New(sampleRate, opts...)
	if slots != nil {
		for v, b := range slots {
			eng.BindSample(engine.Voice(v), b)
		}
	}
	eng.SetUserSamplePitch(float64(pitch))
	sched := scheduler.New(eng,
		scheduler.WithManualTick(),
		scheduler.WithStartMargin(0),
		scheduler.WithState(state),
	)
	if err := sched.Start(); err != nil {
		return nil, err
	}
	defer sched.Stop()

	state = sched.State()
	seconds := float64(bars) * scheduler.Steps * scheduler.StepDuration(state.Tempo)
	frames := int(math.Round(seconds * float64(sampleRate)))
	chunk := max(1, int(renderChunk*float64(sampleRate)))
	out := make([]float32, frames*2)
	for pos := 0; pos < frames; pos += chunk {
		if err := sched.Tick(); err != nil {
			return nil, err
		}
		end := min(pos+chunk, frames)
		eng.Process(out[pos*2 : end*2])
	}
	return out, nil
}

// WriteWAV encodes interleaved stereo samples as 16-bit PCM. Samples outside
// [-1, 1] are clipped.
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 2, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		x := math.Max(-1, math.Min(1, float64(s)))
		data[i] = int(math.Round(x * math.MaxInt16))
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}
