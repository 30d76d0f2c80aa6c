package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// SampleSource renders interleaved stereo float32 frames on demand. The
// number of frames rendered is what advances the audio clock.
type SampleSource interface {
	Process(dst []float32)
}

// ErrDevice reports that the shared output context could not be created.
var ErrDevice = errors.New("audio: output device unavailable")

// StreamReader adapts a SampleSource to the little-endian float32 byte stream
// ebiten's F32 players pull from.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
	closed bool
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, io.EOF
	}
	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(r.buf[i]))
	}
	return frames * 8, nil
}

func (r *StreamReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Player is one ebiten player streaming a SampleSource to the output device.
type Player struct {
	player *ebitaudio.Player
	reader *StreamReader
}

var (
	audioContextMu  sync.Mutex
	audioContext    *ebitaudio.Context
	audioSampleRate int
)

// sharedAudioContext returns the process-wide ebiten context. ebiten allows a
// single context per process, so a second sample rate is refused.
func sharedAudioContext(sampleRate int) (ctx *ebitaudio.Context, err error) {
	audioContextMu.Lock()
	defer audioContextMu.Unlock()
	if audioContext != nil {
		if audioSampleRate != sampleRate {
			return nil, fmt.Errorf("%w: context already initialized at %d Hz (requested %d Hz)", ErrDevice, audioSampleRate, sampleRate)
		}
		return audioContext, nil
	}
	defer func() {
		if r := recover(); r != nil {
			ctx, err = nil, fmt.Errorf("%w: %v", ErrDevice, r)
		}
	}()
	audioContext = ebitaudio.NewContext(sampleRate)
	audioSampleRate = sampleRate
	return audioContext, nil
}

// NewPlayer opens the output device at sampleRate and wires source to it. The
// player starts paused; call Play to begin pulling frames.
func NewPlayer(sampleRate int, source SampleSource) (*Player, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive", ErrDevice)
	}
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}
	// keep the device buffer short so look-ahead stays meaningful
	pl.SetBufferSize(20 * time.Millisecond)
	return &Player{
		player: pl,
		reader: reader,
	}, nil
}

func (p *Player) Play()  { p.player.Play() }
func (p *Player) Pause() { p.player.Pause() }
func (p *Player) IsPlaying() bool {
	return p.player.IsPlaying()
}

func (p *Player) Stop() error {
	p.player.Pause()
	if err := p.player.Close(); err != nil {
		return err
	}
	return p.reader.Close()
}
