package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"
)

// Buffer is decoded audio: interleaved stereo frames at SampleRate. Buffers
// are never mutated after construction; slots swap them whole.
type Buffer struct {
	SampleRate int
	Data       []float32
}

// NewMonoBuffer builds a stereo buffer from mono samples, as a recorder would
// hand over a take.
func NewMonoBuffer(sampleRate int, mono []float32) *Buffer {
	data := make([]float32, len(mono)*2)
	for i, s := range mono {
		data[i*2], data[i*2+1] = s, s
	}
	return &Buffer{SampleRate: sampleRate, Data: data}
}

func (b *Buffer) Frames() int {
	if b == nil {
		return 0
	}
	return len(b.Data) / 2
}

// At returns frame i, or silence outside the buffer.
func (b *Buffer) At(i int) (l, r float64) {
	if i < 0 || i >= b.Frames() {
		return 0, 0
	}
	return float64(b.Data[i*2]), float64(b.Data[i*2+1])
}

// Duration is the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// BindSample replaces the buffer bound to v. nil reverts v to synthesis.
func (e *Engine) BindSample(v Voice, b *Buffer) {
	if !v.Valid() {
		return
	}
	if b != nil && (b.Frames() == 0 || b.SampleRate <= 0) {
		b = nil
	}
	e.mu.Lock()
	e.slots[v] = b
	e.mu.Unlock()
}

func (e *Engine) Sample(v Voice) *Buffer {
	if !v.Valid() {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slots[v]
}

func (e *Engine) HasSample(v Voice) bool {
	return e.Sample(v) != nil
}

type format int

const (
	formatUnknown format = iota
	formatWAV
	formatVorbis
	formatMP3
)

func sniff(data []byte) format {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return formatWAV
	case len(data) >= 4 && string(data[0:4]) == "OggS":
		return formatVorbis
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return formatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return formatMP3
	}
	return formatUnknown
}

// pcmStream is what the ebiten decoders return: 16-bit little-endian stereo.
type pcmStream interface {
	io.Reader
	Length() int64
}

// DecodeBytes decodes WAV, Ogg Vorbis or MP3 bytes at the engine rate.
func (e *Engine) DecodeBytes(ctx context.Context, data []byte) (*Buffer, error) {
	return e.decode(ctx, "", data)
}

// DecodeLocation fetches an http(s) URL or reads a file path, then decodes it.
// It blocks until done; run it on its own goroutine to stay off the scheduler.
func (e *Engine) DecodeLocation(ctx context.Context, location string) (*Buffer, error) {
	data, err := e.fetch(ctx, location)
	if err != nil {
		return nil, &DecodeError{Source: location, Err: err}
	}
	return e.decode(ctx, location, data)
}

func (e *Engine) fetch(ctx context.Context, location string) ([]byte, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, err
		}
		resp, err := e.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch: %s", resp.Status)
		}
		return io.ReadAll(resp.Body)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(location)
}

func (e *Engine) decode(ctx context.Context, name string, data []byte) (*Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, &DecodeError{Source: name, Err: err}
	}
	var (
		stream pcmStream
		err    error
	)
	r := bytes.NewReader(data)
	switch sniff(data) {
	case formatWAV:
		stream, err = wav.DecodeWithSampleRate(e.sampleRate, r)
	case formatVorbis:
		stream, err = vorbis.DecodeWithSampleRate(e.sampleRate, r)
	case formatMP3:
		stream, err = mp3.DecodeWithSampleRate(e.sampleRate, r)
	default:
		err = errors.New("unrecognized audio format")
	}
	if err != nil {
		return nil, &DecodeError{Source: name, Err: err}
	}
	pcm, err := io.ReadAll(stream)
	if err != nil {
		return nil, &DecodeError{Source: name, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &DecodeError{Source: name, Err: err}
	}
	frames := len(pcm) / 4
	if frames == 0 {
		return nil, &DecodeError{Source: name, Err: errors.New("no audio frames")}
	}
	out := make([]float32, frames*2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768
	}
	return &Buffer{SampleRate: e.sampleRate, Data: out}, nil
}
