package midi

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/cbegin/drumseq-go/internal/engine"
)

// DrumMap maps General MIDI percussion notes to voices.
var DrumMap = map[uint8]engine.Voice{
	35: engine.Kick,      // acoustic bass drum
	36: engine.Kick,      // bass drum 1
	38: engine.Snare,     // acoustic snare
	40: engine.Snare,     // electric snare
	39: engine.Clap,      // hand clap
	42: engine.ClosedHat, // closed hi-hat
	44: engine.ClosedHat, // pedal hi-hat
	46: engine.OpenHat,   // open hi-hat
}

// Hit is a decoded drum note.
type Hit struct {
	Voice   engine.Voice
	Gain    float64
	Channel uint8
	Note    uint8
}

// Decode turns a note-on for a mapped note into a Hit. Velocity scales the
// gain linearly; note-ons with zero velocity are note-offs and are ignored.
func Decode(msg gomidi.Message) (Hit, bool) {
	var channel, note, velocity uint8
	if !msg.GetNoteOn(&channel, &note, &velocity) || velocity == 0 {
		return Hit{}, false
	}
	v, ok := DrumMap[note]
	if !ok {
		return Hit{}, false
	}
	return Hit{Voice: v, Gain: float64(velocity) / 127, Channel: channel, Note: note}, true
}

// Input forwards hits from one MIDI in port.
type Input struct {
	name string
	stop func()
}

// Listen opens port and calls fn for every decoded hit. fn runs on the
// driver's goroutine and must not block.
func Listen(port drivers.In, fn func(Hit), log *slog.Logger) (*Input, error) {
	if port == nil {
		return nil, errors.New("midi: no input port")
	}
	if log == nil {
		log = slog.Default()
	}
	stop, err := gomidi.ListenTo(port, func(msg gomidi.Message, timestampms int32) {
		hit, ok := Decode(msg)
		if !ok {
			return
		}
		log.Debug("midi hit", "voice", hit.Voice, "note", hit.Note, "gain", hit.Gain)
		fn(hit)
	})
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", port, err)
	}
	log.Info("midi input open", "port", port.String())
	return &Input{name: port.String(), stop: stop}, nil
}

// Open finds the in port whose name contains name, case-insensitively, and
// listens to it.
func Open(name string, fn func(Hit), log *slog.Logger) (*Input, error) {
	port, err := FindInPort(name)
	if err != nil {
		return nil, err
	}
	return Listen(port, fn, log)
}

func (in *Input) Name() string { return in.name }

func (in *Input) Close() {
	if in.stop != nil {
		in.stop()
	}
}

// InPorts lists the names of the available MIDI inputs.
func InPorts() []string {
	var names []string
	for _, p := range gomidi.GetInPorts() {
		names = append(names, p.String())
	}
	return names
}

func FindInPort(name string) (drivers.In, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return nil, errors.New("midi: empty port name")
	}
	for _, p := range gomidi.GetInPorts() {
		if strings.Contains(strings.ToLower(p.String()), want) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("midi: no input port matching %q", name)
}
