package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/Masterminds/semver/v3"

	"github.com/cbegin/drumseq-go/internal/engine"
	"github.com/cbegin/drumseq-go/internal/scheduler"
)

const (
	// Version is written into every saved snapshot.
	Version = "1.0.0"
	// DefaultKey names the snapshot record in a Store.
	DefaultKey = "drumseq.seq"
	// Compatible is the range of snapshot versions this build reads.
	Compatible = "^1"
)

var (
	ErrPersistedState = errors.New("snapshot: malformed persisted state")
	ErrNotFound       = errors.New("snapshot: not found")
)

var compatible *semver.Constraints

func init() {
	c, err := semver.NewConstraint(Compatible)
	if err != nil {
		panic(err)
	}
	compatible = c
}

// Snapshot is the flat persisted record of the sequencer parameters. Slices
// are indexed by voice in engine.Voice order.
type Snapshot struct {
	Version string    `json:"version,omitempty"`
	BPM     float64   `json:"bpm"`
	Swing   float64   `json:"swing"`
	Pattern [][]bool  `json:"pattern"`
	Volumes []float64 `json:"volumes"`
	Mutes   []bool    `json:"mutes"`
	Solos   []bool    `json:"solos"`
}

func FromState(st scheduler.State) Snapshot {
	s := Snapshot{
		Version: Version,
		BPM:     st.Tempo,
		Swing:   st.Swing,
		Pattern: make([][]bool, engine.NumVoices),
		Volumes: make([]float64, engine.NumVoices),
		Mutes:   make([]bool, engine.NumVoices),
		Solos:   make([]bool, engine.NumVoices),
	}
	for v := range engine.NumVoices {
		s.Pattern[v] = append([]bool(nil), st.Pattern[v][:]...)
		s.Volumes[v] = st.Mix[v].Volume
		s.Mutes[v] = st.Mix[v].Muted
		s.Solos[v] = st.Mix[v].Soloed
	}
	return s
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPersistedState, fmt.Sprintf(format, args...))
}

// State validates the snapshot and converts it. Absent fields keep their
// defaults; a present field of the wrong shape rejects the whole snapshot.
func (s Snapshot) State() (scheduler.State, error) {
	st := scheduler.DefaultState()
	if s.Version != "" {
		v, err := semver.NewVersion(s.Version)
		if err != nil {
			return st, malformed("version %q: %v", s.Version, err)
		}
		if !compatible.Check(v) {
			return st, malformed("version %s not in %s", v, Compatible)
		}
	}
	if math.IsNaN(s.BPM) || math.IsInf(s.BPM, 0) || s.BPM < 0 {
		return st, malformed("bpm %v", s.BPM)
	}
	if math.IsNaN(s.Swing) || math.IsInf(s.Swing, 0) {
		return st, malformed("swing %v", s.Swing)
	}
	if s.Pattern != nil {
		if len(s.Pattern) != engine.NumVoices {
			return st, malformed("pattern has %d rows, want %d", len(s.Pattern), engine.NumVoices)
		}
		for i, row := range s.Pattern {
			if len(row) != scheduler.Steps {
				return st, malformed("pattern row %d has %d steps, want %d", i, len(row), scheduler.Steps)
			}
		}
	}
	for name, n := range map[string]int{"volumes": len(s.Volumes), "mutes": len(s.Mutes), "solos": len(s.Solos)} {
		if n != 0 && n != engine.NumVoices {
			return st, malformed("%s has %d entries, want %d", name, n, engine.NumVoices)
		}
	}
	for i, vol := range s.Volumes {
		if math.IsNaN(vol) || math.IsInf(vol, 0) {
			return st, malformed("volume %d is %v", i, vol)
		}
	}

	if s.BPM > 0 {
		st.Tempo = s.BPM
	}
	st.Swing = s.Swing
	if s.Pattern != nil {
		for v, row := range s.Pattern {
			copy(st.Pattern[v][:], row)
		}
	}
	for v := range engine.NumVoices {
		if s.Volumes != nil {
			st.Mix[v].Volume = s.Volumes[v]
		}
		if s.Mutes != nil {
			st.Mix[v].Muted = s.Mutes[v]
		}
		if s.Solos != nil {
			st.Mix[v].Soloed = s.Solos[v]
		}
	}
	return st.Clamped(), nil
}

func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrPersistedState, err)
	}
	return s, nil
}

func (s Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Load reads the snapshot stored under key. A missing record yields the
// defaults and no error. Anything unreadable yields the defaults plus an
// error the caller may log and otherwise ignore.
func Load(ctx context.Context, store Store, key string) (scheduler.State, error) {
	data, err := store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return scheduler.DefaultState(), nil
	}
	if err != nil {
		return scheduler.DefaultState(), err
	}
	s, err := Decode(data)
	if err != nil {
		return scheduler.DefaultState(), err
	}
	return s.State()
}

func Save(ctx context.Context, store Store, key string, st scheduler.State) error {
	data, err := FromState(st).Encode()
	if err != nil {
		return err
	}
	return store.Put(ctx, key, data)
}
