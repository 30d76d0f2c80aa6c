package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cbegin/drumseq-go/internal/engine"
	"github.com/cbegin/drumseq-go/internal/scheduler"
)

func customState() scheduler.State {
	st := scheduler.DefaultState()
	st.Tempo = 132
	st.Swing = 0.25
	st.Pattern.Toggle(engine.Clap, 7)
	st.Pattern.ClearRow(engine.ClosedHat)
	st.Mix[engine.Snare].Volume = 0.5
	st.Mix[engine.OpenHat].Muted = true
	st.Mix[engine.UserSample].Soloed = true
	return st
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLStore(filepath.Join(t.TempDir(), "db", DefaultDBFile))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{
		"file":   NewFileStore(filepath.Join(t.TempDir(), "snapshots")),
		"sqlite": sq,
	}
}

func TestRoundTripThroughStores(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			want := customState()
			if err := Save(ctx, store, DefaultKey, want); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := Load(ctx, store, DefaultKey)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got != want {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
			}

			// overwrite in place
			want.Tempo = 90
			if err := Save(ctx, store, DefaultKey, want); err != nil {
				t.Fatalf("second save: %v", err)
			}
			if got, _ := Load(ctx, store, DefaultKey); got.Tempo != 90 {
				t.Fatalf("overwrite lost: tempo %v", got.Tempo)
			}
		})
	}
}

func TestMissingRecord(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get(ctx, "absent"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("get absent = %v, want ErrNotFound", err)
			}
			st, err := Load(ctx, store, "absent")
			if err != nil || st != scheduler.DefaultState() {
				t.Fatalf("load absent = %+v, %v", st, err)
			}
		})
	}
}

func TestFifteenColumnPatternKeepsDefaults(t *testing.T) {
	s := FromState(customState())
	s.Pattern[0] = s.Pattern[0][:15]
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	store := NewFileStore(t.TempDir())
	if err := store.Put(context.Background(), DefaultKey, data); err != nil {
		t.Fatal(err)
	}
	st, err := Load(context.Background(), store, DefaultKey)
	if !errors.Is(err, ErrPersistedState) {
		t.Fatalf("load = %v, want ErrPersistedState", err)
	}
	if st != scheduler.DefaultState() {
		t.Fatalf("malformed snapshot leaked into state: %+v", st)
	}
}

func TestStateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Snapshot)
		ok     bool
	}{
		{"valid", func(s *Snapshot) {}, true},
		{"no version", func(s *Snapshot) { s.Version = "" }, true},
		{"minor bump", func(s *Snapshot) { s.Version = "1.4.2" }, true},
		{"major bump", func(s *Snapshot) { s.Version = "2.0.0" }, false},
		{"garbage version", func(s *Snapshot) { s.Version = "one" }, false},
		{"five rows", func(s *Snapshot) { s.Pattern = s.Pattern[:5] }, false},
		{"long row", func(s *Snapshot) { s.Pattern[2] = append(s.Pattern[2], true) }, false},
		{"short volumes", func(s *Snapshot) { s.Volumes = s.Volumes[:3] }, false},
		{"extra mutes", func(s *Snapshot) { s.Mutes = append(s.Mutes, false) }, false},
		{"negative bpm", func(s *Snapshot) { s.BPM = -5 }, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := FromState(customState())
			tc.mutate(&s)
			_, err := s.State()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrPersistedState) {
				t.Fatalf("err = %v, want ErrPersistedState", err)
			}
		})
	}
}

func TestPartialSnapshotKeepsOtherDefaults(t *testing.T) {
	s, err := Decode([]byte(`{"bpm": 140, "mutes": [true, false, false, false, false, false]}`))
	if err != nil {
		t.Fatal(err)
	}
	st, err := s.State()
	if err != nil {
		t.Fatal(err)
	}
	def := scheduler.DefaultState()
	if st.Tempo != 140 || !st.Mix[engine.Kick].Muted {
		t.Fatalf("fields not applied: %+v", st)
	}
	if st.Pattern != def.Pattern || st.Mix[engine.Kick].Volume != scheduler.DefaultVolume {
		t.Fatalf("absent fields should keep defaults")
	}
}

func TestOutOfRangeValuesAreClamped(t *testing.T) {
	s, err := Decode([]byte(`{"bpm": 999, "swing": 3}`))
	if err != nil {
		t.Fatal(err)
	}
	st, err := s.State()
	if err != nil {
		t.Fatal(err)
	}
	if st.Tempo != scheduler.MaxTempo || st.Swing != scheduler.MaxSwing {
		t.Fatalf("tempo=%v swing=%v", st.Tempo, st.Swing)
	}
}

func TestDecodeRejectsBadJSON(t *testing.T) {
	for _, raw := range []string{`{`, `[]`, `{"pattern": "x"}`} {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrPersistedState) {
			t.Fatalf("Decode(%s) = %v", raw, err)
		}
	}
}

func TestEncodeUsesFlatKeys(t *testing.T) {
	data, err := FromState(scheduler.DefaultState()).Encode()
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"version":"1.0.0"`, `"bpm":100`, `"swing":0`, `"pattern":[[`, `"volumes":[0.9`, `"mutes":[`, `"solos":[`} {
		if !strings.Contains(string(data), key) {
			t.Fatalf("encoded snapshot missing %s: %s", key, data)
		}
	}
}

func TestFileStoreRejectsPathKeys(t *testing.T) {
	store := NewFileStore(t.TempDir())
	for _, key := range []string{"", "../escape", "a/b", ".hidden"} {
		if err := store.Put(context.Background(), key, []byte("{}")); err == nil {
			t.Fatalf("Put(%q) should fail", key)
		}
	}
}
