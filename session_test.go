package drumseq

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cbegin/drumseq-go/internal/engine"
	"github.com/cbegin/drumseq-go/internal/scheduler"
	"github.com/cbegin/drumseq-go/internal/snapshot"
)

func newTestSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s, err := NewSession(append([]Option{WithOffline()}, opts...)...)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionHasUUID(t *testing.T) {
	s := newTestSession(t)
	if _, err := uuid.Parse(s.ID()); err != nil {
		t.Fatalf("session id %q: %v", s.ID(), err)
	}
	if other := newTestSession(t); other.ID() == s.ID() {
		t.Fatalf("sessions share an id")
	}
}

func TestNewSessionRejectsBadRate(t *testing.T) {
	if _, err := NewSession(WithOffline(), WithSampleRate(0)); err == nil {
		t.Fatalf("expected error for zero sample rate")
	}
}

func TestChangesArePersistedAndRestored(t *testing.T) {
	store := snapshot.NewFileStore(t.TempDir())
	s := newTestSession(t, WithStore(store))
	s.Scheduler().Toggle(engine.Clap, 3)
	s.Scheduler().SetTempo(133)

	deadline := time.Now().Add(5 * time.Second)
	for {
		st, err := snapshot.Load(context.Background(), store, snapshot.DefaultKey)
		if err == nil && st.Tempo == 133 && st.Pattern.Active(engine.Clap, 3) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("state never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	restored := newTestSession(t, WithStore(store))
	if st := restored.Scheduler().State(); st.Tempo != 133 || !st.Pattern.Active(engine.Clap, 3) {
		t.Fatalf("restored state = %+v", st)
	}
}

func TestCloseFlushesPendingChange(t *testing.T) {
	store := snapshot.NewFileStore(t.TempDir())
	s := newTestSession(t, WithStore(store), WithSnapshotKey("flush"))
	s.Scheduler().SetSwing(0.4)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	st, err := snapshot.Load(context.Background(), store, "flush")
	if err != nil || st.Swing != 0.4 {
		t.Fatalf("swing after close = %v, %v", st.Swing, err)
	}
}

func TestMalformedSnapshotFallsBackToDefaults(t *testing.T) {
	store := snapshot.NewFileStore(t.TempDir())
	bad := snapshot.FromState(scheduler.DefaultState())
	bad.BPM = 150
	bad.Pattern[1] = bad.Pattern[1][:15]
	data, err := json.Marshal(bad)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(context.Background(), snapshot.DefaultKey, data); err != nil {
		t.Fatal(err)
	}
	s := newTestSession(t, WithStore(store))
	if st := s.Scheduler().State(); st != scheduler.DefaultState() {
		t.Fatalf("malformed snapshot should leave defaults, got tempo %v", st.Tempo)
	}
}

func TestSQLiteBackedSession(t *testing.T) {
	store, err := snapshot.OpenSQLStore(filepath.Join(t.TempDir(), "state.sqlite3"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	s := newTestSession(t, WithStore(store))
	s.Scheduler().SetMuted(engine.Snare, true)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	st, err := snapshot.Load(context.Background(), store, snapshot.DefaultKey)
	if err != nil || !st.Mix[engine.Snare].Muted {
		t.Fatalf("sqlite state = %+v, %v", st.Mix, err)
	}
}

func TestTriggerKey(t *testing.T) {
	s := newTestSession(t)
	if !s.TriggerKey('a') {
		t.Fatalf("a should audition the kick")
	}
	if got := s.Engine().ActiveVoiceCount(); got != 1 {
		t.Fatalf("active voices = %d", got)
	}
	if s.TriggerKey('z') {
		t.Fatalf("z is not a drum key")
	}
	if s.Engine().State() != engine.StateRunning {
		t.Fatalf("audition should activate the engine")
	}
}

func TestToggleTransport(t *testing.T) {
	s := newTestSession(t)
	events, unsubscribe := s.Watch()
	defer unsubscribe()
	if err := s.Toggle(); err != nil {
		t.Fatal(err)
	}
	if !s.Scheduler().Playing() {
		t.Fatalf("toggle should start")
	}
	if ev := <-events; ev.Kind != scheduler.EventStarted {
		t.Fatalf("first event = %v", ev.Kind)
	}
	if err := s.Toggle(); err != nil {
		t.Fatal(err)
	}
	if s.Scheduler().Playing() {
		t.Fatalf("toggle should stop")
	}
}

func TestLoadSampleFailureRevertsSlot(t *testing.T) {
	s := newTestSession(t)
	s.Engine().BindSample(engine.UserSample, engine.NewMonoBuffer(48000, []float32{1, 1}))
	err := s.LoadSample(context.Background(), engine.UserSample, filepath.Join(t.TempDir(), "missing.wav"))
	if !errors.Is(err, engine.ErrDecode) {
		t.Fatalf("load = %v, want ErrDecode", err)
	}
	if s.Engine().HasSample(engine.UserSample) {
		t.Fatalf("failed load should clear the slot")
	}
}

func TestParseSampleBinding(t *testing.T) {
	cases := []struct {
		arg      string
		voice    engine.Voice
		location string
	}{
		{"kick=samples/808.wav", engine.Kick, "samples/808.wav"},
		{"Open Hat=oh.ogg", engine.OpenHat, "oh.ogg"},
		{"sample=https://example.com/a=b.mp3", engine.UserSample, "https://example.com/a=b.mp3"},
	}
	for _, tc := range cases {
		v, loc, err := ParseSampleBinding(tc.arg)
		if err != nil || v != tc.voice || loc != tc.location {
			t.Fatalf("ParseSampleBinding(%q) = %v, %q, %v", tc.arg, v, loc, err)
		}
	}
	for _, bad := range []string{"kick", "kick=", "cowbell=x.wav"} {
		if _, _, err := ParseSampleBinding(bad); err == nil {
			t.Fatalf("ParseSampleBinding(%q) should fail", bad)
		}
	}
}

func TestSessionRenderUsesBoundSamples(t *testing.T) {
	s := newTestSession(t)
	st := kickState()
	st.Pattern = scheduler.Pattern{}
	st.Pattern[engine.UserSample][0] = true
	s.Scheduler().SetState(st)

	silent, err := s.Render(1)
	if err != nil {
		t.Fatal(err)
	}
	if energy(silent) != 0 {
		t.Fatalf("empty user slot should render silence")
	}
	s.Engine().BindSample(engine.UserSample, engine.NewMonoBuffer(48000, []float32{0.5, 0.5, 0.5}))
	if got := s.SetUserSamplePitch(-30); got != -24 {
		t.Fatalf("pitch = %d", got)
	}
	out, err := s.Render(1)
	if err != nil {
		t.Fatal(err)
	}
	if energy(out) == 0 {
		t.Fatalf("bound user sample should render")
	}
}
