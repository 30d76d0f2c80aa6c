package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	drumseq "github.com/cbegin/drumseq-go"
	"github.com/cbegin/drumseq-go/internal/audio"
	"github.com/cbegin/drumseq-go/internal/engine"
	"github.com/cbegin/drumseq-go/internal/scheduler"
)

func newModel(t *testing.T, opts ...drumseq.Option) Model {
	t.Helper()
	if len(opts) == 0 {
		opts = []drumseq.Option{drumseq.WithOffline()}
	}
	s, err := drumseq.NewSession(opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return NewModel(s)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

// drain feeds every queued scheduler event through Update.
func drain(t *testing.T, m Model) Model {
	t.Helper()
	for {
		select {
		case ev := <-m.events:
			m = press(t, m, eventMsg(ev))
		default:
			return m
		}
	}
}

func TestCursorWrapsAndToggles(t *testing.T) {
	m := newModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyUp}, tea.KeyMsg{Type: tea.KeyLeft})
	if m.row != engine.NumVoices-1 || m.col != scheduler.Steps-1 {
		t.Fatalf("cursor = %d,%d", m.row, m.col)
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyRight})
	if m.row != 0 || m.col != 0 {
		t.Fatalf("cursor = %d,%d", m.row, m.col)
	}

	pattern := m.Session.Scheduler().Pattern()
	was := pattern.Active(engine.Kick, 0)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if p := m.Session.Scheduler().Pattern(); p.Active(engine.Kick, 0) == was {
		t.Fatalf("enter should toggle the cell under the cursor")
	}
	m = press(t, m, runes("x"))
	if p := m.Session.Scheduler().Pattern(); p.Active(engine.Kick, 0) != was {
		t.Fatalf("x should toggle back")
	}
	press(t, m, runes("c"))
	for step := range scheduler.Steps {
		if p := m.Session.Scheduler().Pattern(); p.Active(engine.Kick, step) {
			t.Fatalf("c should clear the row")
		}
	}
}

func TestTempoSwingAndMixKeys(t *testing.T) {
	m := newModel(t)
	sched := m.Session.Scheduler()
	m = press(t, m, runes("+"), runes("+"), runes("-"))
	if got := sched.Tempo(); got != scheduler.DefaultTempo+1 {
		t.Fatalf("tempo = %v", got)
	}
	m = press(t, m, runes("]"), runes("]"), runes("]"), runes("["))
	if got := sched.Swing(); got < 0.0999 || got > 0.1001 {
		t.Fatalf("swing = %v", got)
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown}, runes("m"), runes("o"), runes("<"))
	ch := sched.Mix()[engine.Snare]
	if !ch.Muted || !ch.Soloed {
		t.Fatalf("snare channel = %+v", ch)
	}
	if want := scheduler.DefaultVolume - volumeStep; ch.Volume < want-1e-9 || ch.Volume > want+1e-9 {
		t.Fatalf("volume = %v", ch.Volume)
	}
	press(t, m, runes("."), runes("."), runes(","))
	if got := m.Session.Engine().UserSamplePitch(); got != 1 {
		t.Fatalf("pitch = %d", got)
	}
}

func TestAuditionKeyTriggersVoice(t *testing.T) {
	m := newModel(t)
	press(t, m, runes("a"))
	if got := m.Session.Engine().ActiveVoiceCount(); got != 1 {
		t.Fatalf("active voices = %d", got)
	}
}

func TestPlayheadFollowsAudioClock(t *testing.T) {
	m := newModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	if !m.Session.Scheduler().Playing() {
		t.Fatalf("space should start transport")
	}
	m = drain(t, m)
	if m.shown != -1 || len(m.pending) != 1 {
		t.Fatalf("step 0 should be pending, shown=%d pending=%d", m.shown, len(m.pending))
	}

	eng := m.Session.Engine()
	buf := make([]float32, 2*int(0.1*float64(eng.SampleRate())))
	eng.Process(buf)
	if err := m.Session.Scheduler().Tick(); err != nil {
		t.Fatal(err)
	}
	m = drain(t, m)
	m = press(t, m, frameMsg{})
	if m.shown != 0 {
		t.Fatalf("playhead = %d, want 0", m.shown)
	}
	if !strings.Contains(m.View(), "PLAY") {
		t.Fatalf("view should show transport running")
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	m = drain(t, m)
	if m.shown != -1 || len(m.pending) != 0 {
		t.Fatalf("stop should clear the playhead")
	}
}

func TestCannotPlayIsReported(t *testing.T) {
	dead := func(int, audio.SampleSource) (engine.Output, error) {
		return nil, errors.New("no device")
	}
	m := newModel(t, drumseq.WithOutput(dead))
	m = press(t, m, runes(" "))
	if m.Session.Scheduler().Playing() {
		t.Fatalf("transport should stay stopped")
	}
	if !m.failed || !strings.Contains(m.View(), "cannot play") {
		t.Fatalf("view should report the dead device, status=%q", m.status)
	}
}

func TestQuitStopsTransport(t *testing.T) {
	m := newModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if m.Session.Scheduler().Playing() {
		t.Fatalf("quit should stop transport")
	}
	if next.(Model).View() != "" {
		t.Fatalf("quitting model should render nothing")
	}
}
