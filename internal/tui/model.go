package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	drumseq "github.com/cbegin/drumseq-go"
	"github.com/cbegin/drumseq-go/internal/engine"
	"github.com/cbegin/drumseq-go/internal/scheduler"
)

const (
	frameInterval = 16 * time.Millisecond
	tempoStep     = 1
	swingStep     = 0.05
	volumeStep    = 0.1
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	onStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	offStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	playheadOn   = lipgloss.NewStyle().Background(lipgloss.Color("212")).Foreground(lipgloss.Color("0"))
	playheadOff  = lipgloss.NewStyle().Background(lipgloss.Color("236"))
	cursorStyle  = lipgloss.NewStyle().Underline(true).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	soloedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	rowNameStyle = lipgloss.NewStyle().Width(9)
)

type eventMsg scheduler.Event

type frameMsg time.Time

type Model struct {
	Session *drumseq.Session

	events      <-chan scheduler.Event
	unsubscribe func()

	row, col int
	// pending holds scheduled steps not yet audible; shown is the step the
	// audio clock has reached.
	pending  []scheduler.Event
	shown    int
	status   string
	failed   bool
	quitting bool
}

func NewModel(session *drumseq.Session) Model {
	events, unsubscribe := session.Watch()
	return Model{
		Session:     session,
		events:      events,
		unsubscribe: unsubscribe,
		shown:       -1,
	}
}

func listen(events <-chan scheduler.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func frame() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(listen(m.events), frame())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.handleEvent(scheduler.Event(msg))
		return m, listen(m.events)

	case frameMsg:
		m.advance(m.Session.Engine().CurrentTime())
		return m, frame()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	sched := m.Session.Scheduler()
	v := engine.Voice(m.row)
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.Session.Stop()
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		return m, tea.Quit

	case " ", "space":
		if err := m.Session.Toggle(); err != nil {
			m.failed = true
			m.status = "cannot play: " + err.Error()
		} else {
			m.failed = false
			m.status = ""
		}

	case "up", "k":
		m.row = (m.row + engine.NumVoices - 1) % engine.NumVoices
	case "down", "j":
		m.row = (m.row + 1) % engine.NumVoices
	case "left", "h":
		m.col = (m.col + scheduler.Steps - 1) % scheduler.Steps
	case "right", "l":
		m.col = (m.col + 1) % scheduler.Steps

	case "enter", "x":
		sched.Toggle(v, m.col)
	case "c":
		sched.ClearRow(v)

	case "+", "=":
		sched.SetTempo(sched.Tempo() + tempoStep)
	case "-", "_":
		sched.SetTempo(sched.Tempo() - tempoStep)
	case "]":
		sched.SetSwing(sched.Swing() + swingStep)
	case "[":
		sched.SetSwing(sched.Swing() - swingStep)

	case "m":
		sched.SetMuted(v, !sched.Mix()[v].Muted)
	case "o":
		sched.SetSoloed(v, !sched.Mix()[v].Soloed)
	case ">":
		sched.SetVolume(v, sched.Mix()[v].Volume+volumeStep)
	case "<":
		sched.SetVolume(v, sched.Mix()[v].Volume-volumeStep)

	case ".":
		m.Session.SetUserSamplePitch(float64(m.Session.Engine().UserSamplePitch() + 1))
	case ",":
		m.Session.SetUserSamplePitch(float64(m.Session.Engine().UserSamplePitch() - 1))

	default:
		if msg.Type == tea.KeyRunes && len(msg.Runes) == 1 {
			m.Session.TriggerKey(msg.Runes[0])
		}
	}
	return m, nil
}

func (m *Model) handleEvent(ev scheduler.Event) {
	switch ev.Kind {
	case scheduler.EventStep:
		m.pending = append(m.pending, ev)
	case scheduler.EventStarted:
		m.pending = m.pending[:0]
		m.shown = -1
	case scheduler.EventStopped:
		m.pending = m.pending[:0]
		m.shown = -1
	case scheduler.EventError:
		m.failed = true
		m.status = "cannot play"
		if ev.Err != nil {
			m.status += ": " + ev.Err.Error()
		}
	}
}

// advance moves the playhead to the latest step whose start time has passed.
func (m *Model) advance(now float64) {
	n := 0
	for n < len(m.pending) && m.pending[n].At <= now {
		m.shown = m.pending[n].Step
		n++
	}
	m.pending = m.pending[n:]
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	sched := m.Session.Scheduler()
	st := sched.State()

	transport := "STOP"
	if sched.Playing() {
		transport = "PLAY"
	}
	header := headerStyle.Render(fmt.Sprintf("drumseq  %s  %3.0fbpm  swing %.2f  pitch %+d",
		transport, st.Tempo, st.Swing, m.Session.Engine().UserSamplePitch()))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	for _, v := range engine.Voices() {
		out.WriteString(m.renderRow(v, st))
		out.WriteString("\n")
	}
	out.WriteString("\n")
	if m.status != "" {
		style := dimStyle
		if m.failed {
			style = errorStyle
		}
		out.WriteString(style.Render(m.status))
		out.WriteString("\n")
	}
	out.WriteString(dimStyle.Render("space:play  asdftg:audition  arrows:move  x:toggle  +/-:tempo  [/]:swing  m:mute  o:solo  </>:vol  ,/.:pitch  c:clear  q:quit"))
	return out.String()
}

func (m Model) renderRow(v engine.Voice, st scheduler.State) string {
	var b strings.Builder
	name := fmt.Sprintf("%c %s", engine.KeyForVoice(v), v)
	b.WriteString(rowNameStyle.Render(name))
	for step := range scheduler.Steps {
		if step > 0 && step%4 == 0 {
			b.WriteString(" ")
		}
		on := st.Pattern.Active(v, step)
		cell := "·"
		style := offStyle
		if on {
			cell = "■"
			style = onStyle
		}
		if step == m.shown {
			style = playheadOff
			if on {
				style = playheadOn
			}
		}
		if int(v) == m.row && step == m.col {
			style = style.Inherit(cursorStyle)
			if !on {
				cell = "□"
			}
		}
		b.WriteString(style.Render(cell))
	}
	ch := st.Mix[v]
	b.WriteString(fmt.Sprintf("  %3.0f%%", ch.Volume*100))
	if ch.Muted {
		b.WriteString(" " + mutedStyle.Render("M"))
	}
	if ch.Soloed {
		b.WriteString(" " + soloedStyle.Render("S"))
	}
	return b.String()
}
