package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/loqalabs/loqa-podcast/internal/session"
)

// TUI message types
type snapshotMsg session.Snapshot
type streamClosedMsg struct{}
type cancelledMsg struct{ err error }
type tickMsg time.Time

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	fillStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	emptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
)

var stateColors = map[session.State]string{
	session.StateIdle:         "245",
	session.StateConnecting:   "220",
	session.StateActive:       "39",
	session.StateCompleted:    "42",
	session.StateFailed:       "196",
	session.StateDisconnected: "208",
}

type tuiModel struct {
	id      string
	snaps   <-chan session.Snapshot
	cancel  func() error
	snap    session.Snapshot
	started time.Time
	now     time.Time
	frame   int
	width   int

	cancelling  bool
	interrupted bool
	lost        bool
	done        bool
	err         error
}

func newTUIModel(id string, snaps <-chan session.Snapshot, cancel func() error) tuiModel {
	now := time.Now()
	return tuiModel{
		id:      id,
		snaps:   snaps,
		cancel:  cancel,
		snap:    session.Snapshot{SessionID: id, State: session.StateConnecting},
		started: now,
		now:     now,
	}
}

// runTUI follows session id until it settles or the user cancels it.
func runTUI(ctx context.Context, a *app, id string, snaps <-chan session.Snapshot) (session.Snapshot, error) {
	m := newTUIModel(id, snaps, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.api.do(ctx, http.MethodDelete, "/v1/session", nil, nil)
	})
	p := tea.NewProgram(m, tea.WithContext(ctx))
	out, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		a.cancelRemote()
		return m.snap, errInterrupted
	}
	if err != nil {
		return m.snap, fmt.Errorf("run tui: %w", err)
	}

	final := out.(tuiModel)
	switch {
	case final.err != nil:
		return final.snap, final.err
	case final.lost:
		return final.snap, errors.New("event stream closed")
	case final.interrupted:
		return final.snap, errInterrupted
	}
	return final.snap, nil
}

func tuiTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitSnapshot(ch <-chan session.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(tuiTick(), waitSnapshot(m.snaps))
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.done {
				return m, tea.Quit
			}
			if m.cancelling {
				return m, nil
			}
			m.cancelling = true
			m.interrupted = true
			cancel := m.cancel
			return m, func() tea.Msg { return cancelledMsg{err: cancel()} }
		}

	case tickMsg:
		m.frame++
		m.now = time.Time(msg)
		if m.done {
			return m, nil
		}
		return m, tuiTick()

	case snapshotMsg:
		snap := session.Snapshot(msg)
		if snap.SessionID != m.id {
			return m, waitSnapshot(m.snaps)
		}
		m.snap = snap
		if settled(snap) {
			m.done = true
			return m, tea.Quit
		}
		return m, waitSnapshot(m.snaps)

	case streamClosedMsg:
		if !m.done {
			m.lost = true
		}
		return m, tea.Quit

	case cancelledMsg:
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m tuiModel) View() string {
	var b strings.Builder

	header := titleStyle.Render("loqa podcast")
	meta := shortID(m.id)
	if m.snap.Kind != "" {
		meta += "  " + string(m.snap.Kind)
	}
	if m.snap.Engine != "" {
		meta += "/" + string(m.snap.Engine)
	}
	fmt.Fprintf(&b, "%s  %s\n\n", header, dimStyle.Render(meta))

	state := lipgloss.NewStyle().
		Foreground(lipgloss.Color(stateColors[m.snap.State])).
		Bold(true).
		Render(string(m.snap.State))
	marker := " "
	if m.snap.State.Open() && !m.cancelling {
		marker = spinnerFrames[m.frame%len(spinnerFrames)]
	}
	fmt.Fprintf(&b, "%s %s  %s %3.0f%%\n", marker, state, renderBar(m.snap.Progress, m.barWidth()), m.snap.Progress)

	if line := m.statusLine(); line != "" {
		fmt.Fprintf(&b, "  %s\n", line)
	}

	elapsed := m.now.Sub(m.started).Round(time.Second)
	help := "q cancel"
	switch {
	case m.done:
		help = ""
	case m.cancelling:
		help = "cancelling..."
	}
	fmt.Fprintf(&b, "\n%s  %s\n", dimStyle.Render("elapsed "+elapsed.String()), helpStyle.Render(help))
	return b.String()
}

func (m tuiModel) statusLine() string {
	switch {
	case m.snap.State == session.StateCompleted && m.snap.Result != nil:
		return m.snap.Result.AudioURL
	case m.snap.Failure != "":
		return m.snap.Failure
	}
	return m.snap.StatusMessage
}

func (m tuiModel) barWidth() int {
	const widest = 40
	if m.width == 0 {
		return widest
	}
	w := m.width - 20
	if w > widest {
		return widest
	}
	if w < 10 {
		return 10
	}
	return w
}

// renderBar draws progress, a percentage, as a bar of width cells.
func renderBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	filled := int(progress / 100 * float64(width))
	return fillStyle.Render(strings.Repeat("█", filled)) + emptyStyle.Render(strings.Repeat("░", width-filled))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
