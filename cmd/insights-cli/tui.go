package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"stockinsights/internal/dashboard"
	"stockinsights/internal/domain"
	"stockinsights/internal/live"
	"stockinsights/pkg/insights"
)

// maxEventLines is how many recent events the TUI keeps below the table.
const maxEventLines = 8

var (
	headerBarStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	footerBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8"))
)

// Messages.
type frameMsg live.Frame

type stateMsg struct {
	state dashboard.Snapshot
	err   error
}

type watchDoneMsg struct{ err error }

// watchModel shows a hosted session live. Event frames trigger a state
// refresh over HTTP; left and right switch the session's date.
type watchModel struct {
	client    *insights.Client
	sessionID string
	cancel    context.CancelFunc

	state  dashboard.Snapshot
	events []string
	err    error

	viewport viewport.Model
	ready    bool
	width    int
	height   int
}

func newWatchModel(client *insights.Client, sessionID string, cancel context.CancelFunc) watchModel {
	return watchModel{client: client, sessionID: sessionID, cancel: cancel}
}

func (m watchModel) Init() tea.Cmd {
	return nil
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		case "left":
			return m, m.switchDate(-1)
		case "right":
			return m, m.switchDate(1)
		case "r":
			return m, m.refresh()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - 2
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case frameMsg:
		switch msg.Kind {
		case live.FrameSnapshot:
			if msg.Snapshot != nil {
				m.state = *msg.Snapshot
			}
		case live.FrameEvent:
			m.pushEvent(live.Frame(msg))
			cmd = m.refresh()
		}
		m.setContent()
		return m, cmd

	case stateMsg:
		if msg.err != nil {
			m.err = msg.err
		} else if msg.state.Seq >= m.state.Seq {
			m.state = msg.state
			m.err = nil
		}
		m.setContent()
		return m, nil

	case watchDoneMsg:
		m.err = msg.err
		return m, tea.Quit
	}

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m *watchModel) pushEvent(f live.Frame) {
	var b bytes.Buffer
	printFrame(&b, f)
	m.events = append(m.events, strings.TrimRight(b.String(), "\n"))
	if len(m.events) > maxEventLines {
		m.events = m.events[len(m.events)-maxEventLines:]
	}
}

func (m *watchModel) setContent() {
	if m.ready {
		m.viewport.SetContent(m.renderContent())
	}
}

func (m watchModel) refresh() tea.Cmd {
	client, id := m.client, m.sessionID
	return func() tea.Msg {
		s, err := client.GetSession(context.Background(), id)
		return stateMsg{state: s.State, err: err}
	}
}

// switchDate moves the session delta days through its snapshot dates.
func (m watchModel) switchDate(delta int) tea.Cmd {
	date, ok := stepDate(m.state, delta)
	if !ok {
		return nil
	}
	client, id := m.client, m.sessionID
	return func() tea.Msg {
		s, err := client.SendIntent(context.Background(), id, insights.Intent{Type: "switch_date", Date: date.String()})
		return stateMsg{state: s.State, err: err}
	}
}

// stepDate returns the snapshot date delta steps from the current one.
func stepDate(st dashboard.Snapshot, delta int) (domain.Date, bool) {
	n := len(st.Snapshots)
	if n == 0 {
		return "", false
	}
	cur := n - 1
	for i, s := range st.Snapshots {
		if s.Date == st.Date {
			cur = i
		}
	}
	next := cur + delta
	if next < 0 || next >= n {
		return "", false
	}
	return st.Snapshots[next].Date, true
}

func (m watchModel) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := label(m.state.Strings, "stockInsights", "Stock Insights")
	header := fmt.Sprintf(" %s  %s    companies: %d    seq: %d ", title, m.sessionID, len(m.state.Companies), m.state.Seq)
	footer := " q quit  left/right date  r refresh  pgup/dn scroll"
	if m.err != nil {
		footer = " error: " + m.err.Error()
	}
	return headerBarStyle.Render(padOrTrunc(header, m.width)) + "\n" +
		m.viewport.View() + "\n" +
		footerBarStyle.Render(padOrTrunc(footer, m.width))
}

func (m watchModel) renderContent() string {
	var b bytes.Buffer
	renderState(&b, m.state)
	if len(m.events) > 0 {
		b.WriteString("\n")
		for _, e := range m.events {
			b.WriteString(e + "\n")
		}
	}
	return b.String()
}

// padOrTrunc pads s with spaces or truncates it to exactly width runes.
func padOrTrunc(s string, width int) string {
	r := []rune(s)
	if len(r) >= width {
		return string(r[:max(width, 0)])
	}
	return s + strings.Repeat(" ", width-len(r))
}

// runWatchTUI streams the session into a full-screen view until the user
// quits or the stream ends.
func runWatchTUI(ctx context.Context, client *insights.Client, stream *live.Client, sessionID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newWatchModel(client, sessionID, cancel), tea.WithAltScreen(), tea.WithContext(ctx))
	go func() {
		err := stream.Watch(ctx, sessionID, func(f live.Frame) error {
			p.Send(frameMsg(f))
			return nil
		})
		p.Send(watchDoneMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil && ctx.Err() == nil {
		return err
	}
	if m, ok := final.(watchModel); ok && m.err != nil && ctx.Err() == nil {
		return m.err
	}
	return nil
}
