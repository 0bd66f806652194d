package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/neuropil-go/node"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	subjectStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	deniedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const (
	refreshEvery = 250 * time.Millisecond
	recentLimit  = 10
)

// inbound is a delivered message as shown on the dashboard.
type inbound struct {
	at      time.Time
	subject string
	data    string
}

type tickMsg time.Time

type sentMsg struct {
	err     error
	subject string
}

type dashboard struct {
	ctx    context.Context
	node   *node.Node
	feed   <-chan inbound
	err    error
	last   string
	recent []inbound
	input  textinput.Model
	stats  node.Stats
}

func newDashboard(ctx context.Context, n *node.Node, feed <-chan inbound) *dashboard {
	ti := textinput.New()
	ti.Prompt = "send> "
	ti.Placeholder = "subject payload"
	ti.Width = 50
	ti.Focus()
	return &dashboard{
		ctx:   ctx,
		node:  n,
		feed:  feed,
		input: ti,
		stats: n.Stats(),
	}
}

func (m *dashboard) Init() tea.Cmd {
	return tea.Batch(tick(), m.wait, textinput.Blink)
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// wait blocks until the next delivered message or until the run ends.
func (m *dashboard) wait() tea.Msg {
	select {
	case msg := <-m.feed:
		return msg
	case <-m.ctx.Done():
		return nil
	}
}

func (m *dashboard) send(subject, payload string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.node.Send(subject, []byte(payload))
		return sentMsg{subject: subject, err: err}
	}
}

// parseSend splits "subject payload" input. The payload may be empty.
func parseSend(line string) (subject, payload string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", "", false
	}
	subject, payload, _ = strings.Cut(line, " ")
	return subject, strings.TrimSpace(payload), true
}

func (m *dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			subject, payload, ok := parseSend(m.input.Value())
			m.input.SetValue("")
			if !ok {
				return m, nil
			}
			return m, m.send(subject, payload)
		}

	case tickMsg:
		if m.ctx.Err() != nil {
			return m, tea.Quit
		}
		m.stats = m.node.Stats()
		return m, tick()

	case inbound:
		m.recent = append(m.recent, msg)
		if len(m.recent) > recentLimit {
			m.recent = m.recent[len(m.recent)-recentLimit:]
		}
		return m, m.wait

	case sentMsg:
		m.err = msg.err
		if msg.err == nil {
			m.last = "sent on " + msg.subject
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *dashboard) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("npnode"))
	fmt.Fprintf(&b, " handle %d  %s", m.node.Handle(), m.node.Status())
	if m.node.HasJoined() {
		b.WriteString("  joined")
	}
	b.WriteString("\n\n")

	st := m.stats
	fmt.Fprintf(&b, "%s %d subjects, %d handlers\n", labelStyle.Render("subscriptions"), st.Subjects, st.Handlers)
	fmt.Fprintf(&b, "%s %d delivered, %d handler failures, %d sent\n\n",
		labelStyle.Render("traffic      "), st.Delivered, st.HandlerFailures, st.Sent)

	for _, seat := range node.Seats() {
		d := st.Decisions[seat]
		line := fmt.Sprintf("%-13s %d allowed, %d denied, %d failed", seat, d.Allowed, d.Denied, d.Failed)
		if d.Failed > 0 {
			line = deniedStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\nRecent messages:\n")
	if len(m.recent) == 0 {
		b.WriteString(helpStyle.Render("  none yet") + "\n")
	}
	for _, in := range m.recent {
		fmt.Fprintf(&b, "  %s %s %s\n", in.at.Format("15:04:05.000"), subjectStyle.Render(in.subject), in.data)
	}

	b.WriteString("\n" + m.input.View() + "\n")
	switch {
	case m.err != nil:
		b.WriteString(deniedStyle.Render(m.err.Error()) + "\n")
	case m.last != "":
		b.WriteString(m.last + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("enter send • esc quit"))
	return b.String()
}

func runDashboard(ctx context.Context, n *node.Node, feed <-chan inbound) error {
	p := tea.NewProgram(newDashboard(ctx, n, feed), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
