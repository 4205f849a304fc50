// Package tui renders a client.Loop as a small bubbletea program.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/drfengyu/dall-e/internal/client"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// TransitionMsg carries a loop transition into the program.
type TransitionMsg client.Transition

// FinishedMsg is sent once the loop returns.
type FinishedMsg struct {
	Machine client.Machine
	Err     error
}

// Model shows the state of one request while the loop runs elsewhere.
type Model struct {
	prompt   string
	spinner  spinner.Model
	machine  client.Machine
	pollErr  error
	started  time.Time
	now      func() time.Time
	cancel   context.CancelFunc
	finished bool
	err      error
}

func New(prompt string, cancel context.CancelFunc) Model {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = titleStyle
	return Model{
		prompt:  prompt,
		spinner: s,
		started: time.Now(),
		now:     time.Now,
		cancel:  cancel,
	}
}

// Result returns the final machine and error after the program exits.
func (m Model) Result() (client.Machine, error) {
	return m.machine, m.err
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case TransitionMsg:
		m.machine = msg.Machine
		m.pollErr = msg.PollErr
		return m, nil
	case FinishedMsg:
		m.machine = msg.Machine
		m.err = msg.Err
		m.finished = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("dall-e"))
	b.WriteString(" ")
	b.WriteString(mutedStyle.Render(truncate(m.prompt, 60)))
	b.WriteString("\n")

	switch m.machine.State {
	case client.StateDone:
		b.WriteString(okStyle.Render("done"))
		b.WriteString(" ")
		b.WriteString(m.machine.ResultURL)
	case client.StateFailed:
		b.WriteString(errorStyle.Render("failed"))
		if m.machine.Err != nil {
			b.WriteString(" ")
			b.WriteString(m.machine.Err.Error())
		}
	case client.StatePolling:
		fmt.Fprintf(&b, "%s waiting for %s  %s", m.spinner.View(), m.machine.JobID,
			mutedStyle.Render(fmt.Sprintf("polls %d, %s", m.machine.Polls, m.elapsed())))
		if m.pollErr != nil {
			b.WriteString("\n")
			b.WriteString(mutedStyle.Render("last poll: " + m.pollErr.Error()))
		}
	default:
		fmt.Fprintf(&b, "%s submitting", m.spinner.View())
	}

	if !m.machine.State.Terminal() {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("q to stop waiting"))
	}
	return panelStyle.Render(b.String()) + "\n"
}

func (m Model) elapsed() time.Duration {
	return m.now().Sub(m.started).Round(time.Second)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
