package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vigilstream/internal/vigil/domain"
)

const (
	maxBarWidth   = 60
	maxFeedLength = 10
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	readyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	flaggedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type eventMsg struct {
	event domain.Event
}

type streamEndMsg struct {
	err error
}

// listenForStreamMessage returns a tea.Cmd that blocks until the watch
// goroutine delivers the next message.
func listenForStreamMessage(channel <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		message, ok := <-channel
		if !ok {
			return streamEndMsg{}
		}
		return message
	}
}

// watchModel renders one object's progress bar, or for the global topic a
// feed of the latest terminal events.
type watchModel struct {
	objectID string
	messages <-chan tea.Msg
	bar      progress.Model

	percent        int
	state          domain.LifecycleState
	note           string
	classification *domain.Classification
	feed           []string

	done bool
	err  error
}

func newWatchModel(objectID string, messages <-chan tea.Msg) watchModel {
	return watchModel{
		objectID: objectID,
		messages: messages,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxBarWidth)),
		state:    domain.StateProcessing,
	}
}

func (m watchModel) Init() tea.Cmd {
	return listenForStreamMessage(m.messages)
}

func (m watchModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch message.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = min(maxBarWidth, max(10, message.Width-4))
		return m, nil

	case eventMsg:
		m.apply(message.event)
		return m, listenForStreamMessage(m.messages)

	case streamEndMsg:
		m.done = true
		m.err = message.err
		return m, tea.Quit
	}
	return m, nil
}

func (m *watchModel) apply(ev domain.Event) {
	if m.objectID == "" {
		m.feed = append(m.feed, feedLine(ev))
		if len(m.feed) > maxFeedLength {
			m.feed = m.feed[len(m.feed)-maxFeedLength:]
		}
		return
	}

	m.percent = ev.ProgressPercent
	m.state = ev.LifecycleState
	m.note = ev.Message
	if ev.Classification != nil {
		m.classification = ev.Classification
	}
	if ev.Deleted {
		m.note = "object deleted"
	}
}

func feedLine(ev domain.Event) string {
	if ev.Deleted {
		return fmt.Sprintf("%s  %s", ev.ObjectID, mutedStyle.Render("deleted"))
	}
	line := fmt.Sprintf("%s  %s", ev.ObjectID, stateStyle(ev.LifecycleState).Render(string(ev.LifecycleState)))
	if ev.Classification != nil {
		line += "  " + verdict(*ev.Classification)
	}
	return line
}

func stateStyle(state domain.LifecycleState) lipgloss.Style {
	switch state {
	case domain.StateReady:
		return readyStyle
	case domain.StateFailed:
		return failedStyle
	default:
		return pendingStyle
	}
}

func verdict(c domain.Classification) string {
	style := readyStyle
	if c.Status != domain.SensitivitySafe {
		style = flaggedStyle
	}
	return style.Render(string(c.Status)) + mutedStyle.Render(fmt.Sprintf(" (%.2f)", c.Score))
}

func (m watchModel) View() string {
	var b strings.Builder

	if m.objectID == "" {
		b.WriteString(titleStyle.Render("Watching all objects") + "\n\n")
		if len(m.feed) == 0 {
			b.WriteString(mutedStyle.Render("waiting for events...") + "\n")
		}
		for _, line := range m.feed {
			b.WriteString(line + "\n")
		}
	} else {
		b.WriteString(titleStyle.Render("Object "+m.objectID) + "\n\n")
		b.WriteString(m.bar.ViewAs(float64(m.percent)/100) + "\n")
		b.WriteString(stateStyle(m.state).Render(string(m.state)))
		if m.note != "" {
			b.WriteString("  " + mutedStyle.Render(m.note))
		}
		b.WriteString("\n")
		if m.classification != nil {
			b.WriteString("sensitivity: " + verdict(*m.classification))
			if m.classification.Reason != "" {
				b.WriteString("  " + mutedStyle.Render(m.classification.Reason))
			}
			b.WriteString("\n")
		}
	}

	if m.err != nil {
		b.WriteString("\n" + failedStyle.Render("stream error: "+m.err.Error()) + "\n")
	} else if !m.done {
		b.WriteString("\n" + mutedStyle.Render("q to quit") + "\n")
	}
	return b.String()
}
