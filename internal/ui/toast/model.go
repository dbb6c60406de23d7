// Package toast shows short-lived announcements of newly arrived messages.
package toast

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/broker-console/internal/model"
	"github.com/nhle/broker-console/internal/theme"
)

// maxVisible caps how many toasts are stacked on screen.
const maxVisible = 3

// ExpireMsg removes the toast with the given sequence number.
type ExpireMsg struct {
	Seq int
}

type entry struct {
	seq  int
	text string
}

// Model is a queue of toasts that expire after a fixed duration.
type Model struct {
	duration time.Duration
	entries  []entry
	seq      int
	width    int
}

// New creates a toast queue.
func New(duration time.Duration) Model {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return Model{duration: duration}
}

// Push queues one toast per notification and returns the timers that
// expire them.
func (m *Model) Push(batch []model.Notification) tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(batch))
	for _, n := range batch {
		m.seq++
		m.entries = append(m.entries, entry{seq: m.seq, text: Describe(n)})
		seq := m.seq
		cmds = append(cmds, tea.Tick(m.duration, func(time.Time) tea.Msg {
			return ExpireMsg{Seq: seq}
		}))
	}
	return tea.Batch(cmds...)
}

// PushText queues a plain status toast.
func (m *Model) PushText(text string) tea.Cmd {
	m.seq++
	seq := m.seq
	m.entries = append(m.entries, entry{seq: seq, text: text})
	return tea.Tick(m.duration, func(time.Time) tea.Msg {
		return ExpireMsg{Seq: seq}
	})
}

// Update drops expired toasts.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(ExpireMsg); ok {
		for i, e := range m.entries {
			if e.seq == msg.Seq {
				m.entries = append(m.entries[:i:i], m.entries[i+1:]...)
				break
			}
		}
	}
	return m, nil
}

// Len returns the number of queued toasts.
func (m Model) Len() int {
	return len(m.entries)
}

// View renders the newest toasts, newest at the bottom.
func (m Model) View() string {
	if len(m.entries) == 0 {
		return ""
	}
	shown := m.entries
	if len(shown) > maxVisible {
		shown = shown[len(shown)-maxVisible:]
	}
	width := m.width / 2
	if width < 30 {
		width = 30
	}
	rendered := make([]string, 0, len(shown)+1)
	if hidden := len(m.entries) - len(shown); hidden > 0 {
		rendered = append(rendered, theme.DimmedStyle.Render(fmt.Sprintf("+%d more", hidden)))
	}
	for _, e := range shown {
		rendered = append(rendered, theme.ToastStyle.Width(width).Render(e.text))
	}
	return lipgloss.JoinVertical(lipgloss.Right, rendered...)
}

// SetWidth updates the available width.
func (m *Model) SetWidth(width int) {
	m.width = width
}

// Describe renders the one-line announcement of a notification.
func Describe(n model.Notification) string {
	body := strings.Join(strings.Fields(n.Body), " ")
	if r := []rune(body); len(r) > 60 {
		body = string(r[:59]) + "…"
	}
	switch n.Kind {
	case model.KindNegotiation:
		if n.CounterRate != nil {
			return fmt.Sprintf("%s countered $%.2f on bid %s", n.SenderLabel, *n.CounterRate, n.Subject.BidID)
		}
		return fmt.Sprintf("%s on bid %s: %s", n.SenderLabel, n.Subject.BidID, body)
	default:
		return fmt.Sprintf("%s on load %s: %s", n.SenderLabel, n.Subject.LoadID, body)
	}
}
