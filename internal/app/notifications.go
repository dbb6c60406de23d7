package app

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/broker-console/internal/events"
	"github.com/nhle/broker-console/internal/model"
	"github.com/nhle/broker-console/internal/thread"
)

// openThreadMsg carries an open signal received from the broadcaster.
type openThreadMsg struct {
	event events.Event
}

// listenerClosedMsg is sent when the broadcaster stream ends.
type listenerClosedMsg struct{}

// waitForOpen returns a tea.Cmd that waits for the next open signal.
// Call it again after handling an openThreadMsg to keep listening.
func (m Model) waitForOpen() tea.Cmd {
	stream := m.openEvents
	if stream == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-stream
		if !ok {
			return listenerClosedMsg{}
		}
		return openThreadMsg{event: ev}
	}
}

// threadKeyFor maps an open signal to the thread it names.
func threadKeyFor(ev events.Event) thread.Key {
	kind := model.KindChat
	if ev.Type == events.OpenNegotiation {
		kind = model.KindNegotiation
	}
	return thread.Key{Kind: kind, Subject: ev.Subject}
}

// refreshInbox copies the center's feed and counter into the view.
func (m *Model) refreshInbox() tea.Cmd {
	m.unread = m.engine.Center.Unread()
	return m.inbox.SetNotifications(m.engine.Center.List())
}

// activate dismisses the notification and asks the center to emit the
// open signal. The thread opens when the signal comes back through the
// broadcaster.
func (m *Model) activate(kind model.Kind, id string) tea.Cmd {
	if _, ok := m.engine.Center.Activate(kind, id); !ok {
		return nil
	}
	return m.refreshInbox()
}

func (m *Model) dismiss(kind model.Kind, id string) tea.Cmd {
	m.engine.Center.Dismiss(kind, id)
	return m.refreshInbox()
}

func (m *Model) dismissAll() tea.Cmd {
	n := m.engine.Center.DismissAll()
	if n == 0 {
		return m.refreshInbox()
	}
	return tea.Batch(
		m.refreshInbox(),
		m.toasts.PushText(fmt.Sprintf("Cleared %d notifications", n)),
	)
}

func (m *Model) markAllRead() tea.Cmd {
	m.engine.Center.MarkAllRead()
	return m.refreshInbox()
}
