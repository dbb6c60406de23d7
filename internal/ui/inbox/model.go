package inbox

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/broker-console/internal/keys"
	"github.com/nhle/broker-console/internal/model"
	"github.com/nhle/broker-console/internal/theme"
)

// ActivateMsg asks the parent to open the notification's thread.
type ActivateMsg struct {
	Kind model.Kind
	ID   string
}

// DismissMsg asks the parent to dismiss one notification.
type DismissMsg struct {
	Kind model.Kind
	ID   string
}

// DismissAllMsg asks the parent to clear the feed.
type DismissAllMsg struct{}

// MarkReadMsg asks the parent to zero the unread counter.
type MarkReadMsg struct{}

// Model is the notification feed view.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates a new inbox model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Inbox"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle
	l.SetStatusBarItemName("notification", "notifications")

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// SetNotifications replaces the shown feed, keeping the cursor on the
// same notification when it is still present.
func (m *Model) SetNotifications(feed []model.Notification) tea.Cmd {
	var selected model.NotificationKey
	hadSelection := false
	if cur, ok := m.list.SelectedItem().(NotificationItem); ok {
		selected = cur.Notification.Key()
		hadSelection = true
	}

	items := make([]list.Item, len(feed))
	cursor := 0
	for i, n := range feed {
		items[i] = NotificationItem{Notification: n}
		if hadSelection && n.Key() == selected {
			cursor = i
		}
	}
	cmd := m.list.SetItems(items)
	if len(items) > 0 {
		m.list.Select(cursor)
	}
	return cmd
}

// Selected returns the notification under the cursor.
func (m Model) Selected() (model.Notification, bool) {
	item, ok := m.list.SelectedItem().(NotificationItem)
	if !ok {
		return model.Notification{}, false
	}
	return item.Notification, true
}

// Len returns the number of shown notifications.
func (m Model) Len() int {
	return len(m.list.Items())
}

// Update handles messages for the inbox view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Select):
			n, ok := m.Selected()
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg {
				return ActivateMsg{Kind: n.Kind, ID: n.ID}
			}

		case key.Matches(msg, m.keys.Dismiss):
			n, ok := m.Selected()
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg {
				return DismissMsg{Kind: n.Kind, ID: n.ID}
			}

		case key.Matches(msg, m.keys.DismissAll):
			if m.Len() == 0 {
				return m, nil
			}
			return m, func() tea.Msg { return DismissAllMsg{} }

		case key.Matches(msg, m.keys.MarkRead):
			return m, func() tea.Msg { return MarkReadMsg{} }
		}
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the inbox.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

// renderEmptyState shows guidance text when the feed is empty.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	return style.Render(
		"No new messages.\n\n" +
			"New chat and negotiation messages show up here as they arrive.",
	)
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
