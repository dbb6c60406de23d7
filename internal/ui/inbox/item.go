package inbox

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/broker-console/internal/model"
	"github.com/nhle/broker-console/internal/theme"
)

// NotificationItem wraps a model.Notification for bubbles/list.
type NotificationItem struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i NotificationItem) FilterValue() string {
	return i.Notification.SenderLabel + " " + i.Notification.Body
}

// Title returns the sender line.
func (i NotificationItem) Title() string { return i.Notification.SenderLabel }

// Description returns a short summary line for the list.
func (i NotificationItem) Description() string {
	return i.Notification.Body
}

// ItemDelegate renders one notification per line.
type ItemDelegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single notification line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ni, ok := item.(NotificationItem)
	if !ok {
		return
	}
	n := ni.Notification

	kindBadge := theme.KindLabelStyle(string(n.Kind)).Render(kindLabel(n.Kind))

	subject := n.Subject.LoadID
	if n.Kind == model.KindNegotiation && n.Subject.BidID != "" {
		subject = n.Subject.BidID
	}
	subjectStr := theme.DimmedStyle.Render(shortID(subject))

	sender := lipgloss.NewStyle().Bold(true).Render(n.SenderLabel)

	rate := ""
	if n.CounterRate != nil {
		rate = " " + theme.RateStyle.Render(FormatRate(*n.CounterRate))
	}

	now := time.Now
	if d.now != nil {
		now = d.now
	}
	timeStr := theme.DimmedStyle.Render(relativeTime(now(), n.OccurredAt))

	budget := m.Width() - 50
	if budget < 20 {
		budget = 20
	}
	body := truncate(singleLine(n.Body), budget)

	line := fmt.Sprintf(
		"%s %s %s%s %s  %s",
		kindBadge, subjectStr, sender, rate, body, timeStr,
	)

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

func kindLabel(k model.Kind) string {
	if k == model.KindNegotiation {
		return "BID"
	}
	return "CHAT"
}

// FormatRate renders a counter-offer amount.
func FormatRate(rate float64) string {
	return fmt.Sprintf("$%.2f", rate)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return "…" + id[len(id)-6:]
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(now, t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 02")
	}
}
