package app

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/broker-console/internal/events"
	"github.com/nhle/broker-console/internal/keys"
	"github.com/nhle/broker-console/internal/model"
	appsync "github.com/nhle/broker-console/internal/sync"
	"github.com/nhle/broker-console/internal/ui"
	"github.com/nhle/broker-console/internal/ui/command"
	helpview "github.com/nhle/broker-console/internal/ui/help"
	"github.com/nhle/broker-console/internal/ui/inbox"
	"github.com/nhle/broker-console/internal/ui/threadview"
	"github.com/nhle/broker-console/internal/ui/toast"
)

const appTitle = "Broker Console"

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewInbox ViewState = iota
	ViewThread
	ViewHelp
	ViewCommand
)

// Model is the root Bubble Tea model that manages view routing, layout
// and the bridge between the poll loop and the views.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	engine       *Engine
	logger       *zap.Logger

	inbox       inbox.Model
	thread      threadview.Model
	helpView    helpview.Model
	commandView command.Model
	toasts      toast.Model

	openEvents   <-chan events.Event
	stopListener func()

	ready            bool
	unread           int
	authErrorMessage string
	now              func() time.Time
}

// New creates the root model and registers it as the thread-opening
// surface on the engine's broadcaster. Call Close when the program ends.
func New(e *Engine) Model {
	k := keys.DefaultKeyMap()
	cfg := e.Config
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, cleanup := e.Broadcaster.Listen(ctx)

	return Model{
		currentView: ViewInbox,
		keys:        k,
		engine:      e,
		logger:      logger,
		inbox:       inbox.New(k, 80, 24),
		thread: threadview.New(
			e.Fetcher,
			e.Sender,
			cfg.User,
			threadview.Config{
				PageSize:           cfg.Chat.PageSize,
				ChatRefresh:        cfg.Chat.RefreshInterval,
				NegotiationRefresh: cfg.Negotiation.RefreshInterval,
				ReconcileDelay:     cfg.Chat.ReconcileDelay,
				FetchTimeout:       cfg.API.Timeout,
			},
			k,
			logger.Named("thread"),
			80, 24,
		),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
		toasts:      toast.New(cfg.Display.ToastDuration),
		openEvents:  stream,
		stopListener: func() {
			cleanup()
			cancel()
		},
		now: time.Now,
	}
}

// Close unregisters the model from the broadcaster and stops polling.
func (m Model) Close() {
	if m.stopListener != nil {
		m.stopListener()
	}
	m.engine.Poller.Stop()
}

// Init starts the poll loop and begins listening for open signals.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.engine.Poller.Start(),
		m.waitForOpen(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.inbox.SetSize(contentWidth, contentHeight)
		m.thread.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.commandView.SetSize(contentWidth, contentHeight)
		m.toasts.SetWidth(contentWidth / 2)
		// Forward to active view so the huh form can calculate its layout.
		return m.updateActiveView(msg)

	case appsync.SyncResultMsg:
		if msg.AuthError != nil {
			m.authErrorMessage = msg.AuthError.Message
		} else if msg.Error == nil && msg.Result.DiscoveryErr == nil {
			m.authErrorMessage = ""
		}

		// After a tick completes, reload the feed, announce what is new
		// and keep listening.
		reload := m.refreshInbox()
		announce := m.toasts.Push(msg.Result.Surfaced)
		return m, tea.Batch(reload, announce, m.engine.Poller.WaitForNextResult())

	case toast.ExpireMsg:
		var cmd tea.Cmd
		m.toasts, cmd = m.toasts.Update(msg)
		return m, cmd

	case openThreadMsg:
		key := threadKeyFor(msg.event)
		m.logger.Debug("opening thread",
			zap.String("kind", string(key.Kind)),
			zap.String("load_id", key.Subject.LoadID),
			zap.String("bid_id", key.Subject.BidID),
		)
		m.previousView = ViewInbox
		m.currentView = ViewThread
		open := m.thread.Open(key, msg.event.Notification.SenderID)
		return m, tea.Batch(open, m.waitForOpen())

	case listenerClosedMsg:
		m.openEvents = nil
		return m, nil

	case threadview.ClosedMsg:
		m.currentView = ViewInbox
		cmd := m.refreshInbox()
		return m, cmd

	case inbox.ActivateMsg:
		cmd := m.activate(msg.Kind, msg.ID)
		return m, cmd

	case inbox.DismissMsg:
		cmd := m.dismiss(msg.Kind, msg.ID)
		return m, cmd

	case inbox.DismissAllMsg:
		cmd := m.dismissAll()
		return m, cmd

	case inbox.MarkReadMsg:
		cmd := m.markAllRead()
		return m, cmd

	case command.CommandMsg:
		m.currentView = m.previousView
		cmd := m.executeCommand(string(msg))
		return m, cmd

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case tea.KeyMsg:
		// The thread panel owns the keyboard while its composer has focus.
		if m.currentView == ViewThread && msg.String() != "ctrl+c" {
			break
		}

		// Global keys that work regardless of current view
		switch msg.String() {
		case "ctrl+c":
			return m, m.quit()

		case "q":
			if m.currentView == ViewInbox {
				return m, m.quit()
			}

		case "esc":
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}

		case "?":
			if m.currentView == ViewCommand {
				break
			}
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case ":":
			if m.currentView == ViewCommand {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewCommand
			cmd := m.commandView.Focus()
			return m, cmd

		case "r":
			if m.currentView == ViewInbox {
				return m, m.engine.Poller.RefreshNow()
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
// Thread panel timers and fetch results are routed to it even when
// another view covers it.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	if _, isKey := msg.(tea.KeyMsg); !isKey && m.currentView != ViewThread {
		if _, open := m.thread.Key(); open {
			m.thread, cmd = m.thread.Update(msg)
		}
	}

	var viewCmd tea.Cmd
	switch m.currentView {
	case ViewInbox:
		m.inbox, viewCmd = m.inbox.Update(msg)
	case ViewThread:
		m.thread, viewCmd = m.thread.Update(msg)
	case ViewHelp:
		m.helpView, viewCmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, viewCmd = m.commandView.Update(msg)
	}

	return m, tea.Batch(cmd, viewCmd)
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	headerTitle := appTitle
	if m.unread > 0 {
		headerTitle = fmt.Sprintf("%s [%d new]", appTitle, m.unread)
	}
	header := m.layout.RenderHeader(headerTitle, m.syncStatus())
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, m.toasts.View(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewInbox:
		return m.inbox.View()
	case ViewThread:
		return m.thread.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// syncStatus returns a short string describing the poll loop.
func (m Model) syncStatus() string {
	status := m.engine.Poller.Status()

	switch {
	case status.State == appsync.SyncRunning && status.TickCount == 0:
		return "first poll…"
	case status.State == appsync.SyncRunning:
		return "polling…"
	case status.State == appsync.SyncError && status.Error != nil:
		return "⚠ " + shorten(status.Error.Error(), 40)
	case status.TickCount == 0:
		return "waiting"
	}

	text := fmt.Sprintf("%d threads · synced %s ago",
		status.Subjects, m.now().Sub(status.LastSync).Round(time.Second))
	if status.Failing > 0 {
		text += fmt.Sprintf(" · ⚠ %d failing", status.Failing)
	}
	return text
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	// Show auth error prominently when present.
	if m.authErrorMessage != "" && m.currentView == ViewInbox {
		return m.authErrorMessage
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return ": close command | enter execute | esc back"
	case ViewThread:
		if key, ok := m.thread.Key(); ok && key.Kind == model.KindNegotiation {
			return "enter counter | ctrl+n counter | pgup older | esc close"
		}
		return "enter send | ctrl+r reply | ctrl+f attach | pgup older | esc close"
	default:
		return "q quit | ? help | enter open | x dismiss | X dismiss all | m read | r poll"
	}
}

// executeCommand handles a command string from the command palette.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	switch cmd {
	case "refresh", "poll":
		return m.engine.Poller.RefreshNow()
	case "read", "mark read":
		return m.markAllRead()
	case "dismiss all", "clear":
		return m.dismissAll()
	case "inbox":
		m.thread.Close()
		m.currentView = ViewInbox
		return m.refreshInbox()
	case "quit", "q":
		return m.quit()
	default:
		return m.toasts.PushText(fmt.Sprintf("Unknown command %q", cmd))
	}
}

func (m Model) quit() tea.Cmd {
	m.engine.Poller.Stop()
	return tea.Quit
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
