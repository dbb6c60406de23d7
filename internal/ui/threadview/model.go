// Package threadview renders an open chat or negotiation thread and
// drives its refresh timer, backward pagination and sends.
package threadview

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/nhle/broker-console/internal/keys"
	"github.com/nhle/broker-console/internal/model"
	"github.com/nhle/broker-console/internal/source"
	"github.com/nhle/broker-console/internal/theme"
	"github.com/nhle/broker-console/internal/thread"
)

// Config tunes the panel timers.
type Config struct {
	PageSize           int
	ChatRefresh        time.Duration
	NegotiationRefresh time.Duration
	ReconcileDelay     time.Duration
	FetchTimeout       time.Duration
}

// ClosedMsg tells the parent the panel was closed.
type ClosedMsg struct{}

type fetchPurpose int

const (
	purposeInitial fetchPurpose = iota
	purposeRefresh
	purposeOlder
	purposeReconcile
)

type pageMsg struct {
	session int
	gen     int
	purpose fetchPurpose
	page    model.ThreadPage
	err     error
}

type refreshTickMsg struct{ session, gen int }

type reconcileMsg struct{ session, gen int }

type sendResultMsg struct {
	session int
	gen     int
	tempID  string
	err     error
}

// counterValues is heap-allocated so the huh form keeps valid pointers
// while the Model is copied by value.
type counterValues struct {
	rate    string
	message string
}

// Model is the thread panel.
type Model struct {
	fetcher source.ThreadFetcher
	sender  source.Sender
	user    model.User
	cfg     Config
	keys    *keys.KeyMap
	logger  *zap.Logger

	// session counts opened threads. Viewer generations restart with
	// every viewer, so async results carry both.
	session  int
	viewer   *thread.Viewer
	viewport viewport.Model
	input    textarea.Model

	attach     textinput.Model
	attaching  bool
	attachPath string
	replyTo    string

	counter     *huh.Form
	counterVals *counterValues

	status    string
	statusErr bool
	width     int
	height    int
}

// New creates a closed thread panel.
func New(
	fetcher source.ThreadFetcher,
	sender source.Sender,
	user model.User,
	cfg Config,
	k *keys.KeyMap,
	logger *zap.Logger,
	width, height int,
) Model {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.ChatRefresh <= 0 {
		cfg.ChatRefresh = 5 * time.Second
	}
	if cfg.NegotiationRefresh <= 0 {
		cfg.NegotiationRefresh = 2 * time.Second
	}
	if cfg.ReconcileDelay <= 0 {
		cfg.ReconcileDelay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ta := textarea.New()
	ta.Placeholder = "Write a message..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.SetHeight(2)
	ta.CharLimit = 2000

	ai := textinput.New()
	ai.Prompt = "file: "
	ai.Placeholder = "/path/to/rate-confirmation.pdf"

	m := Model{
		fetcher:  fetcher,
		sender:   sender,
		user:     user,
		cfg:      cfg,
		keys:     k,
		logger:   logger,
		viewport: viewport.New(width, 10),
		input:    ta,
		attach:   ai,
	}
	m.SetSize(width, height)
	return m
}

// Open closes any current thread and starts loading key. recipientHint
// is the chat recipient to fall back on, usually the notification sender.
func (m *Model) Open(key thread.Key, recipientHint string) tea.Cmd {
	if m.viewer != nil {
		m.viewer.Close()
	}
	m.session++
	m.viewer = thread.NewViewer(key, m.user, m.cfg.PageSize)
	m.viewer.SetRecipientHint(recipientHint)
	m.input.Reset()
	m.replyTo = ""
	m.attachPath = ""
	m.attaching = false
	m.counter = nil
	m.setStatus("loading…", false)

	req, err := m.viewer.Open()
	if err != nil {
		m.setStatus(err.Error(), true)
		return nil
	}
	m.render(true)
	return tea.Batch(m.fetch(req, purposeInitial), m.input.Focus(), textarea.Blink)
}

// Close stops the current thread. Results still in flight are dropped.
func (m *Model) Close() {
	if m.viewer != nil {
		m.viewer.Close()
	}
	m.counter = nil
	m.attaching = false
}

// Key returns the open thread, if any.
func (m Model) Key() (thread.Key, bool) {
	if m.viewer == nil || m.viewer.State() == thread.Closed {
		return thread.Key{}, false
	}
	return m.viewer.Key(), true
}

// Update handles messages for the thread panel.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pageMsg:
		return m.handlePage(msg)

	case refreshTickMsg:
		if !m.current(msg.session, msg.gen) {
			return m, nil
		}
		req, ok := m.viewer.RefreshRequest()
		if !ok {
			return m, m.scheduleRefresh()
		}
		return m, m.fetch(req, purposeRefresh)

	case reconcileMsg:
		if !m.current(msg.session, msg.gen) {
			return m, nil
		}
		req, ok := m.viewer.RefreshRequest()
		if !ok {
			return m, nil
		}
		return m, m.fetch(req, purposeReconcile)

	case sendResultMsg:
		return m.handleSendResult(msg)

	case tea.KeyMsg:
		if m.counter != nil {
			return m.updateCounterForm(msg)
		}
		if m.attaching {
			return m.updateAttach(msg)
		}
		return m.handleKeyMsg(msg)
	}

	if m.counter != nil {
		return m.updateCounterForm(msg)
	}

	// Delegate to textarea and viewport
	var cmds []tea.Cmd

	var taCmd tea.Cmd
	m.input, taCmd = m.input.Update(msg)
	if taCmd != nil {
		cmds = append(cmds, taCmd)
	}

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	if vpCmd != nil {
		cmds = append(cmds, vpCmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) current(session, gen int) bool {
	return m.viewer != nil &&
		session == m.session &&
		m.viewer.State() != thread.Closed &&
		gen == m.viewer.Generation()
}

func (m Model) handlePage(msg pageMsg) (Model, tea.Cmd) {
	if !m.current(msg.session, msg.gen) {
		return m, nil
	}

	if msg.err != nil {
		if !m.viewer.ApplyError(msg.gen, msg.err) {
			return m, nil
		}
		m.logger.Warn("thread fetch failed",
			zap.String("kind", string(m.viewer.Key().Kind)),
			zap.String("load_id", m.viewer.Key().Subject.LoadID),
			zap.String("bid_id", m.viewer.Key().Subject.BidID),
			zap.Error(msg.err),
		)
		m.setStatus(describeError(msg.err), true)
		m.render(false)
		if msg.purpose == purposeInitial || msg.purpose == purposeRefresh {
			return m, m.scheduleRefresh()
		}
		return m, nil
	}

	switch msg.purpose {
	case purposeInitial:
		if !m.viewer.ApplyInitial(msg.gen, msg.page) {
			return m, nil
		}
		m.setStatus("", false)
		m.render(true)
		return m, m.scheduleRefresh()

	case purposeRefresh, purposeReconcile:
		loadingMore := m.viewer.State() == thread.LoadingMore
		before := m.viewport.TotalLineCount()
		if !m.viewer.ApplyRefresh(msg.gen, msg.page) {
			return m, nil
		}
		if m.statusErr {
			m.setStatus("", false)
		}
		m.render(false)
		if loadingMore {
			m.viewer.ShiftAnchor(m.viewport.TotalLineCount() - before)
		}
		if msg.purpose == purposeRefresh {
			return m, m.scheduleRefresh()
		}
		return m, nil

	case purposeOlder:
		anchor, ok := m.viewer.ApplyOlder(msg.gen, msg.page)
		if !ok {
			return m, nil
		}
		m.setStatus("", false)
		m.render(false)
		m.viewport.SetYOffset(anchor.Restore(m.viewport.TotalLineCount()))
	}
	return m, nil
}

func (m Model) handleSendResult(msg sendResultMsg) (Model, tea.Cmd) {
	if !m.current(msg.session, msg.gen) {
		return m, nil
	}
	if msg.err != nil {
		m.viewer.FailSend(msg.tempID)
		m.logger.Warn("send failed", zap.Error(msg.err))
		m.setStatus("not sent: "+describeError(msg.err), true)
		m.render(false)
		return m, nil
	}

	m.viewer.ConfirmSend(msg.tempID)
	m.setStatus("sent", false)
	session, gen := msg.session, msg.gen
	return m, tea.Tick(m.cfg.ReconcileDelay, func(time.Time) tea.Msg {
		return reconcileMsg{session: session, gen: gen}
	})
}

// handleKeyMsg processes keyboard input for the panel.
func (m Model) handleKeyMsg(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.viewer == nil {
		return m, nil
	}
	kind := m.viewer.Key().Kind

	switch {
	case key.Matches(msg, m.keys.Back):
		if m.replyTo != "" || m.attachPath != "" {
			m.replyTo = ""
			m.attachPath = ""
			return m, nil
		}
		m.Close()
		return m, func() tea.Msg { return ClosedMsg{} }

	case key.Matches(msg, m.keys.Send):
		if kind == model.KindNegotiation {
			cmd := m.openCounterForm(m.input.Value())
			return m, cmd
		}
		return m.sendChat()

	case key.Matches(msg, m.keys.ScrollUp):
		if m.viewport.AtTop() {
			return m.loadOlder()
		}
		m.viewport.SetYOffset(m.viewport.YOffset - m.viewport.Height)
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.viewport.SetYOffset(m.viewport.YOffset + m.viewport.Height)
		return m, nil

	case key.Matches(msg, m.keys.LoadOlder):
		return m.loadOlder()

	case key.Matches(msg, m.keys.Reply):
		if m.replyTo != "" {
			m.replyTo = ""
			return m, nil
		}
		m.replyTo = m.latestInboundID()
		return m, nil

	case key.Matches(msg, m.keys.Attach):
		if kind != model.KindChat {
			return m, nil
		}
		m.attaching = true
		m.attach.SetValue(m.attachPath)
		cmd := m.attach.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.Counter):
		if kind != model.KindNegotiation {
			return m, nil
		}
		cmd := m.openCounterForm(m.input.Value())
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) sendChat() (Model, tea.Cmd) {
	out, err := m.viewer.Send(thread.Draft{
		Body:     m.input.Value(),
		ReplyTo:  m.replyTo,
		FilePath: m.attachPath,
	})
	if err != nil {
		m.setStatus(describeError(err), true)
		return m, nil
	}
	m.input.Reset()
	m.replyTo = ""
	m.attachPath = ""
	m.setStatus("sending…", false)
	m.render(true)
	return m, m.send(out, m.viewer.Generation())
}

func (m Model) loadOlder() (Model, tea.Cmd) {
	anchor := thread.Anchor{
		ScrollHeight: m.viewport.TotalLineCount(),
		ScrollTop:    m.viewport.YOffset,
	}
	req, ok := m.viewer.BeginLoadMore(anchor)
	if !ok {
		if !m.viewer.HasMore() {
			m.setStatus("beginning of conversation", false)
		}
		return m, nil
	}
	m.setStatus("loading older messages…", false)
	return m, m.fetch(req, purposeOlder)
}

func (m Model) latestInboundID() string {
	visible := m.viewer.Visible()
	for i := len(visible) - 1; i >= 0; i-- {
		if !visible[i].IsMine && !visible[i].IsOptimistic {
			return visible[i].ID
		}
	}
	return ""
}

func (m Model) updateAttach(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.attachPath = strings.TrimSpace(m.attach.Value())
		m.attaching = false
		m.attach.Blur()
		return m, nil
	case "esc":
		m.attaching = false
		m.attach.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.attach, cmd = m.attach.Update(msg)
	return m, cmd
}

// --- Counter-offer form ---

func (m *Model) openCounterForm(message string) tea.Cmd {
	m.counterVals = &counterValues{message: strings.TrimSpace(message)}
	m.counter = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Counter rate").
				Description("Amount offered to the carrier").
				Placeholder("1850.00").
				Value(&m.counterVals.rate).
				Validate(validateRate),
			huh.NewInput().
				Title("Message").
				Description("Optional note sent with the counter").
				Value(&m.counterVals.message),
		),
	).WithWidth(max(m.width-8, 20)).WithShowHelp(false)
	return m.counter.Init()
}

func (m Model) updateCounterForm(msg tea.Msg) (Model, tea.Cmd) {
	mdl, cmd := m.counter.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.counter = f
	}

	switch m.counter.State {
	case huh.StateAborted:
		m.counter = nil
		focus := m.input.Focus()
		return m, focus

	case huh.StateCompleted:
		vals := m.counterVals
		m.counter = nil
		focus := m.input.Focus()
		rate, err := parseRate(vals.rate)
		if err != nil {
			m.setStatus(err.Error(), true)
			return m, focus
		}
		out, err := m.viewer.Send(thread.Draft{Body: vals.message, CounterRate: &rate})
		if err != nil {
			m.setStatus(describeError(err), true)
			return m, focus
		}
		m.input.Reset()
		m.setStatus("sending counter…", false)
		m.render(true)
		return m, tea.Batch(m.send(out, m.viewer.Generation()), focus)
	}

	return m, cmd
}

func validateRate(s string) error {
	_, err := parseRate(s)
	return err
}

func parseRate(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	s = strings.ReplaceAll(s, ",", "")
	rate, err := strconv.ParseFloat(s, 64)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("enter a positive amount")
	}
	return rate, nil
}

// --- Commands ---

func (m Model) fetch(req thread.Request, purpose fetchPurpose) tea.Cmd {
	fetcher := m.fetcher
	session := m.session
	timeout := m.cfg.FetchTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var page model.ThreadPage
		var err error
		switch req.Key.Kind {
		case model.KindNegotiation:
			page, err = fetcher.FetchNegotiation(ctx, req.Key.Subject.BidID)
		default:
			page, err = fetcher.FetchChatPage(ctx, req.Key.Subject.LoadID, req.Page, req.Limit)
		}
		if source.IsNotFound(err) {
			page = model.ThreadPage{PageNumber: req.Page, TotalPages: req.Page}
			err = nil
		}
		return pageMsg{session: session, gen: req.Generation, purpose: purpose, page: page, err: err}
	}
}

func (m Model) send(out thread.Outbound, gen int) tea.Cmd {
	sender := m.sender
	session := m.session
	timeout := m.cfg.FetchTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var err error
		switch {
		case out.Chat != nil:
			err = sender.SendChat(ctx, *out.Chat)
		case out.Counter != nil:
			err = sender.SendCounter(ctx, *out.Counter)
		}
		return sendResultMsg{session: session, gen: gen, tempID: out.TempID, err: err}
	}
}

// scheduleRefresh arms the next refresh of the live page. The timer is
// not re-armed once the thread closes or another thread opens.
func (m Model) scheduleRefresh() tea.Cmd {
	if m.viewer == nil {
		return nil
	}
	interval := m.cfg.ChatRefresh
	if m.viewer.Key().Kind == model.KindNegotiation {
		interval = m.cfg.NegotiationRefresh
	}
	session, gen := m.session, m.viewer.Generation()
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return refreshTickMsg{session: session, gen: gen}
	})
}

// --- Rendering ---

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

// render re-renders the conversation. The view sticks to the bottom when
// it was already there.
func (m *Model) render(gotoBottom bool) {
	atBottom := m.viewport.AtBottom()
	offset := m.viewport.YOffset
	m.viewport.SetContent(m.renderConversation())
	if gotoBottom || atBottom {
		m.viewport.GotoBottom()
		return
	}
	m.viewport.SetYOffset(offset)
}

func (m Model) renderConversation() string {
	if m.viewer == nil {
		return ""
	}
	visible := m.viewer.Visible()
	if len(visible) == 0 {
		if m.viewer.State() == thread.Loading {
			return theme.DimmedStyle.Render("Loading…")
		}
		return theme.DimmedStyle.Italic(true).Render("No messages yet.")
	}

	bodyStyle := lipgloss.NewStyle().Width(max(m.viewport.Width-2, 10))

	var sections []string
	for _, msg := range visible {
		label := msg.SenderLabel
		if label == "" {
			label = msg.SenderID
		}
		if msg.IsMine && !msg.IsOptimistic && label == "" {
			label = "You"
		}
		meta := msg.OccurredAt.Local().Format("Jan 02 15:04")
		if msg.IsOptimistic {
			meta = "sending…"
		}
		sections = append(sections,
			theme.SenderStyle(msg.IsMine, msg.IsOptimistic).Render(label)+" "+
				theme.DimmedStyle.Render(meta))

		if quoted := m.viewer.ResolveReply(msg); quoted != nil {
			sections = append(sections, theme.QuoteStyle.Render(
				quoted.SenderLabel+": "+truncate(quoted.Body, 80)))
		}
		if msg.Body != "" {
			sections = append(sections, bodyStyle.Render(msg.Body))
		}
		if msg.CounterRate != nil {
			sections = append(sections, theme.RateStyle.Render(fmt.Sprintf("rate $%.2f", *msg.CounterRate)))
		}
		if msg.Attachment != "" {
			sections = append(sections, theme.DimmedStyle.Render("attachment: "+msg.Attachment))
		}
		sections = append(sections, "")
	}
	return strings.Join(sections, "\n")
}

// View renders the thread panel.
func (m Model) View() string {
	if m.viewer == nil {
		return ""
	}
	k := m.viewer.Key()

	title := "Chat · load " + k.Subject.LoadID
	if k.Kind == model.KindNegotiation {
		title = "Negotiation · bid " + k.Subject.BidID
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)

	more := ""
	if m.viewer.HasMore() {
		more = theme.DimmedStyle.Render("↑ older messages: pgup at top or ctrl+p")
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorSubtle).
		Render(strings.Repeat("─", max(min(m.width-8, 80), 1)))

	var composer string
	switch {
	case m.counter != nil:
		composer = m.counter.View()
	case m.attaching:
		composer = m.attach.View()
	default:
		composer = m.input.View()
	}

	var notes []string
	if m.replyTo != "" {
		notes = append(notes, "replying to "+m.replyTo)
	}
	if m.attachPath != "" {
		notes = append(notes, "attaching "+m.attachPath)
	}

	status := theme.DimmedStyle.Render(m.status)
	if m.statusErr {
		status = theme.ErrorStyle.Render(m.status)
	}

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render(title),
		more,
		m.viewport.View(),
		sep,
		theme.DimmedStyle.Render(strings.Join(notes, " · ")),
		composer,
		status,
	)

	return theme.PanelStyle.
		Width(max(m.width-4, 10)).
		Render(content)
}

// SetSize updates the panel dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.SetWidth(max(width-10, 10))
	m.attach.Width = max(width-16, 10)

	vpHeight := height - 14 // title, indicator, composer, status, borders
	if vpHeight < 4 {
		vpHeight = 4
	}
	m.viewport.Width = max(width-8, 10)
	m.viewport.Height = vpHeight
}

func describeError(err error) string {
	switch {
	case source.IsValidation(err):
		return err.Error()
	case source.IsAuthError(err):
		return "session rejected, sign in again"
	case source.IsTransient(err):
		return "connection problem, retrying"
	default:
		return err.Error()
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
