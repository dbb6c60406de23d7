// Package thread holds the state of one open conversation: the pages
// loaded so far, backward pagination, and optimistic sends.
package thread

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/broker-console/internal/model"
	"github.com/nhle/broker-console/internal/source"
)

// DefaultPageSize is the number of messages requested per page.
const DefaultPageSize = 50

// State is the lifecycle of a Viewer.
type State int

const (
	Idle State = iota
	Loading
	Ready
	LoadingMore
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case LoadingMore:
		return "loading-more"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Key identifies a thread.
type Key struct {
	Kind    model.Kind
	Subject model.Subject
}

// Valid reports whether the key names a fetchable thread.
func (k Key) Valid() bool {
	switch k.Kind {
	case model.KindChat:
		return k.Subject.HasLoad()
	case model.KindNegotiation:
		return k.Subject.HasBid()
	default:
		return false
	}
}

// Request is a page fetch the caller should perform. Its result must be
// applied with the same Generation.
type Request struct {
	Generation int
	Key        Key
	Page       int
	Limit      int
}

// Anchor captures the viewport geometry before older content is
// prepended.
type Anchor struct {
	ScrollHeight int
	ScrollTop    int
}

// Restore returns the scroll offset that keeps the same content in view
// after the total height grew to newHeight.
func (a Anchor) Restore(newHeight int) int {
	delta := newHeight - a.ScrollHeight
	if delta < 0 {
		delta = 0
	}
	return a.ScrollTop + delta
}

// Draft is what the user typed in the composer.
type Draft struct {
	Body        string
	ReplyTo     string
	Recipient   string
	FilePath    string
	CounterRate *float64
}

// Outbound is the request produced by Send. Exactly one of Chat and
// Counter is set.
type Outbound struct {
	TempID  string
	Chat    *model.OutgoingChat
	Counter *model.OutgoingCounter
}

type pendingSend struct {
	msg  model.Message
	sent bool
}

// Viewer is the state machine of one open thread. It is owned by a single
// surface and is not safe for concurrent use.
type Viewer struct {
	key        Key
	user       model.User
	pageSize   int
	state      State
	generation int

	pages      map[int]model.ThreadPage
	oldest     int
	totalPages int
	anchor     Anchor
	lastErr    error

	recipientHint string
	pending       []pendingSend

	now   func() time.Time
	newID func() string
}

// NewViewer creates an idle viewer for key.
func NewViewer(key Key, user model.User, pageSize int) *Viewer {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Viewer{
		key:      key,
		user:     user,
		pageSize: pageSize,
		pages:    make(map[int]model.ThreadPage),
		now:      time.Now,
		newID:    func() string { return "tmp-" + uuid.NewString() },
	}
}

// SetRecipientHint sets the chat recipient used when the thread itself
// does not reveal one, typically the sender of the notification that
// opened it.
func (v *Viewer) SetRecipientHint(id string) {
	v.recipientHint = strings.TrimSpace(id)
}

func (v *Viewer) Key() Key { return v.key }
func (v *Viewer) State() State { return v.state }
func (v *Viewer) Generation() int { return v.generation }
func (v *Viewer) LastError() error { return v.lastErr }
func (v *Viewer) TotalPages() int { return v.totalPages }
func (v *Viewer) OldestPage() int { return v.oldest }

// HasMore reports whether older pages remain on the server.
func (v *Viewer) HasMore() bool {
	return v.oldest > 0 && v.oldest < v.totalPages
}

// Open resets the viewer and returns the request for the newest page.
func (v *Viewer) Open() (Request, error) {
	if !v.key.Valid() {
		return Request{}, &source.ValidationError{Field: "thread", Message: "no load or bid to open"}
	}
	v.generation++
	v.state = Loading
	v.pages = make(map[int]model.ThreadPage)
	v.oldest = 0
	v.totalPages = 0
	v.lastErr = nil
	v.pending = nil
	return v.request(1), nil
}

// RefreshRequest returns the request that re-reads the live page. It
// reports false while the thread is not showing content.
func (v *Viewer) RefreshRequest() (Request, bool) {
	if v.state != Ready && v.state != LoadingMore {
		return Request{}, false
	}
	return v.request(1), true
}

func (v *Viewer) request(page int) Request {
	return Request{Generation: v.generation, Key: v.key, Page: page, Limit: v.pageSize}
}

func (v *Viewer) current(gen int) bool {
	return gen == v.generation && v.state != Closed && v.state != Idle
}

// ApplyInitial stores the first page. Stale results are dropped and
// reported as false.
func (v *Viewer) ApplyInitial(gen int, page model.ThreadPage) bool {
	if !v.current(gen) || v.state != Loading {
		return false
	}
	v.storeLive(page)
	v.oldest = 1
	v.state = Ready
	v.lastErr = nil
	return true
}

// ApplyRefresh replaces only the live page. Older pages stay as loaded.
// Optimistic entries whose send succeeded are superseded by the server
// copy; those still in flight are kept.
func (v *Viewer) ApplyRefresh(gen int, page model.ThreadPage) bool {
	if !v.current(gen) || (v.state != Ready && v.state != LoadingMore) {
		return false
	}
	v.storeLive(page)
	v.lastErr = nil

	kept := v.pending[:0]
	for _, p := range v.pending {
		if !p.sent {
			kept = append(kept, p)
		}
	}
	v.pending = kept
	return true
}

func (v *Viewer) storeLive(page model.ThreadPage) {
	page.PageNumber = 1
	v.pages[1] = page
	if page.TotalPages > 0 {
		v.totalPages = page.TotalPages
	} else if v.totalPages < 1 {
		v.totalPages = 1
	}
}

// ApplyError records a failed fetch. A failed initial load leaves an
// empty ready thread; a failed older page returns to Ready.
func (v *Viewer) ApplyError(gen int, err error) bool {
	if !v.current(gen) {
		return false
	}
	v.lastErr = err
	switch v.state {
	case Loading:
		v.state = Ready
		if v.totalPages < 1 {
			v.totalPages = 1
		}
	case LoadingMore:
		v.state = Ready
	}
	return true
}

// BeginLoadMore captures anchor and returns the request for the next
// older page. It reports false when nothing older exists or a load is
// already running.
func (v *Viewer) BeginLoadMore(anchor Anchor) (Request, bool) {
	if v.state != Ready || !v.HasMore() {
		return Request{}, false
	}
	v.state = LoadingMore
	v.anchor = anchor
	return v.request(v.oldest + 1), true
}

// ShiftAnchor moves the captured anchor by delta lines. Callers use it when
// a refresh changes the content height while an older page is loading, so
// the restore measures only what the older page added.
func (v *Viewer) ShiftAnchor(delta int) {
	if v.state != LoadingMore {
		return
	}
	v.anchor.ScrollHeight += delta
}

// ApplyOlder prepends an older page and returns the anchor captured by
// BeginLoadMore so the caller can restore the scroll position.
func (v *Viewer) ApplyOlder(gen int, page model.ThreadPage) (Anchor, bool) {
	if !v.current(gen) || v.state != LoadingMore {
		return Anchor{}, false
	}
	number := page.PageNumber
	if number <= v.oldest {
		number = v.oldest + 1
	}
	page.PageNumber = number
	v.pages[number] = page
	v.oldest = number
	if page.TotalPages > 0 {
		v.totalPages = page.TotalPages
	}
	v.state = Ready
	v.lastErr = nil
	return v.anchor, true
}

// Visible returns the thread oldest first. Ids that shifted across page
// boundaries appear once with their freshest copy. Ties keep the server's
// order. Pending optimistic entries come last.
func (v *Viewer) Visible() []model.Message {
	var out []model.Message
	index := make(map[string]int)
	for n := v.oldest; n >= 1; n-- {
		page, ok := v.pages[n]
		if !ok {
			continue
		}
		for _, m := range page.Items {
			if i, dup := index[m.ID]; dup && m.ID != "" {
				out[i] = m
				continue
			}
			index[m.ID] = len(out)
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	for _, p := range v.pending {
		out = append(out, p.msg)
	}
	return out
}

// ResolveReply returns the message quoted by msg, either embedded or
// looked up by id among the loaded messages. It returns nil when the
// quote cannot be resolved.
func (v *Viewer) ResolveReply(msg model.Message) *model.Message {
	if msg.ReplyTo == nil {
		return nil
	}
	if msg.ReplyTo.Message != nil {
		return msg.ReplyTo.Message
	}
	if msg.ReplyTo.ID == "" {
		return nil
	}
	for _, m := range v.Visible() {
		if m.ID == msg.ReplyTo.ID {
			found := m
			return &found
		}
	}
	return nil
}

// Recipient resolves the chat recipient: the most recent inbound sender
// in the loaded thread, then the hint.
func (v *Viewer) Recipient() string {
	visible := v.Visible()
	for i := len(visible) - 1; i >= 0; i-- {
		m := visible[i]
		if m.IsMine || m.IsOptimistic || m.SenderID == "" || m.SenderID == v.user.ID {
			continue
		}
		return m.SenderID
	}
	return v.recipientHint
}

// Send validates the draft, appends a provisional message and returns the
// request to perform. Nothing is appended when validation fails.
func (v *Viewer) Send(d Draft) (Outbound, error) {
	if v.state == Closed || v.state == Idle {
		return Outbound{}, &source.ValidationError{Field: "thread", Message: "thread is not open"}
	}
	if !v.key.Valid() {
		return Outbound{}, &source.ValidationError{Field: "thread", Message: "no load or bid selected"}
	}
	body := strings.TrimSpace(d.Body)

	var out Outbound
	msg := model.Message{
		SenderID:     v.user.ID,
		SenderLabel:  "You",
		Body:         body,
		OccurredAt:   v.now(),
		IsMine:       true,
		IsOptimistic: true,
	}

	switch v.key.Kind {
	case model.KindChat:
		if body == "" && d.FilePath == "" {
			return Outbound{}, &source.ValidationError{Field: "message", Message: "message is empty"}
		}
		recipient := strings.TrimSpace(d.Recipient)
		if recipient == "" {
			recipient = v.Recipient()
		}
		if recipient == "" {
			return Outbound{}, &source.ValidationError{Field: "receiverId", Message: "no recipient in this thread yet"}
		}
		out.Chat = &model.OutgoingChat{
			LoadID:     v.key.Subject.LoadID,
			ReceiverID: recipient,
			Body:       body,
			ReplyTo:    strings.TrimSpace(d.ReplyTo),
			FilePath:   d.FilePath,
		}
		if out.Chat.ReplyTo != "" {
			msg.ReplyTo = &model.ReplyRef{ID: out.Chat.ReplyTo}
		}
		if d.FilePath != "" {
			msg.Attachment = d.FilePath
		}
	case model.KindNegotiation:
		if d.CounterRate == nil || *d.CounterRate <= 0 {
			return Outbound{}, &source.ValidationError{Field: "counterRate", Message: "counter rate must be positive"}
		}
		rate := *d.CounterRate
		out.Counter = &model.OutgoingCounter{
			BidID:       v.key.Subject.BidID,
			CounterRate: rate,
			Body:        body,
		}
		msg.CounterRate = &rate
		msg.SenderID = model.ActorInhouse
	}

	msg.ID = v.newID()
	out.TempID = msg.ID
	v.pending = append(v.pending, pendingSend{msg: msg})
	return out, nil
}

// ConfirmSend marks a provisional message as accepted by the server. It
// stays visible until the next refresh replaces it.
func (v *Viewer) ConfirmSend(tempID string) bool {
	for i := range v.pending {
		if v.pending[i].msg.ID == tempID {
			v.pending[i].sent = true
			return true
		}
	}
	return false
}

// FailSend removes a provisional message after a rejected send.
func (v *Viewer) FailSend(tempID string) bool {
	for i, p := range v.pending {
		if p.msg.ID == tempID {
			v.pending = append(v.pending[:i], v.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Pending returns the number of provisional messages.
func (v *Viewer) Pending() int {
	return len(v.pending)
}

// Close stops the viewer. Results still in flight are discarded.
func (v *Viewer) Close() {
	v.state = Closed
	v.generation++
	v.pending = nil
}
