package threadview

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/broker-console/internal/keys"
	"github.com/nhle/broker-console/internal/model"
	"github.com/nhle/broker-console/internal/source"
	"github.com/nhle/broker-console/internal/thread"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	pages map[int]model.ThreadPage
	err   error
}

func (f *fakeFetcher) FetchChatPage(_ context.Context, _ string, page, _ int) (model.ThreadPage, error) {
	if f.err != nil {
		return model.ThreadPage{}, f.err
	}
	return f.pages[page], nil
}

func (f *fakeFetcher) FetchNegotiation(context.Context, string) (model.ThreadPage, error) {
	if f.err != nil {
		return model.ThreadPage{}, f.err
	}
	return f.pages[1], nil
}

type fakeSender struct {
	chats    []model.OutgoingChat
	counters []model.OutgoingCounter
	err      error
}

func (s *fakeSender) SendChat(_ context.Context, msg model.OutgoingChat) error {
	s.chats = append(s.chats, msg)
	return s.err
}

func (s *fakeSender) SendCounter(_ context.Context, c model.OutgoingCounter) error {
	s.counters = append(s.counters, c)
	return s.err
}

func inbound(id string, minute int) model.Message {
	return model.Message{
		ID:          id,
		SenderID:    "carrier-1",
		SenderLabel: "Carrier",
		Body:        "message " + id,
		OccurredAt:  t0.Add(time.Duration(minute) * time.Minute),
	}
}

var chatKey = thread.Key{Kind: model.KindChat, Subject: model.Subject{LoadID: "load-1"}}

func newModel(f *fakeFetcher, s *fakeSender) Model {
	return New(f, s, model.User{ID: "emp-1"}, Config{PageSize: 10}, keys.DefaultKeyMap(), nil, 100, 30)
}

func openWith(t *testing.T, m *Model, key thread.Key, first model.ThreadPage) {
	t.Helper()
	m.Open(key, "")
	gen := m.viewer.Generation()
	updated, cmd := m.Update(pageMsg{session: m.session, gen: gen, purpose: purposeInitial, page: first})
	if cmd == nil {
		t.Fatal("expected the refresh timer to be armed")
	}
	*m = updated
}

func TestRefreshStopsAfterClose(t *testing.T) {
	m := newModel(&fakeFetcher{}, &fakeSender{})
	openWith(t, &m, chatKey, model.ThreadPage{
		Items:      []model.Message{inbound("a", 1), inbound("b", 2)},
		PageNumber: 1,
		TotalPages: 1,
	})
	if got := len(m.viewer.Visible()); got != 2 {
		t.Fatalf("expected 2 messages, got %d", got)
	}

	gen := m.viewer.Generation()
	m.Close()

	_, cmd := m.Update(refreshTickMsg{session: m.session, gen: gen})
	if cmd != nil {
		t.Fatal("a closed thread must not refetch")
	}
	if _, ok := m.Key(); ok {
		t.Fatal("expected no open thread")
	}
}

func TestStaleInitialPageIgnored(t *testing.T) {
	m := newModel(&fakeFetcher{}, &fakeSender{})
	m.Open(chatKey, "")
	staleSession, stale := m.session, m.viewer.Generation()
	m.Open(thread.Key{Kind: model.KindChat, Subject: model.Subject{LoadID: "load-2"}}, "")

	m, cmd := m.Update(pageMsg{session: staleSession, gen: stale, purpose: purposeInitial, page: model.ThreadPage{
		Items: []model.Message{inbound("a", 1)}, PageNumber: 1, TotalPages: 1,
	}})
	if cmd != nil || len(m.viewer.Visible()) != 0 {
		t.Fatal("a page for the previous thread must be dropped")
	}
}

func TestFetchTreatsNotFoundAsEmptyThread(t *testing.T) {
	m := newModel(&fakeFetcher{err: fmt.Errorf("GET /chat: %w", source.ErrNotFound)}, &fakeSender{})
	msg := m.fetch(thread.Request{Generation: 3, Key: chatKey, Page: 1, Limit: 10}, purposeInitial)().(pageMsg)

	if msg.err != nil || len(msg.page.Items) != 0 || msg.gen != 3 {
		t.Fatalf("unexpected result %+v", msg)
	}
}

func TestSendChatThenReconcile(t *testing.T) {
	f := &fakeFetcher{pages: map[int]model.ThreadPage{}}
	s := &fakeSender{}
	m := newModel(f, s)
	openWith(t, &m, chatKey, model.ThreadPage{
		Items: []model.Message{inbound("a", 1)}, PageNumber: 1, TotalPages: 1,
	})

	m.input.SetValue("on my way")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a send command")
	}
	if m.viewer.Pending() != 1 || m.input.Value() != "" {
		t.Fatal("expected an optimistic entry and a cleared composer")
	}

	result := cmd().(sendResultMsg)
	if len(s.chats) != 1 || s.chats[0].ReceiverID != "carrier-1" || s.chats[0].Body != "on my way" {
		t.Fatalf("unexpected outgoing chat %+v", s.chats)
	}

	m, cmd = m.Update(result)
	if cmd == nil {
		t.Fatal("expected a reconcile timer")
	}
	if m.viewer.Pending() != 1 {
		t.Fatal("confirmed entry stays until the next refresh")
	}

	mine := model.Message{ID: "srv-1", SenderID: "emp-1", IsMine: true, Body: "on my way", OccurredAt: t0.Add(5 * time.Minute)}
	f.pages[1] = model.ThreadPage{Items: []model.Message{inbound("a", 1), mine}, PageNumber: 1, TotalPages: 1}

	m, cmd = m.Update(reconcileMsg{session: m.session, gen: m.viewer.Generation()})
	if cmd == nil {
		t.Fatal("expected a reconcile fetch")
	}
	m, _ = m.Update(cmd())

	if m.viewer.Pending() != 0 {
		t.Fatal("reconcile should replace the optimistic entry")
	}
	if got := len(m.viewer.Visible()); got != 2 {
		t.Fatalf("expected 2 messages, got %d", got)
	}
}

func TestFailedSendRollsBack(t *testing.T) {
	s := &fakeSender{err: errors.New("boom")}
	m := newModel(&fakeFetcher{}, s)
	openWith(t, &m, chatKey, model.ThreadPage{
		Items: []model.Message{inbound("a", 1)}, PageNumber: 1, TotalPages: 1,
	})

	m.input.SetValue("hello")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = m.Update(cmd())

	if m.viewer.Pending() != 0 {
		t.Fatal("failed send should remove the optimistic entry")
	}
	if !m.statusErr {
		t.Fatal("expected an error status")
	}
}

func TestEmptyChatWithoutRecipientIsRejected(t *testing.T) {
	s := &fakeSender{}
	m := newModel(&fakeFetcher{}, s)
	openWith(t, &m, chatKey, model.ThreadPage{PageNumber: 1, TotalPages: 1})

	m.input.SetValue("hello")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || m.viewer.Pending() != 0 {
		t.Fatal("send without a recipient must not be attempted")
	}
	if !m.statusErr {
		t.Fatal("expected a validation message")
	}
}

func TestNegotiationEnterOpensCounterForm(t *testing.T) {
	m := newModel(&fakeFetcher{}, &fakeSender{})
	key := thread.Key{Kind: model.KindNegotiation, Subject: model.Subject{LoadID: "load-1", BidID: "bid-1"}}
	openWith(t, &m, key, model.ThreadPage{PageNumber: 1, TotalPages: 1})

	m.input.SetValue("best we can do")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if m.counter == nil {
		t.Fatal("expected the counter-offer form")
	}
	if m.counterVals.message != "best we can do" {
		t.Fatalf("expected composer text carried over, got %q", m.counterVals.message)
	}
}

func TestLoadOlderKeepsContentInPlace(t *testing.T) {
	older := model.ThreadPage{PageNumber: 2, TotalPages: 2}
	for i := 0; i < 3; i++ {
		older.Items = append(older.Items, inbound(fmt.Sprintf("old-%d", i), i))
	}
	f := &fakeFetcher{pages: map[int]model.ThreadPage{2: older}}
	m := newModel(f, &fakeSender{})

	first := model.ThreadPage{PageNumber: 1, TotalPages: 2}
	for i := 0; i < 10; i++ {
		first.Items = append(first.Items, inbound(fmt.Sprintf("new-%d", i), 10+i))
	}
	openWith(t, &m, chatKey, first)

	m.viewport.SetYOffset(0)
	before := m.viewport.TotalLineCount()

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyPgUp})
	if cmd == nil {
		t.Fatal("expected an older-page fetch at the top")
	}
	m, _ = m.Update(cmd())

	after := m.viewport.TotalLineCount()
	if after <= before {
		t.Fatalf("expected content to grow, %d -> %d", before, after)
	}
	if m.viewport.YOffset != after-before {
		t.Fatalf("expected offset %d, got %d", after-before, m.viewport.YOffset)
	}
	if m.viewer.HasMore() {
		t.Fatal("all pages are loaded")
	}
}

func TestRefreshWhileLoadingOlderKeepsContentInPlace(t *testing.T) {
	older := model.ThreadPage{PageNumber: 2, TotalPages: 2}
	for i := 0; i < 3; i++ {
		older.Items = append(older.Items, inbound(fmt.Sprintf("old-%d", i), i))
	}
	f := &fakeFetcher{pages: map[int]model.ThreadPage{2: older}}
	m := newModel(f, &fakeSender{})

	first := model.ThreadPage{PageNumber: 1, TotalPages: 2}
	for i := 0; i < 10; i++ {
		first.Items = append(first.Items, inbound(fmt.Sprintf("new-%d", i), 10+i))
	}
	openWith(t, &m, chatKey, first)
	m.viewport.SetYOffset(0)

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyPgUp})
	if cmd == nil {
		t.Fatal("expected an older-page fetch at the top")
	}

	// A live refresh lands before the older page does.
	live := first
	live.Items = append(append([]model.Message{}, first.Items...), inbound("new-10", 20), inbound("new-11", 21))
	m, _ = m.Update(pageMsg{session: m.session, gen: m.viewer.Generation(), purpose: purposeRefresh, page: live})
	if m.viewport.YOffset != 0 {
		t.Fatalf("expected the refresh to keep the top in view, got %d", m.viewport.YOffset)
	}
	mid := m.viewport.TotalLineCount()

	m, _ = m.Update(cmd())

	after := m.viewport.TotalLineCount()
	if m.viewport.YOffset != after-mid {
		t.Fatalf("expected offset %d, got %d", after-mid, m.viewport.YOffset)
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1850", 1850, true},
		{"$1,850.50", 1850.5, true},
		{"0", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, err := parseRate(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("parseRate(%q) = %v, %v", tt.in, got, err)
		}
	}
}
