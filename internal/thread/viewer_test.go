package thread

import (
	"fmt"
	"testing"
	"time"

	"github.com/nhle/broker-console/internal/model"
	"github.com/nhle/broker-console/internal/source"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func msg(id string, minute int, sender string) model.Message {
	return model.Message{
		ID:         id,
		SenderID:   sender,
		Body:       id,
		OccurredAt: t0.Add(time.Duration(minute) * time.Minute),
	}
}

func page(number, total int, items ...model.Message) model.ThreadPage {
	return model.ThreadPage{Items: items, PageNumber: number, TotalPages: total}
}

func ids(ms []model.Message) string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return fmt.Sprint(out)
}

func openChat(t *testing.T) (*Viewer, Request) {
	t.Helper()
	v := NewViewer(Key{Kind: model.KindChat, Subject: model.Subject{LoadID: "load-1"}}, model.User{ID: "emp-1"}, 0)
	seq := 0
	v.newID = func() string {
		seq++
		return fmt.Sprintf("tmp-%d", seq)
	}
	v.now = func() time.Time { return t0.Add(time.Hour) }
	req, err := v.Open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return v, req
}

func TestOpenRequestsFirstPage(t *testing.T) {
	v, req := openChat(t)
	if req.Page != 1 || req.Limit != DefaultPageSize {
		t.Fatalf("unexpected request %+v", req)
	}
	if v.State() != Loading {
		t.Fatalf("expected loading, got %s", v.State())
	}
}

func TestOpenRejectsMissingSubject(t *testing.T) {
	v := NewViewer(Key{Kind: model.KindNegotiation, Subject: model.Subject{LoadID: "load-1"}}, model.User{}, 0)
	if _, err := v.Open(); !source.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadOlderPrependsAndRestoresAnchor(t *testing.T) {
	v, req := openChat(t)
	v.ApplyInitial(req.Generation, page(1, 2, msg("m3", 3, "c"), msg("m4", 4, "c")))

	if !v.HasMore() {
		t.Fatal("expected older pages")
	}
	more, ok := v.BeginLoadMore(Anchor{ScrollHeight: 100, ScrollTop: 0})
	if !ok || more.Page != 2 {
		t.Fatalf("expected request for page 2, got %+v %v", more, ok)
	}
	if _, again := v.BeginLoadMore(Anchor{}); again {
		t.Fatal("a second load-more must wait for the first")
	}

	anchor, ok := v.ApplyOlder(more.Generation, page(2, 2, msg("m1", 1, "c"), msg("m2", 2, "c")))
	if !ok {
		t.Fatal("expected older page to apply")
	}
	if got := anchor.Restore(160); got != 60 {
		t.Fatalf("expected restored offset 60, got %d", got)
	}
	if got := ids(v.Visible()); got != "[m1 m2 m3 m4]" {
		t.Fatalf("unexpected order %s", got)
	}
	if v.HasMore() {
		t.Fatal("expected no more pages")
	}
}

func TestRefreshDuringLoadMoreShiftsAnchor(t *testing.T) {
	v, req := openChat(t)
	v.ApplyInitial(req.Generation, page(1, 2, msg("m3", 3, "c"), msg("m4", 4, "c")))
	more, _ := v.BeginLoadMore(Anchor{ScrollHeight: 100, ScrollTop: 0})

	refresh, _ := v.RefreshRequest()
	if !v.ApplyRefresh(refresh.Generation, page(1, 2, msg("m3", 3, "c"), msg("m4", 4, "c"), msg("m5", 5, "c"))) {
		t.Fatal("expected refresh to apply while loading more")
	}
	v.ShiftAnchor(20)

	anchor, ok := v.ApplyOlder(more.Generation, page(2, 2, msg("m1", 1, "c"), msg("m2", 2, "c")))
	if !ok {
		t.Fatal("expected older page to apply")
	}
	// 100 lines before, 20 from the refresh, 60 from the older page.
	if got := anchor.Restore(180); got != 60 {
		t.Fatalf("expected restored offset 60, got %d", got)
	}
}

func TestShiftAnchorIgnoredOutsideLoadMore(t *testing.T) {
	v, req := openChat(t)
	v.ApplyInitial(req.Generation, page(1, 2, msg("m3", 3, "c"), msg("m4", 4, "c")))
	v.ShiftAnchor(40)

	more, _ := v.BeginLoadMore(Anchor{ScrollHeight: 100, ScrollTop: 0})
	anchor, _ := v.ApplyOlder(more.Generation, page(2, 2, msg("m1", 1, "c")))
	if anchor.ScrollHeight != 100 {
		t.Fatalf("expected the anchor as captured, got %+v", anchor)
	}
}

func TestRefreshReplacesOnlyLivePage(t *testing.T) {
	v, req := openChat(t)
	v.ApplyInitial(req.Generation, page(1, 2, msg("m3", 3, "c"), msg("m4", 4, "c")))
	more, _ := v.BeginLoadMore(Anchor{})
	v.ApplyOlder(more.Generation, page(2, 2, msg("m1", 1, "c"), msg("m2", 2, "c")))

	// m3 shifted to page 2 on the server; page 1 now overlaps nothing old.
	refresh, ok := v.RefreshRequest()
	if !ok {
		t.Fatal("expected refresh request")
	}
	v.ApplyRefresh(refresh.Generation, page(1, 2, msg("m3", 3, "c"), msg("m4", 4, "c"), msg("m5", 5, "c")))

	if got := ids(v.Visible()); got != "[m1 m2 m3 m4 m5]" {
		t.Fatalf("unexpected order %s", got)
	}
}

func TestVisibleDedupesShiftedIDs(t *testing.T) {
	v, req := openChat(t)
	v.ApplyInitial(req.Generation, page(1, 2, msg("m2", 2, "c"), msg("m3", 3, "c")))
	more, _ := v.BeginLoadMore(Anchor{})
	v.ApplyOlder(more.Generation, page(2, 2, msg("m1", 1, "c"), msg("m2", 2, "c")))

	if got := ids(v.Visible()); got != "[m1 m2 m3]" {
		t.Fatalf("expected shifted id once, got %s", got)
	}
}

func TestVisibleKeepsServerOrderOnTies(t *testing.T) {
	v, req := openChat(t)
	v.ApplyInitial(req.Generation, page(1, 1, msg("b", 1, "c"), msg("a", 1, "c"), msg("c", 0, "c")))

	if got := ids(v.Visible()); got != "[c b a]" {
		t.Fatalf("expected stable ordering, got %s", got)
	}
}

func TestOptimisticSendReconciles(t *testing.T) {
	v, req := openChat(t)
	v.ApplyInitial(req.Generation, page(1, 1, msg("m1", 1, "carrier-9")))

	out, err := v.Send(Draft{Body: "  on my way  ", ReplyTo: "m1"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if out.Chat == nil || out.Chat.ReceiverID != "carrier-9" || out.Chat.Body != "on my way" {
		t.Fatalf("unexpected outbound %+v", out.Chat)
	}
	visible := v.Visible()
	last := visible[len(visible)-1]
	if !last.IsOptimistic || last.ID != out.TempID {
		t.Fatalf("expected provisional message last, got %+v", last)
	}
	if quoted := v.ResolveReply(last); quoted == nil || quoted.ID != "m1" {
		t.Fatalf("expected reply to resolve to m1, got %v", quoted)
	}

	// A refresh before the send completes keeps the provisional entry.
	refresh, _ := v.RefreshRequest()
	v.ApplyRefresh(refresh.Generation, page(1, 1, msg("m1", 1, "carrier-9")))
	if v.Pending() != 1 {
		t.Fatal("in-flight send must survive a refresh")
	}

	v.ConfirmSend(out.TempID)
	v.ApplyRefresh(refresh.Generation, page(1, 1, msg("m1", 1, "carrier-9"), msg("srv-1", 61, "emp-1")))
	if got := ids(v.Visible()); got != "[m1 srv-1]" {
		t.Fatalf("expected server copy to supersede, got %s", got)
	}
}

func TestFailedSendRollsBack(t *testing.T) {
	v, req := openChat(t)
	v.ApplyInitial(req.Generation, page(1, 1, msg("m1", 1, "carrier-9")))

	out, err := v.Send(Draft{Body: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !v.FailSend(out.TempID) {
		t.Fatal("expected provisional entry to be removed")
	}
	if got := ids(v.Visible()); got != "[m1]" {
		t.Fatalf("unexpected visible %s", got)
	}
}

func TestSendValidation(t *testing.T) {
	v, req := openChat(t)
	v.ApplyInitial(req.Generation, page(1, 1))

	if _, err := v.Send(Draft{Body: "   "}); !source.IsValidation(err) {
		t.Fatalf("expected empty body to be rejected, got %v", err)
	}
	if _, err := v.Send(Draft{Body: "hi"}); !source.IsValidation(err) {
		t.Fatalf("expected missing recipient to be rejected, got %v", err)
	}
	if v.Pending() != 0 {
		t.Fatal("rejected drafts must not be appended")
	}

	v.SetRecipientHint("carrier-2")
	out, err := v.Send(Draft{Body: "hi"})
	if err != nil || out.Chat.ReceiverID != "carrier-2" {
		t.Fatalf("expected hint recipient, got %+v %v", out.Chat, err)
	}
}

func TestNegotiationCounter(t *testing.T) {
	v := NewViewer(Key{Kind: model.KindNegotiation, Subject: model.Subject{LoadID: "l", BidID: "bid-1"}}, model.User{ID: "emp-1"}, 0)
	req, _ := v.Open()
	v.ApplyInitial(req.Generation, page(1, 1))

	if _, err := v.Send(Draft{Body: "lower please"}); !source.IsValidation(err) {
		t.Fatalf("expected missing rate to be rejected, got %v", err)
	}
	rate := 1850.0
	out, err := v.Send(Draft{Body: "meet halfway", CounterRate: &rate})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if out.Counter == nil || out.Counter.BidID != "bid-1" || out.Counter.CounterRate != rate {
		t.Fatalf("unexpected counter %+v", out.Counter)
	}
}

func TestStaleResultsAreDiscarded(t *testing.T) {
	v, first := openChat(t)
	second, _ := v.Open()

	if v.ApplyInitial(first.Generation, page(1, 1, msg("old", 1, "c"))) {
		t.Fatal("result of a superseded open must be dropped")
	}
	if !v.ApplyInitial(second.Generation, page(1, 1, msg("new", 1, "c"))) {
		t.Fatal("expected current result to apply")
	}

	refresh, _ := v.RefreshRequest()
	v.Close()
	if v.ApplyRefresh(refresh.Generation, page(1, 1)) {
		t.Fatal("closed viewer must discard in-flight results")
	}
	if v.State() != Closed {
		t.Fatalf("expected closed, got %s", v.State())
	}
}

func TestResolveReplyUnresolved(t *testing.T) {
	v, req := openChat(t)
	v.ApplyInitial(req.Generation, page(1, 1, msg("m1", 1, "c")))

	orphan := model.Message{ID: "m2", ReplyTo: &model.ReplyRef{ID: "gone"}}
	if v.ResolveReply(orphan) != nil {
		t.Fatal("unresolved reply must degrade to nil")
	}
	embedded := model.Message{ReplyTo: &model.ReplyRef{ID: "x", Message: &model.Message{ID: "x"}}}
	if got := v.ResolveReply(embedded); got == nil || got.ID != "x" {
		t.Fatal("embedded reply must resolve without lookup")
	}
}

func TestInitialLoadFailure(t *testing.T) {
	v, req := openChat(t)
	if !v.ApplyError(req.Generation, &source.HTTPError{StatusCode: 500}) {
		t.Fatal("expected error to apply")
	}
	if v.State() != Ready || v.LastError() == nil {
		t.Fatalf("expected ready with error, got %s %v", v.State(), v.LastError())
	}
}
