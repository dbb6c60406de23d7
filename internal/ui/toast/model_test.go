package toast

import (
	"strings"
	"testing"
	"time"

	"github.com/nhle/broker-console/internal/model"
)

func TestPushAndExpire(t *testing.T) {
	m := New(time.Second)
	m.Push([]model.Notification{
		{ID: "a", Kind: model.KindChat, SenderLabel: "Acme", Body: "hi", Subject: model.Subject{LoadID: "L1"}},
		{ID: "b", Kind: model.KindChat, SenderLabel: "Acme", Body: "there", Subject: model.Subject{LoadID: "L1"}},
	})
	if m.Len() != 2 {
		t.Fatalf("expected 2 toasts, got %d", m.Len())
	}

	m, _ = m.Update(ExpireMsg{Seq: 1})
	if m.Len() != 1 {
		t.Fatalf("expected 1 toast after expiry, got %d", m.Len())
	}
	if !strings.Contains(m.View(), "there") {
		t.Fatal("expected the remaining toast to render")
	}
}

func TestDescribeCounter(t *testing.T) {
	rate := 1200.0
	got := Describe(model.Notification{
		Kind:        model.KindNegotiation,
		SenderLabel: "Carrier",
		CounterRate: &rate,
		Subject:     model.Subject{BidID: "bid-9"},
	})
	if got != "Carrier countered $1200.00 on bid bid-9" {
		t.Fatalf("unexpected description %q", got)
	}
}
