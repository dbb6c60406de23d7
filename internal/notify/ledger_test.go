package notify

import (
	"fmt"
	"testing"

	"github.com/nhle/broker-console/internal/model"
)

func TestLedgerKindsAreIndependent(t *testing.T) {
	l := NewLedger(0)
	l.Add(model.KindChat, "x")

	if !l.Has(model.KindChat, "x") {
		t.Fatal("expected chat id to be recorded")
	}
	if l.Has(model.KindNegotiation, "x") {
		t.Fatal("negotiation set must not see chat ids")
	}

	l.Remove(model.KindChat, "x")
	if l.Has(model.KindChat, "x") {
		t.Fatal("expected removed id to be forgotten")
	}
}

func TestLedgerBoundedEvictsOldestUnpinned(t *testing.T) {
	l := NewLedger(3)
	l.Pin(model.KindChat, "pinned")
	for i := range 5 {
		l.Add(model.KindChat, fmt.Sprintf("id-%d", i))
	}

	if !l.Has(model.KindChat, "pinned") {
		t.Fatal("pinned id must never be evicted")
	}
	if l.Has(model.KindChat, "id-0") || l.Has(model.KindChat, "id-1") {
		t.Fatal("expected oldest unpinned ids to be evicted")
	}
	for _, id := range []string{"id-2", "id-3", "id-4"} {
		if !l.Has(model.KindChat, id) {
			t.Fatalf("expected %s to be kept", id)
		}
	}
	if got := l.Len(model.KindChat); got != 4 {
		t.Fatalf("expected 4 ids, got %d", got)
	}
}

func TestLedgerUnpinKeepsIDProcessed(t *testing.T) {
	l := NewLedger(10)
	l.Pin(model.KindNegotiation, "n-1")
	l.Unpin(model.KindNegotiation, "n-1")

	if !l.Has(model.KindNegotiation, "n-1") {
		t.Fatal("unpinned id must stay processed")
	}
}

func TestLedgerLookupRefreshesRecency(t *testing.T) {
	l := NewLedger(2)
	l.Add(model.KindChat, "quiet")
	l.Add(model.KindChat, "busy-1")

	if !l.Has(model.KindChat, "quiet") {
		t.Fatal("expected quiet id to be recorded")
	}
	l.Add(model.KindChat, "busy-2")

	if !l.Has(model.KindChat, "quiet") {
		t.Fatal("an id seen since the last add must not be evicted")
	}
	if l.Has(model.KindChat, "busy-1") {
		t.Fatal("expected the least recently seen id to be evicted")
	}
}
