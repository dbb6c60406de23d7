package events

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/broker-console/internal/model"
)

func TestBroadcasterDeliversToListener(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := b.Listen(ctx)
	defer cleanup()

	n := model.Notification{
		ID:      "n-1",
		Kind:    model.KindNegotiation,
		Subject: model.Subject{LoadID: "load-1", BidID: "bid-1"},
	}
	if !b.Emit(OpenFor(n)) {
		t.Fatal("expected a listener to take the event")
	}

	select {
	case ev := <-stream:
		if ev.Type != OpenNegotiation {
			t.Fatalf("expected %s, got %s", OpenNegotiation, ev.Type)
		}
		if ev.Subject.BidID != "bid-1" {
			t.Fatalf("expected bid-1, got %q", ev.Subject.BidID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event within deadline")
	}
}

func TestBroadcasterOnlyNewestListenerActs(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	older, olderCleanup := b.Listen(ctx)
	defer olderCleanup()
	newer, newerCleanup := b.Listen(ctx)

	b.Emit(OpenFor(model.Notification{ID: "c-1", Kind: model.KindChat}))

	select {
	case ev := <-newer:
		if ev.Type != OpenChat {
			t.Fatalf("expected %s, got %s", OpenChat, ev.Type)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected newest listener to receive the event")
	}
	select {
	case <-older:
		t.Fatal("older listener must not act while a newer one is live")
	case <-time.After(100 * time.Millisecond):
	}

	newerCleanup()
	b.Emit(OpenFor(model.Notification{ID: "c-2", Kind: model.KindChat}))

	select {
	case ev := <-older:
		if ev.Notification.ID != "c-2" {
			t.Fatalf("expected c-2, got %s", ev.Notification.ID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected older listener to take over")
	}
}

func TestBroadcasterWithoutListener(t *testing.T) {
	b := NewBroadcaster()
	if b.Emit(OpenFor(model.Notification{ID: "c-1", Kind: model.KindChat})) {
		t.Fatal("expected emit without listeners to report false")
	}
}

func TestBroadcasterDropsListenerOnContextEnd(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	b.Listen(ctx)
	cancel()

	deadline := time.Now().Add(time.Second)
	for b.Listeners() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected listener to be removed after context end")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBroadcasterClosesStreamOnCleanup(t *testing.T) {
	b := NewBroadcaster()
	stream, cleanup := b.Listen(context.Background())
	if !b.Emit(OpenFor(model.Notification{ID: "m1", Kind: model.KindChat})) {
		t.Fatal("expected the live listener to take the event")
	}
	cleanup()
	cleanup()

	if ev, ok := <-stream; !ok || ev.Notification.ID != "m1" {
		t.Fatalf("expected the buffered event before close, got %+v %v", ev, ok)
	}
	select {
	case _, ok := <-stream:
		if ok {
			t.Fatal("expected the stream to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("stream was never closed")
	}
	if b.Emit(OpenFor(model.Notification{ID: "m2"})) {
		t.Fatal("emit after cleanup must report no listener")
	}
}
