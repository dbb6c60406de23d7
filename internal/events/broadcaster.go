// Package events carries "open this thread" signals from the notification
// feed to whichever surface currently shows threads.
package events

import (
	"context"
	"sync"

	"github.com/nhle/broker-console/internal/model"
)

// Type identifies what a listener is asked to open.
type Type string

const (
	OpenChat        Type = "open-chat"
	OpenNegotiation Type = "open-negotiation"
)

// Event asks the listener to open the thread of Subject.
type Event struct {
	Type         Type
	Subject      model.Subject
	Notification model.Notification
}

// OpenFor builds the open event for a notification.
func OpenFor(n model.Notification) Event {
	t := OpenChat
	if n.Kind == model.KindNegotiation {
		t = OpenNegotiation
	}
	return Event{Type: t, Subject: n.Subject, Notification: n}
}

// Broadcaster delivers events to the most recently registered live
// listener only, so exactly one surface acts on each event. It is created
// per session and passed to its users.
type Broadcaster struct {
	mu         sync.Mutex
	listeners  []*listener
	nextID     int64
	bufferSize int
}

type listener struct {
	id     int64
	stream chan Event
}

// NewBroadcaster creates a broadcaster with small per-listener buffers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{bufferSize: 4}
}

// Listen registers a listener that stays live until ctx ends or the
// returned cleanup runs, at which point its stream is closed. A newer
// listener shadows older ones; once it goes away the previous one receives
// events again.
func (b *Broadcaster) Listen(ctx context.Context) (<-chan Event, func()) {
	b.mu.Lock()
	b.nextID++
	l := &listener{
		id:     b.nextID,
		stream: make(chan Event, b.bufferSize),
	}
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() { b.unregister(l.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return l.stream, cleanup
}

// Emit hands ev to the acting listener without blocking. It reports false
// when nobody is listening or the listener's buffer is full.
func (b *Broadcaster) Emit(ev Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.listeners) == 0 {
		return false
	}
	target := b.listeners[len(b.listeners)-1]
	select {
	case target.stream <- ev:
		return true
	default:
		return false
	}
}

// Listeners returns the number of registered listeners.
func (b *Broadcaster) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *Broadcaster) unregister(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, l := range b.listeners {
		if l.id == id {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			// Emit sends under the same lock, so no send can race the close.
			close(l.stream)
			return
		}
	}
}
