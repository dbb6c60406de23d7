package notify

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nhle/broker-console/internal/model"
)

// Ledger remembers which source ids have already been processed, one set
// per notification kind.
//
// With a positive capacity each kind keeps at most that many unpinned ids,
// evicting the least recently seen. Has counts as a sighting, so an id that
// every tick still observes stays recorded however quiet its thread is. The
// capacity must exceed the number of ids one tick can observe per kind, or
// ids still being served will be evicted and re-surfaced. Ids of
// notifications that are still in the feed are pinned and live outside the
// bounded set, so they are never evicted. A capacity of zero keeps every id
// for the whole session.
//
// Ledger is not safe for concurrent use; Center serializes access.
type Ledger struct {
	capacity int
	kinds    map[model.Kind]*kindSet
}

type kindSet struct {
	pinned map[string]struct{}

	// Exactly one of bounded or all is set.
	bounded *lru.Cache[string, struct{}]
	all     map[string]struct{}
}

// NewLedger creates an empty ledger.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{
		capacity: capacity,
		kinds:    make(map[model.Kind]*kindSet),
	}
}

func (l *Ledger) set(kind model.Kind) *kindSet {
	if s, ok := l.kinds[kind]; ok {
		return s
	}
	s := &kindSet{pinned: make(map[string]struct{})}
	if l.capacity > 0 {
		// lru.New only fails for a non-positive size.
		cache, _ := lru.New[string, struct{}](l.capacity)
		s.bounded = cache
	} else {
		s.all = make(map[string]struct{})
	}
	l.kinds[kind] = s
	return s
}

// Has reports whether id has been processed for kind and refreshes its
// recency when it has.
func (l *Ledger) Has(kind model.Kind, id string) bool {
	s, ok := l.kinds[kind]
	if !ok {
		return false
	}
	if _, ok := s.pinned[id]; ok {
		return true
	}
	if s.bounded != nil {
		_, ok := s.bounded.Get(id)
		return ok
	}
	_, ok = s.all[id]
	return ok
}

// Add records id for kind. Adding a known id is a no-op.
func (l *Ledger) Add(kind model.Kind, id string) {
	s := l.set(kind)
	if _, ok := s.pinned[id]; ok {
		return
	}
	if s.bounded != nil {
		s.bounded.Add(id, struct{}{})
		return
	}
	s.all[id] = struct{}{}
}

// Remove forgets id so a later re-emission is surfaced again.
func (l *Ledger) Remove(kind model.Kind, id string) {
	s, ok := l.kinds[kind]
	if !ok {
		return
	}
	delete(s.pinned, id)
	if s.bounded != nil {
		s.bounded.Remove(id)
		return
	}
	delete(s.all, id)
}

// Pin records id and protects it from eviction until Unpin.
func (l *Ledger) Pin(kind model.Kind, id string) {
	s := l.set(kind)
	if s.bounded != nil {
		s.bounded.Remove(id)
	} else {
		delete(s.all, id)
	}
	s.pinned[id] = struct{}{}
}

// Unpin moves id back into the evictable set. It stays processed.
func (l *Ledger) Unpin(kind model.Kind, id string) {
	s, ok := l.kinds[kind]
	if !ok {
		return
	}
	if _, ok := s.pinned[id]; !ok {
		return
	}
	delete(s.pinned, id)
	if s.bounded != nil {
		s.bounded.Add(id, struct{}{})
		return
	}
	s.all[id] = struct{}{}
}

// Len returns the number of ids recorded for kind, pinned included.
func (l *Ledger) Len(kind model.Kind) int {
	s, ok := l.kinds[kind]
	if !ok {
		return 0
	}
	if s.bounded != nil {
		return len(s.pinned) + s.bounded.Len()
	}
	return len(s.pinned) + len(s.all)
}
