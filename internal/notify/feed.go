package notify

import "github.com/nhle/broker-console/internal/model"

// Feed is the ordered list of undismissed notifications plus the unread
// counter. Each batch is prepended as a block, so the newest batch is on
// top and a batch keeps its ascending order.
//
// Feed is not safe for concurrent use; Center serializes access.
type Feed struct {
	capacity int
	items    []model.Notification
	unread   int
	ledger   *Ledger
}

// NewFeed creates an empty feed bound to ledger. A non-positive capacity
// means no cap.
func NewFeed(capacity int, ledger *Ledger) *Feed {
	return &Feed{capacity: capacity, ledger: ledger}
}

// Prepend puts batch in front of the current entries and raises the unread
// counter by len(batch). Entries pushed past the cap are dropped from the
// feed but stay processed in the ledger.
func (f *Feed) Prepend(batch []model.Notification) {
	if len(batch) == 0 {
		return
	}

	items := make([]model.Notification, 0, len(batch)+len(f.items))
	items = append(items, batch...)
	items = append(items, f.items...)
	for _, n := range batch {
		f.ledger.Pin(n.Kind, n.ID)
	}
	f.unread += len(batch)

	if f.capacity > 0 && len(items) > f.capacity {
		for _, dropped := range items[f.capacity:] {
			f.ledger.Unpin(dropped.Kind, dropped.ID)
		}
		items = items[:f.capacity]
	}
	if f.unread > len(items) {
		f.unread = len(items)
	}
	f.items = items
}

// Dismiss removes exactly one entry matching (kind, id), decrements the
// unread counter by one and reopens the id in the ledger. It reports
// whether an entry was found.
func (f *Feed) Dismiss(kind model.Kind, id string) bool {
	for i, n := range f.items {
		if n.Kind != kind || n.ID != id {
			continue
		}
		f.items = append(f.items[:i:i], f.items[i+1:]...)
		if f.unread > 0 {
			f.unread--
		}
		f.ledger.Remove(kind, id)
		return true
	}
	return false
}

// DismissAll clears the feed and zeroes the counter. Cleared ids stay in
// the ledger.
func (f *Feed) DismissAll() int {
	n := len(f.items)
	for _, item := range f.items {
		f.ledger.Unpin(item.Kind, item.ID)
	}
	f.items = nil
	f.unread = 0
	return n
}

// MarkAllRead zeroes the unread counter without dismissing anything.
func (f *Feed) MarkAllRead() {
	f.unread = 0
}

// Unread returns the unread counter.
func (f *Feed) Unread() int {
	return f.unread
}

// Len returns the number of entries in the feed.
func (f *Feed) Len() int {
	return len(f.items)
}

// Find returns the entry matching (kind, id).
func (f *Feed) Find(kind model.Kind, id string) (model.Notification, bool) {
	for _, n := range f.items {
		if n.Kind == kind && n.ID == id {
			return n, true
		}
	}
	return model.Notification{}, false
}

// Snapshot returns a copy of the entries, top first.
func (f *Feed) Snapshot() []model.Notification {
	out := make([]model.Notification, len(f.items))
	copy(out, f.items)
	return out
}
