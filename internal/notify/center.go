// Package notify owns the session's notification state: the dedup ledger
// and the feed built on top of it.
package notify

import (
	"sort"
	"sync"
	"time"

	"github.com/nhle/broker-console/internal/events"
	"github.com/nhle/broker-console/internal/model"
)

// Opener receives the open signal when a notification is activated.
type Opener interface {
	Emit(ev events.Event) bool
}

// Classification is the outcome of feeding one tick's items to Center.
type Classification struct {
	// Added were prepended to the feed, ascending by OccurredAt.
	Added []model.Notification

	// Surfaced is the subset of Added that should be announced. It is
	// always empty on the first tick.
	Surfaced []model.Notification

	// Recorded counts new ids marked processed without entering the feed.
	Recorded int
}

// Center is the single session-scoped owner of the ledger and the feed.
// All mutations go through one mutex.
type Center struct {
	mu     sync.Mutex
	ledger *Ledger
	feed   *Feed
	opener Opener
}

// NewCenter creates a Center. opener may be nil when nothing can open
// threads, for example in headless polling.
func NewCenter(feedCapacity, ledgerCapacity int, opener Opener) *Center {
	ledger := NewLedger(ledgerCapacity)
	return &Center{
		ledger: ledger,
		feed:   NewFeed(feedCapacity, ledger),
		opener: opener,
	}
}

// Classify runs items through the ledger. On the first tick only items
// that occurred within window of now enter the feed, and nothing is
// surfaced; older items are recorded silently. Later ticks add and
// surface every unseen item regardless of age.
func (c *Center) Classify(
	items []model.Notification,
	firstTick bool,
	now time.Time,
	window time.Duration,
) Classification {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result Classification
	var added []model.Notification
	for _, n := range items {
		if n.ID == "" || c.ledger.Has(n.Kind, n.ID) {
			continue
		}
		c.ledger.Add(n.Kind, n.ID)

		if firstTick && window > 0 && now.Sub(n.OccurredAt) > window {
			result.Recorded++
			continue
		}
		added = append(added, n)
	}

	sort.SliceStable(added, func(i, j int) bool {
		return added[i].OccurredAt.Before(added[j].OccurredAt)
	})
	c.feed.Prepend(added)

	result.Added = added
	if !firstTick {
		result.Surfaced = added
	}
	return result
}

// Dismiss removes the notification from the feed and reopens its id.
func (c *Center) Dismiss(kind model.Kind, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feed.Dismiss(kind, id)
}

// DismissAll clears the feed without touching the ledger. It returns the
// number of cleared entries.
func (c *Center) DismissAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feed.DismissAll()
}

// MarkAllRead zeroes the unread counter.
func (c *Center) MarkAllRead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feed.MarkAllRead()
}

// Activate dismisses the notification and then asks the opener to show
// its thread. The returned notification is the one that was activated.
func (c *Center) Activate(kind model.Kind, id string) (model.Notification, bool) {
	c.mu.Lock()
	n, ok := c.feed.Find(kind, id)
	if ok {
		c.feed.Dismiss(kind, id)
	}
	c.mu.Unlock()

	if !ok {
		return model.Notification{}, false
	}
	if c.opener != nil {
		c.opener.Emit(events.OpenFor(n))
	}
	return n, true
}

// Unread returns the unread counter.
func (c *Center) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feed.Unread()
}

// List returns the undismissed notifications, top first.
func (c *Center) List() []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feed.Snapshot()
}

// Seen reports whether the ledger holds id for kind.
func (c *Center) Seen(kind model.Kind, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Has(kind, id)
}
