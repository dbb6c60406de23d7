package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/nhle/broker-console/internal/model"
	"github.com/nhle/broker-console/internal/notify"
	"github.com/nhle/broker-console/internal/source"
)

// defaultFetchTimeout bounds a single thread fetch.
const defaultFetchTimeout = 10 * time.Second

// CycleOptions tunes a Cycle. Zero values fall back to defaults.
type CycleOptions struct {
	User           model.User
	FetchTimeout   time.Duration
	BacklogWindow  time.Duration
	PageSize       int
	MaxConcurrency int
	Now            func() time.Time
}

// Failure describes one thread that could not be fetched this tick.
type Failure struct {
	Subject model.Subject
	Kind    model.Kind
	Err     error
}

// TickResult summarizes one poll tick.
type TickResult struct {
	At        time.Time
	FirstTick bool
	Subjects  int

	// Added entered the feed this tick, ascending by OccurredAt.
	Added []model.Notification

	// Surfaced should be announced with a toast and an event.
	Surfaced []model.Notification

	// Recorded counts backlog items marked processed without being shown.
	Recorded int

	Failures     []Failure
	DiscoveryErr error
}

// Cycle performs one poll tick: discover subjects, fetch every thread
// concurrently, classify the results through the notification center.
type Cycle struct {
	subjects source.SubjectSource
	fetcher  source.ThreadFetcher
	center   *notify.Center
	logger   *zap.Logger
	opts     CycleOptions

	tickMu gosync.Mutex
	primed bool
}

// NewCycle creates a Cycle. The first successful discovery marks the end
// of the backlog tick.
func NewCycle(
	subjects source.SubjectSource,
	fetcher source.ThreadFetcher,
	center *notify.Center,
	logger *zap.Logger,
	opts CycleOptions,
) *Cycle {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.BacklogWindow <= 0 {
		opts.BacklogWindow = 24 * time.Hour
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cycle{
		subjects: subjects,
		fetcher:  fetcher,
		center:   center,
		logger:   logger,
		opts:     opts,
	}
}

// fetchOutcome is what one concurrent fetch hands back to the tick.
type fetchOutcome struct {
	items   []model.Notification
	failure *Failure
}

// Tick runs one poll tick. Ticks never overlap. The returned error is an
// authentication problem that stops the engine until the session is
// fixed; every other failure is reported in the result and retried on the
// next tick.
func (c *Cycle) Tick(ctx context.Context) (TickResult, error) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	result := TickResult{FirstTick: !c.primed}

	discoverCtx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	subjects, err := c.subjects.DiscoverSubjects(discoverCtx, c.opts.User)
	cancel()
	if err != nil {
		if isHardStop(err) {
			result.At = c.opts.Now()
			return result, err
		}
		c.logger.Warn("subject discovery failed", zap.Error(err))
		result.DiscoveryErr = err
		subjects = nil
	} else {
		c.primed = true
	}
	result.Subjects = len(subjects)

	p := pool.NewWithResults[fetchOutcome]().WithMaxGoroutines(c.opts.MaxConcurrency)
	for _, subj := range subjects {
		if subj.HasLoad() {
			p.Go(func() fetchOutcome {
				return c.fetchChat(ctx, subj)
			})
		}
		if subj.HasBid() {
			p.Go(func() fetchOutcome {
				return c.fetchNegotiation(ctx, subj)
			})
		}
	}
	outcomes := p.Wait()

	var items []model.Notification
	var authErr error
	for _, o := range outcomes {
		if o.failure != nil {
			if authErr == nil && isHardStop(o.failure.Err) {
				authErr = o.failure.Err
			}
			result.Failures = append(result.Failures, *o.failure)
			continue
		}
		items = append(items, o.items...)
	}

	now := c.opts.Now()
	classified := c.center.Classify(items, result.FirstTick, now, c.opts.BacklogWindow)
	result.At = now
	result.Added = classified.Added
	result.Surfaced = classified.Surfaced
	result.Recorded = classified.Recorded

	c.logger.Debug("poll tick finished",
		zap.Bool("first_tick", result.FirstTick),
		zap.Int("subjects", result.Subjects),
		zap.Int("added", len(result.Added)),
		zap.Int("recorded", result.Recorded),
		zap.Int("failures", len(result.Failures)),
	)

	return result, authErr
}

func (c *Cycle) fetchChat(ctx context.Context, subj model.Subject) fetchOutcome {
	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	page, err := c.fetcher.FetchChatPage(fetchCtx, subj.LoadID, 1, c.opts.PageSize)
	if err != nil {
		return c.failed(subj, model.KindChat, err)
	}

	var items []model.Notification
	for _, m := range page.Items {
		if m.IsMine || m.SenderID == c.opts.User.ID {
			continue
		}
		items = append(items, toNotification(m, model.KindChat, subj))
	}
	return fetchOutcome{items: items}
}

func (c *Cycle) fetchNegotiation(ctx context.Context, subj model.Subject) fetchOutcome {
	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	page, err := c.fetcher.FetchNegotiation(fetchCtx, subj.BidID)
	if err != nil {
		return c.failed(subj, model.KindNegotiation, err)
	}

	var items []model.Notification
	for _, m := range page.Items {
		if m.IsMine {
			continue
		}
		items = append(items, toNotification(m, model.KindNegotiation, subj))
	}
	return fetchOutcome{items: items}
}

// failed turns a fetch error into an outcome. A missing thread is simply
// empty.
func (c *Cycle) failed(subj model.Subject, kind model.Kind, err error) fetchOutcome {
	if source.IsNotFound(err) {
		return fetchOutcome{}
	}
	c.logger.Warn("thread fetch failed",
		zap.String("kind", string(kind)),
		zap.String("load_id", subj.LoadID),
		zap.String("bid_id", subj.BidID),
		zap.Bool("transient", source.IsTransient(err)),
		zap.Error(err),
	)
	return fetchOutcome{failure: &Failure{Subject: subj, Kind: kind, Err: err}}
}

func toNotification(m model.Message, kind model.Kind, subj model.Subject) model.Notification {
	return model.Notification{
		ID:          m.ID,
		Kind:        kind,
		Subject:     subj,
		SenderID:    m.SenderID,
		SenderLabel: m.SenderLabel,
		Body:        m.Body,
		CounterRate: m.CounterRate,
		OccurredAt:  m.OccurredAt,
	}
}

// isHardStop reports errors that no retry on the next tick can fix.
func isHardStop(err error) bool {
	return source.IsAuthError(err) || errors.Is(err, source.ErrMissingToken)
}

// Describe renders a short human summary of a failure for status lines.
func (f Failure) Describe() string {
	if f.Kind == model.KindNegotiation {
		return fmt.Sprintf("negotiation %s: %v", f.Subject.BidID, f.Err)
	}
	return fmt.Sprintf("chat %s: %v", f.Subject.LoadID, f.Err)
}
