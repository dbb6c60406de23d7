package sync

import (
	"context"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// SyncState represents the current state of the poll loop.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// SyncStatus is a snapshot of the poll loop for status lines.
type SyncStatus struct {
	State     SyncState
	LastSync  time.Time
	Subjects  int
	Failing   int
	Error     error
	TickCount int
}

// SyncResultMsg is a tea.Msg sent when a tick completes.
type SyncResultMsg struct {
	Result    TickResult
	Error     error
	AuthError *AuthErrorMsg
}

// AuthErrorMsg is sent once when the session is rejected. It is not sent
// again until a tick succeeds.
type AuthErrorMsg struct {
	Message string
}

// Ticker runs one poll tick.
type Ticker interface {
	Tick(ctx context.Context) (TickResult, error)
}

// Poller runs the poll cycle immediately and then on a fixed interval.
type Poller struct {
	cycle    Ticker
	interval time.Duration
	logger   *zap.Logger

	status       SyncStatus
	resultCh     chan SyncResultMsg
	triggerCh    chan struct{}
	stopCh       chan struct{}
	cancel       context.CancelFunc
	mu           gosync.Mutex
	running      bool
	authReported bool
}

// New creates a Poller. A non-positive interval falls back to 30 seconds.
func New(cycle Ticker, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		cycle:     cycle,
		interval:  interval,
		logger:    logger,
		resultCh:  make(chan SyncResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
	}
}

// Start returns a tea.Cmd that starts the poll loop and subscribes to its
// results.
func (p *Poller) Start() tea.Cmd {
	if !p.Run() {
		return nil
	}
	return p.waitForResult()
}

// Run starts the poll loop in the background. It reports false when the
// loop is already running.
func (p *Poller) Run() bool {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return false
	}
	p.running = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.mu.Unlock()

	go p.loop(ctx, stopCh)
	return true
}

// Stop halts the poll loop and cancels an in-flight tick.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.cancel()
	p.running = false
}

// RefreshNow triggers an immediate tick. Triggers coalesce while one is
// pending.
func (p *Poller) RefreshNow() tea.Cmd {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
	return nil
}

// Status returns the current loop status.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Results exposes the result channel for headless callers.
func (p *Poller) Results() <-chan SyncResultMsg {
	return p.resultCh
}

func (p *Poller) loop(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Do an initial tick immediately
	p.tick(ctx, stopCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.tick(ctx, stopCh)
		case <-p.triggerCh:
			p.tick(ctx, stopCh)
		}
	}
}

func (p *Poller) tick(ctx context.Context, stopCh <-chan struct{}) {
	p.mu.Lock()
	p.status.State = SyncRunning
	p.mu.Unlock()

	result, err := p.cycle.Tick(ctx)
	if ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	p.status.TickCount++
	p.status.Subjects = result.Subjects
	p.status.Failing = len(result.Failures)
	msg := SyncResultMsg{Result: result, Error: err}
	switch {
	case err != nil:
		p.status.State = SyncError
		p.status.Error = err
		if !p.authReported {
			p.authReported = true
			msg.AuthError = &AuthErrorMsg{
				Message: "session rejected: run `brokerconsole token set` and restart",
			}
		}
	case result.DiscoveryErr != nil:
		p.status.State = SyncError
		p.status.Error = result.DiscoveryErr
		p.authReported = false
	default:
		p.status.State = SyncIdle
		p.status.Error = nil
		p.status.LastSync = result.At
		p.authReported = false
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Error("poll tick rejected", zap.Error(err))
	}
	p.sendResult(msg, stopCh)
}

// sendResult hands msg to the consumer. Every result carries the toasts for
// its tick, so a slow consumer holds the loop back instead of losing one;
// only Stop abandons a pending send.
func (p *Poller) sendResult(msg SyncResultMsg, stopCh <-chan struct{}) {
	select {
	case p.resultCh <- msg:
		return
	default:
	}
	p.logger.Debug("poll consumer is behind, waiting")
	select {
	case p.resultCh <- msg:
	case <-stopCh:
	}
}

// waitForResult returns a tea.Cmd that waits for the next result from
// the result channel.
func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next tick result.
// Call it after handling a SyncResultMsg to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
