package app

import (
	"go.uber.org/zap"

	"github.com/nhle/broker-console/internal/events"
	"github.com/nhle/broker-console/internal/model"
	"github.com/nhle/broker-console/internal/notify"
	"github.com/nhle/broker-console/internal/source"
	"github.com/nhle/broker-console/internal/source/broker"
	"github.com/nhle/broker-console/internal/subject"
	appsync "github.com/nhle/broker-console/internal/sync"
)

// Engine holds the session-scoped collaborators shared by the console and
// the headless poll command.
type Engine struct {
	Config      *model.AppConfig
	Fetcher     source.ThreadFetcher
	Sender      source.Sender
	Center      *notify.Center
	Broadcaster *events.Broadcaster
	Cycle       *appsync.Cycle
	Poller      *appsync.Poller
	Logger      *zap.Logger
}

// NewEngine wires the REST adapter, subject discovery, notification center
// and poll loop for the configured user. token is read on every request.
func NewEngine(cfg *model.AppConfig, token broker.TokenFunc, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := broker.NewClient(cfg.API.BaseURL, token, cfg.API.Timeout)
	adapter := broker.NewAdapter(client, cfg.User.ID)

	bc := events.NewBroadcaster()
	center := notify.NewCenter(cfg.Feed.Capacity, cfg.Feed.LedgerCapacity, bc)

	cycle := appsync.NewCycle(
		subject.NewRoleSource(adapter),
		adapter,
		center,
		logger.Named("poll"),
		appsync.CycleOptions{
			User:           cfg.User,
			FetchTimeout:   cfg.API.Timeout,
			BacklogWindow:  cfg.Poll.BacklogWindow,
			PageSize:       cfg.Chat.PageSize,
			MaxConcurrency: cfg.Poll.MaxConcurrency,
		},
	)

	logger.Info("engine ready",
		zap.String("user", cfg.User.ID),
		zap.String("role", cfg.User.Role),
		zap.Duration("poll_interval", cfg.Poll.Interval),
	)

	return &Engine{
		Config:      cfg,
		Fetcher:     adapter,
		Sender:      adapter,
		Center:      center,
		Broadcaster: bc,
		Cycle:       cycle,
		Poller:      appsync.New(cycle, cfg.Poll.Interval, logger.Named("poller")),
		Logger:      logger,
	}
}
