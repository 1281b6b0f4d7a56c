// Package runner drives the bot's two polling loops and restarts them
// together when either fails.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/e-dreyer/discussbot/dispatch"
	"github.com/e-dreyer/discussbot/internal/group"
	"github.com/e-dreyer/discussbot/internal/ticker"
	"github.com/e-dreyer/discussbot/mastodon"
)

const (
	DefaultEventInterval  = 10 * time.Second
	DefaultIngestInterval = 120 * time.Second
	DefaultRestartBackoff = 10 * time.Second
	DefaultEventBatchSize = 40
)

type EventSource interface {
	Notifications(ctx context.Context, limit int) ([]mastodon.Notification, error)
}

type EventHandler interface {
	Handle(ctx context.Context, evt dispatch.Event) dispatch.Outcome
}

type Cycler interface {
	RunCycle(ctx context.Context) error
}

type Config struct {
	EventInterval  time.Duration
	IngestInterval time.Duration
	RestartBackoff time.Duration
	EventBatchSize int
	Logger         *slog.Logger
}

// Runner holds everything the loops need. Loop-local state does not survive
// a restart; durable progress lives in the dedup store behind Ingester.
type Runner struct {
	Events     EventSource
	Dispatcher EventHandler
	Ingester   Cycler

	eventInterval  time.Duration
	ingestInterval time.Duration
	restartBackoff time.Duration
	batchSize      int
	logger         *slog.Logger
}

func NewRunner(events EventSource, dispatcher EventHandler, ingester Cycler, config Config) *Runner {
	if config.EventInterval <= 0 {
		config.EventInterval = DefaultEventInterval
	}
	if config.IngestInterval <= 0 {
		config.IngestInterval = DefaultIngestInterval
	}
	if config.RestartBackoff <= 0 {
		config.RestartBackoff = DefaultRestartBackoff
	}
	if config.EventBatchSize <= 0 {
		config.EventBatchSize = DefaultEventBatchSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Runner{
		Events:         events,
		Dispatcher:     dispatcher,
		Ingester:       ingester,
		eventInterval:  config.EventInterval,
		ingestInterval: config.IngestInterval,
		restartBackoff: config.RestartBackoff,
		batchSize:      config.EventBatchSize,
		logger:         config.Logger.With("component", "runner"),
	}
}

// Run supervises both loops until ctx is done. Whenever either loop fails or
// panics, both are stopped, and after the restart backoff both are started
// again from scratch. Run only returns once ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	for {
		g := group.New(group.WithContext(ctx))
		if r.Events != nil && r.Dispatcher != nil {
			g.Go("events", r.RunEventLoop)
		}
		if r.Ingester != nil {
			g.Go("ingest", r.RunIngestLoop)
		}
		err := g.Wait()
		if ctx.Err() != nil {
			r.logger.Info("shutting down loops")
			return nil
		}
		if err == nil {
			return errors.New("no loops configured")
		}

		task := "unknown"
		var te *group.TaskError
		if errors.As(err, &te) {
			task = te.Task
			if te.Panic {
				r.logger.Error("loop panicked", "task", te.Task, "err", te.Err, "stack", string(te.Stack))
			}
		}
		restartCount.WithLabelValues(task).Inc()
		r.logger.Error("loops stopped, restarting", "err", err, "backoff", r.restartBackoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.restartBackoff):
		}
	}
}

func (r *Runner) RunEventLoop(ctx context.Context) error {
	r.logger.Info("starting event loop", "interval", r.eventInterval)
	return ticker.Periodically(ctx, r.eventInterval, func(ctx context.Context) error {
		_, err := r.PollEvents(ctx)
		return err
	})
}

func (r *Runner) RunIngestLoop(ctx context.Context) error {
	r.logger.Info("starting ingestion loop", "interval", r.ingestInterval)
	return ticker.Periodically(ctx, r.ingestInterval, r.Ingester.RunCycle)
}

// PollEvents fetches the outstanding events and dispatches them oldest first.
// A failed fetch is logged and skipped; it returns the number dispatched.
func (r *Runner) PollEvents(ctx context.Context) (int, error) {
	eventPollCount.Inc()
	notifs, err := r.Events.Notifications(ctx, r.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		eventPollErrors.Inc()
		r.logger.Warn("failed to fetch outstanding events", "err", err)
		return 0, nil
	}

	slices.SortStableFunc(notifs, func(a, b mastodon.Notification) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	for i := range notifs {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		r.Dispatcher.Handle(ctx, dispatch.EventFromNotification(&notifs[i]))
	}
	return len(notifs), nil
}
