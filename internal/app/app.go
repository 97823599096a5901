// Package app wires configuration into the running engine and owns its
// lifecycle.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sable-labs/crossarb/internal/config"
	"github.com/sable-labs/crossarb/internal/coordinator"
	"github.com/sable-labs/crossarb/internal/domain"
	"github.com/sable-labs/crossarb/internal/executor"
	"github.com/sable-labs/crossarb/internal/feed"
	"github.com/sable-labs/crossarb/internal/venue/cex"
)

// statusInterval is the cadence of system.status snapshots.
const statusInterval = time.Minute

// App runs the feed, detection, execution, and strategy loops for one
// trading pair.
type App struct {
	cfg    *config.Config
	deps   *Deps
	logger *slog.Logger
}

// New creates an App over an already wired dependency graph.
func New(cfg *config.Config, deps *Deps, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run starts every loop and blocks until the context is cancelled or a loop
// fails. The feed pollers, detection loop, execution scheduler, strategy
// engine, and notifier all share one errgroup.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("engine starting",
		slog.String("pair", a.cfg.Pair.Symbol),
		slog.String("mode", a.cfg.Mode),
	)

	g, ctx := errgroup.WithContext(ctx)

	cexPoller := feed.NewPoller(
		feed.NewCEXSource(a.deps.CEX, a.cfg.Pair.Symbol, a.deps.Clock),
		a.deps.Cache, a.deps.EventBus, a.cfg.Feed.PollInterval.Duration, a.logger,
	)
	dexPoller := feed.NewPoller(
		feed.NewDEXSource(a.deps.DEX, a.cfg.Pair.Symbol, a.cfg.Feed.DEXSlipEstimatePct, a.deps.Clock),
		a.deps.Cache, a.deps.EventBus, a.cfg.Feed.PollInterval.Duration, a.logger,
	)
	g.Go(func() error { return ignoreCancel(cexPoller.Run(ctx)) })
	g.Go(func() error { return ignoreCancel(dexPoller.Run(ctx)) })

	if a.cfg.CEX.StreamEnabled && a.cfg.CEX.WsURL != "" {
		stream := cex.NewStream(a.cfg.CEX.WsURL, a.cfg.Pair.Symbol, func(q domain.Quote) {
			cexPoller.Store(ctx, q)
		})
		g.Go(func() error { return ignoreCancel(stream.Run(ctx)) })
	}

	g.Go(func() error { return ignoreCancel(a.detectLoop(ctx)) })
	g.Go(func() error { return ignoreCancel(a.scheduleLoop(ctx)) })
	g.Go(func() error { return ignoreCancel(a.statusLoop(ctx)) })

	if a.deps.Strategy != nil {
		g.Go(func() error { return ignoreCancel(a.deps.Strategy.Run(ctx, a.cfg.Strategy.Interval.Duration)) })
	}
	if a.deps.Notifier != nil {
		g.Go(func() error { return ignoreCancel(a.deps.Notifier.Run(ctx)) })
	}

	err := g.Wait()
	a.logger.Info("engine stopped")
	return err
}

// detectLoop re-evaluates the spread on every quote update and triggers
// execution when an opportunity is held.
func (a *App) detectLoop(ctx context.Context) error {
	ch, err := a.deps.EventBus.Subscribe(ctx, domain.TopicQuoteUpdated)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			a.detectOnce(ctx)
			a.tryExecute(ctx)
		}
	}
}

// scheduleLoop retries execution on a fixed cadence so a held opportunity
// is not stranded when no quote update follows a throttled attempt.
func (a *App) scheduleLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Execution.ScheduleInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.tryExecute(ctx)
		}
	}
}

func (a *App) detectOnce(ctx context.Context) {
	cexQuote, err := a.deps.Cache.GetQuote(ctx, domain.VenueCEX)
	if err != nil {
		return
	}
	dexQuote, err := a.deps.Cache.GetQuote(ctx, domain.VenueDEX)
	if err != nil {
		return
	}
	opp, err := a.deps.Detector.Detect(cexQuote, dexQuote)
	if err != nil {
		if !errors.Is(err, domain.ErrStalePrice) {
			a.logger.Warn("detection failed", slog.String("error", err.Error()))
		}
		return
	}
	if opp != nil {
		a.deps.Holder.Set(ctx, *opp)
	}
}

// tryExecute consumes the held opportunity and runs it through risk checks
// and the execution lock. A throttled or lock-busy attempt drops the
// opportunity; detection will produce a fresh one if the spread persists.
func (a *App) tryExecute(ctx context.Context) {
	opp, ok := a.deps.Holder.Consume()
	if !ok {
		return
	}
	if err := a.deps.Risk.Approve(ctx, opp); err != nil {
		a.logger.Info("opportunity rejected",
			slog.String("opportunity_id", opp.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	amount, err := a.deps.Risk.Size(opp)
	if err != nil {
		a.logger.Info("opportunity sized out",
			slog.String("opportunity_id", opp.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	err = a.deps.Coord.RunExclusive(ctx, opp.ID, func(ctx context.Context) error {
		a.deps.Risk.RecordTrade(amount)
		trade, execErr := a.deps.Executor.Execute(ctx, opp, amount)
		if trade != nil {
			a.deps.Risk.RecordOutcome(ctx, trade.Status)
		}
		return execErr
	})
	switch {
	case err == nil:
	case errors.Is(err, coordinator.ErrThrottled), errors.Is(err, domain.ErrLockHeld):
		a.logger.Debug("execution skipped",
			slog.String("opportunity_id", opp.ID),
			slog.String("reason", err.Error()),
		)
	default:
		a.logger.Error("execution failed",
			slog.String("opportunity_id", opp.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Status is a point-in-time view of the engine for operators.
type Status struct {
	Mode        string               `json:"mode"`
	Pair        string               `json:"pair"`
	Paused      bool                 `json:"paused"`
	Execution   coordinator.Snapshot `json:"execution"`
	Trades      executor.Stats       `json:"trades"`
	Opportunity *domain.Opportunity  `json:"opportunity,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
}

// Status builds a snapshot of the running engine.
func (a *App) Status() Status {
	s := Status{
		Mode:      a.cfg.Mode,
		Pair:      a.cfg.Pair.Symbol,
		Paused:    a.deps.Risk.Paused(),
		Execution: a.deps.Coord.Snapshot(),
		Trades:    a.deps.History.Summary(),
		Timestamp: a.deps.Clock.Now(),
	}
	if opp, ok := a.deps.Holder.Current(); ok {
		s.Opportunity = &opp
	}
	return s
}

// Resume clears a circuit-breaker pause.
func (a *App) Resume(ctx context.Context) { a.deps.Risk.Resume(ctx) }

// statusLoop publishes a status snapshot once a minute.
func (a *App) statusLoop(ctx context.Context) error {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			payload, err := json.Marshal(a.Status())
			if err != nil {
				continue
			}
			if err := a.deps.EventBus.Publish(ctx, domain.TopicSystemStatus, payload); err != nil {
				a.logger.Warn("status publish failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ignoreCancel maps context cancellation to a clean shutdown.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
