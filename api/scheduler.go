/*
scheduler.go - Automated recompute scheduler

PURPOSE:
  Periodically checks whether the stored dataset changed since the latest
  completed run and, if so, runs the pipeline again.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Compares the dataset revision with the latest completed run's revision
  - Skips the tick when the latest run is current
  - A failed run is recorded and retried on the next tick

CONFIGURATION:
  - Interval: How often to check (scheduler.interval, default: 1 minute)
  - Enabled: Whether scheduler is active (scheduler.enabled, default: false)

USAGE:
  scheduler := NewRecomputeScheduler(store, runner, metrics, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CreateRun endpoint (manual runs)
  - evm/store.go: Runner
*/
package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/burn-engine/evm"
)

// RecomputeScheduler reruns the pipeline whenever the dataset is newer than
// the latest completed run.
type RecomputeScheduler struct {
	Store    evm.Store
	Runner   *evm.Runner
	Metrics  *Metrics
	Logger   *slog.Logger
	Interval time.Duration
	Enabled  bool

	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRecomputeScheduler creates a new scheduler.
func NewRecomputeScheduler(store evm.Store, runner *evm.Runner, metrics *Metrics, logger *slog.Logger) *RecomputeScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecomputeScheduler{
		Store:    store,
		Runner:   runner,
		Metrics:  metrics,
		Logger:   logger.With(slog.String("component", "scheduler")),
		Interval: time.Minute,
		Enabled:  true,
	}
}

// Start begins the scheduler.
func (rs *RecomputeScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.ticker = time.NewTicker(rs.Interval)
	rs.wg.Add(1)

	go rs.run(ctx)

	rs.Logger.Info("started", slog.Duration("interval", rs.Interval))
}

// Stop stops the scheduler and waits for an in-flight run to be recorded.
func (rs *RecomputeScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		rs.cancel()
		rs.wg.Wait()
		rs.ticker = nil
		rs.Logger.Info("stopped")
	}
}

func (rs *RecomputeScheduler) run(ctx context.Context) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.RunNow(ctx)

	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow performs one check and returns the run it started, or nil when
// nothing was stale.
func (rs *RecomputeScheduler) RunNow(ctx context.Context) *evm.Run {
	stale, err := rs.Stale(ctx)
	if err != nil {
		rs.Logger.Error("staleness check failed", slog.Any("error", err))
		return nil
	}
	if !stale {
		rs.Logger.Debug("latest run is current")
		return nil
	}

	run, err := rs.Runner.Execute(ctx)
	rs.Metrics.ObserveRun(run, "scheduler")
	if err != nil {
		rs.Logger.Error("scheduled run failed", slog.Any("error", err))
	}
	return run
}

// Stale reports whether a dataset exists that no completed run reflects.
func (rs *RecomputeScheduler) Stale(ctx context.Context) (bool, error) {
	rev, err := rs.Store.DatasetRevision(ctx)
	if err != nil {
		return false, err
	}
	if rev == 0 {
		return false, nil
	}

	latest, err := rs.Store.LatestRun(ctx)
	if errors.Is(err, evm.ErrRunNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return latest.DatasetRevision < rev, nil
}
