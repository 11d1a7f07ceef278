package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/campaignhub/internal/refresh"
)

// Syncer refreshes every region and writes through to the cache
type Syncer interface {
	SyncAll(ctx context.Context, days int) []refresh.RegionSync
}

// Cleaner removes expired rows, such as sessions
type Cleaner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Worker runs periodic background syncs
type Worker struct {
	syncer   Syncer
	cleaners map[string]Cleaner
	logger   *slog.Logger

	interval time.Duration
	days     int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds worker configuration
type Config struct {
	Interval time.Duration
	Days     int
}

// DefaultConfig returns default worker configuration
func DefaultConfig() Config {
	return Config{
		Interval: time.Hour,
		Days:     30,
	}
}

// New creates a new worker. Cleaners run after every sync, keyed by a name
// used in logs. A nil syncer runs cleanup only.
func New(syncer Syncer, cleaners map[string]Cleaner, logger *slog.Logger, cfg Config) *Worker {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Days <= 0 {
		cfg.Days = def.Days
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		syncer:   syncer,
		cleaners: cleaners,
		logger:   logger.With("component", "worker"),
		interval: cfg.Interval,
		days:     cfg.Days,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the worker
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Info("worker started", "interval", w.interval, "days", w.days)
}

// Stop stops the worker gracefully
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Worker) tick() {
	if w.syncer != nil {
		w.sync()
	}

	for name, c := range w.cleaners {
		n, err := c.DeleteExpired(w.ctx)
		if err != nil {
			w.logger.Error("cleanup failed", "target", name, "error", err)
			continue
		}
		if n > 0 {
			w.logger.Info("expired rows deleted", "target", name, "count", n)
		}
	}
}

func (w *Worker) sync() {
	start := time.Now()
	syncs := w.syncer.SyncAll(w.ctx, w.days)

	failed := 0
	campaigns := 0
	for _, rs := range syncs {
		if rs.Err != nil {
			failed++
			w.logger.Error("scheduled sync failed", "region", rs.Region, "error", rs.Err)
			continue
		}
		campaigns += len(rs.Campaigns)
	}
	w.logger.Info("scheduled sync finished",
		"regions", len(syncs),
		"failed", failed,
		"campaigns", campaigns,
		"duration", time.Since(start))
}
