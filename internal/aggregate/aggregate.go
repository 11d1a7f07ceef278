// Package aggregate attaches campaign reports to campaign summaries with
// bounded concurrency. A failed report never drops its campaign.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foxzi/campaignhub/internal/mailchimp"
	"github.com/foxzi/campaignhub/internal/metrics"
	"github.com/foxzi/campaignhub/internal/models"
)

// ReportFetcher fetches one campaign report. Implementations report failure
// through ReportResult.Err rather than a second return value.
type ReportFetcher interface {
	Region() string
	GetCampaignReport(ctx context.Context, campaignID string) mailchimp.ReportResult
}

// Config holds aggregator tuning
type Config struct {
	BatchSize   int
	Concurrency int
	BatchDelay  time.Duration
}

// DefaultConfig returns the upstream-friendly defaults
func DefaultConfig() Config {
	return Config{
		BatchSize:   10,
		Concurrency: 5,
		BatchDelay:  500 * time.Millisecond,
	}
}

// Aggregator merges reports into campaign records batch by batch
type Aggregator struct {
	batchSize   int
	concurrency int
	batchDelay  time.Duration
	logger      *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an aggregator; zero fields in cfg fall back to DefaultConfig
func New(cfg Config, logger *slog.Logger) *Aggregator {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	return &Aggregator{
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		batchDelay:  cfg.BatchDelay,
		logger:      logger.With("component", "aggregate"),
		sleep:       sleepContext,
	}
}

// Stats summarizes one Aggregate run
type Stats struct {
	Campaigns int
	Reports   int
	Failures  int
	Batches   int
}

// Aggregate fetches a report for every campaign and returns the merged
// records. Every input campaign appears exactly once in the output; order
// within a batch follows completion. A cancelled context stops between
// batches and returns what has been merged so far with the context error.
func (a *Aggregator) Aggregate(ctx context.Context, fetcher ReportFetcher, campaigns []models.CampaignRecord) ([]models.CampaignRecord, Stats, error) {
	out := make([]models.CampaignRecord, 0, len(campaigns))
	stats := Stats{Campaigns: len(campaigns)}
	region := fetcher.Region()

	for start := 0; start < len(campaigns); start += a.batchSize {
		end := min(start+a.batchSize, len(campaigns))
		batch := campaigns[start:end]
		stats.Batches++

		var mu sync.Mutex
		g := new(errgroup.Group)
		g.SetLimit(a.concurrency)

		for _, camp := range batch {
			g.Go(func() error {
				res := a.fetch(ctx, fetcher, camp.ID)

				merged := camp
				if res.OK() {
					merged.Performance = res.Performance
				} else {
					merged.Performance = nil
					metrics.IncReportFailures(region)
					a.logger.Warn("report fetch failed", "region", region, "campaign_id", camp.ID, "error", res.Err)
				}

				mu.Lock()
				out = append(out, merged)
				if res.OK() {
					stats.Reports++
				} else {
					stats.Failures++
				}
				mu.Unlock()
				return nil
			})
		}
		g.Wait()

		if end < len(campaigns) && a.batchDelay > 0 {
			if err := a.sleep(ctx, a.batchDelay); err != nil {
				return out, stats, err
			}
		}
	}

	a.logger.Debug("aggregated reports", "region", region, "campaigns", stats.Campaigns,
		"reports", stats.Reports, "failures", stats.Failures, "batches", stats.Batches)
	return out, stats, nil
}

// fetch isolates one report call; a panicking fetcher is a failed report
func (a *Aggregator) fetch(ctx context.Context, fetcher ReportFetcher, campaignID string) (res mailchimp.ReportResult) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("report fetch panicked", "campaign_id", campaignID, "panic", r, "stack", string(debug.Stack()))
			res = mailchimp.ReportResult{CampaignID: campaignID, Err: fmt.Errorf("report fetch panicked: %v", r)}
		}
	}()
	return fetcher.GetCampaignReport(ctx, campaignID)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
