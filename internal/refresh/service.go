// Package refresh decides per request whether dashboard data comes from the
// regional cache or from a live upstream fetch, and writes live data through
// to the cache.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foxzi/campaignhub/internal/aggregate"
	"github.com/foxzi/campaignhub/internal/mailchimp"
	"github.com/foxzi/campaignhub/internal/metrics"
	"github.com/foxzi/campaignhub/internal/models"
	"github.com/foxzi/campaignhub/internal/store"
)

var (
	// ErrRegionNotFound is returned for a region outside the configured set
	ErrRegionNotFound = mailchimp.ErrRegionNotFound
	// ErrUpstreamUnavailable is returned when a forced refresh got no data
	// from any requested region
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Refresh triggers, used as metric labels
const (
	TriggerForced   = "forced"
	TriggerSelfHeal = "self_heal"
	TriggerStale    = "stale"
	TriggerSync     = "sync"
)

type Config struct {
	DefaultDays int
	// MaxAge refreshes when the newest cached row is older. Zero disables it.
	MaxAge time.Duration
	// CampaignLimit caps campaigns listed per region; zero uses the client default
	CampaignLimit int
}

// Service owns the cache-vs-live decision
type Service struct {
	source     Source
	store      store.Store
	aggregator *aggregate.Aggregator
	cfg        Config
	logger     *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	syncing atomic.Bool

	now func() time.Time
}

func New(source Source, st store.Store, agg *aggregate.Aggregator, cfg Config, logger *slog.Logger) *Service {
	if cfg.DefaultDays <= 0 {
		cfg.DefaultDays = 30
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		source:     source,
		store:      st,
		aggregator: agg,
		cfg:        cfg,
		logger:     logger.With("component", "refresh"),
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
	}
}

// Close cancels background syncs and waits for them to finish
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Regions returns the configured region names
func (s *Service) Regions() []string {
	return s.source.Regions()
}

// resolveRegion normalizes a region name and checks it is configured
func (s *Service) resolveRegion(region string) (string, error) {
	name := strings.ToUpper(strings.TrimSpace(region))
	if !slices.Contains(s.source.Regions(), name) {
		return "", fmt.Errorf("region %q: %w", region, ErrRegionNotFound)
	}
	return name, nil
}

func (s *Service) days(days int) int {
	if days <= 0 {
		return s.cfg.DefaultDays
	}
	return days
}

// GetDashboard returns campaigns for one region or all regions. A forced
// refresh fetches live; otherwise the cache is read and refreshed when it
// looks empty, sparse or stale.
func (s *Service) GetDashboard(ctx context.Context, days int, region string, forceRefresh bool) (*Result, error) {
	days = s.days(days)

	if region != "" {
		name, err := s.resolveRegion(region)
		if err != nil {
			return nil, err
		}
		region = name
	}

	if forceRefresh {
		rctx, cancel := s.detach(ctx)
		defer cancel()
		res, err := s.refresh(rctx, days, region, TriggerForced)
		if err != nil {
			return nil, err
		}
		metrics.IncDashboardReads(SourceLive)
		return res, nil
	}

	cached, err := s.readCache(ctx, days, region)
	if err != nil {
		return nil, err
	}

	if trigger := s.needsRefresh(cached); trigger != "" {
		s.logger.Info("cache needs refresh", "region", region, "trigger", trigger, "rows", cached.Count())
		rctx, cancel := s.detach(ctx)
		defer cancel()
		res, err := s.refresh(rctx, days, region, trigger)
		if err == nil {
			metrics.IncDashboardReads(SourceLive)
			return res, nil
		}
		s.logger.Warn("automatic refresh failed, serving cache", "region", region, "error", err)
	}

	metrics.IncDashboardReads(SourceCache)
	return cached, nil
}

// detach keeps the request's values but not its cancellation, so a refresh
// that has started finishes and reaches the cache. Close still stops it.
func (s *Service) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Service) readCache(ctx context.Context, days int, region string) (*Result, error) {
	res := &Result{Source: SourceCache, Region: region}

	if region != "" {
		recs, err := s.store.GetCached(ctx, store.Query{WindowDays: days, Region: region})
		if err != nil {
			return nil, fmt.Errorf("failed to read cache: %w", err)
		}
		res.Campaigns = recs
		return res, nil
	}

	res.ByRegion = make(map[string][]models.CampaignRecord)
	for _, name := range s.source.Regions() {
		recs, err := s.store.GetCached(ctx, store.Query{WindowDays: days, Region: name})
		if err != nil {
			return nil, fmt.Errorf("failed to read cache for %s: %w", name, err)
		}
		res.ByRegion[name] = recs
	}
	return res, nil
}

// needsRefresh returns the refresh trigger for a cache read, or "" to serve it
func (s *Service) needsRefresh(cached *Result) string {
	if cached.Region != "" {
		if len(cached.Campaigns) == 0 {
			return TriggerSelfHeal
		}
	} else if cached.Count() < len(s.source.Regions()) {
		// fewer rows than regions usually means a cold or cleared cache
		return TriggerSelfHeal
	}

	if s.cfg.MaxAge > 0 {
		var newest time.Time
		for _, rec := range cached.All() {
			if rec.UpdatedAt.After(newest) {
				newest = rec.UpdatedAt
			}
		}
		if s.now().Sub(newest) > s.cfg.MaxAge {
			return TriggerStale
		}
	}
	return ""
}

// refresh fetches live data for one region or all regions and writes it to
// the cache
func (s *Service) refresh(ctx context.Context, days int, region, trigger string) (*Result, error) {
	if region != "" {
		recs, err := s.refreshRegion(ctx, days, region, trigger)
		if err != nil {
			return nil, fmt.Errorf("refresh %s: %w: %w", region, ErrUpstreamUnavailable, err)
		}
		return &Result{Source: SourceLive, Region: region, Campaigns: recs}, nil
	}

	syncs := s.refreshAll(ctx, days, trigger)

	res := &Result{Source: SourceLive, ByRegion: make(map[string][]models.CampaignRecord, len(syncs))}
	var errs []error
	for _, rs := range syncs {
		if rs.Err != nil {
			if res.Errors == nil {
				res.Errors = make(map[string]string)
			}
			res.Errors[rs.Region] = rs.Err.Error()
			res.ByRegion[rs.Region] = []models.CampaignRecord{}
			errs = append(errs, rs.Err)
			continue
		}
		res.ByRegion[rs.Region] = rs.Campaigns
	}

	if len(syncs) > 0 && len(errs) == len(syncs) {
		return nil, fmt.Errorf("refresh all regions: %w: %w", ErrUpstreamUnavailable, errors.Join(errs...))
	}
	return res, nil
}

// RegionSync is the outcome of refreshing one region
type RegionSync struct {
	Region    string
	Campaigns []models.CampaignRecord
	Stats     aggregate.Stats
	Duration  time.Duration
	Err       error
}

// refreshAll refreshes every region concurrently; one region failing does
// not stop the others
func (s *Service) refreshAll(ctx context.Context, days int, trigger string) []RegionSync {
	regions := s.source.Regions()
	out := make([]RegionSync, len(regions))

	var g errgroup.Group
	for i, name := range regions {
		g.Go(func() error {
			start := s.now()
			recs, err := s.refreshRegion(ctx, days, name, trigger)
			out[i] = RegionSync{
				Region:    name,
				Campaigns: recs,
				Duration:  s.now().Sub(start),
				Err:       err,
			}
			if err != nil {
				s.logger.Error("region refresh failed", "region", name, "trigger", trigger, "error", err)
			}
			return nil
		})
	}
	g.Wait()

	return out
}

// refreshRegion lists campaigns, attaches reports and upserts the result.
// Only a failed listing is an error; report and cache write failures are
// logged.
func (s *Service) refreshRegion(ctx context.Context, days int, region, trigger string) ([]models.CampaignRecord, error) {
	start := time.Now()
	result := "ok"
	defer func() {
		metrics.ObserveRefresh(region, trigger, result, time.Since(start).Seconds())
	}()

	client, err := s.source.Client(region)
	if err != nil {
		result = "error"
		return nil, err
	}

	campaigns, err := client.ListCampaigns(ctx, mailchimp.ListOptions{SinceDays: days, Limit: s.cfg.CampaignLimit})
	if err != nil {
		result = "error"
		return nil, fmt.Errorf("list campaigns: %w", err)
	}

	recs, stats, err := s.aggregator.Aggregate(ctx, client, campaigns)
	if err != nil {
		result = "error"
		return nil, fmt.Errorf("aggregate reports: %w", err)
	}
	if stats.Failures > 0 {
		result = "partial"
	}

	for i := range recs {
		recs[i].Region = region
	}
	slices.SortStableFunc(recs, func(a, b models.CampaignRecord) int {
		return b.SendTime.Compare(a.SendTime)
	})

	if err := s.store.Upsert(ctx, region, recs); err != nil {
		s.logger.Error("failed to write campaigns to cache", "region", region, "error", err)
	}

	s.logger.Info("region refreshed", "region", region, "trigger", trigger,
		"campaigns", stats.Campaigns, "report_failures", stats.Failures, "duration", time.Since(start))
	return recs, nil
}

// SyncAll refreshes every region and writes through to the cache
func (s *Service) SyncAll(ctx context.Context, days int) []RegionSync {
	return s.refreshAll(ctx, s.days(days), TriggerSync)
}

// SyncAllInBackground starts a detached sync of all regions. It returns
// false when a sync is already running.
func (s *Service) SyncAllInBackground(days int) bool {
	if !s.syncing.CompareAndSwap(false, true) {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.syncing.Store(false)

		s.logger.Info("background sync started", "days", s.days(days))
		syncs := s.SyncAll(s.ctx, days)

		failed := 0
		for _, rs := range syncs {
			if rs.Err != nil {
				failed++
			}
		}
		s.logger.Info("background sync finished", "regions", len(syncs), "failed", failed)
	}()
	return true
}

// Syncing reports whether a background sync is running
func (s *Service) Syncing() bool {
	return s.syncing.Load()
}

// ReadCache returns cached data without ever triggering a refresh
func (s *Service) ReadCache(ctx context.Context, days int, region string) (*Result, error) {
	if region != "" {
		name, err := s.resolveRegion(region)
		if err != nil {
			return nil, err
		}
		region = name
	}
	return s.readCache(ctx, s.days(days), region)
}

// ClearCache deletes cached rows for region, or all rows when region is empty
func (s *Service) ClearCache(ctx context.Context, region string) (int64, error) {
	if region != "" {
		region = strings.ToUpper(strings.TrimSpace(region))
	}
	n, err := s.store.Clear(ctx, region)
	if err != nil {
		return 0, err
	}
	s.logger.Info("cache cleared", "region", region, "deleted", n)
	return n, nil
}

func (s *Service) CacheStats(ctx context.Context) (models.CacheStats, error) {
	return s.store.Stats(ctx)
}

// Audiences returns lists per region. With region empty every region is
// queried and a failing region yields an empty list.
func (s *Service) Audiences(ctx context.Context, region string) (map[string][]models.AudienceSummary, error) {
	if region != "" {
		name, err := s.resolveRegion(region)
		if err != nil {
			return nil, err
		}
		client, err := s.source.Client(name)
		if err != nil {
			return nil, err
		}
		lists, err := client.GetAudienceLists(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}
		return map[string][]models.AudienceSummary{name: lists}, nil
	}

	regions := s.source.Regions()
	results := make([][]models.AudienceSummary, len(regions))

	var g errgroup.Group
	for i, name := range regions {
		g.Go(func() error {
			results[i] = []models.AudienceSummary{}
			client, err := s.source.Client(name)
			if err != nil {
				return nil
			}
			lists, err := client.GetAudienceLists(ctx)
			if err != nil {
				s.logger.Warn("failed to list audiences", "region", name, "error", err)
				return nil
			}
			results[i] = lists
			return nil
		})
	}
	g.Wait()

	out := make(map[string][]models.AudienceSummary, len(regions))
	for i, name := range regions {
		out[name] = results[i]
	}
	return out, nil
}

// GrowthHistory returns monthly growth for one audience
func (s *Service) GrowthHistory(ctx context.Context, region, listID string, months int) ([]models.MonthlyGrowth, error) {
	name, err := s.resolveRegion(region)
	if err != nil {
		return nil, err
	}
	client, err := s.source.Client(name)
	if err != nil {
		return nil, err
	}
	history, err := client.GetGrowthHistory(ctx, listID, months)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	return history, nil
}

// Ready checks the cache backend connection
func (s *Service) Ready(ctx context.Context) error {
	return store.Ready(ctx, s.store)
}

// TestCredentials checks the credentials of every region
func (s *Service) TestCredentials(ctx context.Context) []models.RegionStatus {
	return s.source.TestCredentials(ctx)
}
