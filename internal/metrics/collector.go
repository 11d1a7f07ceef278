package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// CacheStatsProvider reports cached row counts per region
type CacheStatsProvider interface {
	RowsByRegion(ctx context.Context) (map[string]int64, error)
}

// Collector periodically refreshes gauges that are sampled rather than counted
type Collector struct {
	metrics   *Metrics
	cache     CacheStatsProvider
	interval  time.Duration
	startTime time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector creates a new metrics collector
func NewCollector(m *Metrics, cache CacheStatsProvider, interval time.Duration) *Collector {
	if interval == 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		metrics:   m,
		cache:     cache,
		interval:  interval,
		startTime: time.Now(),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the collector loop
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.loop(ctx)
}

// Stop stops the collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Collector) loop(ctx context.Context) {
	defer c.wg.Done()

	c.Collect(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Collect(ctx)
		}
	}
}

// Collect samples the current system and cache state
func (c *Collector) Collect(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.cache == nil {
		return
	}
	byRegion, err := c.cache.RowsByRegion(ctx)
	if err != nil {
		return
	}
	c.metrics.CacheRows.Reset()
	for region, n := range byRegion {
		c.metrics.CacheRows.WithLabelValues(region).Set(float64(n))
	}
}
