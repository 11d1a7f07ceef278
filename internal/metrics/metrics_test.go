package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.Registry() == nil {
		t.Error("Registry() returned nil")
	}
	if m.UpstreamRequestsTotal == nil {
		t.Error("UpstreamRequestsTotal is nil")
	}
	if m.RefreshTotal == nil {
		t.Error("RefreshTotal is nil")
	}
	if m.CacheRows == nil {
		t.Error("CacheRows is nil")
	}
	if m.APIRequestsTotal == nil {
		t.Error("APIRequestsTotal is nil")
	}
}

func TestGlobalMetrics(t *testing.T) {
	SetGlobal(nil)
	if Global() != nil {
		t.Error("Global() should be nil before SetGlobal")
	}

	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	if Global() != m {
		t.Error("Global() did not return the set metrics")
	}
}

func TestObserveUpstreamRequest(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	ObserveUpstreamRequest("US", "campaigns", "200", 0.1)
	ObserveUpstreamRequest("US", "campaigns", "200", 0.2)
	ObserveUpstreamRequest("US", "reports", "503", 0.3)

	if got := counterValue(t, m.UpstreamRequestsTotal.WithLabelValues("US", "campaigns", "200")); got != 2 {
		t.Errorf("campaigns 200 = %v, want 2", got)
	}
	if got := counterValue(t, m.UpstreamRequestsTotal.WithLabelValues("US", "reports", "503")); got != 1 {
		t.Errorf("reports 503 = %v, want 1", got)
	}
}

func TestRefreshAndReportCounters(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncReportFailures("EU")
	IncReportFailures("EU")
	IncUpstreamRetries("EU")
	ObserveRefresh("EU", "forced", "ok", 1.5)
	IncDashboardReads("cache")

	if got := counterValue(t, m.ReportFailuresTotal.WithLabelValues("EU")); got != 2 {
		t.Errorf("ReportFailuresTotal = %v, want 2", got)
	}
	if got := counterValue(t, m.UpstreamRetriesTotal.WithLabelValues("EU")); got != 1 {
		t.Errorf("UpstreamRetriesTotal = %v, want 1", got)
	}
	if got := counterValue(t, m.RefreshTotal.WithLabelValues("EU", "forced", "ok")); got != 1 {
		t.Errorf("RefreshTotal = %v, want 1", got)
	}
	if got := counterValue(t, m.DashboardReadsTotal.WithLabelValues("cache")); got != 1 {
		t.Errorf("DashboardReadsTotal = %v, want 1", got)
	}
}

func TestSetCacheRowsReplaces(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	SetCacheRows(map[string]int64{"US": 3, "EU": 2})
	SetCacheRows(map[string]int64{"US": 5})

	if n := testCollectCount(m.CacheRows); n != 1 {
		t.Errorf("series after replace = %d, want 1", n)
	}
	if got := gaugeValue(t, m.CacheRows.WithLabelValues("US")); got != 5 {
		t.Errorf("CacheRows[US] = %v, want 5", got)
	}
}

func testCollectCount(c prometheus.Collector) int {
	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)
	n := 0
	for range ch {
		n++
	}
	return n
}

func TestSetBreakerState(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	SetBreakerState("APAC", 2)
	if got := gaugeValue(t, m.BreakerState.WithLabelValues("APAC")); got != 2 {
		t.Errorf("BreakerState = %v, want 2", got)
	}
}

func TestGlobalNilSafe(t *testing.T) {
	SetGlobal(nil)

	// None of these may panic without a registry
	ObserveUpstreamRequest("US", "campaigns", "200", 0)
	IncUpstreamRetries("US")
	SetBreakerState("US", 0)
	IncReportFailures("US")
	ObserveRefresh("US", "forced", "ok", 0)
	IncDashboardReads("live")
	SetCacheRows(map[string]int64{"US": 1})
	IncAPIErrors("server_error")
}

type stubCacheStats struct {
	rows map[string]int64
	err  error
}

func (s *stubCacheStats) RowsByRegion(ctx context.Context) (map[string]int64, error) {
	return s.rows, s.err
}

func TestCollectorCollect(t *testing.T) {
	m := New()
	c := NewCollector(m, &stubCacheStats{rows: map[string]int64{"US": 7}}, 0)
	c.Collect(context.Background())

	if got := gaugeValue(t, m.CacheRows.WithLabelValues("US")); got != 7 {
		t.Errorf("CacheRows[US] = %v, want 7", got)
	}
	if got := gaugeValue(t, m.Goroutines); got <= 0 {
		t.Errorf("Goroutines = %v, want > 0", got)
	}
}

func TestCollectorKeepsGaugesOnError(t *testing.T) {
	m := New()
	m.CacheRows.WithLabelValues("US").Set(4)

	c := NewCollector(m, &stubCacheStats{err: errors.New("db closed")}, 0)
	c.Collect(context.Background())

	if got := gaugeValue(t, m.CacheRows.WithLabelValues("US")); got != 4 {
		t.Errorf("CacheRows[US] = %v, want 4 kept", got)
	}
}

func TestCollectorStartStop(t *testing.T) {
	m := New()
	c := NewCollector(m, nil, 0)
	c.Start(context.Background())
	c.Stop()
	c.Stop()
}
