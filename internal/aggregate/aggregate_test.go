package aggregate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foxzi/campaignhub/internal/mailchimp"
	"github.com/foxzi/campaignhub/internal/models"
)

type fakeFetcher struct {
	fail     map[string]bool
	panics   map[string]bool
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (f *fakeFetcher) Region() string { return "US" }

func (f *fakeFetcher) GetCampaignReport(ctx context.Context, id string) mailchimp.ReportResult {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panics[id] {
		panic("boom")
	}
	if f.fail[id] {
		return mailchimp.ReportResult{CampaignID: id, Err: errors.New("upstream 500")}
	}
	return mailchimp.ReportResult{CampaignID: id, Performance: &models.Performance{Opens: 5, Bounces: 1}}
}

func campaigns(n int) []models.CampaignRecord {
	out := make([]models.CampaignRecord, n)
	for i := range out {
		out[i] = models.CampaignRecord{ID: "c" + strconv.Itoa(i), Region: "US", Title: "T" + strconv.Itoa(i)}
	}
	return out
}

func newTestAggregator(cfg Config) (*Aggregator, *[]time.Duration) {
	a := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var mu sync.Mutex
	sleeps := []time.Duration{}
	a.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		return ctx.Err()
	}
	return a, &sleeps
}

func TestAggregatePartialFailure(t *testing.T) {
	a, _ := newTestAggregator(DefaultConfig())
	f := &fakeFetcher{fail: map[string]bool{"c1": true, "c4": true, "c8": true}}

	out, stats, err := a.Aggregate(context.Background(), f, campaigns(10))
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(out) != 10 {
		t.Fatalf("len(out) = %d, want 10", len(out))
	}
	if stats.Failures != 3 || stats.Reports != 7 {
		t.Errorf("stats = %+v, want 3 failures 7 reports", stats)
	}

	seen := make(map[string]bool)
	for _, rec := range out {
		if seen[rec.ID] {
			t.Errorf("campaign %s emitted twice", rec.ID)
		}
		seen[rec.ID] = true

		if f.fail[rec.ID] {
			if rec.HasReport() {
				t.Errorf("campaign %s should have no report", rec.ID)
			}
		} else if !rec.HasReport() || rec.Opens != 5 {
			t.Errorf("campaign %s missing report", rec.ID)
		}
		if rec.Title == "" {
			t.Errorf("campaign %s lost summary fields", rec.ID)
		}
	}
}

func TestAggregatePanicIsolated(t *testing.T) {
	a, _ := newTestAggregator(DefaultConfig())
	f := &fakeFetcher{panics: map[string]bool{"c2": true}}

	out, stats, err := a.Aggregate(context.Background(), f, campaigns(4))
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(out) != 4 || stats.Failures != 1 {
		t.Errorf("got %d records, %d failures; want 4, 1", len(out), stats.Failures)
	}
}

func TestAggregateBatchDelays(t *testing.T) {
	tests := []struct {
		n          int
		wantBatch  int
		wantSleeps int
	}{
		{0, 0, 0},
		{1, 1, 0},
		{10, 1, 0},
		{11, 2, 1},
		{25, 3, 2},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.n), func(t *testing.T) {
			a, sleeps := newTestAggregator(DefaultConfig())
			_, stats, err := a.Aggregate(context.Background(), &fakeFetcher{}, campaigns(tt.n))
			if err != nil {
				t.Fatalf("Aggregate() error = %v", err)
			}
			if stats.Batches != tt.wantBatch {
				t.Errorf("Batches = %d, want %d", stats.Batches, tt.wantBatch)
			}
			if len(*sleeps) != tt.wantSleeps {
				t.Errorf("sleeps = %d, want %d", len(*sleeps), tt.wantSleeps)
			}
			for _, d := range *sleeps {
				if d != 500*time.Millisecond {
					t.Errorf("sleep = %v, want 500ms", d)
				}
			}
		})
	}
}

func TestAggregateConcurrencyBound(t *testing.T) {
	a, _ := newTestAggregator(Config{BatchSize: 10, Concurrency: 5})
	f := &fakeFetcher{delay: 20 * time.Millisecond}

	if _, _, err := a.Aggregate(context.Background(), f, campaigns(20)); err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if got := f.maxSeen.Load(); got > 5 {
		t.Errorf("max in flight = %d, want <= 5", got)
	}
	if f.calls.Load() != 20 {
		t.Errorf("calls = %d, want 20", f.calls.Load())
	}
}

func TestAggregateCancelledBetweenBatches(t *testing.T) {
	a, _ := newTestAggregator(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, _, err := a.Aggregate(ctx, &fakeFetcher{}, campaigns(15))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Aggregate() error = %v, want context.Canceled", err)
	}
	if len(out) != 10 {
		t.Errorf("len(out) = %d, want first batch of 10", len(out))
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext() = %v, want context.Canceled", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext() = %v", err)
	}
}
