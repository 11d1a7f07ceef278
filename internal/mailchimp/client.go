package mailchimp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/foxzi/campaignhub/internal/config"
	"github.com/foxzi/campaignhub/internal/metrics"
	"github.com/foxzi/campaignhub/internal/models"
)

const (
	// Used when a client has no credentials
	fallbackBaseURL = "https://us1.api.mailchimp.com/3.0"

	unknownAudience = "Unknown Audience"
	maxLists        = 100
)

// Options tunes every client created by a Manager
type Options struct {
	Timeout           time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	PageSize          int
	CampaignLimit     int
	RequestsPerSecond float64
	Burst             int
	BreakerThreshold  uint32
	BreakerTimeout    time.Duration

	// BaseURL and AdminURL override the prefix-derived hosts, e.g. in tests
	BaseURL  string
	AdminURL string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OptionsFromConfig maps the mailchimp config section to client options
func OptionsFromConfig(cfg config.MailchimpConfig, logger *slog.Logger) Options {
	return Options{
		Timeout:           cfg.Timeout,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		PageSize:          cfg.PageSize,
		CampaignLimit:     cfg.CampaignLimit,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		BreakerThreshold:  cfg.Breaker.FailureThreshold,
		BreakerTimeout:    cfg.Breaker.OpenTimeout,
		Logger:            logger,
	}
}

func (o *Options) setDefaults() {
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.RetryBackoff == 0 {
		o.RetryBackoff = time.Second
	}
	if o.PageSize <= 0 || o.PageSize > 1000 {
		o.PageSize = 1000
	}
	if o.CampaignLimit <= 0 {
		o.CampaignLimit = 1000
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 10
	}
	if o.Burst <= 0 {
		o.Burst = 10
	}
	if o.BreakerThreshold == 0 {
		o.BreakerThreshold = 5
	}
	if o.BreakerTimeout == 0 {
		o.BreakerTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Client talks to the Mailchimp Marketing API for one region
type Client struct {
	region       string
	serverPrefix string
	baseURL      string
	adminURL     string
	apiKey       string
	enabled      bool

	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[struct{}]
	segments   *SegmentCache
	lookups    singleflight.Group
	opts       Options
	logger     *slog.Logger

	now func() time.Time
}

// NewClient creates a client for one region. A region without an API key or
// server prefix yields a disabled client whose calls return ErrNotConfigured.
func NewClient(region config.RegionConfig, opts Options) *Client {
	opts.setDefaults()

	c := &Client{
		region:       region.Name,
		serverPrefix: region.ServerPrefix,
		apiKey:       region.APIKey,
		enabled:      region.APIKey != "" && region.ServerPrefix != "",
		limiter:      rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		segments:     NewSegmentCache(),
		opts:         opts,
		logger:       opts.Logger.With("component", "mailchimp", "region", region.Name),
		now:          time.Now,
	}

	c.httpClient = opts.HTTPClient
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: opts.Timeout}
	}

	switch {
	case !c.enabled:
		c.baseURL = fallbackBaseURL
		c.apiKey = ""
	case opts.BaseURL != "":
		c.baseURL = opts.BaseURL
	default:
		c.baseURL = fmt.Sprintf("https://%s.api.mailchimp.com/3.0", region.ServerPrefix)
	}
	switch {
	case !c.enabled:
	case opts.AdminURL != "":
		c.adminURL = opts.AdminURL
	default:
		c.adminURL = fmt.Sprintf("https://%s.admin.mailchimp.com", region.ServerPrefix)
	}

	c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "mailchimp-" + region.Name,
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerThreshold
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
			metrics.SetBreakerState(c.region, int(to))
		},
	})

	return c
}

// breakerSuccess counts only transport level failures against the breaker.
// A 404 for a deleted segment says nothing about upstream health.
func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var te *TransportError
	if errors.As(err, &te) && te.StatusCode >= 400 && te.StatusCode < 500 && te.StatusCode != http.StatusTooManyRequests {
		return true
	}
	return false
}

// Region returns the region name
func (c *Client) Region() string {
	return c.region
}

// ServerPrefix returns the data center prefix, e.g. us6
func (c *Client) ServerPrefix() string {
	return c.serverPrefix
}

// Enabled reports whether the client has credentials
func (c *Client) Enabled() bool {
	return c.enabled
}

// Segments exposes the segment name cache
func (c *Client) Segments() *SegmentCache {
	return c.segments
}

// get performs a GET against the API and decodes the JSON body into result
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, result any) error {
	return c.do(ctx, http.MethodGet, endpoint, path, params, result)
}

// do runs one logical request through the circuit breaker. Only GET
// requests are retried.
func (c *Client) do(ctx context.Context, method, endpoint, path string, params url.Values, result any) error {
	if !c.enabled {
		return ErrNotConfigured
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	_, err := c.breaker.Execute(func() (struct{}, error) {
		if method != http.MethodGet || c.opts.MaxRetries == 0 {
			return struct{}{}, c.attempt(ctx, method, endpoint, path, u, result)
		}

		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = c.opts.RetryBackoff
		eb.Multiplier = 2
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = 0
		policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.opts.MaxRetries)), ctx)

		op := func() error {
			err := c.attempt(ctx, method, endpoint, path, u, result)
			if err != nil && !c.shouldRetry(ctx, err) {
				return backoff.Permanent(err)
			}
			return err
		}
		notify := func(err error, wait time.Duration) {
			metrics.IncUpstreamRetries(c.region)
			c.logger.Debug("retrying upstream request", "path", path, "wait", wait, "error", err)
		}
		return struct{}{}, backoff.RetryNotify(op, policy, notify)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &TransportError{Region: c.region, Path: path, Err: err}
	}
	return err
}

func (c *Client) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	if te.StatusCode != 0 {
		return retryable(te.StatusCode)
	}
	// No status means the request never completed
	var netErr net.Error
	if errors.As(te.Err, &netErr) {
		return true
	}
	return errors.Is(te.Err, io.ErrUnexpectedEOF) || errors.Is(te.Err, context.DeadlineExceeded)
}

// attempt performs a single HTTP round trip
func (c *Client) attempt(ctx context.Context, method, endpoint, path, u string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &TransportError{Region: c.region, Path: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstreamRequest(c.region, endpoint, "error", time.Since(start).Seconds())
		return &TransportError{Region: c.region, Path: path, Err: err}
	}
	defer resp.Body.Close()
	metrics.ObserveUpstreamRequest(c.region, endpoint, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		detail := http.StatusText(resp.StatusCode)
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Detail != "" {
			detail = errResp.Detail
		}
		return &TransportError{Region: c.region, Path: path, StatusCode: resp.StatusCode, Err: errors.New(detail)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return &TransportError{Region: c.region, Path: path, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

// ListOptions filters a campaign listing
type ListOptions struct {
	SinceDays int
	Status    string
	// Limit caps the number of campaigns returned; zero uses the client default
	Limit int
}

// ListCampaigns pages through sent campaigns newest first. Any failed page
// aborts the listing and returns no campaigns.
func (c *Client) ListCampaigns(ctx context.Context, opts ListOptions) ([]models.CampaignRecord, error) {
	if !c.enabled {
		return []models.CampaignRecord{}, ErrNotConfigured
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = c.opts.CampaignLimit
	}
	status := opts.Status
	if status == "" {
		status = "sent"
	}
	since := c.now().UTC().AddDate(0, 0, -opts.SinceDays).Format(time.RFC3339)

	records := make([]models.CampaignRecord, 0)
	offset := 0
	for {
		params := url.Values{}
		params.Set("status", status)
		params.Set("since_send_time", since)
		params.Set("count", strconv.Itoa(min(c.opts.PageSize, limit-len(records))))
		params.Set("offset", strconv.Itoa(offset))
		params.Set("sort_field", "send_time")
		params.Set("sort_dir", "DESC")

		var page campaignsResponse
		if err := c.get(ctx, "campaigns", "/campaigns", params, &page); err != nil {
			return []models.CampaignRecord{}, err
		}

		for _, camp := range page.Campaigns {
			if len(records) >= limit {
				break
			}
			records = append(records, c.toRecord(ctx, camp))
		}

		if len(page.Campaigns) == 0 || len(records) >= page.TotalItems || len(records) >= limit {
			break
		}
		offset += len(page.Campaigns)
	}

	c.logger.Debug("listed campaigns", "count", len(records), "since_days", opts.SinceDays)
	return records, nil
}

func (c *Client) toRecord(ctx context.Context, camp campaign) models.CampaignRecord {
	rec := models.CampaignRecord{
		ID:             camp.ID,
		WebID:          camp.WebID,
		Region:         c.region,
		Title:          camp.Settings.Title,
		SubjectLine:    camp.Settings.SubjectLine,
		EmailsSent:     camp.EmailsSent,
		ArchiveURL:     camp.ArchiveURL,
		AudienceID:     camp.Recipients.ListID,
		AudienceName:   camp.Recipients.ListName,
		RecipientCount: camp.Recipients.RecipientCount,
	}
	if rec.AudienceName == "" {
		rec.AudienceName = unknownAudience
	}
	if camp.SendTime != "" {
		if t, err := time.Parse(time.RFC3339, camp.SendTime); err == nil {
			rec.SendTime = t.UTC()
		} else {
			c.logger.Warn("unparseable send_time", "campaign_id", camp.ID, "send_time", camp.SendTime)
		}
	}
	if camp.WebID != 0 && c.adminURL != "" {
		rec.ReportURL = fmt.Sprintf("%s/reports/summary?id=%d", c.adminURL, camp.WebID)
	}

	rec.SegmentText = camp.Recipients.SegmentText
	if so := camp.Recipients.SegmentOpts; so != nil {
		switch {
		case so.SavedSegmentID != 0:
			rec.SegmentID = strconv.FormatInt(so.SavedSegmentID, 10)
		case so.PrebuiltSegmentID != "":
			rec.SegmentID = so.PrebuiltSegmentID
		}
		if rec.SegmentText == "" {
			rec.SegmentText = so.SegmentText
		}
		if rec.SegmentText == "" {
			rec.SegmentText = so.Match
		}
	}
	if rec.SegmentID != "" && rec.SegmentText == "" && rec.AudienceID != "" {
		rec.SegmentText = c.ResolveSegmentName(ctx, rec.AudienceID, rec.SegmentID)
	}

	return rec
}

// ResolveSegmentName returns the display name of a segment. Each pair is
// fetched at most once per client; failures are remembered as "Segment #<id>".
// A lookup aborted by its context returns the placeholder without caching it.
func (c *Client) ResolveSegmentName(ctx context.Context, listID, segmentID string) string {
	if name, ok := c.segments.Get(listID, segmentID); ok {
		return name
	}

	v, _, _ := c.lookups.Do(segmentKey(listID, segmentID), func() (any, error) {
		if name, ok := c.segments.Get(listID, segmentID); ok {
			return name, nil
		}

		name := "Segment #" + segmentID
		var seg segmentResponse
		path := "/lists/" + url.PathEscape(listID) + "/segments/" + url.PathEscape(segmentID)
		if err := c.get(ctx, "segments", path, nil, &seg); err != nil {
			if ctx.Err() != nil {
				return name, nil
			}
			c.logger.Warn("segment lookup failed", "list_id", listID, "segment_id", segmentID, "error", err)
		} else if seg.Name != "" {
			name = seg.Name
		}
		c.segments.Set(listID, segmentID, name)
		return name, nil
	})
	return v.(string)
}

// ReportResult is the outcome of one report fetch. Err is set when the
// report could not be retrieved; Performance is nil in that case.
type ReportResult struct {
	CampaignID  string
	Performance *models.Performance
	Err         error
}

// OK reports whether the fetch succeeded
func (r ReportResult) OK() bool {
	return r.Err == nil
}

// GetCampaignReport fetches performance metrics for one campaign.
// It never fails outright; errors are carried in the result.
func (c *Client) GetCampaignReport(ctx context.Context, campaignID string) ReportResult {
	var rep reportResponse
	if err := c.get(ctx, "reports", "/reports/"+url.PathEscape(campaignID), nil, &rep); err != nil {
		return ReportResult{CampaignID: campaignID, Err: err}
	}

	return ReportResult{
		CampaignID: campaignID,
		Performance: &models.Performance{
			Opens:          rep.Opens.OpensTotal,
			UniqueOpens:    rep.Opens.UniqueOpens,
			OpenRate:       rep.Opens.OpenRate,
			Clicks:         rep.Clicks.ClicksTotal,
			UniqueClicks:   rep.Clicks.UniqueClicks,
			ClickRate:      rep.Clicks.ClickRate,
			Unsubscribed:   rep.Unsubscribed,
			Bounces:        rep.Bounces.HardBounces + rep.Bounces.SoftBounces,
			ShareReportURL: rep.ShareReport.ShareURL,
		},
	}
}

// GetAudienceLists returns up to 100 audiences. Larger accounts are truncated.
func (c *Client) GetAudienceLists(ctx context.Context) ([]models.AudienceSummary, error) {
	params := url.Values{}
	params.Set("count", strconv.Itoa(maxLists))

	var resp listsResponse
	if err := c.get(ctx, "lists", "/lists", params, &resp); err != nil {
		return []models.AudienceSummary{}, err
	}

	lists := make([]models.AudienceSummary, 0, len(resp.Lists))
	for _, l := range resp.Lists {
		lists = append(lists, models.AudienceSummary{
			ID:               l.ID,
			Name:             l.Name,
			MemberCount:      l.Stats.MemberCount,
			UnsubscribeCount: l.Stats.UnsubscribeCount,
			OpenRate:         l.Stats.OpenRate,
			ClickRate:        l.Stats.ClickRate,
		})
	}
	return lists, nil
}

// GetGrowthHistory returns monthly growth for a list, newest month first
func (c *Client) GetGrowthHistory(ctx context.Context, listID string, months int) ([]models.MonthlyGrowth, error) {
	if months <= 0 {
		months = 12
	}
	params := url.Values{}
	params.Set("count", strconv.Itoa(months))
	params.Set("sort_field", "month")
	params.Set("sort_dir", "DESC")

	var resp growthHistoryResponse
	if err := c.get(ctx, "growth", "/lists/"+url.PathEscape(listID)+"/growth-history", params, &resp); err != nil {
		return []models.MonthlyGrowth{}, err
	}

	history := make([]models.MonthlyGrowth, 0, len(resp.History))
	for _, h := range resp.History {
		history = append(history, models.MonthlyGrowth(h))
	}
	return history, nil
}

// Ping checks that the credentials are accepted
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "ping", "/ping", nil, nil)
}
