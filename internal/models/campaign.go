package models

import "time"

// CampaignRecord is one campaign in one region, with its report merged in.
// (ID, Region) is unique in the cache.
type CampaignRecord struct {
	ID             string    `json:"id"`
	WebID          int64     `json:"web_id,omitempty"`
	Region         string    `json:"region"`
	Title          string    `json:"title"`
	SubjectLine    string    `json:"subject_line"`
	SendTime       time.Time `json:"send_time"`
	EmailsSent     int       `json:"emails_sent"`
	ArchiveURL     string    `json:"archive_url,omitempty"`
	ReportURL      string    `json:"report_url,omitempty"`
	AudienceID     string    `json:"audience_id"`
	AudienceName   string    `json:"audience_name"`
	SegmentID      string    `json:"segment_id,omitempty"`
	SegmentText    string    `json:"segment_text,omitempty"`
	RecipientCount int       `json:"recipient_count"`

	// Nil when the report fetch failed
	*Performance

	UpdatedAt time.Time `json:"updated_at"`
}

// Performance holds report metrics for a campaign
type Performance struct {
	Opens          int     `json:"opens"`
	UniqueOpens    int     `json:"unique_opens"`
	OpenRate       float64 `json:"open_rate"`
	Clicks         int     `json:"clicks"`
	UniqueClicks   int     `json:"unique_clicks"`
	ClickRate      float64 `json:"click_rate"`
	Unsubscribed   int     `json:"unsubscribed"`
	Bounces        int     `json:"bounces"`
	ShareReportURL string  `json:"share_report,omitempty"`
}

// HasReport reports whether performance metrics are attached
func (c *CampaignRecord) HasReport() bool {
	return c.Performance != nil
}

// AudienceSummary is a Mailchimp list with its headline stats
type AudienceSummary struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	MemberCount      int     `json:"member_count"`
	UnsubscribeCount int     `json:"unsubscribe_count"`
	OpenRate         float64 `json:"open_rate"`
	ClickRate        float64 `json:"click_rate"`
}

// MonthlyGrowth is one month of list growth history
type MonthlyGrowth struct {
	Month         string `json:"month"`
	Existing      int    `json:"existing"`
	Imports       int    `json:"imports"`
	Optins        int    `json:"optins"`
	Subscribed    int    `json:"subscribed"`
	Unsubscribed  int    `json:"unsubscribed"`
	Reconfirm     int    `json:"reconfirm"`
	Cleaned       int    `json:"cleaned"`
	Pending       int    `json:"pending"`
	Deleted       int    `json:"deleted"`
	Transactional int    `json:"transactional"`
}

// CacheStats summarizes the cache contents
type CacheStats struct {
	Total    int64            `json:"total"`
	ByRegion map[string]int64 `json:"by_region"`
}

// RegionStatus is the credential check result for one region
// Campaigns counts the sample listing, which holds at most one campaign.
type RegionStatus struct {
	Region         string `json:"region"`
	ServerPrefix   string `json:"server_prefix"`
	OK             bool   `json:"ok"`
	Message        string `json:"message,omitempty"`
	Campaigns      int    `json:"campaigns"`
	SampleCampaign string `json:"sample_campaign,omitempty"`
	Error          string `json:"error,omitempty"`
}
