package mailchimp

// Wire types for the subset of the Marketing API v3 that campaignhub reads.

type campaignsResponse struct {
	Campaigns  []campaign `json:"campaigns"`
	TotalItems int        `json:"total_items"`
}

type campaign struct {
	ID         string             `json:"id"`
	WebID      int64              `json:"web_id"`
	Status     string             `json:"status"`
	SendTime   string             `json:"send_time"`
	EmailsSent int                `json:"emails_sent"`
	ArchiveURL string             `json:"archive_url"`
	Settings   campaignSettings   `json:"settings"`
	Recipients campaignRecipients `json:"recipients"`
}

type campaignSettings struct {
	Title       string `json:"title"`
	SubjectLine string `json:"subject_line"`
}

type campaignRecipients struct {
	ListID         string          `json:"list_id"`
	ListName       string          `json:"list_name"`
	SegmentText    string          `json:"segment_text"`
	RecipientCount int             `json:"recipient_count"`
	SegmentOpts    *segmentOptions `json:"segment_opts"`
}

type segmentOptions struct {
	SavedSegmentID    int64  `json:"saved_segment_id"`
	PrebuiltSegmentID string `json:"prebuilt_segment_id"`
	SegmentText       string `json:"segment_text"`
	Match             string `json:"match"`
}

type reportResponse struct {
	ID           string       `json:"id"`
	EmailsSent   int          `json:"emails_sent"`
	Unsubscribed int          `json:"unsubscribed"`
	Bounces      reportBounce `json:"bounces"`
	Opens        reportOpens  `json:"opens"`
	Clicks       reportClicks `json:"clicks"`
	ShareReport  shareReport  `json:"share_report"`
}

type reportBounce struct {
	HardBounces int `json:"hard_bounces"`
	SoftBounces int `json:"soft_bounces"`
}

type reportOpens struct {
	OpensTotal  int     `json:"opens_total"`
	UniqueOpens int     `json:"unique_opens"`
	OpenRate    float64 `json:"open_rate"`
}

type reportClicks struct {
	ClicksTotal  int     `json:"clicks_total"`
	UniqueClicks int     `json:"unique_clicks"`
	ClickRate    float64 `json:"click_rate"`
}

type shareReport struct {
	ShareURL string `json:"share_url"`
}

type listsResponse struct {
	Lists      []list `json:"lists"`
	TotalItems int    `json:"total_items"`
}

type list struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Stats listStats `json:"stats"`
}

type listStats struct {
	MemberCount      int     `json:"member_count"`
	UnsubscribeCount int     `json:"unsubscribe_count"`
	OpenRate         float64 `json:"open_rate"`
	ClickRate        float64 `json:"click_rate"`
}

type segmentResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type growthHistoryResponse struct {
	History []growthMonth `json:"history"`
}

type growthMonth struct {
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

type errorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}
