package refresh

import (
	"github.com/goccy/go-json"

	"github.com/foxzi/campaignhub/internal/models"
)

// Result sources
const (
	SourceCache = "cache"
	SourceLive  = "live"
)

// Result is a dashboard read. Single-region reads fill Campaigns; all-region
// reads fill ByRegion.
type Result struct {
	Source    string
	Region    string
	Campaigns []models.CampaignRecord
	ByRegion  map[string][]models.CampaignRecord
	// Errors holds per-region refresh failures that did not fail the read
	Errors map[string]string
}

// All returns every campaign in the result
func (r *Result) All() []models.CampaignRecord {
	if r.Region != "" {
		return r.Campaigns
	}
	var out []models.CampaignRecord
	for _, recs := range r.ByRegion {
		out = append(out, recs...)
	}
	return out
}

// Count returns the number of campaigns in the result
func (r *Result) Count() int {
	if r.Region != "" {
		return len(r.Campaigns)
	}
	n := 0
	for _, recs := range r.ByRegion {
		n += len(recs)
	}
	return n
}

// MarshalJSON renders {source, region?, data, errors?} where data is a list
// for one region and a region-keyed map otherwise.
func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		Source string            `json:"source"`
		Region string            `json:"region,omitempty"`
		Data   any               `json:"data"`
		Errors map[string]string `json:"errors,omitempty"`
	}{
		Source: r.Source,
		Region: r.Region,
		Errors: r.Errors,
	}

	if r.Region != "" {
		data := r.Campaigns
		if data == nil {
			data = []models.CampaignRecord{}
		}
		out.Data = data
	} else {
		data := r.ByRegion
		if data == nil {
			data = map[string][]models.CampaignRecord{}
		}
		out.Data = data
	}

	return json.Marshal(out)
}
