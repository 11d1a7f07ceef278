// Package prompt renders the AI analysis prompt from cached campaign data.
// The template is editable at runtime and stored in settings.
package prompt

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"
	"strings"
	"text/template"

	"github.com/foxzi/campaignhub/internal/models"
)

// DefaultTemplate is used until an operator saves their own
const DefaultTemplate = `You are an email marketing analyst. Review the Mailchimp campaign results below for {{.Scope}} over the last {{.Days}} days and write a short summary for the marketing team.

Totals: {{.Totals.Campaigns}} campaigns, {{.Totals.EmailsSent}} emails sent, average open rate {{pct .Totals.AvgOpenRate}}, average click rate {{pct .Totals.AvgClickRate}}, {{.Totals.Unsubscribed}} unsubscribes, {{.Totals.Bounces}} bounces.
{{if .TopCampaigns}}
Best campaigns by open rate:
{{range .TopCampaigns}}- {{.Title}} ({{.Region}}, {{.SendTime.Format "2006-01-02"}}): open {{pct .OpenRate}}, click {{pct .ClickRate}}, {{.EmailsSent}} sent
{{end}}{{end}}{{if .Audiences}}
By audience:
{{range .Audiences}}- {{.Name}}: {{.Campaigns}} campaigns, open {{pct .AvgOpenRate}}, click {{pct .AvgClickRate}}
{{end}}{{end}}
Point out trends, underperforming audiences and one concrete next step.`

// TopN is how many campaigns the summary lists
const TopN = 5

// Totals aggregates campaigns that have reports
type Totals struct {
	Campaigns    int
	Reported     int
	EmailsSent   int
	Unsubscribed int
	Bounces      int
	AvgOpenRate  float64
	AvgClickRate float64
}

// AudienceStats aggregates campaigns per audience
type AudienceStats struct {
	Name         string
	Campaigns    int
	AvgOpenRate  float64
	AvgClickRate float64
}

// CampaignLine is one campaign in the top list
type CampaignLine struct {
	models.CampaignRecord
	OpenRate  float64
	ClickRate float64
}

// Data is what a prompt template sees
type Data struct {
	Scope        string
	Days         int
	Totals       Totals
	TopCampaigns []CampaignLine
	Audiences    []AudienceStats
}

// Summarize builds template data. region "" means all regions.
func Summarize(campaigns []models.CampaignRecord, region string, days int) Data {
	d := Data{Scope: "all regions", Days: days}
	if region != "" {
		d.Scope = "region " + region
	}
	d.Totals.Campaigns = len(campaigns)

	type acc struct {
		campaigns int
		reported  int
		open      float64
		click     float64
	}
	audiences := make(map[string]*acc)
	var open, click float64

	for _, c := range campaigns {
		d.Totals.EmailsSent += c.EmailsSent

		name := c.AudienceName
		if name == "" {
			name = "Unknown Audience"
		}
		a, ok := audiences[name]
		if !ok {
			a = &acc{}
			audiences[name] = a
		}
		a.campaigns++

		if !c.HasReport() {
			continue
		}
		d.Totals.Reported++
		d.Totals.Unsubscribed += c.Unsubscribed
		d.Totals.Bounces += c.Bounces
		open += c.Performance.OpenRate
		click += c.Performance.ClickRate
		a.reported++
		a.open += c.Performance.OpenRate
		a.click += c.Performance.ClickRate

		d.TopCampaigns = append(d.TopCampaigns, CampaignLine{
			CampaignRecord: c,
			OpenRate:       c.Performance.OpenRate,
			ClickRate:      c.Performance.ClickRate,
		})
	}

	if d.Totals.Reported > 0 {
		d.Totals.AvgOpenRate = open / float64(d.Totals.Reported)
		d.Totals.AvgClickRate = click / float64(d.Totals.Reported)
	}

	slices.SortStableFunc(d.TopCampaigns, func(a, b CampaignLine) int {
		return cmp.Compare(b.OpenRate, a.OpenRate)
	})
	if len(d.TopCampaigns) > TopN {
		d.TopCampaigns = d.TopCampaigns[:TopN]
	}

	for name, a := range audiences {
		s := AudienceStats{Name: name, Campaigns: a.campaigns}
		if a.reported > 0 {
			s.AvgOpenRate = a.open / float64(a.reported)
			s.AvgClickRate = a.click / float64(a.reported)
		}
		d.Audiences = append(d.Audiences, s)
	}
	slices.SortFunc(d.Audiences, func(a, b AudienceStats) int {
		if c := cmp.Compare(b.Campaigns, a.Campaigns); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	return d
}

var funcs = template.FuncMap{
	// Mailchimp rates are fractions
	"pct": func(rate float64) string {
		return fmt.Sprintf("%.1f%%", rate*100)
	},
}

func parse(tmpl string) (*template.Template, error) {
	return template.New("prompt").Funcs(funcs).Option("missingkey=error").Parse(tmpl)
}

// Validate checks template syntax
func Validate(tmpl string) error {
	if strings.TrimSpace(tmpl) == "" {
		return fmt.Errorf("template is empty")
	}
	if _, err := parse(tmpl); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}
	return nil
}

// Render executes tmpl, falling back to DefaultTemplate when tmpl is empty
func Render(tmpl string, data Data) (string, error) {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultTemplate
	}
	t, err := parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}
