package refresh

import (
	"context"

	"github.com/foxzi/campaignhub/internal/aggregate"
	"github.com/foxzi/campaignhub/internal/mailchimp"
	"github.com/foxzi/campaignhub/internal/models"
)

// Client is the per-region upstream surface the service needs
type Client interface {
	aggregate.ReportFetcher
	ListCampaigns(ctx context.Context, opts mailchimp.ListOptions) ([]models.CampaignRecord, error)
	GetAudienceLists(ctx context.Context) ([]models.AudienceSummary, error)
	GetGrowthHistory(ctx context.Context, listID string, months int) ([]models.MonthlyGrowth, error)
}

// Source is the fixed region set with one client per region
type Source interface {
	Regions() []string
	Client(region string) (Client, error)
	TestCredentials(ctx context.Context) []models.RegionStatus
}

type managerSource struct {
	*mailchimp.Manager
}

// NewManagerSource exposes a mailchimp.Manager as a Source
func NewManagerSource(m *mailchimp.Manager) Source {
	return managerSource{m}
}

func (m managerSource) Client(region string) (Client, error) {
	c, err := m.GetClient(region)
	if err != nil {
		return nil, err
	}
	return c, nil
}
