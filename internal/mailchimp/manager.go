package mailchimp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/foxzi/campaignhub/internal/config"
	"github.com/foxzi/campaignhub/internal/models"
)

// Manager holds one client per configured region. The region set is fixed
// at construction.
type Manager struct {
	clients map[string]*Client
	regions []config.RegionConfig
}

// NewManager creates a client for every region
func NewManager(regions []config.RegionConfig, opts Options) *Manager {
	m := &Manager{
		clients: make(map[string]*Client, len(regions)),
		regions: regions,
	}

	for _, r := range regions {
		m.clients[r.Name] = NewClient(r, opts)
	}

	return m
}

// GetClient returns the client for a region, matched case-insensitively
func (m *Manager) GetClient(region string) (*Client, error) {
	client, ok := m.clients[strings.ToUpper(region)]
	if !ok {
		return nil, fmt.Errorf("region %q: %w", region, ErrRegionNotFound)
	}
	return client, nil
}

// Regions returns the configured region names in order
func (m *Manager) Regions() []string {
	names := make([]string, 0, len(m.regions))
	for _, r := range m.regions {
		names = append(names, r.Name)
	}
	return names
}

// Clients returns the clients in region order
func (m *Manager) Clients() []*Client {
	clients := make([]*Client, 0, len(m.regions))
	for _, r := range m.regions {
		clients = append(clients, m.clients[r.Name])
	}
	return clients
}

// TestCredentials checks every region concurrently: a ping, then a one
// campaign listing of the last 30 days for a sample title
func (m *Manager) TestCredentials(ctx context.Context) []models.RegionStatus {
	var wg sync.WaitGroup
	results := make([]models.RegionStatus, len(m.regions))

	for i, r := range m.regions {
		wg.Add(1)
		go func(idx int, region config.RegionConfig) {
			defer wg.Done()

			status := models.RegionStatus{
				Region:       region.Name,
				ServerPrefix: region.ServerPrefix,
			}
			results[idx] = checkRegion(ctx, m.clients[region.Name], status)
		}(i, r)
	}

	wg.Wait()
	return results
}

func checkRegion(ctx context.Context, client *Client, status models.RegionStatus) models.RegionStatus {
	if err := client.Ping(ctx); err != nil {
		status.Error = err.Error()
		return status
	}

	campaigns, err := client.ListCampaigns(ctx, ListOptions{SinceDays: 30, Limit: 1})
	if err != nil {
		status.Error = err.Error()
		return status
	}

	status.OK = true
	status.Campaigns = len(campaigns)
	if len(campaigns) == 0 {
		status.Message = "credentials valid, no campaigns in the last 30 days"
		return status
	}
	status.SampleCampaign = campaigns[0].Title
	status.Message = fmt.Sprintf("credentials valid, found %d campaign(s)", len(campaigns))
	return status
}
