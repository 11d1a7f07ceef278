package config

// Region names probed in the environment, in this order
var EnvRegionCandidates = []string{"US", "EU", "APAC", "JP", "INDIA", "AU", "CA", "UK", "SG"}

// DefaultRegion is used when only the unsuffixed credentials are set
const DefaultRegion = "DEFAULT"

// ResolveRegions builds the region set from YAML entries and the environment.
// A region qualifies only when both an API key and a server prefix are present.
// YAML entries with missing credentials fall back to MAILCHIMP_API_KEY_<NAME>
// and MAILCHIMP_SERVER_PREFIX_<NAME>. If nothing qualifies, MAILCHIMP_API_KEY
// and MAILCHIMP_SERVER_PREFIX form the DEFAULT region.
func ResolveRegions(mc MailchimpConfig, getenv func(string) string) []RegionConfig {
	var regions []RegionConfig
	seen := make(map[string]bool)

	add := func(r RegionConfig) {
		if r.Name == "" || seen[r.Name] || r.APIKey == "" || r.ServerPrefix == "" {
			return
		}
		seen[r.Name] = true
		regions = append(regions, r)
	}

	for _, r := range mc.Regions {
		r.Name = normalizeRegion(r.Name)
		if !mc.IgnoreEnv {
			if r.APIKey == "" {
				r.APIKey = getenv("MAILCHIMP_API_KEY_" + r.Name)
			}
			if r.ServerPrefix == "" {
				r.ServerPrefix = getenv("MAILCHIMP_SERVER_PREFIX_" + r.Name)
			}
		}
		add(r)
	}

	if mc.IgnoreEnv {
		return regions
	}

	for _, name := range EnvRegionCandidates {
		add(RegionConfig{
			Name:         name,
			APIKey:       getenv("MAILCHIMP_API_KEY_" + name),
			ServerPrefix: getenv("MAILCHIMP_SERVER_PREFIX_" + name),
		})
	}

	if len(regions) == 0 {
		add(RegionConfig{
			Name:         DefaultRegion,
			APIKey:       getenv("MAILCHIMP_API_KEY"),
			ServerPrefix: getenv("MAILCHIMP_SERVER_PREFIX"),
		})
	}

	return regions
}
