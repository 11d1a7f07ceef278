package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/campaignhub/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Listen address: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  Database path: %s\n", cfg.Database.Path)
	fmt.Printf("  Cache backend: %s\n", cfg.Cache.Backend)
	fmt.Printf("  Local auth: %v\n", cfg.Auth.LocalEnabled)
	fmt.Printf("  OIDC auth: %v\n", cfg.Auth.OIDC.Enabled)
	fmt.Printf("  Metrics: %v\n", cfg.Metrics.Enabled)
	if cfg.Refresh.SyncInterval > 0 {
		fmt.Printf("  Scheduled sync: every %s\n", cfg.Refresh.SyncInterval)
	} else {
		fmt.Println("  Scheduled sync: disabled")
	}
	fmt.Printf("  Mailchimp regions: %d\n", len(cfg.Mailchimp.Regions))

	for _, r := range cfg.Mailchimp.Regions {
		fmt.Printf("    - %s (%s)\n", r.Name, r.ServerPrefix)
	}

	return nil
}
