package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/campaignhub/internal/app"
	"github.com/foxzi/campaignhub/internal/config"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh every region from Mailchimp and update the cache",
	RunE:  runSync,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Cache management commands",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cached campaigns per region",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [region]",
	Short: "Delete cached campaigns for one region, or all regions",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheClear,
}

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List configured regions",
	RunE:  runRegions,
}

var regionsTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Check API credentials for every region",
	RunE:  runRegionsTest,
}

var (
	syncDays  int
	logLevel  string
	regionsTO time.Duration
)

func init() {
	syncCmd.Flags().IntVar(&syncDays, "days", 0, "Window in days (default from config)")
	syncCmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	regionsTestCmd.Flags().DurationVar(&regionsTO, "timeout", 30*time.Second, "Overall timeout")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	regionsCmd.AddCommand(regionsTestCmd)
}

// openCore loads config and opens the core with a text logger on stderr
func openCore(ctx context.Context, level string) (*config.Config, *app.Core, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: app.ParseLogLevel(level),
	}))

	core, err := app.OpenCore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, core, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, core, err := openCore(ctx, logLevel)
	if err != nil {
		return err
	}
	defer core.Close()

	days := syncDays
	if days <= 0 {
		days = cfg.Refresh.DefaultDays
	}

	fmt.Printf("Syncing %d region(s), last %d days\n", len(cfg.Mailchimp.Regions), days)

	failed := 0
	for _, rs := range core.Service.SyncAll(ctx, days) {
		if rs.Err != nil {
			failed++
			fmt.Printf("  %-8s FAILED  %v\n", rs.Region, rs.Err)
			continue
		}
		fmt.Printf("  %-8s %4d campaigns  %4d reports  %3d failed reports  %s\n",
			rs.Region, len(rs.Campaigns), rs.Stats.Reports, rs.Stats.Failures,
			rs.Duration.Truncate(time.Millisecond))
	}

	if failed > 0 {
		return fmt.Errorf("%d region(s) failed to sync", failed)
	}
	return nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, core, err := openCore(ctx, "warn")
	if err != nil {
		return err
	}
	defer core.Close()

	stats, err := core.Service.CacheStats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Cache backend: %s\n", cfg.Cache.Backend)
	fmt.Printf("Total campaigns: %d\n", stats.Total)

	regions := make([]string, 0, len(stats.ByRegion))
	for r := range stats.ByRegion {
		regions = append(regions, r)
	}
	slices.Sort(regions)
	for _, r := range regions {
		fmt.Printf("  %-8s %d\n", r, stats.ByRegion[r])
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	_, core, err := openCore(ctx, "warn")
	if err != nil {
		return err
	}
	defer core.Close()

	region := ""
	if len(args) == 1 {
		region = strings.ToUpper(args[0])
	}

	deleted, err := core.Service.ClearCache(ctx, region)
	if err != nil {
		return err
	}

	if region == "" {
		region = "all regions"
	}
	fmt.Printf("Deleted %d cached campaigns (%s)\n", deleted, region)
	return nil
}

func runRegions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	if len(cfg.Mailchimp.Regions) == 0 {
		fmt.Println("No regions configured")
		return nil
	}

	fmt.Printf("%-8s  %-8s  %s\n", "Region", "Prefix", "API key")
	fmt.Println(strings.Repeat("-", 40))
	for _, r := range cfg.Mailchimp.Regions {
		fmt.Printf("%-8s  %-8s  %s\n", r.Name, r.ServerPrefix, maskKey(r.APIKey))
	}
	return nil
}

func runRegionsTest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), regionsTO)
	defer cancel()

	_, core, err := openCore(ctx, "warn")
	if err != nil {
		return err
	}
	defer core.Close()

	failed := 0
	for _, st := range core.Service.TestCredentials(ctx) {
		if st.OK {
			if st.SampleCampaign != "" {
				fmt.Printf("  %-8s OK      sample: %s\n", st.Region, st.SampleCampaign)
			} else {
				fmt.Printf("  %-8s OK      %s\n", st.Region, st.Message)
			}
			continue
		}
		failed++
		fmt.Printf("  %-8s FAILED  %s\n", st.Region, st.Error)
	}

	if failed > 0 {
		return fmt.Errorf("%d region(s) failed the credential check", failed)
	}
	return nil
}

// maskKey keeps the last four characters and the datacenter suffix
func maskKey(key string) string {
	base, dc, _ := strings.Cut(key, "-")
	if len(base) <= 4 {
		return strings.Repeat("*", len(base)) + suffix(dc)
	}
	return strings.Repeat("*", len(base)-4) + base[len(base)-4:] + suffix(dc)
}

func suffix(dc string) string {
	if dc == "" {
		return ""
	}
	return "-" + dc
}
