package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/campaignhub/internal/config"
	chtls "github.com/foxzi/campaignhub/internal/tls"
)

var tlsCmd = &cobra.Command{
	Use:   "tls",
	Short: "TLS certificate commands",
}

var tlsInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the API certificate and its expiry",
	RunE:  runTLSInfo,
}

func init() {
	tlsCmd.AddCommand(tlsInfoCmd)
	rootCmd.AddCommand(tlsCmd)
}

func runTLSInfo(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	tlsCfg := cfg.Server.TLS
	if !tlsCfg.Enabled {
		fmt.Println("TLS is disabled")
		return nil
	}

	if !tlsCfg.ACME.Enabled {
		info, err := chtls.ReadCertificateInfo(tlsCfg.CertFile)
		if err != nil {
			return err
		}
		printCertificate(*info)
		return nil
	}

	provider, err := chtls.New(tlsCfg)
	if err != nil {
		return err
	}

	fmt.Printf("ACME domains: %v\n", tlsCfg.ACME.Domains)
	fmt.Printf("Cache directory: %s\n", tlsCfg.ACME.CacheDir)

	certs := provider.CachedCertificates(context.Background())
	if len(certs) == 0 {
		fmt.Println("No cached certificates yet; they are issued on the first HTTPS request")
		return nil
	}
	for _, c := range certs {
		printCertificate(c)
	}
	return nil
}

func printCertificate(c chtls.CertificateInfo) {
	fmt.Printf("Certificate: %s\n", c.Domain)
	fmt.Printf("  Issuer:     %s\n", c.Issuer)
	fmt.Printf("  DNS names:  %v\n", c.DNSNames)
	fmt.Printf("  Valid from: %s\n", c.NotBefore.Format("2006-01-02"))
	fmt.Printf("  Expires:    %s (%d days left)\n", c.NotAfter.Format("2006-01-02"), c.DaysLeft)
	if c.DaysLeft < 14 {
		fmt.Println("  WARNING: certificate expires soon")
	}
}
