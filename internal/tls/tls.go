// Package tls provides the API listener's TLS configuration, from PEM files
// or from Let's Encrypt via ACME.
package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"github.com/foxzi/campaignhub/internal/config"
)

// Provider supplies certificates to the API server
type Provider struct {
	tlsConfig *tls.Config
	acme      *autocert.Manager
	domains   []string
}

// New builds a provider from config. It returns nil when TLS is disabled.
func New(cfg config.TLSConfig) (*Provider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	if cfg.ACME.Enabled {
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Email:      cfg.ACME.Email,
			HostPolicy: autocert.HostWhitelist(cfg.ACME.Domains...),
			Cache:      autocert.DirCache(cfg.ACME.CacheDir),
		}
		return &Provider{
			tlsConfig: &tls.Config{
				GetCertificate: m.GetCertificate,
				MinVersion:     tls.VersionTLS12,
			},
			acme:    m,
			domains: cfg.ACME.Domains,
		}, nil
	}

	tlsConfig, err := LoadCertificate(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	return &Provider{tlsConfig: tlsConfig}, nil
}

// LoadCertificate loads a TLS certificate from PEM files
func LoadCertificate(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// TLSConfig returns the config for the API listener
func (p *Provider) TLSConfig() *tls.Config {
	return p.tlsConfig
}

// ACME reports whether certificates come from Let's Encrypt
func (p *Provider) ACME() bool {
	return p.acme != nil
}

// ChallengeHandler answers HTTP-01 challenges and redirects other requests
// to HTTPS
func (p *Provider) ChallengeHandler() http.Handler {
	return p.acme.HTTPHandler(http.HandlerFunc(redirectToHTTPS))
}

func redirectToHTTPS(w http.ResponseWriter, r *http.Request) {
	target := "https://" + r.Host + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

// CertificateInfo describes a certificate for the CLI
type CertificateInfo struct {
	Domain    string
	Subject   string
	Issuer    string
	NotBefore time.Time
	NotAfter  time.Time
	DaysLeft  int
	DNSNames  []string
}

func infoFromLeaf(domain string, leaf *x509.Certificate) CertificateInfo {
	return CertificateInfo{
		Domain:    domain,
		Subject:   leaf.Subject.CommonName,
		Issuer:    leaf.Issuer.CommonName,
		NotBefore: leaf.NotBefore,
		NotAfter:  leaf.NotAfter,
		DaysLeft:  int(time.Until(leaf.NotAfter).Hours() / 24),
		DNSNames:  leaf.DNSNames,
	}
}

// ReadCertificateInfo reads the first certificate from a PEM file
func ReadCertificateInfo(certFile string) (*CertificateInfo, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	info := infoFromLeaf(leaf.Subject.CommonName, leaf)
	return &info, nil
}

// CachedCertificates reads ACME certificates from the cache directory
// without contacting Let's Encrypt. Domains with nothing cached are skipped.
func (p *Provider) CachedCertificates(ctx context.Context) []CertificateInfo {
	if p.acme == nil {
		return nil
	}

	var results []CertificateInfo
	for _, domain := range p.domains {
		data, err := p.acme.Cache.Get(ctx, domain)
		if err != nil {
			continue
		}

		// autocert stores the key and chain in one PEM bundle
		cert, err := tls.X509KeyPair(data, data)
		if err != nil || len(cert.Certificate) == 0 {
			continue
		}
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			continue
		}
		results = append(results, infoFromLeaf(domain, leaf))
	}
	return results
}
