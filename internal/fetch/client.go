// Package fetch provides provider-specific clients for retrieving yield pools from various DeFi data sources.
package fetch

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/arthur-zhuk/yieldsnap/internal/config"
	"github.com/arthur-zhuk/yieldsnap/internal/model"
)

// Provider defines the interface that all data source clients must implement
type Provider interface {
	// Name identifies the provider in logs, metrics and opportunity ids
	Name() string

	// Fetch retrieves the current yield opportunities from the provider
	Fetch(ctx context.Context) ([]model.YieldOpportunity, error)
}

// NewProvider creates a provider client by name based on the provided configuration
func NewProvider(cfg config.Config, name string) Provider {
	switch name {
	case "aave":
		return NewAaveClient(cfg)
	case "compound":
		return NewCompoundClient(cfg)
	case "defillama":
		return NewDefiLlamaClient(cfg)
	case "static":
		return NewStaticProvider()
	default:
		return NewDefiLlamaClient(cfg)
	}
}

// newRetryClient creates a new HTTP client with retry capabilities
func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c
}

// StandardClient converts a retryablehttp.Client to a standard http.Client
func StandardClient(retryClient *retryablehttp.Client) *http.Client {
	return retryClient.StandardClient()
}

// getAPIKey retrieves an API key for a specific provider from configuration
func getAPIKey(cfg config.Config, provider string) string {
	if k, ok := cfg.APIKeys[provider]; ok {
		return k
	}
	return ""
}
