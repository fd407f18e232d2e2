package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/sirupsen/logrus"

	"github.com/arthur-zhuk/yieldsnap/internal/config"
	"github.com/arthur-zhuk/yieldsnap/internal/model"
)

// snapshotCacheKey is the single key under which the merged provider
// snapshot is cached between fetches.
const snapshotCacheKey = "pools:snapshot"

// Registry fans a fetch out to all configured providers, merges the
// results, and caches the merged snapshot for the configured TTL.
// Individual provider failures are logged and skipped; only when every
// provider fails does the registry fall back to the static fixture set.
type Registry struct {
	providers []Provider
	fallback  Provider

	cache    *ristretto.Cache
	cacheTTL time.Duration

	// Per-provider timeout applied inside the fan-out
	timeout time.Duration

	// Error callback for metrics, keyed by provider name
	onProviderError func(provider string)
}

// NewRegistry builds the provider set from configuration. In mock mode
// only the static fixture source is used.
func NewRegistry(cfg config.Config) *Registry {
	var providers []Provider
	if cfg.MockMode {
		providers = []Provider{NewStaticProvider()}
	} else {
		providers = []Provider{
			NewAaveClient(cfg),
			NewCompoundClient(cfg),
			NewDefiLlamaClient(cfg),
		}
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 26,
		BufferItems: 64,
	})
	if err != nil {
		// The config above is static, NewCache only fails on invalid config
		logrus.Fatalf("Error creating snapshot cache: %v", err)
	}

	return &Registry{
		providers: providers,
		fallback:  NewStaticProvider(),
		cache:     cache,
		cacheTTL:  cfg.CacheTTL,
		timeout:   cfg.RequestTimeout,
	}
}

// WithProviders replaces the provider set, used by tests and custom wiring
func (r *Registry) WithProviders(providers ...Provider) *Registry {
	r.providers = providers
	return r
}

// WithErrorCallback registers a callback invoked once per failed provider fetch
func (r *Registry) WithErrorCallback(cb func(provider string)) *Registry {
	r.onProviderError = cb
	return r
}

// ProviderNames lists the configured providers for status reporting
func (r *Registry) ProviderNames() []string {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	return names
}

// Fetch returns the current merged snapshot. The cached flag reports
// whether the snapshot was served from cache rather than fetched live.
func (r *Registry) Fetch(ctx context.Context) (ops []model.YieldOpportunity, cached bool, err error) {
	if v, ok := r.cache.Get(snapshotCacheKey); ok {
		if snapshot, ok := v.([]model.YieldOpportunity); ok && len(snapshot) > 0 {
			logrus.Debugf("Serving %d pools from cache", len(snapshot))
			return snapshot, true, nil
		}
	}

	ops, err = r.fetchAll(ctx)
	if err != nil {
		// Every provider failed: silently substitute the fixture set
		logrus.Warnf("All providers failed (%v), falling back to static fixtures", err)
		ops, err = r.fallback.Fetch(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("static fallback failed: %w", err)
		}
	}

	r.cache.SetWithTTL(snapshotCacheKey, ops, int64(len(ops)+1), r.cacheTTL)
	return ops, false, nil
}

// Invalidate drops the cached snapshot so the next fetch goes upstream
func (r *Registry) Invalidate() {
	r.cache.Del(snapshotCacheKey)
}

// fetchAll queries every provider concurrently and merges the results.
// A provider that errors is skipped; an error is returned only when no
// provider produced any opportunities.
func (r *Registry) fetchAll(ctx context.Context) ([]model.YieldOpportunity, error) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ops  []model.YieldOpportunity
		errs []error
	)

	for _, provider := range r.providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()

			providerCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			providerOps, err := p.Fetch(providerCtx)
			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				logrus.WithFields(logrus.Fields{
					"provider": p.Name(),
					"error":    err,
				}).Warn("Provider fetch failed, skipping")
				if r.onProviderError != nil {
					r.onProviderError(p.Name())
				}
				errs = append(errs, err)
				return
			}

			ops = append(ops, providerOps...)
		}(provider)
	}

	wg.Wait()

	if len(ops) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("all providers failed: %v", errs[0])
	}

	logrus.Infof("Fetched %d pools from %d/%d providers",
		len(ops), len(r.providers)-len(errs), len(r.providers))

	return ops, nil
}
