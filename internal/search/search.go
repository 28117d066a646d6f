package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"TopicNewsletter/internal/domain"
	"TopicNewsletter/internal/ports"
)

// Provider is a named search backend (Serper, Tavily, arXiv, etc.).
type Provider interface {
	ports.SearchProvider
	Name() string
}

// Registry keeps a mapping from provider names to their implementations.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

// Register adds or replaces a provider implementation.
func (r *Registry) Register(provider Provider) {
	if r.providers == nil {
		r.providers = map[string]Provider{}
	}
	r.providers[provider.Name()] = provider
}

// Resolve returns a provider by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Provider, error) {
	if provider, ok := r.providers[name]; ok {
		return provider, nil
	}
	return nil, fmt.Errorf("search provider %s is not registered", name)
}

// Chain resolves names in order into a fallback chain. Names that are not
// registered are skipped; an empty chain is a configuration error.
func (r *Registry) Chain(names []string, logger *slog.Logger) (*Chain, error) {
	var providers []Provider
	for _, name := range names {
		provider, err := r.Resolve(name)
		if err != nil {
			if logger != nil {
				logger.Warn("search provider unavailable", "provider", name, "error", err)
			}
			continue
		}
		providers = append(providers, provider)
	}
	if len(providers) == 0 {
		return nil, domain.ConfigError("no usable search provider among %v", names)
	}
	return NewChain(logger, providers...), nil
}

// Chain tries providers in order. An error or an empty answer falls through
// to the next provider.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

var _ ports.SearchProvider = (*Chain)(nil)

// NewChain builds a fallback chain over providers.
func NewChain(logger *slog.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Chain{providers: providers, logger: logger}
}

// Name identifies the chain in logs.
func (c *Chain) Name() string {
	return "chain"
}

// Search returns the first non-empty answer. It fails only when every
// provider failed; an empty answer from a provider that did not fail is a
// valid empty result.
func (c *Chain) Search(ctx context.Context, query string, maxResults, recencyDays int) ([]domain.RawArticle, error) {
	var (
		errs     []error
		answered bool
	)
	for _, provider := range c.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		results, err := provider.Search(ctx, query, maxResults, recencyDays)
		if err != nil {
			c.logger.Warn("search provider failed", "provider", provider.Name(), "query", query, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
			continue
		}
		answered = true
		if len(results) == 0 {
			c.logger.Debug("search provider returned nothing", "provider", provider.Name(), "query", query)
			continue
		}

		if maxResults > 0 && len(results) > maxResults {
			results = results[:maxResults]
		}
		for i := range results {
			if results[i].Source == "" {
				results[i].Source = provider.Name()
			}
		}
		c.logger.Debug("search provider answered", "provider", provider.Name(), "query", query, "count", len(results))
		return results, nil
	}

	if answered || len(c.providers) == 0 {
		return []domain.RawArticle{}, nil
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrSearchProvider, errors.Join(errs...))
}
