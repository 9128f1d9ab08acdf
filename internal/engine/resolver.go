package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/logger"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/mohammad-safakhou/researcher/internal/store"
	"github.com/mohammad-safakhou/researcher/provider"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch"
	"github.com/mohammad-safakhou/researcher/tools/web_search"
)

// OpenAIKeyName is the API key name a user stores to run jobs on their own account.
const OpenAIKeyName = "OpenAI"

// KeyLookup finds a user's stored API key by name.
type KeyLookup interface {
	GetAPIKeyByName(ctx context.Context, userID, name string) (store.APIKeyRecord, error)
}

// NewResolver returns a research.EngineResolver that builds a Pipeline per
// job. The owner's stored OpenAI key takes precedence over the server key.
// A missing search key does not stop the server; jobs fail with the error instead.
func NewResolver(cfg *config.Config, keys KeyLookup, log *logger.Logger) (research.EngineResolver, error) {
	searcher, searchErr := web_search.NewWebSearcher(web_search.Provider(cfg.WebSearch.Provider), cfg.WebSearch.APIKey, cfg.WebSearch.FetchTimeout)
	fetcher, err := web_fetch.NewWebFetcher(web_fetch.ReadabilityFetcherType, cfg.WebSearch.FetchTimeout, cfg.WebSearch.MaxChars)
	if err != nil {
		return nil, fmt.Errorf("web fetch: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return func(ctx context.Context, userID string) (research.Engine, error) {
		if searchErr != nil {
			return nil, fmt.Errorf("web search: %w", searchErr)
		}
		var userKey string
		if keys != nil {
			rec, err := keys.GetAPIKeyByName(ctx, userID, OpenAIKeyName)
			switch {
			case err == nil:
				userKey = rec.Value
			case !errors.Is(err, store.ErrNotFound):
				return nil, fmt.Errorf("load user api key: %w", err)
			}
		}
		llm, err := provider.NewProvider(provider.OpenAI, cfg.Providers.OpenAI, userKey)
		if err != nil {
			return nil, err
		}
		return &Pipeline{
			LLM:             llm,
			Search:          searcher,
			Fetch:           fetcher,
			Policy:          cfg.WebSearch.CrawlPolicy,
			ResultsPerQuery: cfg.WebSearch.ResultsPerQuery,
			MaxQueries:      cfg.WebSearch.MaxQueries,
			Log:             log.With("component", "engine", "user_id", userID),
		}, nil
	}, nil
}
