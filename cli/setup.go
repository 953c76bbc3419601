package cli

import (
	"github.com/openai/openai-go"

	"github.com/mempirate/delver/agent"
	"github.com/mempirate/delver/backend"
	"github.com/mempirate/delver/cache"
	"github.com/mempirate/delver/config"
	"github.com/mempirate/delver/log"
	"github.com/mempirate/delver/scrape"
	"github.com/mempirate/delver/search"
)

var logger = log.NewLogger("cli")

// buildRunner assembles the research pipeline from the config. The returned
// cleanup closes the page cache and must be called once the runner is no
// longer needed.
func buildRunner(cfg config.Config) (agent.RunFunc, func(), error) {
	scraper, cleanup, err := buildScraper(cfg)
	if err != nil {
		return nil, nil, err
	}

	b := backend.NewOpenAI(cfg.LLM.APIKey, openai.ChatModel(cfg.LLM.Model))
	searcher := search.NewDuckDuckGo(cfg.Search.Timeout)

	ag := agent.New(b, searcher, scraper, agent.Options{
		MaxQueries:      cfg.Plan.MaxQueries,
		MaxResults:      cfg.Search.MaxResults,
		MaxContentRunes: cfg.Scrape.MaxContentRunes,
	})

	return ag.RunWith, cleanup, nil
}

func buildScraper(cfg config.Config) (scrape.Scraper, func(), error) {
	var scraper scrape.Scraper

	switch cfg.Scrape.Provider {
	case config.ProviderFirecrawl:
		fc, err := scrape.NewFirecrawl(cfg.Scrape.APIKey)
		if err != nil {
			return nil, nil, err
		}
		scraper = fc
	default:
		scraper = scrape.NewHTTP(cfg.Scrape.Timeout)
	}

	if cfg.Cache.Path == "" {
		return scraper, func() {}, nil
	}

	// Cache failures are nonfatal; scraping continues uncached.
	pages, err := cache.NewPageCache(cfg.Cache.Path, cfg.Cache.TTL)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.Cache.Path).Msg("Failed to open page cache, continuing without it")
		return scraper, func() {}, nil
	}

	cleanup := func() {
		if err := pages.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close page cache")
		}
	}

	return scrape.WithCache(scraper, pages), cleanup, nil
}
