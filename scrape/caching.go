package scrape

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/mempirate/delver/cache"
	"github.com/mempirate/delver/document"
	"github.com/mempirate/delver/log"
)

// Caching wraps a Scraper with a persistent page cache. Research runs on
// related topics tend to surface the same sources over and over.
type Caching struct {
	log   zerolog.Logger
	inner Scraper
	cache *cache.PageCache
}

func WithCache(inner Scraper, c *cache.PageCache) *Caching {
	return &Caching{
		log:   log.NewLogger("scrape"),
		inner: inner,
		cache: c,
	}
}

// Name reports the inner provider; the cache is transparent to metrics.
func (s *Caching) Name() string {
	return s.inner.Name()
}

func (s *Caching) Scrape(ctx context.Context, uri *url.URL) (*document.Document, error) {
	if doc, ok := s.cache.Get(uri.String()); ok {
		s.log.Debug().Str("url", uri.String()).Msg("Cache hit")
		return doc, nil
	}

	doc, err := s.inner.Scrape(ctx, uri)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(uri.String(), doc); err != nil {
		s.log.Warn().Err(err).Str("url", uri.String()).Msg("Failed to cache page")
	}

	return doc, nil
}
