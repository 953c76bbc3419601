package scrape

import (
	"context"
	"net/url"

	"github.com/pkg/errors"

	"github.com/mempirate/delver/document"
)

var (
	// ErrUnsupportedContent marks payloads the scraper cannot turn into
	// markdown (PDFs, images, binaries). The pipeline skips such sources.
	ErrUnsupportedContent = errors.New("unsupported content type")

	// ErrNoContent marks pages whose extraction yielded no usable main text,
	// e.g. boilerplate-only or script-rendered pages.
	ErrNoContent = errors.New("no main content found")
)

// Scraper is an interface for scraping web pages, that returns markdown
// content and metadata.
type Scraper interface {
	Scrape(ctx context.Context, url *url.URL) (*document.Document, error)
	// Name identifies the provider in logs and metrics.
	Name() string
}
