package scrape

import (
	"context"
	"net/url"
	"time"

	"github.com/mendableai/firecrawl-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mempirate/delver/document"
	"github.com/mempirate/delver/log"
)

const FIRECRAWL_API = "https://api.firecrawl.dev"

// Firecrawl is a scraper that uses the Firecrawl API to scrape web pages.
// Unlike the plain HTTP scraper it renders JavaScript and parses PDFs, at the
// cost of an API key.
type Firecrawl struct {
	log zerolog.Logger
	app *firecrawl.FirecrawlApp

	params *firecrawl.ScrapeParams
}

func NewFirecrawl(key string) (*Firecrawl, error) {
	app, err := firecrawl.NewFirecrawlApp(key, FIRECRAWL_API)
	if err != nil {
		return nil, err
	}

	scrapePDF := true
	timeout := 90_000

	defaultParams := &firecrawl.ScrapeParams{
		Formats:  []string{"markdown", "links"},
		ParsePDF: &scrapePDF,
		Timeout:  &timeout,
	}

	return &Firecrawl{
		log:    log.NewLogger("scrape"),
		app:    app,
		params: defaultParams,
	}, nil
}

func (s *Firecrawl) Name() string {
	return "firecrawl"
}

// Scrape scrapes the given URL and returns a Document. Metadata field shapes:
// <https://www.firecrawl.dev/blog/mastering-firecrawl-scrape-endpoint>. The
// SDK enforces its own request timeout (params.Timeout), so ctx only gates
// work before the call.
func (s *Firecrawl) Scrape(ctx context.Context, uri *url.URL) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fcDoc, err := s.app.ScrapeURL(uri.String(), s.params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scrape URL %s", uri.String())
	}

	md := fcDoc.Metadata

	// OGTitle first, then Title. Both are usually missing for PDFs; the title
	// then comes from the first heading via FindTitle below.
	var title string
	if md.OGTitle != nil {
		title = *md.OGTitle
	} else if md.Title != nil {
		title = *md.Title
	}

	var description string
	if md.Description != nil {
		description = *md.Description
	} else if md.OGDescription != nil {
		description = *md.OGDescription
	}

	source := uri.String()
	if md.SourceURL != nil {
		source = *md.SourceURL
	}

	doc := &document.Document{
		Content: fcDoc.Markdown,
		Metadata: document.Metadata{
			Title:         title,
			Description:   description,
			Source:        source,
			SiteName:      strDeref(md.OGSiteName),
			PublishedTime: strDeref(md.PublishedTime),
			ModifiedTime:  strDeref(md.ModifiedTime),
			RetrievedTime: time.Now().Format(time.RFC3339),
			Links:         fcDoc.Links,
		},
	}

	doc.FindTitle()

	// Still untitled after the content scan usually means a PDF.
	if doc.Metadata.Title == "" {
		doc.Metadata.Type = document.TypePDF
	} else {
		doc.Metadata.Type = document.TypeArticle
	}

	if doc.Content == "" {
		return nil, ErrNoContent
	}

	s.log.Debug().Str("url", uri.String()).Str("title", doc.Metadata.Title).Msg("Page scraped")

	return doc, nil
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
