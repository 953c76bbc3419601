package search

import "context"

// Result is a single web search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher finds candidate sources for a research query.
type Searcher interface {
	// Search returns up to max results for the query. An empty slice means the
	// query found nothing; the caller decides how to degrade.
	Search(ctx context.Context, query string, max int) ([]Result, error)
}
