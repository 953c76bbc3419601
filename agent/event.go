package agent

// Kind identifies a progress event emitted during a research run.
type Kind string

const (
	// KindPlanCreated carries the planned queries.
	KindPlanCreated Kind = "plan_created"
	// KindQueryStarted marks the start of the research loop for one query.
	KindQueryStarted Kind = "query_started"
	// KindSourceScraped marks a search hit whose content made it into the
	// researcher prompt.
	KindSourceScraped Kind = "source_scraped"
	// KindSourceSkipped marks a search hit that could not be used.
	KindSourceSkipped Kind = "source_skipped"
	// KindQuerySummarized carries the per-query outcome.
	KindQuerySummarized Kind = "query_summarized"
	// KindWriteStarted marks the start of report composition.
	KindWriteStarted Kind = "write_started"
	// KindReportReady marks a finished run.
	KindReportReady Kind = "report_ready"
)

// Event is a progress notification from a research run. Only the fields
// relevant to the kind are set.
type Event struct {
	Kind Kind `json:"kind"`
	// Index is the zero-based position of the query in the plan.
	Index int `json:"index"`
	// Query is the search query being processed.
	Query string `json:"query,omitempty"`
	// URL is the source being scraped or skipped.
	URL string `json:"url,omitempty"`
	// Reason explains a skip.
	Reason string `json:"reason,omitempty"`
	// Chars is the length of the content kept from a scraped source.
	Chars int `json:"chars,omitempty"`
	// Queries is the full plan.
	Queries []string `json:"queries,omitempty"`
	// Null marks a summary produced without any scraped content.
	Null bool `json:"null,omitempty"`
}

// Sink receives progress events. Source events are emitted from concurrent
// scrape workers, so implementations must be safe for concurrent use and must
// not block.
type Sink func(Event)
