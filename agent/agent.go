package agent

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mempirate/delver/backend"
	"github.com/mempirate/delver/document"
	"github.com/mempirate/delver/log"
	"github.com/mempirate/delver/metrics"
	"github.com/mempirate/delver/prompt"
	"github.com/mempirate/delver/report"
	"github.com/mempirate/delver/scrape"
	"github.com/mempirate/delver/search"
)

// MAX_CONCURRENT_SCRAPES bounds in-flight page fetches per query.
const MAX_CONCURRENT_SCRAPES = 3

const (
	DEFAULT_MAX_QUERIES       = 3
	DEFAULT_MAX_RESULTS       = 3
	DEFAULT_MAX_CONTENT_RUNES = 8000
)

// Options tune a research run.
type Options struct {
	// MaxQueries caps the plan length.
	MaxQueries int
	// MaxResults caps the search hits scraped per query.
	MaxResults int
	// MaxContentRunes caps how much of one source reaches the researcher
	// prompt.
	MaxContentRunes int
	// Sink, if set, receives progress events.
	Sink Sink
}

func DefaultOptions() Options {
	return Options{
		MaxQueries:      DEFAULT_MAX_QUERIES,
		MaxResults:      DEFAULT_MAX_RESULTS,
		MaxContentRunes: DEFAULT_MAX_CONTENT_RUNES,
	}
}

// Summary is the condensed finding for one planned query.
type Summary struct {
	Query string `json:"query"`
	Text  string `json:"text"`
	// Sources is the number of scraped pages behind the text.
	Sources int `json:"sources"`
	// Null is set when nothing could be scraped and Text is the canned
	// no-information summary.
	Null bool `json:"null"`
}

// State accumulates the intermediate products of a run. Summaries line up
// with Plan, one per query, in plan order.
type State struct {
	Topic     string
	Plan      []string
	Summaries []Summary
	// Sources holds the metadata of every page that was scraped successfully.
	Sources []document.Metadata
	// Report is the final markdown produced by the write stage.
	Report string
}

// Result is the outcome of a completed run.
type Result struct {
	Report *report.Report
	State  *State
}

// RunFunc executes one research run, reporting progress to sink. Consumers
// that manage their own runs (the HTTP server, the Slack bot, the TUI) take
// the pipeline through this signature.
type RunFunc func(ctx context.Context, topic string, sink Sink) (*Result, error)

// Agent runs the three-stage research pipeline: a planner breaks the topic
// into queries, a researcher searches and scrapes each query and condenses
// the findings, and a writer composes the final report.
type Agent struct {
	log      zerolog.Logger
	backend  backend.Backend
	searcher search.Searcher
	scraper  scrape.Scraper
	opts     Options
}

func New(b backend.Backend, searcher search.Searcher, scraper scrape.Scraper, opts Options) *Agent {
	if opts.MaxQueries <= 0 {
		opts.MaxQueries = DEFAULT_MAX_QUERIES
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DEFAULT_MAX_RESULTS
	}
	if opts.MaxContentRunes <= 0 {
		opts.MaxContentRunes = DEFAULT_MAX_CONTENT_RUNES
	}

	return &Agent{
		log:      log.NewLogger("agent"),
		backend:  b,
		searcher: searcher,
		scraper:  scraper,
		opts:     opts,
	}
}

// Run executes a full research run for the topic. Search and scrape failures
// degrade the run (a query can end up with a null summary); completion
// failures and context cancellation abort it.
func (a *Agent) Run(ctx context.Context, topic string) (res *Result, err error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errors.New("empty topic")
	}

	defer func() {
		if err != nil {
			metrics.IncResearchRun(metrics.OutcomeError)
		}
	}()

	start := time.Now()
	state := &State{Topic: topic}

	if err := a.plan(ctx, state); err != nil {
		return nil, err
	}

	if err := a.research(ctx, state); err != nil {
		return nil, err
	}

	if err := a.write(ctx, state); err != nil {
		return nil, err
	}

	rep := &report.Report{
		Topic:       topic,
		Body:        state.Report,
		GeneratedAt: time.Now(),
		Sources:     state.Sources,
	}

	a.emit(Event{Kind: KindReportReady})
	metrics.IncResearchRun(metrics.OutcomeSuccess)

	a.log.Info().
		Str("topic", topic).
		Int("queries", len(state.Plan)).
		Int("sources", len(state.Sources)).
		Dur("duration", time.Since(start)).
		Msg("Research run complete")

	return &Result{Report: rep, State: state}, nil
}

// RunWith is Run with a per-run event sink in place of the configured one.
func (a *Agent) RunWith(ctx context.Context, topic string, sink Sink) (*Result, error) {
	clone := *a
	clone.opts.Sink = sink
	return clone.Run(ctx, topic)
}

// plan asks the model to break the topic into search queries.
func (a *Agent) plan(ctx context.Context, state *State) error {
	defer func(start time.Time) {
		metrics.ObserveStage(metrics.StagePlan, time.Since(start))
	}(time.Now())

	a.log.Info().Str("topic", state.Topic).Msg("Generating research plan")

	response, err := a.backend.Complete(ctx, prompt.PLANNER_INSTRUCTIONS, state.Topic)
	if err != nil {
		return errors.Wrap(err, "planner failed")
	}

	queries := prompt.ParsePlan(response, a.opts.MaxQueries)
	if len(queries) == 0 {
		// A degenerate plan still gets one research pass, over the topic
		// itself.
		queries = []string{state.Topic}
	}

	state.Plan = queries

	a.log.Info().Strs("queries", queries).Msg("Plan created")
	a.emit(Event{Kind: KindPlanCreated, Queries: queries})

	return nil
}

// research processes the planned queries in order, appending one summary per
// query.
func (a *Agent) research(ctx context.Context, state *State) error {
	defer func(start time.Time) {
		metrics.ObserveStage(metrics.StageResearch, time.Since(start))
	}(time.Now())

	for i, query := range state.Plan {
		summary, err := a.researchQuery(ctx, i, query, state)
		if err != nil {
			return err
		}

		state.Summaries = append(state.Summaries, summary)
	}

	return nil
}

func (a *Agent) researchQuery(ctx context.Context, index int, query string, state *State) (Summary, error) {
	a.log.Info().
		Int("query", index+1).
		Int("total", len(state.Plan)).
		Str("q", query).
		Msg("Researching query")

	a.emit(Event{Kind: KindQueryStarted, Index: index, Query: query})

	results, err := a.searcher.Search(ctx, query, a.opts.MaxResults)
	if err != nil {
		if ctx.Err() != nil {
			return Summary{}, ctx.Err()
		}

		metrics.IncSearch(metrics.OutcomeError)
		a.log.Warn().Err(err).Str("query", query).Msg("Search failed, continuing without sources")
		results = nil
	} else {
		metrics.IncSearch(metrics.OutcomeSuccess)
	}

	frames, sources := a.scrapeResults(ctx, index, query, results)
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	state.Sources = append(state.Sources, sources...)

	if len(frames) == 0 {
		a.log.Info().Str("query", query).Msg("No content scraped, recording null summary")
		metrics.IncNullSummary()
		a.emit(Event{Kind: KindQuerySummarized, Index: index, Query: query, Null: true})

		return Summary{Query: query, Text: prompt.CreateNullSummary(query), Null: true}, nil
	}

	text, err := a.backend.Complete(ctx, "", prompt.CreateResearcherPrompt(query, strings.Join(frames, "\n\n")))
	if err != nil {
		return Summary{}, errors.Wrapf(err, "researcher failed for query %q", query)
	}

	a.emit(Event{Kind: KindQuerySummarized, Index: index, Query: query})

	return Summary{Query: query, Text: text, Sources: len(frames)}, nil
}

// scrapeResults fetches the search hits concurrently and returns the prompt
// frames and source metadata in result order. Failures are skipped, not
// propagated.
func (a *Agent) scrapeResults(ctx context.Context, index int, query string, results []search.Result) ([]string, []document.Metadata) {
	type slot struct {
		frame string
		meta  document.Metadata
		ok    bool
	}

	slots := make([]slot, len(results))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MAX_CONCURRENT_SCRAPES)

	for i, result := range results {
		g.Go(func() error {
			uri, err := url.Parse(result.URL)
			if err != nil || !uri.IsAbs() {
				a.log.Debug().Str("url", result.URL).Msg("Skipping unparsable result URL")
				a.emit(Event{Kind: KindSourceSkipped, Index: index, Query: query, URL: result.URL, Reason: "invalid URL"})
				return nil
			}

			a.log.Debug().Str("url", result.URL).Str("title", result.Title).Msg("Scraping source")

			doc, err := a.scraper.Scrape(gctx, uri)
			if err != nil {
				metrics.IncScrape(a.scraper.Name(), scrapeOutcome(err))
				a.log.Debug().Err(err).Str("url", result.URL).Msg("Skipping source")
				a.emit(Event{Kind: KindSourceSkipped, Index: index, Query: query, URL: result.URL, Reason: skipReason(err)})
				return nil
			}

			metrics.IncScrape(a.scraper.Name(), metrics.OutcomeSuccess)

			doc.Metadata.Query = query
			content := doc.TruncatedContent(a.opts.MaxContentRunes)

			slots[i] = slot{
				frame: prompt.CreateSourceFrame(result.URL, content),
				meta:  doc.Metadata,
				ok:    true,
			}

			a.emit(Event{Kind: KindSourceScraped, Index: index, Query: query, URL: result.URL, Chars: len([]rune(content))})
			return nil
		})
	}

	g.Wait()

	var frames []string
	var sources []document.Metadata
	for _, s := range slots {
		if s.ok {
			frames = append(frames, s.frame)
			sources = append(sources, s.meta)
		}
	}

	return frames, sources
}

// write composes the final report from the accumulated summaries.
func (a *Agent) write(ctx context.Context, state *State) error {
	defer func(start time.Time) {
		metrics.ObserveStage(metrics.StageWrite, time.Since(start))
	}(time.Now())

	a.log.Info().Int("summaries", len(state.Summaries)).Msg("Composing report")
	a.emit(Event{Kind: KindWriteStarted})

	texts := make([]string, 0, len(state.Summaries))
	for _, summary := range state.Summaries {
		texts = append(texts, summary.Text)
	}

	response, err := a.backend.Complete(ctx, "", prompt.CreateWriterPrompt(state.Topic, texts))
	if err != nil {
		return errors.Wrap(err, "writer failed")
	}

	state.Report = response

	return nil
}

func (a *Agent) emit(ev Event) {
	if a.opts.Sink != nil {
		a.opts.Sink(ev)
	}
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, scrape.ErrUnsupportedContent):
		return "unsupported content"
	case errors.Is(err, scrape.ErrNoContent):
		return "no usable content"
	default:
		return "fetch failed"
	}
}

func scrapeOutcome(err error) string {
	if errors.Is(err, scrape.ErrUnsupportedContent) || errors.Is(err, scrape.ErrNoContent) {
		return metrics.OutcomeSkipped
	}

	return metrics.OutcomeError
}
