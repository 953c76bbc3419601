package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values used across the pipeline metrics.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"

	StagePlan     = "plan"
	StageResearch = "research"
	StageWrite    = "write"
)

var (
	researchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delver_research_runs_total",
		Help: "Completed research runs by outcome",
	}, []string{"outcome"}) // outcome=success|error

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "delver_stage_duration_seconds",
		Help:    "Time spent per pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"}) // stage=plan|research|write

	searches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delver_searches_total",
		Help: "Search requests by outcome",
	}, []string{"outcome"}) // outcome=success|error

	scrapes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delver_scrapes_total",
		Help: "Scrape attempts by provider and outcome",
	}, []string{"provider", "outcome"}) // outcome=success|skipped|error

	llmRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delver_llm_requests_total",
		Help: "Chat completion requests by outcome",
	}, []string{"outcome"}) // outcome=success|error

	llmTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delver_llm_tokens_total",
		Help: "Tokens consumed by chat completions",
	}, []string{"kind"}) // kind=prompt|completion

	nullSummaries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delver_null_summaries_total",
		Help: "Queries whose sources yielded no scrapable content",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delver_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "delver_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "delver_http_requests_in_flight",
		Help: "HTTP requests currently being served",
	})
)

func IncResearchRun(outcome string) { researchRuns.WithLabelValues(outcome).Inc() }

func ObserveStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func IncSearch(outcome string) { searches.WithLabelValues(outcome).Inc() }

func IncScrape(provider, outcome string) { scrapes.WithLabelValues(provider, outcome).Inc() }

func IncLLMRequest(outcome string) { llmRequests.WithLabelValues(outcome).Inc() }

func AddLLMTokens(prompt, completion int64) {
	llmTokens.WithLabelValues("prompt").Add(float64(prompt))
	llmTokens.WithLabelValues("completion").Add(float64(completion))
}

func IncNullSummary() { nullSummaries.Inc() }

func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// TrackHTTPInFlight marks a request as in flight. The returned func must be
// called when the request finishes.
func TrackHTTPInFlight() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}
