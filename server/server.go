package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mempirate/delver/agent"
	"github.com/mempirate/delver/config"
	"github.com/mempirate/delver/log"
	"github.com/mempirate/delver/metrics"
	"github.com/mempirate/delver/store"
)

const SHUTDOWN_TIMEOUT = 10 * time.Second

// Runner executes one research run, reporting progress to sink.
type Runner = agent.RunFunc

// Server exposes research runs over HTTP: report creation, job listing, an
// SSE progress stream and document download.
type Server struct {
	log    zerolog.Logger
	cfg    config.ServerConfig
	runner Runner
	store  store.LocalStore
	jobs   *registry
}

func New(cfg config.ServerConfig, runner Runner, st store.LocalStore) *Server {
	return &Server{
		log:    log.NewLogger("server"),
		cfg:    cfg,
		runner: runner,
		store:  st,
		jobs:   newRegistry(),
	}
}

// Start runs the server until ctx is canceled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Routes(),
		// No write timeout: SSE streams stay open for the whole run.
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// Routes builds the router with the full middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/reports", func(r chi.Router) {
		create := r.With()
		if s.cfg.RequestsPerMinute > 0 {
			create = r.With(httprate.Limit(s.cfg.RequestsPerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}

		create.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleDetail)
		r.Get("/{id}/events", s.handleEvents)
		r.Get("/{id}/document", s.handleDocument)
	})

	return r
}

// instrument records request metrics and an access log line. The route
// pattern (not the raw path) labels the metrics to keep cardinality bounded.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		done := metrics.TrackHTTPInFlight()
		defer done()

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), time.Since(start))

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

type createRequest struct {
	Topic string `json:"topic"`
}

type createResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}

	id := uuid.NewString()
	j := s.jobs.create(id, topic)

	s.log.Info().Str("id", id).Str("topic", topic).Msg("Research job accepted")

	go s.runJob(j)

	writeJSON(w, http.StatusAccepted, createResponse{ID: id})
}

// runJob drives one research run to completion. The run is detached from the
// request context: clients can disconnect and poll later.
func (s *Server) runJob(j *job) {
	j.setRunning()

	result, err := s.runner(context.Background(), j.topic, j.appendEvent)
	if err != nil {
		s.log.Error().Err(err).Str("id", j.id).Msg("Research run failed")
		j.finish(nil, err)
		return
	}

	if md, err := result.Report.Markdown(); err != nil {
		s.log.Warn().Err(err).Str("id", j.id).Msg("Failed to render report")
	} else if err := s.store.Store(j.id+".md", strings.NewReader(md)); err != nil {
		s.log.Warn().Err(err).Str("id", j.id).Msg("Failed to persist report")
	}

	j.finish(result, nil)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.list())
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	j := s.jobs.get(chi.URLParam(r, "id"))
	if j == nil {
		writeError(w, http.StatusNotFound, "no such job")
		return
	}

	writeJSON(w, http.StatusOK, j.detail())
}

// handleEvents streams the job's events as SSE: first the buffered replay,
// then live events until the job reaches a terminal state or the client
// disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	j := s.jobs.get(chi.URLParam(r, "id"))
	if j == nil {
		writeError(w, http.StatusNotFound, "no such job")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	replay, live, cancel := j.subscribe()
	defer cancel()

	write := func(ev agent.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}

		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
			return err
		}

		flusher.Flush()
		return nil
	}

	for _, ev := range replay {
		if err := write(ev); err != nil {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-live:
			if !open {
				return
			}
			if err := write(ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	j := s.jobs.get(chi.URLParam(r, "id"))
	if j == nil {
		writeError(w, http.StatusNotFound, "no such job")
		return
	}

	result, done := j.report()
	if !done {
		writeError(w, http.StatusConflict, "report not ready")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "markdown"
	}

	switch format {
	case "markdown":
		md, err := result.Report.Markdown()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to render report")
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Report.FileName()))
		fmt.Fprint(w, md)
	case "html":
		html, err := result.Report.HTML()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to render report")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	default:
		writeError(w, http.StatusBadRequest, "format must be markdown or html")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
