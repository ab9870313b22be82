package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventdigest/internal/config"
	"eventdigest/internal/digest"
	appLog "eventdigest/internal/log"
	"eventdigest/internal/model"
)

// Engine is the part of the digest engine the server drives.
type Engine interface {
	Build(ctx context.Context, now time.Time) (digest.Result, error)
	Run(ctx context.Context, now time.Time) (digest.Result, error)
}

// Server exposes a read-only preview of the digest, a manual trigger,
// Prometheus metrics and the exported calendar.
type Server struct {
	cfg      *config.Config
	engine   Engine
	gatherer prometheus.Gatherer
	calendar func() []byte
	now      func() time.Time
	mux      *http.ServeMux

	// In-memory cache for /api/events; every preview hits the Slack API.
	eventsMu    sync.RWMutex
	eventsCache *eventsCache

	// Serializes runs. Shared with the scheduler via WithRunGuard.
	runMu *sync.Mutex
}

type eventsCache struct {
	resp      eventsResponse
	updatedAt time.Time
}

const eventsCacheTTL = 30 * time.Second

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithCalendar serves the bytes returned by fn on /calendar.ics.
func WithCalendar(fn func() []byte) Option {
	return func(s *Server) { s.calendar = fn }
}

// WithRunGuard makes manual runs and any other holder of mu mutually
// exclusive; a POST /api/run while mu is held answers 409.
func WithRunGuard(mu *sync.Mutex) Option {
	return func(s *Server) {
		if mu != nil {
			s.runMu = mu
		}
	}
}

// WithClock overrides time.Now.
func WithClock(fn func() time.Time) Option {
	return func(s *Server) { s.now = fn }
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, engine Engine, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		engine: engine,
		now:    time.Now,
		mux:    http.NewServeMux(),
		runMu:  new(sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials mean disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health and /metrics.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="eventdigest", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/run", s.handleRun)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendar)
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type eventDTO struct {
	Title     string     `json:"title"`
	Place     string     `json:"place"`
	Category  string     `json:"category"`
	Kind      string     `json:"kind"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	HasTime   bool       `json:"has_time"`
	When      string     `json:"when"`
	Channel   string     `json:"channel"`
	MessageID string     `json:"message_id"`
	Permalink string     `json:"permalink"`
}

type eventsResponse struct {
	RunID       string         `json:"run_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	TimeZone    string         `json:"time_zone"`
	Stats       digest.Stats   `json:"stats"`
	Events      []eventDTO     `json:"events"`
	Payload     digest.Payload `json:"payload"`
}

// GET /api/events
//
// Builds the digest as of now without publishing it. Responses are cached
// for eventsCacheTTL; ?refresh=1 bypasses the cache.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	cacheNow := s.now()
	if r.URL.Query().Get("refresh") == "" {
		s.eventsMu.RLock()
		ec := s.eventsCache
		s.eventsMu.RUnlock()
		if ec != nil && cacheNow.Sub(ec.updatedAt) < eventsCacheTTL {
			writeJSON(w, http.StatusOK, ec.resp)
			return
		}
	}

	loc := s.cfg.Location()
	now := cacheNow.In(loc)

	res, err := s.engine.Build(r.Context(), now)
	if err != nil {
		appLog.Error("api events: build failed", err)
		writeError(w, statusFor(err), "failed to build digest")
		return
	}

	resp := eventsResponse{
		RunID:       res.RunID,
		GeneratedAt: now,
		TimeZone:    loc.String(),
		Stats:       res.Stats,
		Events:      s.toDTOs(res.Events),
		Payload:     res.Payload,
	}

	s.eventsMu.Lock()
	s.eventsCache = &eventsCache{resp: resp, updatedAt: cacheNow}
	s.eventsMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) toDTOs(events []model.Event) []eventDTO {
	r := digest.NewRenderer(s.cfg)
	dtos := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		d := eventDTO{
			Title:     ev.Title,
			Place:     ev.Place,
			Category:  ev.Category,
			Kind:      ev.Temporal.Kind.String(),
			HasTime:   ev.Temporal.HasTime,
			When:      r.FormatWhen(ev.Temporal),
			Channel:   ev.Ref.Channel,
			MessageID: ev.Ref.MessageID,
			Permalink: ev.Permalink,
		}
		if ev.Temporal.Decided() {
			start := ev.Temporal.Start
			d.Start = &start
		}
		if ev.Temporal.Kind == model.Range {
			end := ev.Temporal.End
			d.End = &end
		}
		dtos = append(dtos, d)
	}
	return dtos
}

type runResponse struct {
	RunID     string       `json:"run_id"`
	Published bool         `json:"published"`
	Empty     bool         `json:"empty"`
	DryRun    bool         `json:"dry_run"`
	Stats     digest.Stats `json:"stats"`
}

// POST /api/run performs a full run, publishing unless dry_run is set.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.runMu.TryLock() {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	defer s.runMu.Unlock()

	now := s.now().In(s.cfg.Location())
	res, err := s.engine.Run(r.Context(), now)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	s.eventsMu.Lock()
	s.eventsCache = nil
	s.eventsMu.Unlock()

	writeJSON(w, http.StatusOK, runResponse{
		RunID:     res.RunID,
		Published: res.Published,
		Empty:     res.Payload.Empty,
		DryRun:    s.cfg.DryRun,
		Stats:     res.Stats,
	})
}

func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	var data []byte
	if s.calendar != nil {
		data = s.calendar()
	}
	if len(data) == 0 {
		writeError(w, http.StatusNotFound, "no calendar exported yet")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// statusFor maps upstream failures to 502.
func statusFor(err error) int {
	if errors.Is(err, digest.ErrProvider) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
