package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/ritzau/costar/pkg/apperr"
	"github.com/ritzau/costar/pkg/layout"
	"github.com/ritzau/costar/pkg/logging"
	"github.com/ritzau/costar/pkg/model"
	"github.com/ritzau/costar/pkg/pubsub"
)

const (
	healthTimeout   = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

// KindRateLimited is the error kind of a 429 response.
const KindRateLimited = "rate_limited"

// Explorer is the exploration backend the server exposes.
type Explorer interface {
	Search(ctx context.Context, query string) ([]model.Actor, error)
	Expand(ctx context.Context, actorID string) (model.ExpansionPayload, error)
	NodeConnections(ctx context.Context, actorID string, exclude []string) (int, error)
	Ping(ctx context.Context) error
}

// SettingsResponse is the body of /explore/settings.
type SettingsResponse struct {
	Settings model.UISettings `json:"settings"`
	Physics  layout.Options   `json:"physics"`
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit limits /explore requests to rps per second with the given
// burst. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithPublisher replaces the default event publisher.
func WithPublisher(p *pubsub.SSEPublisher) Option {
	return func(s *Server) { s.publisher = p }
}

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Server represents the web server
type Server struct {
	router    *mux.Router
	explorer  Explorer
	publisher *pubsub.SSEPublisher
	limiter   *rate.Limiter
	log       *slog.Logger

	mu       sync.RWMutex
	settings model.UISettings
	physics  layout.Options
	loaded   bool
}

// NewServer creates a new web server with default settings.
func NewServer(explorer Explorer, opts ...Option) *Server {
	physics, _ := layout.Physics(layout.SolverForceAtlas2Based)
	s := &Server{
		router:    mux.NewRouter(),
		explorer:  explorer,
		publisher: pubsub.NewServerPublisher(),
		log:       logging.Component("web"),
		settings:  model.UISettings{PhysicsEngine: layout.SolverForceAtlas2Based},
		physics:   physics,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// Publisher returns the server's event publisher.
func (s *Server) Publisher() *pubsub.SSEPublisher { return s.publisher }

// Settings returns the current display settings.
func (s *Server) Settings() model.UISettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetSettings replaces the display settings and notifies subscribers.
// source names where they came from.
func (s *Server) SetSettings(settings model.UISettings, source string) error {
	physics, err := layout.Physics(settings.PhysicsEngine)
	if err != nil {
		return apperr.InvalidArgument("%v", err)
	}

	s.mu.Lock()
	first := !s.loaded
	changed := s.settings != settings
	s.settings = settings
	s.physics = physics
	s.loaded = true
	s.mu.Unlock()

	eventType := pubsub.TypeSettingsChanged
	if first {
		eventType = pubsub.TypeSettingsLoaded
	} else if !changed {
		return nil
	}
	s.log.Info("settings updated", "source", source, "physics", settings.PhysicsEngine, "hideBottomBar", settings.HideBottomBar)
	return s.publisher.Publish(pubsub.TopicSettings, eventType, pubsub.SettingsChanged{
		HideBottomBar: settings.HideBottomBar,
		PhysicsEngine: settings.PhysicsEngine,
		Source:        source,
	})
}

// Handler returns the root handler with request ids applied.
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

func (s *Server) setupRoutes() {
	// SSE subscription endpoints
	s.router.HandleFunc("/api/subscribe/settings", s.handleSubscribe(pubsub.TopicSettings)).Methods("GET")
	s.router.HandleFunc("/api/subscribe/expansions", s.handleSubscribe(pubsub.TopicExpansions)).Methods("GET")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/explore").Subrouter()
	api.Use(s.rateLimit)
	api.HandleFunc("/search", s.handleSearch).Methods("GET")
	api.HandleFunc("/expand-node/{id}", s.handleExpandNode).Methods("GET")
	api.HandleFunc("/node-connections/{id}", s.handleNodeConnections).Methods("GET")
	api.HandleFunc("/settings", s.handleSettings).Methods("GET")

	// mux does not inherit these into subrouters.
	for _, r := range []*mux.Router{s.router, api} {
		r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
		r.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, apperr.NotFound("no route for %s", r.URL.Path))
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, model.ErrorResponse{
		Error: fmt.Sprintf("method %s not allowed", r.Method),
		Kind:  string(apperr.KindInvalidArgument),
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, model.ErrorResponse{
				Error: "too many requests",
				Kind:  KindRateLimited,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSubscribe(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pubsub.ServeTopic(w, r, s.publisher, topic)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := s.explorer.Ping(ctx); err != nil {
		s.writeError(w, r, apperr.Upstream(err, "health check"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	actors, err := s.explorer.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if actors == nil {
		actors = []model.Actor{}
	}
	writeJSON(w, http.StatusOK, actors)
}

func (s *Server) handleExpandNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	start := time.Now()

	payload, err := s.explorer.Expand(r.Context(), id)
	served := pubsub.ExpansionServed{
		ActorID:    id,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		served.Error = err.Error()
		served.Kind = string(apperr.KindOf(err))
		s.publish(r.Context(), pubsub.TypeExpansionFailed, served)
		s.writeError(w, r, err)
		return
	}

	served.Label = payload.RootNode.Label
	served.NewNodes = len(payload.NewNodes)
	served.Edges = len(payload.Edges)
	s.publish(r.Context(), pubsub.TypeExpansionServed, served)
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleNodeConnections(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	count, err := s.explorer.NodeConnections(r.Context(), id, excludeParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ConnectionCount{Result: count})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := SettingsResponse{Settings: s.settings, Physics: s.physics}
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) publish(ctx context.Context, eventType string, served pubsub.ExpansionServed) {
	if err := s.publisher.Publish(pubsub.TopicExpansions, eventType, served); err != nil {
		logging.DebugContext(ctx, "expansion event not published", "error", err)
	}
}

// excludeParam accepts both repeated (?exclude=a&exclude=b) and comma
// separated (?exclude=a,b) ids.
func excludeParam(r *http.Request) []string {
	var ids []string
	for _, v := range r.URL.Query()["exclude"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)
	if status >= http.StatusInternalServerError && kind != apperr.KindUpstream {
		logging.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	} else {
		logging.DebugContext(r.Context(), "request error", "path", r.URL.Path, "kind", string(kind), "error", err)
	}
	writeJSON(w, status, model.ErrorResponse{
		Error: err.Error(),
		Kind:  string(kind),
		Hints: apperr.Hints(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response", "error", err)
	}
}

// Start serves on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("starting web server", "addr", "http://localhost"+srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	// SSE streams only end once the publisher closes.
	s.publisher.Close()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("web server stopped")
	return nil
}
