// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	service "github.com/okian/lanes/internal/app"
	"github.com/okian/lanes/internal/domain/model"
	"github.com/okian/lanes/internal/domain/types"
)

const (
	defaultMaxLimit   = 100
	defaultHeartbeat  = 15 * time.Second
	retryAfterSeconds = 1
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ClickDependencies
	ItemDependencies
	LeaderboardDependencies
	RankDependencies
	StreamDependencies
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	clicksHandler      *ClicksHandler
	itemsHandler       *ItemsHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	streamHandler      *StreamHandler
	clickLimiter       *ClientLimiter
}

// Option configures the Server.
type Option func(*serverConfig)

type serverConfig struct {
	maxLimit  int
	heartbeat time.Duration
	limiter   *ClientLimiter
}

// WithMaxLimit caps GET /leaderboard?limit.
func WithMaxLimit(n int) Option {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxLimit = n
		}
	}
}

// WithHeartbeat sets the SSE keep-alive interval.
func WithHeartbeat(d time.Duration) Option {
	return func(c *serverConfig) {
		if d > 0 {
			c.heartbeat = d
		}
	}
}

// WithClickLimiter rate limits POST /clicks per client.
func WithClickLimiter(l *ClientLimiter) Option {
	return func(c *serverConfig) {
		c.limiter = l
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	cfg := serverConfig{maxLimit: defaultMaxLimit, heartbeat: defaultHeartbeat}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		clicksHandler:      NewClicksHandler(deps),
		itemsHandler:       NewItemsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, cfg.maxLimit),
		rankHandler:        NewRankHandler(deps),
		streamHandler:      NewStreamHandler(deps, cfg.heartbeat),
		clickLimiter:       cfg.limiter,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	clicks := s.clicksHandler.HandlePostClick
	if s.clickLimiter != nil {
		clicks = RateLimitMiddleware(clicks, s.clickLimiter)
	}

	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleHealth)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/clicks", MetricsMiddleware(clicks, "clicks"))
	mux.HandleFunc("/items", MetricsMiddleware(s.itemsHandler.HandleListItems, "items"))
	mux.HandleFunc("/items/{id}", MetricsMiddleware(s.itemsHandler.HandleGetItem, "item"))
	mux.HandleFunc("/actors/{id}/clicks", MetricsMiddleware(s.itemsHandler.HandleActorClicks, "actor_clicks"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/rank/{id}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("/presence", MetricsMiddleware(s.streamHandler.HandlePresence, "presence"))
	mux.HandleFunc("/stream", MetricsMiddleware(s.streamHandler.HandleStream, "stream"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates the service's error kinds to HTTP.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrPersistenceUnavailable), errors.Is(err, service.ErrNotStarted):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// Board is the GET /items response.
type Board = model.Board
