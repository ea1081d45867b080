// Package dashboard exposes a small JSON status API for a running monitor:
// the active session, its price series, reconstructed positions, and
// history. There is no HTML; consumers are curl and whatever charts the
// series elsewhere.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/eddiefleurent/vance_verticals/internal/broker"
	"github.com/eddiefleurent/vance_verticals/internal/monitor"
	"github.com/eddiefleurent/vance_verticals/internal/positions"
	"github.com/eddiefleurent/vance_verticals/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router    *chi.Mux
	server    *http.Server
	storage   storage.Interface
	broker    broker.Broker
	logger    *logrus.Logger
	listen    string
	authToken string

	session *monitor.Session
}

type Config struct {
	Listen    string
	AuthToken string
}

// SpreadView is the active session as served to clients.
type SpreadView struct {
	SessionID   string   `json:"session_id"`
	Underlying  string   `json:"underlying"`
	LongSymbol  string   `json:"long_symbol"`
	ShortSymbol string   `json:"short_symbol"`
	Expiration  string   `json:"expiration"`
	Quantity    int      `json:"quantity"`
	StartedAt   string   `json:"started_at"`
	State       string   `json:"state"`
	LastPrice   float64  `json:"last_price"`
	LastMA      *float64 `json:"last_ma,omitempty"`
	Points      int      `json:"points"`
}

// PositionsView pairs reconstructed spreads with their unpaired remainder.
type PositionsView struct {
	Spreads   []SpreadLegsView `json:"spreads"`
	Ungrouped []LegView        `json:"ungrouped"`
}

type SpreadLegsView struct {
	Underlying  string  `json:"underlying"`
	Expiration  string  `json:"expiration"`
	Type        string  `json:"type"`
	LongStrike  float64 `json:"long_strike"`
	ShortStrike float64 `json:"short_strike"`
	LongSymbol  string  `json:"long_symbol"`
	ShortSymbol string  `json:"short_symbol"`
}

type LegView struct {
	Symbol string  `json:"symbol"`
	Strike float64 `json:"strike"`
	Side   string  `json:"side"`
}

// NewServer builds the dashboard for one monitoring session. The session may
// be nil when the caller only wants position and history endpoints.
func NewServer(cfg Config, store storage.Interface, b broker.Broker, session *monitor.Session, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		storage:   store,
		broker:    b,
		logger:    logger,
		listen:    cfg.Listen,
		authToken: cfg.AuthToken,
		session:   session,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/spread", s.handleGetSpread)
	s.router.Get("/api/series", s.handleGetSeries)
	s.router.Get("/api/positions", s.handleGetPositions)
	s.router.Get("/api/history", s.handleGetHistory)
	s.router.Get("/api/stats", s.handleGetStats)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.WithField("listen", s.listen).Info("starting dashboard server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleGetSpread(w http.ResponseWriter, _ *http.Request) {
	if s.session == nil {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}

	view := SpreadView{
		SessionID:   s.session.ID,
		Underlying:  s.session.Underlying,
		LongSymbol:  s.session.LongSymbol,
		ShortSymbol: s.session.ShortSymbol,
		Expiration:  s.session.Expiration,
		Quantity:    s.session.Quantity,
		StartedAt:   s.session.StartedAt.Format(time.RFC3339),
		State:       string(s.session.Series.State()),
		Points:      s.session.Series.Len(),
	}
	if p, ma, hasPoint, hasMA := s.session.Series.Latest(); hasPoint {
		view.LastPrice = p.Price
		if hasMA {
			view.LastMA = &ma
		}
	}

	s.writeJSON(w, view)
}

func (s *Server) handleGetSeries(w http.ResponseWriter, _ *http.Request) {
	if s.session == nil {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	s.writeJSON(w, s.session.Series.Snapshot())
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	items, err := s.broker.GetPositions(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("failed to fetch positions")
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	grouped := positions.GroupSpreads(items, s.logger)

	view := PositionsView{
		Spreads:   make([]SpreadLegsView, 0, len(grouped.Spreads)),
		Ungrouped: make([]LegView, 0, len(grouped.Ungrouped)),
	}
	for _, key := range grouped.Keys() {
		pair := grouped.Spreads[key]
		view.Spreads = append(view.Spreads, SpreadLegsView{
			Underlying:  key.Underlying,
			Expiration:  key.Expiration,
			Type:        string(key.Type),
			LongStrike:  pair.Long.Contract.Strike,
			ShortStrike: pair.Short.Contract.Strike,
			LongSymbol:  pair.Long.Contract.Symbol,
			ShortSymbol: pair.Short.Contract.Symbol,
		})
	}
	for _, leg := range grouped.Ungrouped {
		view.Ungrouped = append(view.Ungrouped, LegView{
			Symbol: leg.Contract.Symbol,
			Strike: leg.Contract.Strike,
			Side:   leg.Position.Side,
		})
	}

	s.writeJSON(w, view)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.storage.GetHistory())
}

func (s *Server) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.storage.GetStatistics())
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}
