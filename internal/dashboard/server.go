// Package dashboard serves the local observability API: the open position,
// ledger trades and statistics, the latest evaluation snapshot, recent
// signals, and Prometheus metrics.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"niftyscalp/internal/config"
	"niftyscalp/internal/ledger"
	"niftyscalp/internal/logger"
	"niftyscalp/internal/metrics"
	"niftyscalp/internal/models"
	"niftyscalp/internal/strategy"
)

// signalHistoryLimit bounds the in-memory signal feed.
const signalHistoryLimit = 50

// PositionSource exposes the current open position, nil when flat.
type PositionSource interface {
	Position() *models.Position
}

// Server is the read-only HTTP surface over the running engine. It doubles
// as a telemetry sink so the strategy can hand it each cycle's snapshot and
// any emitted signals.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	positions PositionSource
	ledger    ledger.Interface
	log       *logger.Entry
	addr      string
	authToken string

	mu       sync.RWMutex
	snapshot *strategy.CycleSnapshot
	signals  []strategy.SignalEvent
}

var _ strategy.Sink = (*Server)(nil)

// NewServer wires the API over the position source and trade ledger.
func NewServer(cfg config.DashboardConfig, positions PositionSource, ld ledger.Interface, log *logger.Entry) *Server {
	if log == nil {
		log = logger.New().WithComponent("dashboard")
	}
	s := &Server{
		router:    chi.NewRouter(),
		positions: positions,
		ledger:    ld,
		log:       log,
		addr:      cfg.ListenAddr,
		authToken: cfg.AuthToken,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/position", s.handlePosition)
	s.router.Get("/api/trades", s.handleTrades)
	s.router.Get("/api/stats", s.handleStats)
	s.router.Get("/api/snapshot", s.handleSnapshot)
	s.router.Get("/api/signals", s.handleSignals)
	s.router.Handle("/metrics", metrics.Handler())
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

// Start blocks serving the API until Shutdown or a listen failure.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.WithFields(logger.Fields{"addr": s.addr}).Info("Dashboard listening")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// PublishSnapshot stores the latest cycle snapshot for /api/snapshot.
func (s *Server) PublishSnapshot(snap strategy.CycleSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = &snap
}

// PublishSignal appends to the signal feed, keeping the newest
// signalHistoryLimit events.
func (s *Server) PublishSignal(event strategy.SignalEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, event)
	if len(s.signals) > signalHistoryLimit {
		s.signals = s.signals[len(s.signals)-signalHistoryLimit:]
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// handlePosition serves the open position, JSON null when flat.
func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.positions.Position())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	records, err := s.ledger.ReadAll()
	if err != nil {
		s.log.WithError(err).Error("Failed to read trade ledger")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []ledger.Record{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Statistics()
	if err != nil {
		s.log.WithError(err).Error("Failed to compute ledger statistics")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handleSnapshot serves the latest cycle snapshot, JSON null before the
// first evaluation completes.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	out := make([]strategy.SignalEvent, len(s.signals))
	copy(out, s.signals)
	s.mu.RUnlock()
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("Failed to encode response")
	}
}
