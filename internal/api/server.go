// Package api serves the twin simulation over HTTP.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/twinsim/internal/engine"
	"github.com/talgya/twinsim/internal/entities"
	"github.com/talgya/twinsim/internal/persistence"
	"github.com/talgya/twinsim/internal/store"
)

// MaxSpeed bounds the game speed accepted by POST /api/v1/speed.
const MaxSpeed = 1000

// Server serves the simulation state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	Store    *store.Store
	DB       *persistence.DB // optional; journal endpoints answer 503 without it
	Hub      *Hub
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	Started  time.Time

	limiter *RateLimiter
	srv     *http.Server
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	if s.limiter == nil {
		s.limiter = NewRateLimiter(60, time.Minute)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/entities", s.handleEntities)
	mux.HandleFunc("/api/v1/entity/", s.handleEntity)
	mux.HandleFunc("/api/v1/resonance", s.handleResonance)
	mux.HandleFunc("/api/v1/updates", s.handleUpdates)
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/intervention", s.adminOnly(RateLimitMiddleware(s.limiter, s.handleIntervention)))

	return corsMiddleware(mux)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	errc := make(chan error, 1)
	go func() { errc <- s.srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if s.Hub != nil {
		s.Hub.Close()
	}
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// CORS_ORIGINS is a comma-separated list; localhost dev servers are always
// allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no TWINSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rep := s.Sim.Report()

	alive := 0
	for _, e := range s.Store.Entities() {
		if e.Alive() {
			alive++
		}
	}

	status := map[string]any{
		"name":      "twinsim",
		"run_id":    rep.RunID,
		"tick":      rep.Tick,
		"game_time": rep.GameTime,
		"speed":     s.Eng.Speed(),
		"running":   s.Eng.Running(),
		"alive":     alive,
		"resonance": rep.Resonance,
		"counters":  rep.Counters,
		"updates":   humanize.Comma(int64(rep.Counters.Updates)),
		"batches":   humanize.Comma(int64(rep.Counters.Batches)),
		"observers": 0,
	}
	if !s.Started.IsZero() {
		status["started"] = humanize.Time(s.Started)
	}
	if s.Hub != nil {
		status["observers"] = s.Hub.Clients()
	}
	writeJSON(w, status)
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Store.Entities())
}

type entityDetail struct {
	entities.Entity
	Phase   string `json:"phase"`
	Session any    `json:"session,omitempty"`
	History any    `json:"history,omitempty"`
	Health  any    `json:"health,omitempty"`
	Habits  any    `json:"habits,omitempty"`
}

// handleEntity serves GET /api/v1/entity/:id.
func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	id, err := entities.ParseID(strings.TrimPrefix(r.URL.Path, "/api/v1/entity/"))
	if err != nil {
		http.Error(w, "unknown entity", http.StatusNotFound)
		return
	}
	e, ok := s.Store.Entity(id)
	if !ok {
		http.Error(w, "unknown entity", http.StatusNotFound)
		return
	}

	rep := s.Sim.Report()
	d := entityDetail{Entity: e, Phase: "normal"}
	if sess, ok := rep.Sessions[id]; ok {
		d.Session = sess
	}
	if h := rep.History[id]; len(h) > 0 {
		d.History = h
	}
	if st, ok := rep.Health[id]; ok {
		d.Health = st
		d.Phase = st.Phase.String()
	}
	if hb, ok := rep.Habits[id]; ok {
		d.Habits = hb
	}
	writeJSON(w, d)
}

func (s *Server) handleResonance(w http.ResponseWriter, r *http.Request) {
	rep := s.Sim.Report()
	writeJSON(w, map[string]any{
		"tick":      rep.Tick,
		"resonance": rep.Resonance,
		"breakdown": rep.Breakdown,
	})
}

// handleUpdates serves the journal, newest first: ?kind=&limit=.
func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	kind := r.URL.Query().Get("kind")
	if kind != "" {
		if _, err := engine.ParseKind(kind); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	rows, err := s.DB.RecentUpdates(r.Context(), kind, limit)
	if err != nil {
		slog.Error("journal query failed", "error", err)
		http.Error(w, "journal query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}
	s.Hub.ServeWS(w, r, map[string]any{
		"type":     "hello",
		"report":   s.Sim.Report(),
		"entities": s.Store.Entities(),
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > MaxSpeed {
			http.Error(w, fmt.Sprintf("speed must be 0-%d", MaxSpeed), http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleIntervention(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Entity string  `json:"entity"`
		Stat   string  `json:"stat"`
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	desc, err := s.Sim.Intervene(req.Entity, req.Stat, req.Amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"success": true, "details": desc})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
