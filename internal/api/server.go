// Package api serves the read-only query surface over the state store.
// It never writes; the ingestion loop is the sole writer.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sbs_tracker/internal/store"
)

// Server provides HTTP access to tracked aircraft state.
type Server struct {
	q    store.Querier
	addr string
}

// NewServer creates a query server listening on addr.
func NewServer(q store.Querier, addr string) *Server {
	return &Server{q: q, addr: addr}
}

// Run starts the HTTP server and blocks.
func (s *Server) Run() error {
	log.Printf("query api listening on %s", s.addr)
	return http.ListenAndServe(s.addr, s.Router())
}

// Router returns the configured router, for embedding and tests.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/flights", s.handleListFlights)
		r.Get("/flights/{hex}", s.handleGetFlight)
		r.Get("/track/{hex}", s.handleTrack)
		r.Get("/sessions/{callsign}", s.handleSessions)
	})

	return r
}

// corsMiddleware allows browser access; the surface is read-only and
// carries no credentials.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListFlights(w http.ResponseWriter, r *http.Request) {
	aircraft, err := s.q.ListAircraft(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if aircraft == nil {
		aircraft = []store.Aircraft{}
	}
	writeJSON(w, http.StatusOK, aircraft)
}

func (s *Server) handleGetFlight(w http.ResponseWriter, r *http.Request) {
	hex := chi.URLParam(r, "hex")
	if hex == "" {
		writeError(w, http.StatusBadRequest, "hex is required")
		return
	}

	a, err := s.q.GetAircraft(r.Context(), hex)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "unknown aircraft")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	hex := chi.URLParam(r, "hex")
	if hex == "" {
		writeError(w, http.StatusBadRequest, "hex is required")
		return
	}

	limit := 300
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	samples, err := s.q.Track(r.Context(), hex, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if samples == nil {
		samples = []store.PositionSample{}
	}
	writeJSON(w, http.StatusOK, samples)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	callsign := strings.ToUpper(chi.URLParam(r, "callsign"))
	if callsign == "" {
		writeError(w, http.StatusBadRequest, "callsign is required")
		return
	}

	sessions, err := s.q.Sessions(r.Context(), callsign)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
