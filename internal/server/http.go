package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/muurk/ssdp/internal/discovery"
	"github.com/muurk/ssdp/internal/logging"
	"github.com/muurk/ssdp/internal/protocol"
)

// Handler returns the HTTP routes:
//
//	GET  /entries[?st=target]  JSON array of cache entries
//	POST /search[?st=&mx=]     send an M-SEARCH (202 Accepted)
//	GET  /events               WebSocket stream of Event objects
//	GET  /metrics              Prometheus metrics
//	GET  /healthz              liveness probe
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /entries", s.handleEntries)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.Handle("GET /metrics", s.metrics.handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return logRequests(mux)
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	var entries []discovery.Entry
	if st := r.URL.Query().Get("st"); st != "" {
		entries = s.cfg.Entries.Filter(st)
	} else {
		entries = s.cfg.Entries.Entries()
	}
	if entries == nil {
		entries = []discovery.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Search == nil {
		http.Error(w, "search disabled", http.StatusNotImplemented)
		return
	}

	q := r.URL.Query()
	st := q.Get("st")
	if st == "" {
		st = protocol.SearchAll
	}
	mx := discovery.DefaultMX
	if v := q.Get("mx"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 120 {
			http.Error(w, "mx must be an integer between 1 and 120", http.StatusBadRequest)
			return
		}
		mx = n
	}

	s.cfg.Search(mx, st)
	writeJSON(w, http.StatusAccepted, map[string]any{"st": st, "mx": mx})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response", zap.Error(err))
	}
}

// logRequests logs each request at debug level.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.Debug("HTTP request",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("user_agent", r.UserAgent()),
		)
		next.ServeHTTP(w, r)
	})
}
