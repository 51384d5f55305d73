package dashboard

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"courier-pulse/pkg/perf"
	"courier-pulse/pkg/poller"
)

// Router exposes the dashboard's diagnostics and the websocket stream.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.With(s.requireToken).Get("/ws", s.hub.HandleSubscribe)

	r.Group(func(r chi.Router) {
		r.Use(s.handlerTiming)
		r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, s.monitor.Metrics())
		})
		r.Get("/metrics/average", s.handleAverage)
		r.Get("/suggestions", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string][]string{"suggestions": s.monitor.OptimizationSuggestions()})
		})
		r.Get("/report", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, s.Report())
		})

		r.Route("/poller", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, s.Status())
			})
			r.Post("/poll", s.handlePollNow)
		})
		r.Get("/journal", s.handleJournal)

		r.Route("/animations/{id}", func(r chi.Router) {
			r.Post("/start", func(w http.ResponseWriter, r *http.Request) {
				s.monitor.StartAnimationTracking(chi.URLParam(r, "id"))
				w.WriteHeader(http.StatusNoContent)
			})
			r.Post("/end", func(w http.ResponseWriter, r *http.Request) {
				sum, ok := s.monitor.EndAnimationTracking(chi.URLParam(r, "id"))
				if !ok {
					http.Error(w, "unknown animation", http.StatusNotFound)
					return
				}
				writeJSON(w, http.StatusOK, sum)
			})
		})
	})
	return r
}

// requireToken guards the stream with the same credential the dashboard uses
// against the orders API. Browsers cannot set headers on a websocket upgrade,
// so ?token= is accepted too. No configured token means no check.
func (s *Service) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := r.URL.Query().Get("token")
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			got = strings.TrimPrefix(h, "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handlerTiming records each diagnostics response as a component render keyed
// by its route pattern.
func (s *Service) handlerTiming(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		name := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			name = rc.RoutePattern()
		}
		s.monitor.RecordComponentRender(name, time.Since(start))
	})
}

func (s *Service) handleAverage(w http.ResponseWriter, r *http.Request) {
	window := perf.SuggestionWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			http.Error(w, "invalid window", http.StatusBadRequest)
			return
		}
		window = d
	}
	writeJSON(w, http.StatusOK, s.monitor.AverageMetrics(window))
}

// handlePollNow runs one tick outside the schedule.
func (s *Service) handlePollNow(w http.ResponseWriter, r *http.Request) {
	err := s.poller.PollOnce(r.Context())
	switch {
	case errors.Is(err, poller.ErrPollInFlight):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

func (s *Service) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to read journal", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}
