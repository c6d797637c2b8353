// Package server exposes the health, dashboard, metrics, and manual-trigger
// HTTP surface of a running monitor.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pagewatch/pagewatch/errors"
	"github.com/pagewatch/pagewatch/runner"
	"github.com/pagewatch/pagewatch/schedule"
)

// Server is the status HTTP server. It reads scheduler state; it never
// mutates watches except through the manual trigger endpoint.
type Server struct {
	engine *schedule.Engine
	runner *runner.Runner
	logger *zap.SugaredLogger
	http   *http.Server

	registry    *prometheus.Registry
	up          prometheus.Gauge
	uptime      prometheus.Gauge
	watchOK     *prometheus.GaugeVec
	watchErrors *prometheus.GaugeVec
}

// New creates the status server on the given port.
func New(port int, engine *schedule.Engine, r *runner.Runner, logger *zap.SugaredLogger) *Server {
	s := &Server{
		engine:   engine,
		runner:   r,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "web_monitor_up",
			Help: "Whether the monitor process is running.",
		}),
		uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "web_monitor_uptime_seconds",
			Help: "Seconds since the scheduler started.",
		}),
		watchOK: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "web_monitor_watch_success",
			Help: "Whether the last check of the watch succeeded.",
		}, []string{"watch", "name"}),
		watchErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "web_monitor_watch_errors_total",
			Help: "Consecutive failures of the watch.",
		}, []string{"watch", "name"}),
	}
	s.registry.MustRegister(s.up, s.uptime, s.watchOK, s.watchErrors)
	s.up.Set(1)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleDashboard)
	mux.HandleFunc("/dashboard", s.handleDashboard)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/trigger", s.handleTrigger)
	mux.Handle("/metrics", s.metricsHandler())

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until Stop is called. Blocks.
func (s *Server) Start() error {
	s.logger.Infow("Status server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "status server failed")
	}
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(s.engine.StartedAt()).Round(time.Second).String(),
		"watches":   len(s.engine.Watches()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id parameter")
		return
	}

	if err := s.engine.Trigger(id); err != nil {
		if errors.Is(err, errors.ErrWatchNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("watch %s not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Infow("Manual trigger accepted", "watch_id", id)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "triggered",
		"watchId": id,
	})
}

// metricsHandler refreshes the per-watch gauges from scheduler state before
// every scrape.
func (s *Server) metricsHandler() http.Handler {
	promHandler := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.uptime.Set(time.Since(s.engine.StartedAt()).Seconds())

		s.watchOK.Reset()
		s.watchErrors.Reset()
		results := s.engine.Results()
		for id, watch := range s.engine.Watches() {
			labels := prometheus.Labels{"watch": id, "name": watch.Name}

			ok := 0.0
			if res, seen := results[id]; seen && res.Success {
				ok = 1
			}
			s.watchOK.With(labels).Set(ok)
			s.watchErrors.With(labels).Set(float64(s.runner.ErrorCount(id)))
		}

		promHandler.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
