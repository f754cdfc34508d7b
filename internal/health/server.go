package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes boundary health over HTTP: a liveness summary at
// /health, the per-boundary breakdown at /health/detailed, and the
// prometheus registry at /metrics.
type Server struct {
	monitor *Monitor
	server  *http.Server
}

// healthSummary is the /health response body. Faulted lists the names
// of boundaries currently holding an error so an operator can tell at
// a glance which producer is down without pulling the detailed view.
type healthSummary struct {
	Status     SystemStatus `json:"status"`
	Boundaries int          `json:"boundaries"`
	Faulted    []string     `json:"faulted,omitempty"`
	Recovering []string     `json:"recovering,omitempty"`
}

// NewServer creates a new health server.
func NewServer(monitor *Monitor, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth()

	summary := healthSummary{
		Status:     Overall(report),
		Boundaries: len(report),
	}
	for name, h := range report {
		if h.Faulted {
			summary.Faulted = append(summary.Faulted, name)
		}
		if h.Recovering {
			summary.Recovering = append(summary.Recovering, name)
		}
	}
	sort.Strings(summary.Faulted)
	sort.Strings(summary.Recovering)

	w.Header().Set("Content-Type", "application/json")
	if summary.Status == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(summary)
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Status     SystemStatus              `json:"status"`
		Boundaries map[string]BoundaryHealth `json:"boundaries"`
	}{Overall(report), report})
}
