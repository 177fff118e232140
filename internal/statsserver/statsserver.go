// Package statsserver exposes spawnkit's debug HTTP surface: a health
// check and the prometheus scrape endpoint, routed with gorilla/mux
// the way the teacher's internal/app wires its own HTTP server. This
// is the visible, externally-scrapable replacement for spec.md's
// "process-wide active-count warning", which the original only logs.
package statsserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// ActiveCounter reports the pool's current active worker count; kept
// as a narrow interface so statsserver doesn't import internal/pool
// directly.
type ActiveCounter interface {
	ActiveCount() int
}

// Server serves /healthz and /stats alongside the prometheus /metrics
// endpoint.
type Server struct {
	httpServer *http.Server
	logger     *logrus.Logger
}

// New builds a Server bound to addr; pool may be nil if stats should
// omit the active-worker count.
func New(addr string, pool ActiveCounter, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	router := mux.NewRouter()
	router.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	router.HandleFunc("/stats", statsHandler(pool)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: router},
		logger:     logger,
	}
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func statsHandler(pool ActiveCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active := 0
		if pool != nil {
			active = pool.ActiveCount()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"active_workers": active})
	}
}

// Start begins serving in a background goroutine. Listener errors
// after a graceful Shutdown are not logged.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("spawnkit: stats server exited unexpectedly")
		}
	}()
	s.logger.WithField("addr", s.httpServer.Addr).Info("spawnkit: stats server listening")
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
