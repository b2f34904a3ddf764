package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// APIServer provides an HTTP interface for the running trader.
type APIServer struct {
	server    *http.Server
	strategy  string
	startTime time.Time
	logger    *zap.Logger

	mu   sync.RWMutex
	last *Report
}

// NewAPIServer creates a new APIServer.
func NewAPIServer(port int, strategy string, logger *zap.Logger) *APIServer {
	s := &APIServer{
		strategy:  strategy,
		startTime: time.Now(),
		logger:    logger.Named("api-server"),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routes served by the API.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// SetReport records the most recent decision report.
func (s *APIServer) SetReport(r *Report) {
	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	status := struct {
		Strategy   string  `json:"strategy"`
		StartTime  string  `json:"start_time"`
		Uptime     string  `json:"uptime"`
		LastReport *Report `json:"last_report,omitempty"`
	}{
		Strategy:   s.strategy,
		StartTime:  s.startTime.Format(time.RFC3339),
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		LastReport: last,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("Failed to write status response", zap.Error(err))
		http.Error(w, "Failed to encode status", http.StatusInternalServerError)
	}
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}
