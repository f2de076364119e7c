// Package opsapi exposes the minimal operational surface the trading
// engine needs: a liveness probe and Prometheus metrics. The trade/session
// REST and WebSocket surfaces are an external collaborator and are not
// part of this package.
package opsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Metrics are the counters and gauges the trading loop reports into,
// registered against their own registry so repeated construction (e.g.
// in tests) never collides with the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	GateAcquisitions *prometheus.CounterVec
	TickDuration     prometheus.Histogram
	OpenPositions    *prometheus.GaugeVec
	Adjustments      *prometheus.CounterVec
}

// NewMetrics builds a fresh, independently-registered metric set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		GateAcquisitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "g13_gate_acquisitions_total",
			Help: "Broker gate acquire attempts, partitioned by outcome.",
		}, []string{"outcome"}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "g13_tick_duration_seconds",
			Help:    "Wall-clock duration of one trading loop tick.",
			Buckets: prometheus.DefBuckets,
		}),
		OpenPositions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "g13_open_positions",
			Help: "Currently open positions, partitioned by agent.",
		}, []string{"agent"}),
		Adjustments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "g13_strategist_adjustments_total",
			Help: "Strategist parameter adjustments applied, partitioned by agent.",
		}, []string{"agent"}),
	}
}

// Server is the ops HTTP server: /healthz and /metrics behind CORS.
type Server struct {
	logger     *zap.Logger
	httpServer *http.Server
	router     *mux.Router
}

// NewServer builds the ops server bound to addr; call Start to serve.
func NewServer(logger *zap.Logger, addr string, metrics *Metrics) *Server {
	s := &Server{
		logger: logger.Named("opsapi"),
		router: mux.NewRouter(),
	}
	s.setupRoutes(metrics)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(metrics *Metrics) {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{})).Methods("GET")
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Start runs the ops server until it errors or Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting ops server", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the ops server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
