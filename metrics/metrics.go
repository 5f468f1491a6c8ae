// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus metrics collection for the federation
// node: blob fetch outcomes, gossip fan-out, and notification intake,
// exposed on a separate HTTP server independent of the main listener.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blobfed/fednode/logging"
)

var logger = logging.Component("metrics")

const (
	metricsCollectionTimeout = 10 * time.Second
	httpReadTimeout          = 10 * time.Second
	httpReadHeaderTimeout    = 5 * time.Second
	httpWriteTimeout         = 30 * time.Second
	httpIdleTimeout          = 60 * time.Second
	serverStartupDelay       = 100 * time.Millisecond
)

// Metrics holds the counters and gauges the federation node updates as it
// serves blobs, processes notifications, and fans out gossip.
type Metrics struct {
	BlobsServed       prometheus.Counter
	BlobsStored       prometheus.Counter
	NotifyRequests    *prometheus.CounterVec
	FetchOutcomes     *prometheus.CounterVec
	GossipDispatched  prometheus.Counter
	GossipQueueDrops  prometheus.Counter
	GossipQueueLength prometheus.Gauge
}

// Server manages the Prometheus metrics HTTP server, independent of the
// node's primary blob-serving listener.
type Server struct {
	registry *prometheus.Registry
	server   *http.Server
	address  string
	Metrics  *Metrics
}

// New creates a metrics server bound to address (e.g. ":9090") with a fresh
// registry, registering the federation node's counters and gauges.
func New(address string) *Server {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		BlobsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fednode_blobs_served_total",
			Help: "Number of successful blob GET and HEAD responses.",
		}),
		BlobsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fednode_blobs_stored_total",
			Help: "Number of blobs persisted via notify or upload.",
		}),
		NotifyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fednode_notify_requests_total",
			Help: "POST /notify outcomes by result.",
		}, []string{"result"}),
		FetchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fednode_fetch_outcomes_total",
			Help: "Integrity fetcher outcomes by result.",
		}, []string{"result"}),
		GossipDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fednode_gossip_dispatched_total",
			Help: "Number of gossip notification POSTs attempted.",
		}),
		GossipQueueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fednode_gossip_queue_drops_total",
			Help: "Number of gossip jobs dropped because the queue was full.",
		}),
		GossipQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fednode_gossip_queue_length",
			Help: "Current length of the gossip job queue.",
		}),
	}

	registry.MustRegister(
		m.BlobsServed,
		m.BlobsStored,
		m.NotifyRequests,
		m.FetchOutcomes,
		m.GossipDispatched,
		m.GossipQueueDrops,
		m.GossipQueueLength,
	)

	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Timeout:           metricsCollectionTimeout,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)

	httpServer := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadTimeout:       httpReadTimeout,
		ReadHeaderTimeout: httpReadHeaderTimeout,
		WriteTimeout:      httpWriteTimeout,
		IdleTimeout:       httpIdleTimeout,
	}

	return &Server{
		registry: registry,
		server:   httpServer,
		address:  address,
		Metrics:  m,
	}
}

// Registry returns the Prometheus registry backing this server.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Start launches the HTTP server in the background and returns nil after a
// short delay. A bind or serve error is logged by the background goroutine;
// it is not returned.
func (s *Server) Start() error {
	go func() {
		logger.Info("metrics server starting", "address", s.address)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	time.Sleep(serverStartupDelay)

	logger.Info("metrics server started", "address", s.address, "endpoint", "/metrics")

	return nil
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("stopping metrics server", "address", s.address)

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics: shutdown: %w", err)
	}

	return nil
}
