// Package exporter serves Prometheus metrics for allocation outcomes and
// segment occupancy.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veesix-networks/segmentd/pkg/component"
	"github.com/veesix-networks/segmentd/pkg/config"
	"github.com/veesix-networks/segmentd/pkg/logger"
	"github.com/veesix-networks/segmentd/pkg/metrics"
)

const Namespace = "exporter"

func init() {
	component.Register(Namespace, New)
}

type Status struct {
	State         string `json:"state"`
	ListenAddress string `json:"listenAddress"`
	ServerRunning bool   `json:"serverRunning"`
}

type Component struct {
	*component.Base
	logger        *slog.Logger
	registry      *prometheus.Registry
	addr          string
	server        *http.Server
	mu            sync.RWMutex
	serverRunning bool
}

func New(deps component.Dependencies) (component.Component, error) {
	if deps.Config == nil || !deps.Config.Exporter.IsEnabled() {
		return nil, nil
	}

	addr := deps.Config.Exporter.ListenAddress
	if addr == "" {
		addr = config.DefaultExporterAddress
	}

	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if deps.Store != nil {
		registry.MustRegister(metrics.NewOccupancyCollector(deps.Store))
	}

	return &Component{
		Base:     component.NewBase(Namespace),
		logger:   logger.Get(logger.Exporter),
		registry: registry,
		addr:     addr,
	}, nil
}

func (c *Component) GetStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state := "stopped"
	if c.serverRunning {
		state = "running"
	}
	return Status{State: state, ListenAddress: c.addr, ServerRunning: c.serverRunning}
}

// Handler serves the component's registry in the Prometheus text format.
func (c *Component) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(c.logger.Handler(), slog.LevelError),
	}))
	return mux
}

func (c *Component) Start(ctx context.Context) error {
	c.StartContext(ctx)

	ln, err := net.Listen("tcp", c.addr)
	if err != nil {
		c.StopContext()
		return fmt.Errorf("listen %s: %w", c.addr, err)
	}

	c.mu.Lock()
	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	c.serverRunning = true
	c.mu.Unlock()

	c.logger.Info("Prometheus HTTP server listening", "address", ln.Addr().String())
	c.Go(func() {
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("Prometheus HTTP server error", "error", err)
		}
		c.mu.Lock()
		c.serverRunning = false
		c.mu.Unlock()
	})
	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	c.logger.Info("Stopping Prometheus exporter")

	c.mu.RLock()
	server := c.server
	c.mu.RUnlock()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			c.logger.Error("Failed to shutdown Prometheus HTTP server", "error", err)
		}
	}

	c.StopContext()
	return nil
}
