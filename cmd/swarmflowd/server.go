package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/swarmflow/api"
	"github.com/BaSui01/swarmflow/config"
	"github.com/BaSui01/swarmflow/internal/metrics"
	"github.com/BaSui01/swarmflow/internal/server"
	"github.com/BaSui01/swarmflow/internal/telemetry"
	"github.com/BaSui01/swarmflow/swarm"
)

// Server wires the swarm bus, delegator, HTTP API, and metrics
// endpoint together and manages their shared lifecycle.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	bus       *swarm.Bus
	delegator *swarm.Delegator

	httpManager    *server.Manager
	metricsManager *server.Manager

	collector     *metrics.Collector
	otelProviders *telemetry.Providers
	watcher       *config.Watcher

	rateLimiterCancel context.CancelFunc
}

// NewServer creates the daemon server. configPath may be empty, in
// which case config hot reload is disabled.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
	}
}

// Start brings up the swarm core and both HTTP listeners. On error the
// already-started pieces are torn back down.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("swarmflow", s.logger)

	providers, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.otelProviders = providers

	s.bus = swarm.NewBus(s.cfg.Swarm, s.logger, s.collector)
	s.bus.Start()

	s.delegator = swarm.NewDelegator(s.bus, s.logger, s.collector)
	s.delegator.Start()

	if s.configPath != "" {
		s.startConfigWatcher()
	}

	// Both listeners come up in parallel; if either fails to bind the
	// whole start fails.
	var g errgroup.Group
	g.Go(s.startHTTPServer)
	g.Go(s.startMetricsServer)
	if err := g.Wait(); err != nil {
		s.Shutdown()
		return err
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
		zap.Bool("auth_enabled", s.cfg.Auth.Secret != ""),
	)
	return nil
}

func (s *Server) startConfigWatcher() {
	loader := config.NewLoader().WithConfigPath(s.configPath)
	s.watcher = config.NewWatcher(loader, s.configPath, s.cfg, 0, s.logger)
	s.watcher.OnReload(func(oldCfg, newCfg *config.Config) {
		// Bus timing and listener addresses are fixed at start; a
		// changed swarm or server section takes effect on restart.
		s.logger.Info("configuration reloaded",
			zap.Bool("swarm_changed", oldCfg.Swarm != newCfg.Swarm),
			zap.Bool("server_changed", oldCfg.Server != newCfg.Server),
		)
		s.cfg = newCfg
	})
	s.watcher.Start()
}

func (s *Server) startHTTPServer() error {
	mux := api.Router(s.bus, s.delegator, s.logger)

	skipAuthPaths := []string{"/healthz"}
	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		JWTAuth(s.cfg.Auth, skipAuthPaths, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until a termination signal or a server error,
// then shuts everything down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown tears the daemon down in reverse start order: stop
// accepting HTTP traffic first, then drain the delegation loop, then
// stop the bus.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown")

	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}
	if s.delegator != nil {
		s.delegator.Stop()
	}
	if s.bus != nil {
		s.bus.Stop()
	}
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
