// tomohub-service is the HTTP API server for method templates, pipeline
// configs and reconstruction runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tomohub/internal/api"
	"tomohub/internal/catalog"
	"tomohub/internal/config"
	"tomohub/internal/deployment"
	"tomohub/internal/health"
	"tomohub/internal/job"
	"tomohub/internal/job/docker"
	"tomohub/internal/job/process"
	"tomohub/internal/logtail"
	"tomohub/internal/observability"
	"tomohub/internal/output"
	"tomohub/internal/proxy"
	"tomohub/internal/template"
)

func main() {
	cfg := config.LoadServiceConfig()

	var level slog.Level
	_ = level.UnmarshalText([]byte(cfg.LogLevel))
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

// service owns the long-lived parts that shutdown has to unwind in order.
type service struct {
	cfg      *config.ServiceConfig
	registry *job.Registry
	health   *health.Checker

	api            *http.Server
	metrics        *http.Server
	cancelRequests context.CancelFunc
}

func run(ctx context.Context, cfg *config.ServiceConfig) error {
	svc, err := newService(ctx, cfg)
	if err != nil {
		return err
	}

	serverErr := make(chan error, 2)
	listen := func(name string, srv *http.Server) {
		slog.Info("Starting "+name+" server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("%s server: %w", name, err)
		}
	}
	go listen("API", svc.api)
	go listen("metrics", svc.metrics)

	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case err := <-serverErr:
		svc.close(5*time.Second, false)
		return err
	}

	svc.close(25*time.Second, true)
	// Runs are separate processes or containers and keep writing their output.
	slog.Info("Shutdown complete; running reconstructions continue independently")
	return nil
}

func newService(ctx context.Context, cfg *config.ServiceConfig) (*service, error) {
	mode := deployment.ParseMode(cfg.DeploymentMode)

	if err := os.MkdirAll(cfg.TempRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create temp root: %w", err)
	}

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	cat, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("load method catalog: %w", err)
	}
	slog.Info("Loaded method catalog", "modules", len(cat.Modules()))

	executor, err := newExecutor(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("Using executor", "executor", executor.Name())

	registry, err := job.NewRegistry(job.RegistryConfig{
		Executor: executor,
		Metrics:  metrics,
	})
	if err != nil {
		_ = executor.Close()
		return nil, err
	}

	svc := &service{
		cfg:      cfg,
		registry: registry,
		health:   health.NewChecker(executor, cfg.TempRoot),
	}

	router := api.NewRouter(api.RouterConfig{
		Templates:  template.NewGenerator(cat, metrics),
		JobService: job.NewService(registry, cfg.TempRoot),
		Resolver:   output.NewResolver(output.ResolverConfig{Metrics: metrics}),
		Tailer: logtail.New(logtail.Config{
			WaitAttempts: cfg.LogWaitAttempts,
			WaitInterval: cfg.LogWaitInterval,
			PollInterval: cfg.LogPollInterval,
			Metrics:      metrics,
		}),
		Proxy: proxy.New(proxy.Config{
			Timeout:      cfg.ProxyTimeout,
			AllowedHosts: cfg.ProxyAllowedHosts,
			Metrics:      metrics,
		}),
		HealthChecker:       svc.health,
		Metrics:             metrics,
		Mode:                mode,
		AllowExternalAccess: cfg.AllowExternalAccess,
		APIKey:              cfg.APIKey,
	})

	if cfg.APIKey == "" {
		slog.Warn("API authentication disabled - no API_KEY_FILE configured")
	}
	slog.Info("Deployment mode", "mode", mode, "allowExternalAccess", cfg.AllowExternalAccess)

	// Requests derive from baseCtx so open log streams end when shutdown
	// starts; they never go idle on their own.
	baseCtx, cancel := context.WithCancel(context.Background())
	svc.cancelRequests = cancel
	svc.api = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Minute, // dataset uploads
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}
	svc.api.RegisterOnShutdown(cancel)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	svc.metrics = &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return svc, nil
}

// close stops serving and releases the executor. With drain set, readiness
// fails first and the configured drain wait passes before servers stop.
func (s *service) close(timeout time.Duration, drain bool) {
	defer s.cancelRequests()

	if drain {
		s.health.SetShuttingDown()
		if s.cfg.ShutdownDrainWait > 0 {
			slog.Info("Waiting for traffic to drain", "duration", s.cfg.ShutdownDrainWait)
			time.Sleep(s.cfg.ShutdownDrainWait)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for name, srv := range map[string]*http.Server{"API": s.api, "metrics": s.metrics} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "server", name, "error", err)
		}
	}

	closeCtx, cancelClose := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelClose()
	if err := s.registry.Close(closeCtx); err != nil {
		slog.Warn("Registry shutdown error", "error", err)
	}
}

// newExecutor builds the configured run executor.
func newExecutor(ctx context.Context, cfg *config.ServiceConfig) (job.Executor, error) {
	switch cfg.Executor {
	case "docker":
		exec, err := docker.New(ctx, docker.Config{
			Image:      cfg.DockerImage,
			Executable: cfg.Executable,
			Options:    docker.LoadOptionsFromEnv(),
		})
		if err != nil {
			return nil, fmt.Errorf("create docker executor: %w", err)
		}
		slog.Info("Connected to Docker daemon", "image", cfg.DockerImage)
		return exec, nil
	default:
		exec, err := process.New(process.Config{Executable: cfg.Executable})
		if err != nil {
			return nil, fmt.Errorf("create process executor: %w", err)
		}
		return exec, nil
	}
}
