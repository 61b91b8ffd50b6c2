package api

import (
	"net/http"

	"tomohub/internal/deployment"
	"tomohub/internal/health"
	"tomohub/internal/job"
	"tomohub/internal/logtail"
	"tomohub/internal/observability"
	"tomohub/internal/output"
	"tomohub/internal/proxy"
	"tomohub/internal/template"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Templates           *template.Generator
	JobService          *job.Service
	Resolver            *output.Resolver
	Tailer              *logtail.Tailer
	HealthChecker       *health.Checker
	Proxy               *proxy.Fetcher
	Metrics             *observability.Metrics
	Mode                deployment.Mode
	AllowExternalAccess bool
	APIKey              string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(HandlerConfig{
		Templates: cfg.Templates,
		Jobs:      cfg.JobService,
		Resolver:  cfg.Resolver,
		Tailer:    cfg.Tailer,
		Health:    cfg.HealthChecker,
		Proxy:     cfg.Proxy,
		Metrics:   cfg.Metrics,
		Mode:      cfg.Mode,
	})

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	auth := AuthMiddleware(cfg.APIKey)
	// Runs against local paths and uploads exist only in local mode.
	localOnly := func(h http.HandlerFunc) http.Handler {
		return auth(deployment.Restrict(cfg.Mode, true, false)(h))
	}
	shared := func(h http.HandlerFunc) http.Handler {
		return auth(h)
	}

	mux.Handle("GET /system/deployment", shared(handler.Deployment))

	mux.Handle("GET /methods", shared(handler.Methods))
	mux.Handle("GET /methods/loaders", shared(handler.Loaders))
	mux.Handle("GET /methods/{category}", shared(handler.MethodsByCategory))
	mux.Handle("POST /yaml/generate", shared(handler.GenerateYAML))
	mux.Handle("GET /proxy/tiff", shared(handler.ProxyTIFF))

	mux.Handle("POST /httomo/run", localOnly(handler.RunHTTomo))
	mux.Handle("GET /httomo/status", localOnly(handler.HTTomoStatus))

	mux.Handle("POST /reconstruction/centre/run", localOnly(handler.RunCentre))
	mux.Handle("GET /reconstruction/centre/job-status", localOnly(handler.CentreStatus))
	mux.Handle("GET /reconstruction/centre/image", localOnly(handler.CentreImage))
	mux.Handle("GET /reconstruction/centre/stream-logs", localOnly(handler.StreamLogs))
	mux.Handle("GET /reconstruction/centre/find-log", localOnly(handler.FindLog))
	mux.Handle("GET /reconstruction/centre/previous", localOnly(handler.PreviousJob))
	mux.Handle("DELETE /reconstruction/centre/tempdir", localOnly(handler.DeleteTempDirs))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = deployment.RestrictAccess(cfg.Mode, cfg.AllowExternalAccess)(h)
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
