// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// ServiceConfig holds configuration for the tomohub service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
	LogLevel          string        // debug, info, warn or error

	DeploymentMode      string // "local" or "deployment"
	AllowExternalAccess bool   // Accept non-loopback clients in local mode
	TempRoot            string // Root for job working directories and uploaded configs

	Executor    string // "process" or "docker"
	Executable  string // Reconstruction executable name or path
	DockerImage string // Image used by the docker executor

	LogWaitAttempts int
	LogWaitInterval time.Duration
	LogPollInterval time.Duration

	ProxyTimeout      time.Duration // Wait for a remote image's headers
	ProxyAllowedHosts []string      // Hosts /proxy/tiff may fetch from; empty allows any
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:                GetEnv("PORT", "8000"),
		MetricsPort:         GetEnv("METRICS_PORT", "9090"),
		APIKey:              GetSecretFile(GetEnv("API_KEY_FILE", "")),
		ShutdownDrainWait:   GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		LogLevel:            GetChoiceEnv("LOG_LEVEL", "info", "debug", "info", "warn", "error"),
		DeploymentMode:      GetChoiceEnv("TOMOHUB_DEPLOYMENT_MODE", "local", "local", "deployment"),
		AllowExternalAccess: GetBoolEnv("TOMOHUB_ALLOW_EXTERNAL_ACCESS", false),
		TempRoot:            GetEnv("TOMOHUB_TEMP_ROOT", "/tmp"),
		Executor:            GetChoiceEnv("TOMOHUB_EXECUTOR", "process", "process", "docker"),
		Executable:          GetEnv("TOMOHUB_EXECUTABLE", "httomo"),
		DockerImage:         GetEnv("TOMOHUB_DOCKER_IMAGE", "ghcr.io/diamondlightsource/httomo:latest"),
		LogWaitAttempts:     GetIntEnv("TOMOHUB_LOG_WAIT_ATTEMPTS", 20),
		LogWaitInterval:     GetDurationEnv("TOMOHUB_LOG_WAIT_INTERVAL", 500*time.Millisecond),
		LogPollInterval:     GetDurationEnv("TOMOHUB_LOG_POLL_INTERVAL", 100*time.Millisecond),
		ProxyTimeout:        GetDurationEnv("TOMOHUB_PROXY_TIMEOUT", 60*time.Second),
		ProxyAllowedHosts:   GetListEnv("TOMOHUB_PROXY_ALLOWED_HOSTS"),
	}
}
