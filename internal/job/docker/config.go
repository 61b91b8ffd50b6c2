package docker

import "tomohub/internal/config"

// Options holds container settings that only apply to the docker executor.
type Options struct {
	ExtraHosts []string // Extra /etc/hosts entries (e.g., ["data.local:host-gateway"])
	GPUs       bool     // Request all GPUs for the run container
	User       string   // Container user, e.g. "1000:1000" so outputs stay owned by the caller
}

// LoadOptionsFromEnv loads docker executor options from environment variables.
func LoadOptionsFromEnv() Options {
	return Options{
		ExtraHosts: config.GetListEnv("EXTRA_HOSTS"),
		GPUs:       config.GetBoolEnv("TOMOHUB_DOCKER_GPUS", false),
		User:       config.GetEnv("TOMOHUB_DOCKER_USER", ""),
	}
}
