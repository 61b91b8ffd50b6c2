package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// GetEnv returns the trimmed value of key, or fallback when it is unset or blank.
func GetEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// parseEnv converts key with parse. Malformed values are logged and replaced
// by fallback so a typo in one setting does not stop the service.
func parseEnv[T any](key string, fallback T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := parse(raw)
	if err != nil {
		slog.Warn("Ignoring malformed environment value", "key", key, "value", raw, "error", err)
		return fallback
	}
	return value
}

// GetIntEnv returns a positive integer setting or fallback.
func GetIntEnv(key string, fallback int) int {
	return parseEnv(key, fallback, func(s string) (int, error) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, err
		}
		if n < 1 {
			return 0, fmt.Errorf("must be at least 1, got %d", n)
		}
		return n, nil
	})
}

// GetBoolEnv accepts the forms understood by strconv.ParseBool in any case.
func GetBoolEnv(key string, fallback bool) bool {
	return parseEnv(key, fallback, func(s string) (bool, error) {
		return strconv.ParseBool(strings.ToLower(s))
	})
}

// GetDurationEnv returns a non-negative duration setting or fallback.
func GetDurationEnv(key string, fallback time.Duration) time.Duration {
	return parseEnv(key, fallback, func(s string) (time.Duration, error) {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, err
		}
		if d < 0 {
			return 0, fmt.Errorf("must not be negative, got %s", d)
		}
		return d, nil
	})
}

// GetChoiceEnv returns the lower-cased value of key when it is one of choices.
func GetChoiceEnv(key, fallback string, choices ...string) string {
	return parseEnv(key, fallback, func(s string) (string, error) {
		s = strings.ToLower(s)
		if !slices.Contains(choices, s) {
			return "", fmt.Errorf("want one of %s", strings.Join(choices, ", "))
		}
		return s, nil
	})
}

// GetListEnv splits a comma separated setting, dropping blank entries.
func GetListEnv(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// GetSecretFile reads a secret mounted as a file (docker or k8s secrets).
// An empty path means no secret is configured.
func GetSecretFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Secret file unreadable", "path", path, "error", err)
		return ""
	}
	return strings.TrimSpace(string(data))
}
