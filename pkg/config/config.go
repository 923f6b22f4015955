// Package config reads ByteBox settings from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAddr           = ":5000"
	defaultRunnerURL      = "http://localhost:5000"
	defaultRunTimeout     = 30 * time.Second
	defaultSandboxTimeout = 10 * time.Second
	defaultRateInterval   = 6 * time.Second
	defaultRateBurst      = 10
	defaultLanguage       = "python"
	defaultLogFile        = "bytebox.log"

	imagePrefix = "BYTEBOX_IMAGE_"
)

// Config holds the settings shared by the server and the terminal shell.
type Config struct {
	// Addr is the server listen address.
	Addr string
	// RunnerURL is the execution backend the shell talks to.
	RunnerURL string
	// RunTimeout is the client-side deadline for one run.
	RunTimeout time.Duration
	// SandboxTimeout bounds how long a container may run.
	SandboxTimeout time.Duration
	// Images overrides runner images per language id.
	Images map[string]string
	// RateInterval and RateBurst configure the per-IP limit on POST /run.
	RateInterval time.Duration
	RateBurst    int
	// TrustProxy keys the rate limit on X-Forwarded-For. Only set it behind a
	// proxy that overwrites the header.
	TrustProxy bool
	// Language is the initially selected language.
	Language string
	LogLevel slog.Level
	// LogFile is where the terminal shell writes its log.
	LogFile string
}

// Load reads the configuration. Unset or invalid values fall back to defaults.
func Load() Config {
	return Config{
		Addr:           envOrDefault("BYTEBOX_ADDR", defaultAddr),
		RunnerURL:      envOrDefault("BYTEBOX_RUNNER_URL", defaultRunnerURL),
		RunTimeout:     parseDuration(os.Getenv("BYTEBOX_RUN_TIMEOUT"), defaultRunTimeout),
		SandboxTimeout: parseDuration(os.Getenv("BYTEBOX_SANDBOX_TIMEOUT"), defaultSandboxTimeout),
		Images:         imageOverrides(os.Environ()),
		RateInterval:   parseDuration(os.Getenv("BYTEBOX_RATE_INTERVAL"), defaultRateInterval),
		RateBurst:      parsePositiveInt(os.Getenv("BYTEBOX_RATE_BURST"), defaultRateBurst),
		TrustProxy:     parseBool(os.Getenv("BYTEBOX_TRUST_PROXY")),
		Language:       strings.ToLower(envOrDefault("BYTEBOX_LANGUAGE", defaultLanguage)),
		LogLevel:       ParseLevel(os.Getenv("LOG_LEVEL")),
		LogFile:        envOrDefault("BYTEBOX_LOG_FILE", defaultLogFile),
	}
}

// ImagesWith returns base with the configured overrides applied.
func (c Config) ImagesWith(base map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(c.Images))
	for lang, image := range base {
		out[lang] = image
	}
	for lang, image := range c.Images {
		out[lang] = image
	}
	return out
}

// ParseLevel maps DEBUG, INFO, WARN and ERROR (any case) to a slog level.
// Anything else is INFO.
func ParseLevel(raw string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

func imageOverrides(environ []string) map[string]string {
	images := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, imagePrefix) || value == "" {
			continue
		}
		lang := strings.ToLower(strings.TrimPrefix(key, imagePrefix))
		if lang != "" {
			images[lang] = value
		}
	}
	return images
}
