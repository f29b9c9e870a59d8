// Package config provides worker and skill-side configuration loaded from
// environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Worker holds the worker-process configuration.
type Worker struct {
	// SockAddr is the request/reply endpoint: "host:port" or a unix socket
	// path.
	SockAddr string `envconfig:"PLAYLINK_SOCK" default:"127.0.0.1:36330"`
	// EventAddr is the publish/subscribe endpoint.
	EventAddr string `envconfig:"PLAYLINK_EVENT_SOCK" default:"127.0.0.1:36331"`

	// Discovery. Empty endpoints disable registration.
	EtcdEndpoints []string `envconfig:"PLAYLINK_ETCD_ENDPOINTS"`
	WorkerName    string   `envconfig:"PLAYLINK_WORKER_NAME" default:"playlink-worker"`
	RegisterTTL   int64    `envconfig:"PLAYLINK_REGISTER_TTL" default:"10"`

	// Rate limiting of incoming requests; zero disables the limiter.
	RateLimit float64 `envconfig:"PLAYLINK_RATE_LIMIT" default:"0"`
	RateBurst int     `envconfig:"PLAYLINK_RATE_BURST" default:"10"`

	LogLevel string `envconfig:"PLAYLINK_LOG_LEVEL" default:"info"`
}

// Skill holds the skill-process (client-side) configuration.
type Skill struct {
	SockAddr  string `envconfig:"PLAYLINK_SOCK" default:"127.0.0.1:36330"`
	EventAddr string `envconfig:"PLAYLINK_EVENT_SOCK" default:"127.0.0.1:36331"`

	EtcdEndpoints []string `envconfig:"PLAYLINK_ETCD_ENDPOINTS"`
	WorkerName    string   `envconfig:"PLAYLINK_WORKER_NAME" default:"playlink-worker"`

	// Per-attempt reply timeout and retry budget for dispatches.
	DispatchTimeout time.Duration `envconfig:"PLAYLINK_DISPATCH_TIMEOUT" default:"2s"`
	DispatchRetries int           `envconfig:"PLAYLINK_DISPATCH_RETRIES" default:"3"`

	LogLevel string `envconfig:"PLAYLINK_LOG_LEVEL" default:"info"`
}

// LoadWorker loads the worker configuration from the environment.
func LoadWorker() (*Worker, error) {
	var c Worker
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadSkill loads the skill-side configuration from the environment.
func LoadSkill() (*Skill, error) {
	var c Skill
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if c.DispatchTimeout <= 0 {
		return nil, fmt.Errorf("config: PLAYLINK_DISPATCH_TIMEOUT must be positive")
	}
	if c.DispatchRetries < 0 {
		return nil, fmt.Errorf("config: PLAYLINK_DISPATCH_RETRIES must not be negative")
	}
	return &c, nil
}

// Validate checks worker settings that cannot be defaulted sensibly.
func (c *Worker) Validate() error {
	if c.SockAddr == "" {
		return fmt.Errorf("config: PLAYLINK_SOCK is required")
	}
	if c.EventAddr == "" {
		return fmt.Errorf("config: PLAYLINK_EVENT_SOCK is required")
	}
	if c.RegisterTTL <= 0 {
		return fmt.Errorf("config: PLAYLINK_REGISTER_TTL must be positive")
	}
	return nil
}

// SetupLogging installs a text slog handler at the given level on stderr.
func SetupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
