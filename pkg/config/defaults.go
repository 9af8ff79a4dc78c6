package config

import (
	"fmt"
	"time"
)

const (
	defaultSSEURL = "https://mcp.devin.ai/sse"

	defaultQueueSize       = 64
	defaultEndpointTimeout = "30s"
	defaultBackoffInitial  = "1s"
	defaultBackoffMax      = "30s"

	// 0 means the bridge reconnects forever.
	defaultMaxRetries = 0
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Remote: RemoteConfig{
			SSEURL: defaultSSEURL,
		},
		Bridge: BridgeConfig{
			QueueSize:       defaultQueueSize,
			EndpointTimeout: defaultEndpointTimeout,
			BackoffInitial:  defaultBackoffInitial,
			BackoffMax:      defaultBackoffMax,
			MaxRetries:      defaultMaxRetries,
		},
	}
}

// validateDuration checks that a config value parses as a Go duration.
func validateDuration(v string) error {
	if _, err := time.ParseDuration(v); err != nil {
		return fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return nil
}
