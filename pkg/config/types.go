package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent relay configuration stored as config.toml
// in the .relay/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int          `toml:"version"`
	Remote  RemoteConfig `toml:"remote"`
	Bridge  BridgeConfig `toml:"bridge"`
	Tape    TapeConfig   `toml:"tape"`
}

// RemoteConfig holds the remote MCP service endpoints.
type RemoteConfig struct {
	// SSEURL is the subscribe endpoint the bridge GETs for the event stream.
	SSEURL string `toml:"sse_url,omitempty"`

	// RPCURL optionally pins the POST endpoint. When empty the bridge
	// discovers the endpoint from the stream's "endpoint" event.
	RPCURL string `toml:"rpc_url,omitempty"`
}

// BridgeConfig holds tunables for the bridging engine.
type BridgeConfig struct {
	// QueueSize bounds the outbound and inbound message buffers.
	QueueSize uint `toml:"queue_size,omitempty"`

	// EndpointTimeout bounds the wait for the first endpoint event
	// (Go duration string, e.g. "30s").
	EndpointTimeout string `toml:"endpoint_timeout,omitempty"`

	// BackoffInitial is the first reconnect delay (Go duration string).
	BackoffInitial string `toml:"backoff_initial,omitempty"`

	// BackoffMax caps the reconnect delay (Go duration string).
	BackoffMax string `toml:"backoff_max,omitempty"`

	// MaxRetries bounds consecutive failed reconnect attempts. 0 retries forever.
	MaxRetries uint `toml:"max_retries,omitempty"`
}

// TapeConfig holds traffic recording settings.
type TapeConfig struct {
	Enabled    bool   `toml:"enabled,omitempty"`
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// keyInfo binds a dotted config key to its getter and setter on Config.
type keyInfo struct {
	get func(*Config) string
	set func(*Config, string) error
}

// configKeys is the single source of truth for the keys exposed through
// "relay config get/set/list".
var configKeys = map[string]keyInfo{
	"remote.sse_url": {
		get: func(c *Config) string { return c.Remote.SSEURL },
		set: func(c *Config, v string) error { c.Remote.SSEURL = v; return nil },
	},
	"remote.rpc_url": {
		get: func(c *Config) string { return c.Remote.RPCURL },
		set: func(c *Config, v string) error { c.Remote.RPCURL = v; return nil },
	},
	"bridge.queue_size": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Bridge.QueueSize), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("bridge.queue_size must be an unsigned integer: %w", err)
			}
			c.Bridge.QueueSize = uint(n)
			return nil
		},
	},
	"bridge.endpoint_timeout": {
		get: func(c *Config) string { return c.Bridge.EndpointTimeout },
		set: func(c *Config, v string) error {
			if err := validateDuration(v); err != nil {
				return fmt.Errorf("bridge.endpoint_timeout: %w", err)
			}
			c.Bridge.EndpointTimeout = v
			return nil
		},
	},
	"bridge.backoff_initial": {
		get: func(c *Config) string { return c.Bridge.BackoffInitial },
		set: func(c *Config, v string) error {
			if err := validateDuration(v); err != nil {
				return fmt.Errorf("bridge.backoff_initial: %w", err)
			}
			c.Bridge.BackoffInitial = v
			return nil
		},
	},
	"bridge.backoff_max": {
		get: func(c *Config) string { return c.Bridge.BackoffMax },
		set: func(c *Config, v string) error {
			if err := validateDuration(v); err != nil {
				return fmt.Errorf("bridge.backoff_max: %w", err)
			}
			c.Bridge.BackoffMax = v
			return nil
		},
	},
	"bridge.max_retries": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Bridge.MaxRetries), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("bridge.max_retries must be an unsigned integer: %w", err)
			}
			c.Bridge.MaxRetries = uint(n)
			return nil
		},
	},
	"tape.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Tape.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("tape.enabled must be a boolean: %w", err)
			}
			c.Tape.Enabled = b
			return nil
		},
	},
	"tape.sqlite_path": {
		get: func(c *Config) string { return c.Tape.SQLitePath },
		set: func(c *Config, v string) error { c.Tape.SQLitePath = v; return nil },
	},
}
