package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/relay/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the RELAY_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (RELAY_REMOTE_SSE_URL, RELAY_BRIDGE_QUEUE_SIZE, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: RELAY_REMOTE_SSE_URL, RELAY_TAPE_ENABLED, etc.
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Remote
	v.SetDefault("remote.sse_url", d.Remote.SSEURL)
	v.SetDefault("remote.rpc_url", d.Remote.RPCURL)

	// Bridge
	v.SetDefault("bridge.queue_size", d.Bridge.QueueSize)
	v.SetDefault("bridge.endpoint_timeout", d.Bridge.EndpointTimeout)
	v.SetDefault("bridge.backoff_initial", d.Bridge.BackoffInitial)
	v.SetDefault("bridge.backoff_max", d.Bridge.BackoffMax)
	v.SetDefault("bridge.max_retries", d.Bridge.MaxRetries)

	// Tape
	v.SetDefault("tape.enabled", d.Tape.Enabled)
	v.SetDefault("tape.sqlite_path", d.Tape.SQLitePath)
}
