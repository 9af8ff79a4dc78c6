package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands.
type Flag struct {
	// Name is the long flag name (e.g. "sse-url").
	Name string

	// Shorthand is the one-letter short flag. Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "remote.sse_url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag registry keys to Flag definitions.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag, AddBoolFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagSSEURL          = "sse-url"
	FlagRPCURL          = "rpc-url"
	FlagQueueSize       = "queue-size"
	FlagEndpointTimeout = "endpoint-timeout"
	FlagBackoffInitial  = "backoff-initial"
	FlagBackoffMax      = "backoff-max"
	FlagMaxRetries      = "max-retries"
	FlagRecord          = "record"
	FlagSQLite          = "sqlite"
)

// RunFlags is the flag registry for the run command.
var RunFlags = FlagSet{
	FlagSSEURL: {
		Name:        "sse-url",
		ViperKey:    "remote.sse_url",
		Description: "Remote SSE subscribe URL",
	},
	FlagRPCURL: {
		Name:        "rpc-url",
		ViperKey:    "remote.rpc_url",
		Description: "Pin the POST endpoint instead of discovering it from the stream",
	},
	FlagQueueSize: {
		Name:        "queue-size",
		ViperKey:    "bridge.queue_size",
		Description: "Bounded message buffer capacity",
	},
	FlagEndpointTimeout: {
		Name:        "endpoint-timeout",
		ViperKey:    "bridge.endpoint_timeout",
		Description: "How long to wait for the first endpoint event (e.g. 30s)",
	},
	FlagBackoffInitial: {
		Name:        "backoff-initial",
		ViperKey:    "bridge.backoff_initial",
		Description: "Initial reconnect backoff delay (e.g. 1s)",
	},
	FlagBackoffMax: {
		Name:        "backoff-max",
		ViperKey:    "bridge.backoff_max",
		Description: "Maximum reconnect backoff delay (e.g. 30s)",
	},
	FlagMaxRetries: {
		Name:        "max-retries",
		ViperKey:    "bridge.max_retries",
		Description: "Maximum consecutive reconnect attempts (0 = unbounded)",
	},
	FlagRecord: {
		Name:        "record",
		ViperKey:    "tape.enabled",
		Description: "Record bridge traffic to a tape store",
	},
	FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "tape.sqlite_path",
		Description: "Path to a SQLite tape file (default: in-memory)",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}

// defaultBool returns the default bool value for a viper key from NewDefaultConfig.
func defaultBool(viperKey string) bool {
	v := viper.New()
	setViperDefaults(v)
	return v.GetBool(viperKey)
}
