// Package runcmder provides the run command, the bridge itself.
package runcmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/relay/bridge"
	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/credentials"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/tape"
)

type runCommander struct {
	sseURL          string
	rpcURL          string
	token           string
	queueSize       uint
	endpointTimeout string
	backoffInitial  string
	backoffMax      string
	maxRetries      uint
	record          bool
	sqlitePath      string
	logFile         string
	debug           bool

	configDir string
	logger    *slog.Logger
}

const runLongDesc string = `Start bridging stdin/stdout to a remote MCP service.

Stdin carries newline-delimited JSON-RPC toward the remote; stdout carries
the remote's pushes back, one JSON payload per line. All logging goes to
stderr so stdout stays a clean protocol channel.

The bearer token resolves in order: --token flag, the DEVIN_API_KEY
environment variable, then credentials.toml stored via 'relay auth devin'.

By default the POST endpoint is discovered from the stream's endpoint
event. Pin it with --rpc-url to skip discovery entirely.

Examples:
  relay run
  relay run --sse-url https://mcp.devin.ai/sse
  relay run --rpc-url https://mcp.devin.ai/messages
  relay run --record --sqlite ./traffic.db`

const runShortDesc string = "Bridge stdin/stdout to a remote MCP service"

func NewRunCmd() *cobra.Command {
	cmder := &runCommander{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: runShortDesc,
		Long:  runLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.RunFlags, []string{
				config.FlagSSEURL,
				config.FlagRPCURL,
				config.FlagQueueSize,
				config.FlagEndpointTimeout,
				config.FlagBackoffInitial,
				config.FlagBackoffMax,
				config.FlagMaxRetries,
				config.FlagRecord,
				config.FlagSQLite,
			})

			// Effective values follow viper precedence:
			// flag > environment > config.toml > default.
			cmder.sseURL = v.GetString("remote.sse_url")
			cmder.rpcURL = v.GetString("remote.rpc_url")
			cmder.queueSize = v.GetUint("bridge.queue_size")
			cmder.endpointTimeout = v.GetString("bridge.endpoint_timeout")
			cmder.backoffInitial = v.GetString("bridge.backoff_initial")
			cmder.backoffMax = v.GetString("bridge.backoff_max")
			cmder.maxRetries = v.GetUint("bridge.max_retries")
			cmder.record = v.GetBool("tape.enabled")
			cmder.sqlitePath = v.GetString("tape.sqlite_path")

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.RunFlags, config.FlagSSEURL, &cmder.sseURL)
	config.AddStringFlag(cmd, config.RunFlags, config.FlagRPCURL, &cmder.rpcURL)
	config.AddUintFlag(cmd, config.RunFlags, config.FlagQueueSize, &cmder.queueSize)
	config.AddStringFlag(cmd, config.RunFlags, config.FlagEndpointTimeout, &cmder.endpointTimeout)
	config.AddStringFlag(cmd, config.RunFlags, config.FlagBackoffInitial, &cmder.backoffInitial)
	config.AddStringFlag(cmd, config.RunFlags, config.FlagBackoffMax, &cmder.backoffMax)
	config.AddUintFlag(cmd, config.RunFlags, config.FlagMaxRetries, &cmder.maxRetries)
	config.AddBoolFlag(cmd, config.RunFlags, config.FlagRecord, &cmder.record)
	config.AddStringFlag(cmd, config.RunFlags, config.FlagSQLite, &cmder.sqlitePath)

	cmd.Flags().StringVar(&cmder.token, "token", "", "Bearer token for the remote (overrides env and credentials.toml)")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

func (c *runCommander) run() error {
	log, closeLogs, err := c.newLogger()
	if err != nil {
		return err
	}
	defer closeLogs()
	c.logger = log

	token, err := c.resolveToken()
	if err != nil {
		return err
	}

	durations, err := c.parseDurations()
	if err != nil {
		return err
	}

	runID := uuid.NewString()

	recorder, closeTape, err := c.newRecorder(runID)
	if err != nil {
		return err
	}
	defer closeTape()

	b, err := bridge.New(bridge.Config{
		SSEURL:          c.sseURL,
		RPCURL:          c.rpcURL,
		Token:           token,
		QueueSize:       c.queueSize,
		EndpointTimeout: durations.endpointTimeout,
		BackoffInitial:  durations.backoffInitial,
		BackoffMax:      durations.backoffMax,
		MaxRetries:      c.maxRetries,
		Recorder:        recorder,
	},
		bridge.WithLogger(c.logger),
		bridge.WithRunID(runID),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return b.Run(ctx)
}

type runDurations struct {
	endpointTimeout time.Duration
	backoffInitial  time.Duration
	backoffMax      time.Duration
}

func (c *runCommander) parseDurations() (*runDurations, error) {
	d := &runDurations{}
	var err error

	if d.endpointTimeout, err = time.ParseDuration(c.endpointTimeout); err != nil {
		return nil, fmt.Errorf("invalid endpoint-timeout %q: %w", c.endpointTimeout, err)
	}
	if d.backoffInitial, err = time.ParseDuration(c.backoffInitial); err != nil {
		return nil, fmt.Errorf("invalid backoff-initial %q: %w", c.backoffInitial, err)
	}
	if d.backoffMax, err = time.ParseDuration(c.backoffMax); err != nil {
		return nil, fmt.Errorf("invalid backoff-max %q: %w", c.backoffMax, err)
	}

	return d, nil
}

// resolveToken follows flag > environment > credentials.toml. A missing
// token is fatal before any connection is attempted.
func (c *runCommander) resolveToken() (string, error) {
	mgr, err := credentials.NewManager(c.configDir)
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}

	token, err := mgr.Resolve(credentials.DefaultProvider, c.token)
	if err != nil {
		return "", fmt.Errorf("resolving token: %w", err)
	}
	if token == "" {
		envVar := credentials.EnvVarForProvider(credentials.DefaultProvider)
		return "", fmt.Errorf(
			"no bearer token found: pass --token, set %s, or run 'relay auth %s'",
			envVar, credentials.DefaultProvider,
		)
	}

	return token, nil
}

// newLogger builds the stderr logger, optionally fanned out to a JSON log
// file. Stdout is never an option here; it carries the protocol.
func (c *runCommander) newLogger() (*slog.Logger, func(), error) {
	stderrLog := logger.New(
		logger.WithPretty(true),
		logger.WithDebug(c.debug),
	)

	if c.logFile == "" {
		return stderrLog, func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	fileLog := logger.New(
		logger.WithJSON(true),
		logger.WithWriter(f),
		logger.WithDebug(c.debug),
	)

	return logger.Multi(stderrLog, fileLog), func() { _ = f.Close() }, nil
}

// newRecorder wires the optional tape store. With --sqlite the tape
// persists; otherwise it lives in memory for the run only, which still
// exercises the recording path end to end.
func (c *runCommander) newRecorder(runID string) (*tape.Recorder, func(), error) {
	if !c.record {
		return nil, func() {}, nil
	}

	var store tape.Store
	if c.sqlitePath != "" {
		s, err := tape.NewSQLiteStore(c.sqlitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening tape store: %w", err)
		}
		store = s
		c.logger.Info("recording to sqlite tape", "path", c.sqlitePath)
	} else {
		store = tape.NewMemoryStore()
		c.logger.Info("recording to in-memory tape")
	}

	recorder := tape.NewRecorder(tape.RecorderConfig{
		Store:   store,
		Session: runID,
		Logger:  c.logger,
	})

	cleanup := func() {
		recorder.Close()
		_ = store.Close()
	}

	return recorder, cleanup, nil
}
