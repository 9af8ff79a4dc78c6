package bridge

import (
	"fmt"
	"net/url"
	"time"

	"github.com/papercomputeco/relay/pkg/tape"
)

const (
	defaultQueueSize       uint = 64
	defaultEndpointTimeout      = 30 * time.Second
	defaultBackoffInitial       = 1 * time.Second
	defaultBackoffMax           = 30 * time.Second

	// postTimeout bounds each outbound RPC POST. The event stream itself
	// carries no timeout; it is expected to live for the whole run.
	postTimeout = 2 * time.Minute

	headerSessionID = "Mcp-Session-Id"
)

// Config is the configuration options for a Bridge.
type Config struct {
	// SSEURL is the remote event stream to subscribe to. Required.
	SSEURL string

	// RPCURL pins the POST endpoint, bypassing discovery. When set, the
	// bridge is dispatchable immediately and endpoint events are ignored.
	RPCURL string

	// Token is the bearer token sent on every remote request. Required.
	Token string

	// QueueSize is the capacity of the outbound and inbound message
	// buffers (defaults to 64). When a buffer fills the producing side
	// blocks; messages are never dropped.
	QueueSize uint

	// EndpointTimeout is how long to wait for the first endpoint event
	// before giving up (defaults to 30s). Ignored when RPCURL is pinned.
	EndpointTimeout time.Duration

	// BackoffInitial is the delay before the first reconnect attempt
	// (defaults to 1s). It doubles per consecutive failure.
	BackoffInitial time.Duration

	// BackoffMax caps the reconnect delay (defaults to 30s).
	BackoffMax time.Duration

	// MaxRetries bounds consecutive failed reconnect attempts. Zero means
	// retry forever.
	MaxRetries uint

	// Recorder, when non-nil, receives a tape copy of every message that
	// crosses the bridge.
	Recorder *tape.Recorder
}

// validate checks required fields and fills in defaults.
func (c *Config) validate() error {
	if c.SSEURL == "" {
		return &ConfigurationError{Reason: "sse url is required"}
	}
	if err := validateURL(c.SSEURL); err != nil {
		return &ConfigurationError{Reason: "invalid sse url: " + err.Error()}
	}
	if c.RPCURL != "" {
		if err := validateURL(c.RPCURL); err != nil {
			return &ConfigurationError{Reason: "invalid rpc url: " + err.Error()}
		}
	}
	if c.Token == "" {
		return &ConfigurationError{Reason: "bearer token is required"}
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.EndpointTimeout <= 0 {
		c.EndpointTimeout = defaultEndpointTimeout
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = defaultBackoffInitial
	}
	if c.BackoffMax < c.BackoffInitial {
		c.BackoffMax = defaultBackoffMax
	}

	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("url must be absolute: %q", raw)
	}
	return nil
}
