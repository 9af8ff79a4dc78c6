package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/relay/pkg/sse"
)

// streamClient owns the remote leg's read path: the long-lived SSE
// subscription, endpoint discovery, and reconnection with backoff. Payload
// events are pushed onto the inbound channel; a full channel blocks the
// stream read, which is the backpressure the remote sees.
type streamClient struct {
	config     Config
	state      *endpointState
	phase      *phaseTracker
	inbound    chan<- string
	httpClient *http.Client
	logger     *slog.Logger
}

// run subscribes, and resubscribes, until ctx is canceled or the retry
// budget is exhausted. Each drop invalidates any discovered endpoint so
// messages cannot leak to a stale target.
func (c *streamClient) run(ctx context.Context) error {
	backoff := c.config.BackoffInitial
	var attempts uint

	for {
		connected, err := c.subscribe(ctx)
		if ctx.Err() != nil {
			return nil
		}

		c.state.invalidate()

		// Only an established stream drops into reconnecting; a subscribe
		// that never connected leaves the current phase alone.
		if connected {
			c.phase.set(PhaseReconnecting)
			attempts = 0
			backoff = c.config.BackoffInitial
		}

		attempts++
		if c.config.MaxRetries > 0 && attempts > c.config.MaxRetries {
			return &TransportError{Attempts: attempts, Err: err}
		}

		c.logger.Warn("event stream lost, reconnecting",
			"error", err,
			"attempt", attempts,
			"backoff", backoff.String(),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}

		backoff = min(backoff*2, c.config.BackoffMax)
	}
}

// subscribe opens one SSE connection and consumes it until it breaks.
// connected reports whether the subscription was ever established, which
// resets the caller's backoff.
func (c *streamClient) subscribe(ctx context.Context) (connected bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.SSEURL, nil)
	if err != nil {
		return false, fmt.Errorf("building subscribe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if id := c.state.session(); id != "" {
		req.Header.Set(headerSessionID, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("subscribing to event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("subscribe returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	c.logger.Info("event stream connected", "url", c.config.SSEURL)
	if _, _, ok := c.state.snapshot(); ok {
		c.phase.set(PhaseActive)
	} else {
		c.phase.set(PhaseAwaitingEndpoint)
	}

	reader := sse.NewReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err != nil {
			return true, fmt.Errorf("reading event stream: %w", err)
		}
		if ev == nil {
			return true, errors.New("event stream closed by server")
		}
		c.handleEvent(ctx, ev)
	}
}

// handleEvent routes one event: endpoint announcements update the shared
// state, pings are keep-alives, and everything else carrying valid JSON is
// forwarded to local output.
func (c *streamClient) handleEvent(ctx context.Context, ev *sse.Event) {
	switch ev.Type {
	case "endpoint":
		c.handleEndpointEvent(ev.Data)
	case "ping":
		c.logger.Debug("keep-alive received")
	default:
		payload := strings.TrimSpace(ev.Data)
		if payload == "" {
			return
		}
		if !json.Valid([]byte(payload)) {
			c.logger.Debug("skipping non-JSON event", "event", ev.Type)
			return
		}

		select {
		case c.inbound <- payload:
		case <-ctx.Done():
		}
	}
}

// handleEndpointEvent extracts the POST endpoint from an announcement. The
// data is either a raw URL or path, a JSON string, or a JSON object keyed
// by "endpoint", "url", or "path". Relative references resolve against the
// stream URL.
func (c *streamClient) handleEndpointEvent(data string) {
	raw := strings.TrimSpace(data)
	if raw == "" {
		c.logger.Warn("endpoint event with empty data")
		return
	}

	endpoint := raw
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		endpoint = ""
		switch v := parsed.(type) {
		case string:
			endpoint = v
		case map[string]any:
			for _, key := range []string{"endpoint", "url", "path"} {
				if s, ok := v[key].(string); ok && s != "" {
					endpoint = s
					break
				}
			}
		}
	}
	if endpoint == "" {
		c.logger.Warn("endpoint event carried no usable url", "data", raw)
		return
	}

	resolved, err := c.resolveEndpoint(endpoint)
	if err != nil {
		c.logger.Warn("unresolvable endpoint announcement",
			"endpoint", endpoint,
			"error", err,
		)
		return
	}

	c.state.setRPCURL(resolved)
	c.phase.set(PhaseActive)
}

func (c *streamClient) resolveEndpoint(endpoint string) (string, error) {
	base, err := url.Parse(c.config.SSEURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
