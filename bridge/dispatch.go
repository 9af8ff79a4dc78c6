package bridge

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/papercomputeco/relay/pkg/tape"
	"github.com/papercomputeco/relay/pkg/utils"
)

// dispatcher owns the remote leg's write path. It drains the outbound
// queue one message at a time, in arrival order, POSTing each to the
// currently registered endpoint. A message is held, not dropped, while no
// endpoint is known.
type dispatcher struct {
	config     Config
	state      *endpointState
	queue      chan string
	httpClient *http.Client
	logger     *slog.Logger
	recorder   *tape.Recorder
}

// enqueue hands a message to the dispatcher, blocking while the bounded
// queue is full.
func (d *dispatcher) enqueue(ctx context.Context, msg string) error {
	select {
	case d.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run consumes the queue until it is closed. Delivery failures are logged
// per message and never stop the loop; only cancellation does.
func (d *dispatcher) run(ctx context.Context) error {
	for {
		select {
		case msg, ok := <-d.queue:
			if !ok {
				return nil
			}
			rpcURL, sessionID, err := d.awaitEndpoint(ctx)
			if err != nil {
				return nil
			}
			if err := d.deliver(ctx, msg, rpcURL, sessionID); err != nil {
				d.logger.Error("message delivery failed", "error", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// awaitEndpoint blocks until a POST target is registered and still present.
// Readiness can be revoked between the wait and the snapshot when the
// stream drops; the message is held and the wait restarts rather than
// dispatching to a stale or empty target.
func (d *dispatcher) awaitEndpoint(ctx context.Context) (rpcURL, sessionID string, err error) {
	for {
		if err := d.state.waitReady(ctx); err != nil {
			return "", "", err
		}
		if rpcURL, sessionID, ok := d.state.snapshot(); ok {
			return rpcURL, sessionID, nil
		}
	}
}

// deliver POSTs one message. The session id observed on the response, if
// any, is recorded for all subsequent remote requests.
func (d *dispatcher) deliver(ctx context.Context, msg, rpcURL, sessionID string) error {
	// Shutdown must not abort an in-flight POST; the client timeout bounds it.
	reqCtx := context.WithoutCancel(ctx)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, rpcURL, strings.NewReader(msg))
	if err != nil {
		return &DeliveryError{URL: rpcURL, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+d.config.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set(headerSessionID, sessionID)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.record(msg, 0)
		return &DeliveryError{URL: rpcURL, Err: err}
	}
	defer resp.Body.Close()

	if id := resp.Header.Get(headerSessionID); id != "" {
		d.state.setSessionID(id)
	}

	d.record(msg, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &DeliveryError{
			URL:    rpcURL,
			Status: resp.StatusCode,
			Body:   utils.Truncate(strings.TrimSpace(string(body)), 512),
		}
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	d.logger.Debug("message dispatched",
		"url", rpcURL,
		"status", resp.StatusCode,
	)
	return nil
}

func (d *dispatcher) record(payload string, status int) {
	if d.recorder == nil {
		return
	}
	d.recorder.Record(tape.DirectionOutbound, payload, status)
}
