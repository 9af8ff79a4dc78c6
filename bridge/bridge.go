// Package bridge joins a local newline-delimited JSON-RPC channel to a
// remote MCP service that speaks SSE for server pushes and HTTP POST for
// client messages. The two directions run concurrently: local input is
// queued and POSTed to an endpoint the server announces over the stream,
// and stream payloads are written to local output one per line.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/tape"
)

// Bridge is one bidirectional relay run between a local stdio peer and a
// remote MCP service.
type Bridge struct {
	config     Config
	runID      string
	state      *endpointState
	phase      *phaseTracker
	stream     *streamClient
	dispatcher *dispatcher
	inbound    chan string
	input      io.Reader
	output     io.Writer
	logger     *slog.Logger
}

// Option configures a Bridge created with New.
type Option func(*Bridge)

// WithLogger sets the logger. Defaults to a no-op logger; callers wiring
// this to a terminal should log to stderr, since stdout is the local
// message channel.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// WithRunID overrides the generated run identifier, letting callers share
// one id between the bridge and its tape recorder.
func WithRunID(id string) Option {
	return func(b *Bridge) {
		if id != "" {
			b.runID = id
		}
	}
}

// WithStreams overrides the local channel, which defaults to stdin/stdout.
func WithStreams(in io.Reader, out io.Writer) Option {
	return func(b *Bridge) {
		b.input = in
		b.output = out
	}
}

// New validates the configuration and assembles a Bridge. It performs no
// network activity; that starts with Run.
func New(config Config, opts ...Option) (*Bridge, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	b := &Bridge{
		config: config,
		runID:  uuid.NewString(),
		input:  os.Stdin,
		output: os.Stdout,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.logger = b.logger.With("run_id", b.runID)
	b.phase = newPhaseTracker(b.logger)
	b.state = newEndpointState(config.RPCURL, b.logger)
	b.inbound = make(chan string, config.QueueSize)

	b.stream = &streamClient{
		config:     config,
		state:      b.state,
		phase:      b.phase,
		inbound:    b.inbound,
		httpClient: &http.Client{},
		logger:     b.logger.With("component", "stream"),
	}
	b.dispatcher = &dispatcher{
		config:     config,
		state:      b.state,
		queue:      make(chan string, config.QueueSize),
		httpClient: &http.Client{Timeout: postTimeout},
		logger:     b.logger.With("component", "dispatch"),
		recorder:   config.Recorder,
	}

	return b, nil
}

// RunID returns the identifier stamped on this run's logs and tape entries.
func (b *Bridge) RunID() string {
	return b.runID
}

// Phase returns the current lifecycle phase.
func (b *Bridge) Phase() Phase {
	return b.phase.get()
}

// Run drives the bridge until local input reaches EOF and the outbound
// queue drains, ctx is canceled, or a fatal error occurs. Cancellation is
// a clean shutdown and returns nil.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.logger.Info("starting bridge",
		"sse_url", b.config.SSEURL,
		"pinned_rpc_url", b.config.RPCURL != "",
	)

	g, gctx := errgroup.WithContext(ctx)

	// Remote read path: the SSE subscription with reconnects.
	g.Go(func() error {
		return b.stream.run(gctx)
	})

	// Without a pinned endpoint, the first announcement must arrive in time.
	g.Go(func() error {
		return b.awaitFirstEndpoint(gctx)
	})

	// Inbound path: stream payloads to local output.
	g.Go(func() error {
		return b.writeOutput(gctx)
	})

	// Outbound path: local input into the dispatch queue. Closing the queue
	// at EOF lets the dispatcher flush whatever is still buffered.
	g.Go(func() error {
		defer close(b.dispatcher.queue)
		return b.readInput(gctx)
	})

	// The dispatcher ends once the closed queue drains; that is the signal
	// to wind the whole bridge down.
	g.Go(func() error {
		err := b.dispatcher.run(gctx)
		b.phase.set(PhaseShuttingDown)
		cancel()
		return err
	})

	err := g.Wait()
	b.phase.set(PhaseShuttingDown)

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("bridge terminated", "error", err)
		return err
	}

	b.logger.Info("bridge stopped")
	return nil
}

// awaitFirstEndpoint fails the run if the server never announces a POST
// endpoint. With a pinned endpoint there is nothing to wait for.
func (b *Bridge) awaitFirstEndpoint(ctx context.Context) error {
	if _, _, ok := b.state.snapshot(); ok {
		return nil
	}

	timer := time.NewTimer(b.config.EndpointTimeout)
	defer timer.Stop()

	select {
	case <-b.state.readyCh():
		return nil
	case <-timer.C:
		return &ProtocolError{
			Reason: fmt.Sprintf("no endpoint event within %s", b.config.EndpointTimeout),
		}
	case <-ctx.Done():
		return nil
	}
}

// readInput scans newline-delimited messages from local input and feeds
// the dispatch queue. Blank lines are skipped and non-JSON lines discarded
// with a warning. The scan itself cannot be interrupted, so it runs in its
// own goroutine; on cancellation that goroutine is abandoned mid-read,
// which is fine since the process is exiting.
func (b *Bridge) readInput(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(b.input)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)

		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil && ctx.Err() == nil {
						return fmt.Errorf("reading local input: %w", err)
					}
				default:
				}
				b.logger.Info("local input closed")
				return nil
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if !json.Valid([]byte(line)) {
				b.logger.Warn("discarding non-JSON input line")
				continue
			}

			if err := b.dispatcher.enqueue(ctx, line); err != nil {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// writeOutput drains the inbound channel to local output, one payload per
// line, flushing per message so the local peer never waits on a buffer.
func (b *Bridge) writeOutput(ctx context.Context) error {
	w := bufio.NewWriter(b.output)

	for {
		select {
		case payload := <-b.inbound:
			if _, err := w.WriteString(payload); err != nil {
				return fmt.Errorf("writing local output: %w", err)
			}
			if err := w.WriteByte('\n'); err != nil {
				return fmt.Errorf("writing local output: %w", err)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("flushing local output: %w", err)
			}

			if b.config.Recorder != nil {
				b.config.Recorder.Record(tape.DirectionInbound, payload, 0)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
