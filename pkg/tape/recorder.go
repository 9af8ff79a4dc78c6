package tape

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/relay/pkg/logger"
)

var defaultRecorderQueueSize uint = 256

// RecorderConfig is the configuration options for the Recorder.
type RecorderConfig struct {
	// Store is the backend the recorder appends to.
	Store Store

	// Session is the bridge run id stamped on every entry.
	Session string

	// QueueSize is the capacity of the buffered entry channel (defaults to 256).
	QueueSize uint

	// Logger is the provided slog logger.
	Logger *slog.Logger
}

// Recorder appends tape entries asynchronously so persistence never blocks
// the bridge's message paths. A single background writer preserves the
// recording order of entries.
type Recorder struct {
	config RecorderConfig
	queue  chan Entry
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewRecorder creates a Recorder and starts its background writer.
func NewRecorder(c RecorderConfig) *Recorder {
	if c.QueueSize == 0 {
		c.QueueSize = defaultRecorderQueueSize
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	r := &Recorder{
		config: c,
		queue:  make(chan Entry, c.QueueSize),
		logger: c.Logger,
	}

	r.wg.Add(1)
	go r.writer()

	return r
}

// Record submits an entry for persistence. Returns true if enqueued, false
// if the queue is full, resulting in the entry being dropped. The bridge
// itself never drops messages; only their tape copies are best-effort.
func (r *Recorder) Record(direction Direction, payload string, status int) bool {
	e := Entry{
		ID:        uuid.NewString(),
		Session:   r.config.Session,
		Direction: direction,
		Payload:   payload,
		Status:    status,
		Recorded:  time.Now().UTC(),
	}

	select {
	case r.queue <- e:
		return true
	default:
		r.logger.Error("tape entry dropped, queue full",
			"direction", string(direction),
		)
		return false
	}
}

// Close signals the writer to stop and waits for queued entries to drain.
// Call this during graceful shutdown after both bridge paths have stopped.
func (r *Recorder) Close() {
	close(r.queue)
	r.wg.Wait()
}

// writer continuously pulls entries off the queue and appends them.
func (r *Recorder) writer() {
	defer r.wg.Done()

	for e := range r.queue {
		if err := r.config.Store.Append(context.Background(), &e); err != nil {
			r.logger.Error("tape append failed",
				"direction", string(e.Direction),
				"error", err,
			)
		}
	}
}
