package bridge

import (
	"log/slog"
	"sync/atomic"
)

// Phase is the lifecycle state of a bridge run.
type Phase int32

const (
	// PhaseStarting covers validation up to the first subscribe attempt.
	PhaseStarting Phase = iota

	// PhaseAwaitingEndpoint means the event stream is connected but no POST
	// endpoint has been announced yet. Outbound messages buffer.
	PhaseAwaitingEndpoint

	// PhaseActive means a POST endpoint is registered and dispatch flows.
	PhaseActive

	// PhaseReconnecting means the stream dropped and reconnects are underway.
	PhaseReconnecting

	// PhaseShuttingDown means the bridge is winding down and will not recover.
	PhaseShuttingDown
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseAwaitingEndpoint:
		return "awaiting_endpoint"
	case PhaseActive:
		return "active"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// phaseTracker records the current phase. Shutdown is terminal: once
// entered, no transition leaves it.
type phaseTracker struct {
	v      atomic.Int32
	logger *slog.Logger
}

func newPhaseTracker(logger *slog.Logger) *phaseTracker {
	t := &phaseTracker{logger: logger}
	t.v.Store(int32(PhaseStarting))
	return t
}

func (t *phaseTracker) get() Phase {
	return Phase(t.v.Load())
}

func (t *phaseTracker) set(p Phase) {
	for {
		old := Phase(t.v.Load())
		if old == PhaseShuttingDown || old == p {
			return
		}
		if t.v.CompareAndSwap(int32(old), int32(p)) {
			t.logger.Debug("phase transition",
				"from", old.String(),
				"to", p.String(),
			)
			return
		}
	}
}
