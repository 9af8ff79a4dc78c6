// Package tape provides optional recording of bridge traffic.
//
// Every outbound JSON-RPC message (with the final HTTP status of its POST)
// and every inbound server-pushed payload can be appended to a Store for
// later inspection. Recording happens off the bridge hot path via the
// asynchronous Recorder.
package tape

import (
	"context"
	"time"
)

// Direction tags which way a recorded payload was travelling.
type Direction string

const (
	// DirectionOutbound marks messages read from local input and POSTed upstream.
	DirectionOutbound Direction = "outbound"

	// DirectionInbound marks payloads pushed by the remote over SSE.
	DirectionInbound Direction = "inbound"
)

// Entry is a single recorded payload.
type Entry struct {
	// ID uniquely identifies the entry (UUID).
	ID string

	// Session is the bridge run id all entries of one process share.
	Session string

	// Direction is outbound or inbound.
	Direction Direction

	// Payload is the JSON-RPC text, verbatim.
	Payload string

	// Status is the HTTP status of the POST for outbound entries, 0 for inbound.
	Status int

	// Recorded is when the entry was accepted for recording.
	Recorded time.Time
}

// Store persists tape entries.
type Store interface {
	// Append stores one entry.
	Append(ctx context.Context, e *Entry) error

	// List returns entries for a session in recording order.
	// An empty session returns all entries.
	List(ctx context.Context, session string) ([]*Entry, error)

	// Close releases store resources.
	Close() error
}
