package bridge

import "fmt"

// ConfigurationError reports invalid or missing bridge configuration. It is
// returned before any network activity happens.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}

// ProtocolError reports a violation of the remote transport contract, such
// as the first endpoint event never arriving. It terminates the bridge.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol: " + e.Reason
}

// TransportError reports that the event stream could not be re-established
// within the retry budget. Individual connection drops are retried with
// backoff and never surface; this only appears once the budget is spent.
type TransportError struct {
	Attempts uint
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DeliveryError reports a single outbound message the remote rejected or
// that never reached it. It is logged per message and is never fatal.
type DeliveryError struct {
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("delivery to %s rejected with status %d: %s", e.URL, e.Status, e.Body)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
