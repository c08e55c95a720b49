package relay

import "errors"

var (
	// ErrProtocol marks malformed or out-of-order frames; terminal for
	// the session, never retried.
	ErrProtocol = errors.New("protocol error")

	// ErrBackpressure is returned when a session's send buffer is full.
	ErrBackpressure = errors.New("backpressure")

	// ErrSessionClosed is returned for deliveries to a closed session.
	ErrSessionClosed = errors.New("session closed")
)
