package session

import "errors"

var (
	// ErrInvalidInput rejects a malformed room code before anything is
	// acquired or joined.
	ErrInvalidInput = errors.New("room code must be exactly 4 digits")

	// ErrMediaUnavailable wraps one of the cause sentinels below.
	ErrMediaUnavailable = errors.New("media unavailable")

	ErrPermissionDenied   = errors.New("permission denied")
	ErrNoDevice           = errors.New("no audio device")
	ErrUnsupportedContext = errors.New("unsupported environment")
	ErrInsecureContext    = errors.New("insecure transport context")

	// ErrNegotiationTimeout is returned after the single automatic
	// retry also failed to reach connectivity.
	ErrNegotiationTimeout = errors.New("negotiation timed out")

	// ErrTransportFailed is a terminal failure reported by the
	// underlying transport.
	ErrTransportFailed = errors.New("transport failure")

	// ErrSignalingClosed means the signaling connection dropped while
	// the session was still alive.
	ErrSignalingClosed = errors.New("signaling connection closed")

	// ErrJoinRejected carries an admission or validation failure
	// reported by the server.
	ErrJoinRejected = errors.New("join rejected")
)
