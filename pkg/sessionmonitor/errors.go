package sessionmonitor

import "errors"

var (
	// ErrSessionEnded means the server rejected the session as unknown,
	// expired or terminated.
	ErrSessionEnded = errors.New("sessionmonitor.session_ended")

	// ErrUnavailable means the server could not answer right now.
	ErrUnavailable = errors.New("sessionmonitor.unavailable")

	ErrUnexpectedResponse = errors.New("sessionmonitor.unexpected_response")
)
