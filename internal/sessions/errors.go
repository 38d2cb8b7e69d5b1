package sessions

import "errors"

var (
	// ErrSessionNotFound is returned when a session id has no matching row.
	ErrSessionNotFound = errors.New("sessions: session not found")

	// ErrTerminalSession is returned when a transition is attempted from a
	// terminal status (done, error, cancelled).
	ErrTerminalSession = errors.New("sessions: session is already in a terminal status")
)
