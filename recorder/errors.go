package recorder

import "errors"

var (
	// ErrSessionAlreadyActive is returned by Start while the session, or
	// another session of the same Recorder, is recording.
	ErrSessionAlreadyActive = errors.New("session already active")

	// ErrSessionNotActive is returned by Stop when the session is not
	// recording.
	ErrSessionNotActive = errors.New("session not active")

	// ErrSessionFinished is returned by Start on a stopped session. Sessions
	// are single use.
	ErrSessionFinished = errors.New("session already finished")

	ErrBufferFull = errors.New("buffer full")
)
