package supervisor

import "errors"

var (
	// ErrInvalidArgument is returned before any probe when the endpoint or wait is unusable.
	ErrInvalidArgument = errors.New("invalid start request")
	// ErrLaunch is returned when the server binary could not be started at all.
	ErrLaunch = errors.New("server launch failed")
	// ErrProcessDied is returned when the spawned server exits before its port opens.
	ErrProcessDied = errors.New("server process died unexpectedly")
	// ErrStartTimeout is returned when the port did not open before the deadline.
	// The spawned process has been killed by the time it is returned.
	ErrStartTimeout = errors.New("server failed to start before deadline")
)
