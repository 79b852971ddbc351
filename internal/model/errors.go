package model

import "errors"

var (
	// ErrCommandRequired is returned when no command line is configured.
	ErrCommandRequired = errors.New("command is required")

	// ErrRestartNotAllowed is returned when a restart is requested but disabled by configuration.
	ErrRestartNotAllowed = errors.New("restart is not allowed")

	// ErrNotRunning is returned when input is submitted while the program has exited.
	ErrNotRunning = errors.New("program is not running")

	// ErrHubClosed is returned by hub operations after the hub was torn down.
	ErrHubClosed = errors.New("session hub is closed")

	// ErrClientClosed is returned when a client disconnected before it could be attached.
	ErrClientClosed = errors.New("client is closed")

	// ErrStartTimeout is returned when waiting for the program to start takes too long.
	ErrStartTimeout = errors.New("timed out waiting for program to start")

	// ErrRunNotFound is returned when a run history record does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrUnauthorized is returned when the access gate rejects a request.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTooManyAttempts is returned when login is locked out after repeated failures.
	ErrTooManyAttempts = errors.New("too many login attempts")
)
