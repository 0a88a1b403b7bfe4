package service

import "errors"

var (
	// ErrNotFound is returned when the referenced service does not exist.
	ErrNotFound = errors.New("service not found")

	// ErrNameConflict is returned when creating a service whose name is taken.
	ErrNameConflict = errors.New("service name conflict")

	// ErrEngineUnavailable is returned when the state engine is not running.
	// It indicates a process-level failure and is never expected while the
	// engine is up.
	ErrEngineUnavailable = errors.New("engine unavailable")
)
