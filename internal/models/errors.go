package models

import "errors"

var (
	// ErrInvalidConfig is returned when a monitoring job cannot be started with the given arguments
	ErrInvalidConfig = errors.New("invalid monitoring configuration")

	// ErrNotFound is returned for unknown job or incident ids
	ErrNotFound = errors.New("not found")

	// ErrCollaborator wraps failures of fetchers, classifiers, notifiers and storage
	ErrCollaborator = errors.New("collaborator failure")

	// ErrInternalFault marks an unexpected failure inside a poll cycle
	ErrInternalFault = errors.New("internal fault")

	// ErrInvalidDetection is returned when a detection is structurally invalid
	ErrInvalidDetection = errors.New("invalid detection")
)
