package scan

import "errors"

// Sentinel errors returned by the runners.
var (
	// ErrToolNotFound means the external tool (browser binary, axe-core
	// script or Lighthouse CLI) cannot be resolved. It is the only error that
	// fails a run.
	ErrToolNotFound = errors.New("scan tool not found")

	// ErrCheckpointMismatch means a checkpoint exists for another base URL.
	ErrCheckpointMismatch = errors.New("checkpoint belongs to another target")

	// ErrInvalidTarget is returned for an empty or malformed base URL.
	ErrInvalidTarget = errors.New("invalid scan target")
)
