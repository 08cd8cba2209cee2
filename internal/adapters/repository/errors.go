package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrOpenStore   = errors.New("open event store")
	ErrEmptyBatch  = errors.New("batch has no events")
	ErrStoreClosed = errors.New("event store closed")
)
