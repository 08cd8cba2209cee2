package model

import "time"

// Envelope is a batch accepted by the collector, waiting to be persisted.
type Envelope struct {
	ID         string
	ReceivedAt time.Time
	// Origin is the request origin bucket, e.g. "beacon" or "fetch".
	Origin string
	Batch  Batch
}

// NameCount is an event name with the number of stored occurrences.
type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}
