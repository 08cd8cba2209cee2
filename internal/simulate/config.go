package simulate

import "time"

// Config holds configuration for a simulation run
type Config struct {
	BaseURL     string        // Base URL of the collector
	Visitors    int           // Number of visitor sessions to drive
	Workers     int           // Number of concurrent visitors
	Timeout     time.Duration // HTTP request timeout
	PagePath    string        // HTML page to browse; empty uses the built-in landing page
	StoragePath string        // Badger directory for visitor localStorage; empty keeps it in memory
	Seed        int64         // Random seed; runs with the same seed take the same actions
	LogFile     string        // Log file for run output
	Verbose     bool          // Enable verbose logging
}

// Stats holds run statistics
type Stats struct {
	VisitorsStarted   int
	VisitorsCompleted int
	VisitorsFailed    int
	ReturningVisitors int
	ConsentGranted    int
	BatchesSent       int
	BatchesRefused    int
	EventsSent        int
	EventsStored      int64
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
