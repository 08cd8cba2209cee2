package simulate

import "time"

// Default settings.
const (
	DefaultBaseURL  = "http://localhost:9080"
	DefaultVisitors = 200
	DefaultTimeout  = 10 * time.Second

	// StatsPollInterval is how often /stats is read while waiting for the
	// collector to store the run's events.
	StatsPollInterval = 100 * time.Millisecond

	// PercentageMultiplier converts ratios to percentages.
	PercentageMultiplier = 100
)

// HTTP status codes.
const (
	StatusOK = 200
)

// Visitor behavior.
const (
	// Probability a first-time visitor accepts all categories, rejects the
	// optional ones, or customizes. The remainder closes nothing and stays
	// undecided.
	acceptAllRate = 0.6
	rejectRate    = 0.2
	customizeRate = 0.1

	ctaRate      = 0.45
	faqRate      = 0.5
	formRate     = 0.3
	submitRate   = 0.6
	checkoutRate = 0.25
	shareRate    = 0.1
	outboundRate = 0.15
	tabAwayRate  = 0.3
	rageRate     = 0.05
	routeRate    = 0.35

	// Simulated think time between actions.
	minThink = 400 * time.Millisecond
	maxThink = 6 * time.Second
)
