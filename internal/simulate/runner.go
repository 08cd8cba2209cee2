// Package simulate drives synthetic visitor sessions through real trackers
// against a running collector.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/convtrack/internal/adapters/storage"
	"github.com/okian/convtrack/internal/adapters/transport"
	"github.com/okian/convtrack/internal/domain/browser"
	"github.com/okian/convtrack/pkg/logger"
)

// siteURL is the page location visitors browse. Only its path and query
// reach the collector, after sanitization.
const siteURL = "https://convention.test/"

// Run executes a complete simulation and returns its statistics.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	cfg := withDefaults(config)
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("simulate")

	log.Info(ctx, "starting convtrack simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("visitors", cfg.Visitors),
		logger.Int("workers", cfg.Workers),
		logger.String("timeout", cfg.Timeout.String()),
		logger.String("page", cfg.PagePath),
		logger.String("storage", cfg.StoragePath),
		logger.Int64("seed", cfg.Seed))

	client := newCollectorClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: Check collector health
	if err := client.health(ctx); err != nil {
		return stats, fmt.Errorf("collector health check failed: %w", err)
	}
	before, err := client.stats(ctx)
	if err != nil {
		return stats, fmt.Errorf("collector stats unavailable: %w", err)
	}

	// Step 2: Prepare the page and the visitors' persistent storage
	html, err := LoadPage(cfg.PagePath)
	if err != nil {
		return stats, err
	}
	local, closeLocal, err := openLocalStorage(cfg.StoragePath)
	if err != nil {
		return stats, err
	}
	defer closeLocal()

	tr := transport.NewHTTP(transport.WithTimeout(cfg.Timeout))
	counter := &countingTransport{next: tr}
	env := &environment{
		html:      html,
		siteURL:   siteURL,
		endpoint:  cfg.BaseURL + "/events",
		transport: counter,
		local:     local,
		seed:      cfg.Seed,
	}

	// Step 3: Drive the visitors concurrently
	runVisitors(ctx, cfg, env, stats)

	// Step 4: Wait for in-flight beacons
	tr.Wait()
	stats.BatchesSent = int(counter.batches.Load())
	stats.BatchesRefused = int(counter.refused.Load())
	stats.EventsSent = int(counter.events.Load())

	// Step 5: Wait for the collector to store what was sent
	log.Info(ctx, "waiting for events to be stored")
	waitCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	stored, err := client.waitForStored(waitCtx, before.StoredEvents+int64(stats.EventsSent))
	stats.EventsStored = stored - before.StoredEvents
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return stats, fmt.Errorf("stats retrieval failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if stats.EventsStored < int64(stats.EventsSent) {
		return stats, fmt.Errorf("collector stored %d of %d events", stats.EventsStored, stats.EventsSent)
	}
	log.Info(ctx, "simulation completed successfully")
	return stats, nil
}

func withDefaults(c *Config) Config {
	cfg := Config{}
	if c != nil {
		cfg = *c
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Visitors <= 0 {
		cfg.Visitors = DefaultVisitors
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU() * 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return cfg
}

// openLocalStorage opens the badger store that backs every visitor's
// localStorage. An empty dir keeps it in memory for the run.
func openLocalStorage(dir string) (browser.Storage, func(), error) {
	var (
		db  *storage.Badger
		err error
	)
	if dir == "" {
		db, err = storage.OpenBadger("", storage.WithInMemory())
	} else {
		db, err = storage.OpenBadger(dir)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open visitor storage: %w", err)
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close visitor storage", logger.Error(err))
		}
	}
	return db, closeFn, nil
}

// runVisitors drives cfg.Visitors sessions on a pool of cfg.Workers.
func runVisitors(ctx context.Context, cfg Config, env *environment, stats *Stats) {
	log := logger.Get().Named("simulate")
	log.Info(ctx, "driving visitors", logger.Int("visitors", cfg.Visitors), logger.Int("workers", cfg.Workers))

	var (
		started   int64
		completed int64
		failed    int64
		returning int64
		granted   int64
	)

	ids := make(chan int, cfg.Workers*2)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				atomic.AddInt64(&started, 1)
				res, err := visit(ctx, env, id)
				if err != nil {
					atomic.AddInt64(&failed, 1)
					if cfg.Verbose {
						log.Warn(ctx, "visitor failed", logger.Int("visitor", id), logger.Error(err))
					}
					continue
				}
				atomic.AddInt64(&completed, 1)
				if res.returning {
					atomic.AddInt64(&returning, 1)
				}
				if res.consented {
					atomic.AddInt64(&granted, 1)
				}
				if cfg.Verbose {
					log.Debug(ctx, "visitor finished", logger.Int("visitor", id),
						logger.Bool("returning", res.returning), logger.Bool("consent", res.consented))
				}
			}
		}()
	}

	go func() {
		defer close(ids)
		for id := 0; id < cfg.Visitors; id++ {
			select {
			case <-ctx.Done():
				return
			case ids <- id:
			}
		}
	}()
	wg.Wait()

	stats.VisitorsStarted = int(atomic.LoadInt64(&started))
	stats.VisitorsCompleted = int(atomic.LoadInt64(&completed))
	stats.VisitorsFailed = int(atomic.LoadInt64(&failed))
	stats.ReturningVisitors = int(atomic.LoadInt64(&returning))
	stats.ConsentGranted = int(atomic.LoadInt64(&granted))
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var storedRate, visitorsPerSecond float64
	if stats.EventsSent > 0 {
		storedRate = float64(stats.EventsStored) / float64(stats.EventsSent) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		visitorsPerSecond = float64(stats.VisitorsCompleted) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("visitorsStarted", stats.VisitorsStarted),
		logger.Int("visitorsCompleted", stats.VisitorsCompleted),
		logger.Int("visitorsFailed", stats.VisitorsFailed),
		logger.Int("returningVisitors", stats.ReturningVisitors),
		logger.Int("consentGranted", stats.ConsentGranted),
		logger.Int("batchesSent", stats.BatchesSent),
		logger.Int("batchesRefused", stats.BatchesRefused),
		logger.Int("eventsSent", stats.EventsSent),
		logger.Int64("eventsStored", stats.EventsStored),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("storedRate", storedRate),
		logger.Float64("visitorsPerSecond", visitorsPerSecond))
}
