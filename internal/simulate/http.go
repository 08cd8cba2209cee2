package simulate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/convtrack/internal/domain/model"
	"github.com/okian/convtrack/pkg/logger"
)

// collectorClient reads the collector's health and stats endpoints.
type collectorClient struct {
	client  *http.Client
	baseURL string
}

func newCollectorClient(baseURL string, timeout time.Duration) *collectorClient {
	return &collectorClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// collectorStats is the part of GET /stats the simulator reads.
type collectorStats struct {
	StoredEvents int64 `json:"storedEvents"`
	QueueLength  int   `json:"queueLength"`
	EventsByName []model.NameCount `json:"eventsByName"`
}

func (c *collectorClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to collector: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return nil, fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	return body, nil
}

// health verifies the collector is running.
func (c *collectorClient) health(ctx context.Context) error {
	_, err := c.get(ctx, "/healthz")
	return err
}

// stats returns the collector's current counters.
func (c *collectorClient) stats(ctx context.Context) (collectorStats, error) {
	var s collectorStats
	body, err := c.get(ctx, "/stats")
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(body, &s); err != nil {
		return s, fmt.Errorf("failed to decode stats: %w", err)
	}
	return s, nil
}

// waitForStored polls /stats until at least want events are stored or ctx
// ends. It returns the last count seen.
func (c *collectorClient) waitForStored(ctx context.Context, want int64) (int64, error) {
	ticker := time.NewTicker(StatsPollInterval)
	defer ticker.Stop()
	var last int64
	for {
		s, err := c.stats(ctx)
		if err != nil {
			return last, err
		}
		last = s.StoredEvents
		if last >= want && s.QueueLength == 0 {
			return last, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}
