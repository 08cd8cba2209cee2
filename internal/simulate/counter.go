package simulate

import (
	"context"
	"sync/atomic"

	"github.com/okian/convtrack/internal/adapters/transport"
)

// countingTransport tallies what the trackers hand to the shared transport.
type countingTransport struct {
	next    transport.Transport
	batches atomic.Int64
	refused atomic.Int64
	events  atomic.Int64
}

var _ transport.Transport = (*countingTransport)(nil)

func (c *countingTransport) Beacon(url string, body []byte) bool {
	if !c.next.Beacon(url, body) {
		c.refused.Add(1)
		return false
	}
	c.count(body)
	return true
}

func (c *countingTransport) Post(ctx context.Context, url string, body []byte) error {
	if err := c.next.Post(ctx, url, body); err != nil {
		c.refused.Add(1)
		return err
	}
	c.count(body)
	return nil
}

func (c *countingTransport) count(body []byte) {
	c.batches.Add(1)
	if b, err := transport.Decode(body); err == nil {
		c.events.Add(int64(len(b.Events)))
	}
}
