package metrics

import (
	"context"
	"time"

	"github.com/bmbridge/bmbridge/internal/state"
)

// Collector periodically samples the durable state record for the
// gauges that can't be updated incrementally at the point of mutation
// (queue depth, current session status).
type Collector struct {
	metrics *Collectors
	shared  *state.Shared
}

// NewCollector builds a Collector over shared.
func NewCollector(m *Collectors, shared *state.Shared) *Collector {
	return &Collector{metrics: m, shared: shared}
}

// Collect samples the current state record once.
func (c *Collector) Collect() {
	c.shared.View(func(st *state.State) {
		c.metrics.QueueDepth.Set(float64(len(st.Queue)))
		c.metrics.SetSessionStatus(string(st.Session.Status))
	})
}

// Run samples on the given interval until ctx is done, collecting
// once immediately on start.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.Collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}
