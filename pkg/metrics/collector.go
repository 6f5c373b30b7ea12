package metrics

import "time"

// ManagerSnapshot is the minimal view of the Runtime Manager's live state the
// collector needs. pkg/manager.Manager implements this.
type ManagerSnapshot interface {
	// WorkloadCountsByState returns the number of live workloads per
	// execution state kind (e.g. "running", "failed").
	WorkloadCountsByState() map[string]int
	// QueueDepths returns the number of entries currently waiting in the
	// start queue and the delete queue.
	QueueDepths() (start int, delete int)
}

// Collector periodically snapshots the Runtime Manager's live state into the
// gauges registered in metrics.go.
type Collector struct {
	manager ManagerSnapshot
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector for the given manager.
func NewCollector(mgr ManagerSnapshot) *Collector {
	return &Collector{
		manager: mgr,
		stopCh:  make(chan struct{}),
	}
}

// Start begins periodic collection on a 15s interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts periodic collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	counts := c.manager.WorkloadCountsByState()
	for state, n := range counts {
		WorkloadsTotal.WithLabelValues(state).Set(float64(n))
	}

	startDepth, deleteDepth := c.manager.QueueDepths()
	QueueDepth.WithLabelValues("start").Set(float64(startDepth))
	QueueDepth.WithLabelValues("delete").Set(float64(deleteDepth))
}
