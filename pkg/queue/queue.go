// Package queue implements the Workload Queue: two waiting maps keyed by
// instance identity, deferring creations and deletions until their
// inter-workload conditions are satisfied (C3).
//
// Grounded on the Ankaios agent's workload_scheduler/workload_queue.rs: the
// drain methods scan a snapshot of Parameter Storage once, collect every
// entry whose dependencies are fulfilled, remove exactly those from the
// queue, and return them. Ordering among ready entries is unspecified.
package queue

import (
	"sync"

	"github.com/cuemby/nodeagent/pkg/types"
	"github.com/cuemby/nodeagent/pkg/validator"
)

// Queue holds the start_queue and delete_queue maps. All methods are
// safe for concurrent use, though in the agent's normal operation only the
// Agent Manager's single task calls them.
type Queue struct {
	mu          sync.Mutex
	startQueue  map[types.WorkloadInstanceName]types.WorkloadSpec
	deleteQueue map[types.WorkloadInstanceName]types.DeletedWorkload
}

// New creates an empty Workload Queue.
func New() *Queue {
	return &Queue{
		startQueue:  make(map[types.WorkloadInstanceName]types.WorkloadSpec),
		deleteQueue: make(map[types.WorkloadInstanceName]types.DeletedWorkload),
	}
}

// EnqueueStarts merges specs into start_queue, overwriting any prior entry
// for the same instance name.
func (q *Queue) EnqueueStarts(specs []types.WorkloadSpec) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, spec := range specs {
		q.startQueue[spec.InstanceName] = spec
	}
}

// EnqueueDeletes merges workloads into delete_queue, overwriting any prior
// entry for the same instance name. A delete supersedes a pending create:
// each enqueued instance name is first removed from start_queue.
func (q *Queue) EnqueueDeletes(workloads []types.DeletedWorkload) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, dw := range workloads {
		delete(q.startQueue, dw.InstanceName)
		q.deleteQueue[dw.InstanceName] = dw
	}
}

// DrainReadyStarts evaluates every start_queue entry against snapshot,
// removes the ones whose dependencies are fulfilled, and returns them.
// Entries left behind all have at least one unfulfilled dependency as of
// snapshot.
func (q *Queue) DrainReadyStarts(snapshot validator.Snapshot) []types.WorkloadSpec {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ready []types.WorkloadSpec
	for name, spec := range q.startQueue {
		if validator.DependenciesForWorkloadFulfilled(spec, snapshot) {
			ready = append(ready, spec)
			delete(q.startQueue, name)
		}
	}
	return ready
}

// DrainReadyDeletes evaluates every delete_queue entry against snapshot,
// removes the ones whose delete-dependencies are fulfilled, and returns
// them.
func (q *Queue) DrainReadyDeletes(snapshot validator.Snapshot) []types.DeletedWorkload {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ready []types.DeletedWorkload
	for name, dw := range q.deleteQueue {
		if validator.DependenciesForDeletedWorkloadFulfilled(dw, snapshot) {
			ready = append(ready, dw)
			delete(q.deleteQueue, name)
		}
	}
	return ready
}

// Depths returns the current number of entries waiting in each queue, for
// metrics.
func (q *Queue) Depths() (start int, deleteCount int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.startQueue), len(q.deleteQueue)
}

// StartQueueContains reports whether instanceName currently has a pending
// start entry.
func (q *Queue) StartQueueContains(instanceName types.WorkloadInstanceName) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.startQueue[instanceName]
	return ok
}
