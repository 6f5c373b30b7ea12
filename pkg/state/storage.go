// Package state implements Parameter Storage: the in-memory cache of the
// latest observed execution state per workload (C1).
package state

import (
	"sync"

	"github.com/cuemby/nodeagent/pkg/types"
)

// Storage is a mapping workload_name -> latest ExecutionState. It keeps no
// history: record overwrites.
//
// Contract: the Agent Manager is the sole writer and calls record/state_of
// only from its single task, so Storage itself needs no locking to satisfy
// that contract. It embeds a mutex anyway because the metrics collector and
// tests read it from a different goroutine; the mutex only guards against
// those secondary readers racing the single writer, not against concurrent
// writers (there are none by construction).
type Storage struct {
	mu     sync.RWMutex
	states map[string]types.ExecutionState
}

// New creates an empty Parameter Storage.
func New() *Storage {
	return &Storage{
		states: make(map[string]types.ExecutionState),
	}
}

// Record overwrites the latest execution state for workloadName.
func (s *Storage) Record(workloadName string, st types.ExecutionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[workloadName] = st
}

// StateOf returns the latest recorded execution state for workloadName, and
// whether one has been recorded at all.
func (s *Storage) StateOf(workloadName string) (types.ExecutionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[workloadName]
	return st, ok
}

// Forget removes any recorded state for workloadName. Used by the Runtime
// Manager once a workload has been fully removed and its name is no longer
// meaningful to the State Validator.
func (s *Storage) Forget(workloadName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, workloadName)
}

// Snapshot returns a copy of the full workload_name -> state map, for use by
// components (the Workload Queue's drain methods, the metrics collector)
// that must evaluate many workloads against one consistent view.
func (s *Storage) Snapshot() map[string]types.ExecutionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]types.ExecutionState, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}

// CountsByState returns the number of workloads currently at each
// StateKind, for metrics.
func (s *Storage) CountsByState() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, st := range s.states {
		counts[string(st.Kind)]++
	}
	return counts
}
