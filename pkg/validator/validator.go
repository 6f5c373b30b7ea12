// Package validator implements the State Validator: pure predicates deciding
// whether a workload's inter-workload conditions are satisfied right now
// (C2). Both functions take Parameter Storage by value (a snapshot) so the
// Workload Queue can evaluate many entries against one consistent view.
package validator

import "github.com/cuemby/nodeagent/pkg/types"

// Snapshot is the read-only view of Parameter Storage the validator needs.
// pkg/state.Storage.Snapshot() produces one.
type Snapshot map[string]types.ExecutionState

// DependenciesForWorkloadFulfilled reports whether every dependency in
// spec.Dependencies is currently satisfied against snapshot. An empty
// dependency set is trivially fulfilled.
func DependenciesForWorkloadFulfilled(spec types.WorkloadSpec, snapshot Snapshot) bool {
	for depName, required := range spec.Dependencies {
		st, ok := snapshot[depName]
		if !ok {
			return false
		}
		if !addConditionSatisfied(required, st) {
			return false
		}
	}
	return true
}

func addConditionSatisfied(required types.AddCondition, st types.ExecutionState) bool {
	switch required {
	case types.AddConditionRunning:
		return st.IsRunning()
	case types.AddConditionSucceeded:
		return st.IsSucceeded()
	case types.AddConditionFailed:
		return st.IsFailed()
	default:
		return false
	}
}

// DependenciesForDeletedWorkloadFulfilled reports whether every
// delete-dependency in del.DeleteDependencies is currently satisfied against
// snapshot. The only defined delete-condition is NotPendingNorRunning:
// fulfilled iff the dependency's state is absent, Succeeded, Failed{*}, or
// Removed. Any Pending{*} or Running{*} blocks.
func DependenciesForDeletedWorkloadFulfilled(del types.DeletedWorkload, snapshot Snapshot) bool {
	for depName, required := range del.DeleteDependencies {
		if required != types.DeleteConditionNotPendingNorRunning {
			return false
		}
		st, ok := snapshot[depName]
		if !ok {
			continue // absent satisfies NotPendingNorRunning
		}
		if st.Kind == types.StatePending || st.Kind == types.StateRunning {
			return false
		}
	}
	return true
}
