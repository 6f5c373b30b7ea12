package validator

import (
	"testing"

	"github.com/cuemby/nodeagent/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestDependenciesForWorkloadFulfilled_Empty(t *testing.T) {
	spec := types.WorkloadSpec{}
	assert.True(t, DependenciesForWorkloadFulfilled(spec, Snapshot{}))
}

func TestDependenciesForWorkloadFulfilled_RunningSatisfied(t *testing.T) {
	spec := types.WorkloadSpec{
		Dependencies: map[string]types.AddCondition{"a": types.AddConditionRunning},
	}
	snap := Snapshot{"a": types.Running("")}
	assert.True(t, DependenciesForWorkloadFulfilled(spec, snap))
}

func TestDependenciesForWorkloadFulfilled_SucceededSatisfied(t *testing.T) {
	spec := types.WorkloadSpec{
		Dependencies: map[string]types.AddCondition{"a": types.AddConditionSucceeded},
	}
	snap := Snapshot{"a": types.Succeeded()}
	assert.True(t, DependenciesForWorkloadFulfilled(spec, snap))
}

func TestDependenciesForWorkloadFulfilled_FailedSatisfied(t *testing.T) {
	spec := types.WorkloadSpec{
		Dependencies: map[string]types.AddCondition{"a": types.AddConditionFailed},
	}
	snap := Snapshot{"a": types.Failed("boom")}
	assert.True(t, DependenciesForWorkloadFulfilled(spec, snap))
}

func TestDependenciesForWorkloadFulfilled_WrongState(t *testing.T) {
	spec := types.WorkloadSpec{
		Dependencies: map[string]types.AddCondition{"a": types.AddConditionSucceeded},
	}
	snap := Snapshot{"a": types.Running("")}
	assert.False(t, DependenciesForWorkloadFulfilled(spec, snap))
}

func TestDependenciesForWorkloadFulfilled_AbsentState(t *testing.T) {
	spec := types.WorkloadSpec{
		Dependencies: map[string]types.AddCondition{"a": types.AddConditionRunning},
	}
	assert.False(t, DependenciesForWorkloadFulfilled(spec, Snapshot{}))
}

func TestDependenciesForWorkloadFulfilled_MultipleDeps(t *testing.T) {
	spec := types.WorkloadSpec{
		Dependencies: map[string]types.AddCondition{
			"a": types.AddConditionRunning,
			"b": types.AddConditionSucceeded,
		},
	}
	snap := Snapshot{"a": types.Running(""), "b": types.Pending("")}
	assert.False(t, DependenciesForWorkloadFulfilled(spec, snap))

	snap["b"] = types.Succeeded()
	assert.True(t, DependenciesForWorkloadFulfilled(spec, snap))
}

func TestDependenciesForDeletedWorkloadFulfilled_AbsentSatisfies(t *testing.T) {
	del := types.DeletedWorkload{
		DeleteDependencies: map[string]types.DeleteCondition{"a": types.DeleteConditionNotPendingNorRunning},
	}
	assert.True(t, DependenciesForDeletedWorkloadFulfilled(del, Snapshot{}))
}

func TestDependenciesForDeletedWorkloadFulfilled_SucceededSatisfies(t *testing.T) {
	del := types.DeletedWorkload{
		DeleteDependencies: map[string]types.DeleteCondition{"a": types.DeleteConditionNotPendingNorRunning},
	}
	snap := Snapshot{"a": types.Succeeded()}
	assert.True(t, DependenciesForDeletedWorkloadFulfilled(del, snap))
}

func TestDependenciesForDeletedWorkloadFulfilled_RemovedSatisfies(t *testing.T) {
	del := types.DeletedWorkload{
		DeleteDependencies: map[string]types.DeleteCondition{"a": types.DeleteConditionNotPendingNorRunning},
	}
	snap := Snapshot{"a": types.Removed()}
	assert.True(t, DependenciesForDeletedWorkloadFulfilled(del, snap))
}

func TestDependenciesForDeletedWorkloadFulfilled_RunningBlocks(t *testing.T) {
	del := types.DeletedWorkload{
		DeleteDependencies: map[string]types.DeleteCondition{"a": types.DeleteConditionNotPendingNorRunning},
	}
	snap := Snapshot{"a": types.Running("")}
	assert.False(t, DependenciesForDeletedWorkloadFulfilled(del, snap))
}

func TestDependenciesForDeletedWorkloadFulfilled_PendingBlocks(t *testing.T) {
	del := types.DeletedWorkload{
		DeleteDependencies: map[string]types.DeleteCondition{"a": types.DeleteConditionNotPendingNorRunning},
	}
	snap := Snapshot{"a": types.Pending("")}
	assert.False(t, DependenciesForDeletedWorkloadFulfilled(del, snap))
}
