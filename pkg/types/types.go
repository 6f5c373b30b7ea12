// Package types defines the data model shared by every component of the
// node agent: workload identity, specs, execution state, and the small
// set of interfaces (Authorizer) that cross component boundaries.
package types

import (
	"fmt"
	"time"
)

// AgentName is a non-empty string naming this node, stable for the agent's
// lifetime. It is used to filter desired-state entries addressed to this
// agent and to tag outgoing state reports.
type AgentName string

func (a AgentName) String() string {
	return string(a)
}

// WorkloadInstanceName uniquely identifies one concrete workload instance.
// Two specs with the same WorkloadName but a different ConfigHash are
// different instances: an "update" deletes the old instance and creates the
// new one under a new instance name.
type WorkloadInstanceName struct {
	WorkloadName string
	ConfigHash   string
	AgentName    AgentName
}

// String renders a stable, human-readable form used for logging and as the
// control interface pipe directory name.
func (n WorkloadInstanceName) String() string {
	return fmt.Sprintf("%s.%s.%s", n.WorkloadName, n.ConfigHash, n.AgentName)
}

// RestartCondition controls whether a Workload Object recreates its
// workload after the runtime reports a terminal, non-Running state.
type RestartCondition string

const (
	RestartNever     RestartCondition = "never"
	RestartOnFailure RestartCondition = "on-failure"
	RestartAlways    RestartCondition = "always"
)

// AddCondition is the predicate another workload's execution state must
// satisfy before a dependent workload may be created.
type AddCondition string

const (
	AddConditionRunning   AddCondition = "running"
	AddConditionSucceeded AddCondition = "succeeded"
	AddConditionFailed    AddCondition = "failed"
)

// DeleteCondition is the predicate another workload's execution state must
// satisfy before a dependent workload may be deleted.
type DeleteCondition string

// DeleteConditionNotPendingNorRunning is the only delete-condition the CORE
// defines: the dependency must be absent, Succeeded, Failed, or Removed.
const DeleteConditionNotPendingNorRunning DeleteCondition = "not-pending-nor-running"

// Authorizer mediates access to a workload's control interface. Two
// Authorizers compare equal iff they would grant the same set of
// operations; this decides whether an update may reuse an existing control
// interface endpoint in place or must tear it down and recreate it.
type Authorizer interface {
	Equal(other Authorizer) bool
}

// WorkloadSpec is the declarative description of one workload instance, as
// received from the server and diffed against the Runtime Manager's live
// set.
type WorkloadSpec struct {
	InstanceName  WorkloadInstanceName
	Runtime       string // key into the Runtime Facade map
	RuntimeConfig RuntimeConfig
	RestartPolicy RestartCondition
	Dependencies  map[string]AddCondition // workload name -> required add-condition
	Authorizer    Authorizer
}

// WorkloadName is a convenience accessor used throughout the core, which
// indexes its live set by workload name rather than instance name (§4.6).
func (s WorkloadSpec) WorkloadName() string { return s.InstanceName.WorkloadName }

// RuntimeConfig is the opaque per-runtime configuration blob referenced by
// §3. It is a concrete struct (rather than an opaque []byte) so the
// reference Runtime Facade backends in this repository can act on it; a
// real deployment may carry runtime-specific fields the core never
// inspects.
type RuntimeConfig struct {
	Image       string
	Env         []string
	Command     []string
	Mounts      []VolumeMount
	Ports       []PortMapping
	CPULimit    float64
	MemoryLimit int64
	// KubeManifest is used by the podman-kube backend in place of Image/Env.
	KubeManifest string
}

// VolumeMount binds a host-resident volume into the workload.
type VolumeMount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// PublishMode controls where a published port is reachable from.
type PublishMode string

const (
	PublishModeHost    PublishMode = "host"
	PublishModeIngress PublishMode = "ingress"
)

// PortMapping exposes a container port on the host.
type PortMapping struct {
	ContainerPort int
	HostPort      int
	Protocol      string
	PublishMode   PublishMode
}

// DeletedWorkload is the instance name of a workload the server no longer
// wants, plus the delete-dependencies that must be satisfied before the
// Workload Queue will release it to the Runtime Manager.
type DeletedWorkload struct {
	InstanceName       WorkloadInstanceName
	DeleteDependencies map[string]DeleteCondition // workload name -> required delete-condition
}

// WorkloadName is a convenience accessor, mirroring WorkloadSpec.WorkloadName.
func (d DeletedWorkload) WorkloadName() string { return d.InstanceName.WorkloadName }

// ExecutionState is the tagged state of a workload instance as observed by
// its runtime's state checker. Removed is the only terminal state in the
// "absorbs all further transitions" sense; every other variant may
// transition freely, including back into Pending/Running after a restart.
type ExecutionState struct {
	Kind   StateKind
	Reason string // populated for Failed; descriptive substate otherwise
}

// StateKind enumerates the variants of ExecutionState.
type StateKind string

const (
	StatePending   StateKind = "pending"
	StateRunning   StateKind = "running"
	StateSucceeded StateKind = "succeeded"
	StateFailed    StateKind = "failed"
	StateStopping  StateKind = "stopping"
	StateRemoved   StateKind = "removed"
	StateUnknown   StateKind = "unknown"
)

// ReasonUnsupportedRuntime is the Reason used when a workload's Runtime key
// is absent from the Runtime Facade map (§3, §7).
const ReasonUnsupportedRuntime = "unsupported-runtime"

func Pending(substate string) ExecutionState  { return ExecutionState{Kind: StatePending, Reason: substate} }
func Running(substate string) ExecutionState  { return ExecutionState{Kind: StateRunning, Reason: substate} }
func Succeeded() ExecutionState                { return ExecutionState{Kind: StateSucceeded} }
func Failed(reason string) ExecutionState      { return ExecutionState{Kind: StateFailed, Reason: reason} }
func Stopping(substate string) ExecutionState  { return ExecutionState{Kind: StateStopping, Reason: substate} }
func Removed() ExecutionState                  { return ExecutionState{Kind: StateRemoved} }
func Unknown() ExecutionState                  { return ExecutionState{Kind: StateUnknown} }

// IsRunning reports whether the state is any Running{*} variant.
func (s ExecutionState) IsRunning() bool { return s.Kind == StateRunning }

// IsFailed reports whether the state is any Failed{*} variant.
func (s ExecutionState) IsFailed() bool { return s.Kind == StateFailed }

// IsSucceeded reports whether the state is exactly Succeeded.
func (s ExecutionState) IsSucceeded() bool { return s.Kind == StateSucceeded }

// IsTerminalForRestart reports whether the state is a terminal state that a
// running Workload Object's restart policy should react to: any state other
// than Running and Removed.
func (s ExecutionState) IsTerminalForRestart() bool {
	return s.Kind != StateRunning && s.Kind != StateRemoved
}

func (s ExecutionState) String() string {
	if s.Reason != "" {
		return fmt.Sprintf("%s(%s)", s.Kind, s.Reason)
	}
	return string(s.Kind)
}

// WorkloadStateEvent pairs an ExecutionState with the workload instance it
// was observed for. This is the payload carried on the shared
// workload-state channel (§4.4, §4.7).
type WorkloadStateEvent struct {
	InstanceName WorkloadInstanceName
	State        ExecutionState
	ObservedAt   time.Time
}
