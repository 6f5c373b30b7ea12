// Package runtime implements the Runtime Facade (C4): the pluggable,
// per-runtime capability set the Workload Object drives. Three concrete
// backends are provided — containerd, Podman, and Podman-Kube — behind the
// same RuntimeFacade interface, so the Workload Object (pkg/workload) never
// depends on a specific container engine.
package runtime

import (
	"context"
	"time"

	"github.com/cuemby/nodeagent/pkg/types"
)

// WorkloadHandle is what a Runtime Facade hands back for a workload it has
// created: enough to address it in future calls (delete, status poll).
type WorkloadHandle struct {
	InstanceName types.WorkloadInstanceName
	RuntimeID    string
}

// ReusableWorkload is one entry returned by GetReusableWorkloads: a
// workload this backend already has running from a previous agent process.
type ReusableWorkload struct {
	InstanceName types.WorkloadInstanceName
	RuntimeID    string
}

// RuntimeFacade is the per-runtime capability set §4.4 describes. All
// operations are async from the caller's point of view: CreateWorkload
// returns once the underlying container exists and its state-checker task
// has been started, not once it reaches Running.
//
// Failures are never returned as fatal to the core: a facade call that fails
// returns an error and does not retry. The Workload Object turns a failed
// CreateWorkload into a Failed{reason} event on the state channel and keeps
// no handle for it (§4.4, §7); a failed DeleteWorkload is logged. No facade
// error propagates further up the call stack as a crash.
type RuntimeFacade interface {
	// CreateWorkload starts the underlying container for spec and attaches
	// a state-checker that emits WorkloadStateEvent values for
	// spec.InstanceName onto events until the workload reaches a terminal
	// state or DeleteWorkload stops it.
	CreateWorkload(ctx context.Context, spec types.WorkloadSpec, events chan<- types.WorkloadStateEvent) (WorkloadHandle, error)

	// DeleteWorkload stops and removes the container behind handle and
	// terminates its state checker. On success it emits a terminal Removed
	// event on events before returning.
	DeleteWorkload(ctx context.Context, handle WorkloadHandle, events chan<- types.WorkloadStateEvent) error

	// GetReusableWorkloads lists workloads this backend already has
	// running for agentName, for Runtime Manager startup reuse (§4.6).
	GetReusableWorkloads(ctx context.Context, agentName types.AgentName) ([]ReusableWorkload, error)

	// AttachStateChecker starts a state checker for a workload this backend
	// already has running (an adopted handle from GetReusableWorkloads)
	// without creating anything new. Used by startup reuse in place of
	// CreateWorkload.
	AttachStateChecker(ctx context.Context, handle WorkloadHandle, events chan<- types.WorkloadStateEvent) error

	// Name identifies this backend; it is the string other components log
	// and report in metrics labels, and should match the runtime selector
	// key this facade is registered under in the facade map.
	Name() string
}

// statePollInterval is how often a facade's background state checker polls
// the underlying runtime for a workload's current status.
const statePollInterval = 3 * time.Second
