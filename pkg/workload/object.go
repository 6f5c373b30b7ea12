// Package workload implements the Workload Object (C5): the per-instance
// state machine described in §4.5 that drives one workload through a
// Runtime Facade backend, reacts to the state-checker events the backend
// produces, and applies restart policy.
//
// Each Object owns a single goroutine and a bounded command channel;
// commands for one object are processed strictly in arrival order, and
// objects never share state with each other, matching §5's single-writer
// model (only the Runtime Manager, via these commands, ever tells an
// Object what to do).
package workload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/nodeagent/pkg/controlinterface"
	"github.com/cuemby/nodeagent/pkg/log"
	"github.com/cuemby/nodeagent/pkg/metrics"
	"github.com/cuemby/nodeagent/pkg/runtime"
	"github.com/cuemby/nodeagent/pkg/types"
)

// commandQueueCapacity bounds a single object's command channel, per §5's
// suggested bounded-channel capacity.
const commandQueueCapacity = 20

// FacadeResolver looks up the Runtime Facade backend registered under a
// WorkloadSpec's Runtime key. It returns false for an unsupported runtime.
type FacadeResolver func(runtimeKey string) (runtime.RuntimeFacade, bool)

type commandKind int

const (
	cmdCreate commandKind = iota
	cmdObserve
	cmdUpdate
	cmdDelete
)

type command struct {
	kind     commandKind
	observed types.ExecutionState
	spec     types.WorkloadSpec
}

// Config carries everything an Object needs to construct and, on restart
// or update, recreate its workload.
type Config struct {
	Spec        types.WorkloadSpec
	Resolve     FacadeResolver
	StateEvents chan<- types.WorkloadStateEvent
	RunFolder   string
	AgentName   types.AgentName
	Ctx         context.Context // governs every facade call this object makes; nil means context.Background()
}

// Object is the live state machine for one workload instance.
type Object struct {
	resolve     FacadeResolver
	stateEvents chan<- types.WorkloadStateEvent
	runFolder   string
	agentName   types.AgentName
	ctx         context.Context

	commands chan command
	done     chan struct{}
	logger   zerolog.Logger

	mu         sync.RWMutex
	spec       types.WorkloadSpec
	state      types.ExecutionState
	facade     runtime.RuntimeFacade
	handle     runtime.WorkloadHandle
	controlDir string
	authorizer types.Authorizer
}

// New constructs an Object for a workload the Runtime Manager has decided
// to create from scratch, and starts it toward CREATING.
func New(cfg Config) *Object {
	o := newObject(cfg)
	o.state = types.Pending("creating")
	go o.run()
	o.commands <- command{kind: cmdCreate, spec: cfg.Spec}
	return o
}

// Adopt wraps an already-running workload discovered via
// RuntimeFacade.GetReusableWorkloads: it attaches a fresh state checker
// instead of creating a new container, per the Runtime Manager's startup
// reuse procedure (§4.6).
func Adopt(cfg Config, handle runtime.WorkloadHandle) (*Object, error) {
	o := newObject(cfg)

	facade, ok := o.resolve(cfg.Spec.Runtime)
	if !ok {
		return nil, fmt.Errorf("adopt %s: unsupported runtime %q", cfg.Spec.InstanceName, cfg.Spec.Runtime)
	}
	if err := facade.AttachStateChecker(o.ctx, handle, o.stateEvents); err != nil {
		return nil, fmt.Errorf("adopt %s: attach state checker: %w", cfg.Spec.InstanceName, err)
	}

	o.facade = facade
	o.handle = handle
	o.state = types.Pending("adopted")
	if dir, err := o.createControlInterface(cfg.Spec); err != nil {
		o.logger.Warn().Err(err).Msg("create control interface for adopted workload")
	} else {
		o.controlDir = dir
		o.authorizer = cfg.Spec.Authorizer
	}

	go o.run()
	return o, nil
}

func newObject(cfg Config) *Object {
	ctx := cfg.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return &Object{
		resolve:     cfg.Resolve,
		stateEvents: cfg.StateEvents,
		runFolder:   cfg.RunFolder,
		agentName:   cfg.AgentName,
		ctx:         ctx,
		commands:    make(chan command, commandQueueCapacity),
		done:        make(chan struct{}),
		logger:      log.WithInstance(cfg.Spec.InstanceName.String()),
		spec:        cfg.Spec,
	}
}

// InstanceName returns the instance this object currently represents. It
// changes across an Update.
func (o *Object) InstanceName() types.WorkloadInstanceName {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.spec.InstanceName
}

// WorkloadName is the name the Runtime Manager's live map keys on (§4.6):
// stable across updates, unlike InstanceName.
func (o *Object) WorkloadName() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.spec.WorkloadName()
}

// Runtime returns the Runtime Facade key this object's current spec names,
// for metrics labeling.
func (o *Object) Runtime() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.spec.Runtime
}

// State returns the object's last-observed execution state.
func (o *Object) State() types.ExecutionState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Done is closed once the object has processed a Delete command to
// completion (reached Removed) and may be dropped from the Runtime
// Manager's live map.
func (o *Object) Done() <-chan struct{} {
	return o.done
}

// Observe delivers a state-checker event to this object, in order relative
// to any other command already dispatched to it.
func (o *Object) Observe(state types.ExecutionState) {
	o.dispatch(command{kind: cmdObserve, observed: state})
}

// Update tells the object to replace its current instance with newSpec via
// a delete-then-create sequence (§4.5).
func (o *Object) Update(newSpec types.WorkloadSpec) {
	o.dispatch(command{kind: cmdUpdate, spec: newSpec})
}

// Delete tells the object to stop and remove its workload. After this
// command is processed, Done is closed.
func (o *Object) Delete() {
	o.dispatch(command{kind: cmdDelete})
}

func (o *Object) dispatch(cmd command) {
	select {
	case o.commands <- cmd:
	case <-o.done:
	}
}

func (o *Object) run() {
	defer close(o.done)
	for {
		select {
		case cmd := <-o.commands:
			switch cmd.kind {
			case cmdCreate:
				o.create(cmd.spec, false)
			case cmdObserve:
				o.handleObserve(cmd.observed)
			case cmdUpdate:
				o.handleUpdate(cmd.spec)
			case cmdDelete:
				o.handleDelete()
				return
			}
		case <-o.ctx.Done():
			return
		}
	}
}

// handleObserve records the latest state and, if it is a terminal state
// reported while the object was RUNNING, applies restart policy.
func (o *Object) handleObserve(st types.ExecutionState) {
	o.mu.Lock()
	prev := o.state
	o.state = st
	policy := o.spec.RestartPolicy
	spec := o.spec
	o.mu.Unlock()

	if prev.Kind != types.StateRunning || !st.IsTerminalForRestart() {
		return
	}

	switch policy {
	case types.RestartAlways:
	case types.RestartOnFailure:
		if !st.IsFailed() {
			return
		}
	default:
		return
	}

	o.logger.Info().Str("observed", st.String()).Str("policy", string(policy)).Msg("restart policy recreating workload")
	metrics.WorkloadRestartsTotal.WithLabelValues(spec.WorkloadName()).Inc()
	o.create(spec, false)
}

// handleUpdate performs the delete-then-create sequence a spec update
// requires: the old instance is torn down (emitting Stopping then Removed)
// before the new one is created (emitting Pending then Running), matching
// the externally-observable order §4.5 specifies. Per §6/§9, the control
// interface itself is only torn down and recreated if its configuration
// actually changed; an update whose new Authorizer and pipe path compare
// equal to the running one (controlinterface.Info.HasSameConfiguration)
// reuses the existing pipes in place.
func (o *Object) handleUpdate(newSpec types.WorkloadSpec) {
	reuseControlInterface := o.sameControlConfiguration(newSpec)
	o.logger.Info().
		Str("old_instance", o.InstanceName().String()).
		Str("new_instance", newSpec.InstanceName.String()).
		Bool("reuse_control_interface", reuseControlInterface).
		Msg("update: deleting old instance before creating new one")
	o.doDelete(!reuseControlInterface)
	o.create(newSpec, reuseControlInterface)
}

// sameControlConfiguration reports whether newSpec's control interface
// (authorizer + pipe path it would be created under) is identical to the
// one this object currently has running, per
// controlinterface.Info.HasSameConfiguration.
func (o *Object) sameControlConfiguration(newSpec types.WorkloadSpec) bool {
	o.mu.RLock()
	oldDir := o.controlDir
	oldAuthorizer := o.authorizer
	oldInstanceName := o.spec.InstanceName
	o.mu.RUnlock()

	if oldDir == "" || newSpec.Authorizer == nil {
		return false
	}

	newDir := controlinterface.Dir(o.runFolder, o.agentName, newSpec.InstanceName)
	current := controlinterface.NewInfo(oldDir, nil, oldInstanceName, oldAuthorizer)
	candidate := controlinterface.New(newDir, newSpec.Authorizer)
	return current.HasSameConfiguration(candidate)
}

// handleDelete stops the workload and marks this object removed.
func (o *Object) handleDelete() {
	o.doDelete(true)
}

// doDelete stops the live workload through its facade. tearDownControlInterface
// controls whether the control interface pipes are removed along with it, or
// left in place for an immediately following create to reuse.
func (o *Object) doDelete(tearDownControlInterface bool) {
	o.mu.Lock()
	facade := o.facade
	handle := o.handle
	controlDir := o.controlDir
	o.mu.Unlock()

	if facade != nil {
		timer := metrics.NewTimer()
		err := facade.DeleteWorkload(o.ctx, handle, o.stateEvents)
		timer.ObserveDurationVec(metrics.RuntimeOperationDuration, facade.Name(), "delete")
		if err != nil {
			metrics.RuntimeOperationFailuresTotal.WithLabelValues(facade.Name(), "delete").Inc()
			o.logger.Warn().Err(err).Msg("delete workload")
		}
	}
	if tearDownControlInterface && controlDir != "" {
		if err := controlinterface.Remove(controlDir); err != nil {
			o.logger.Warn().Err(err).Msg("remove control interface")
		}
	}

	o.mu.Lock()
	o.state = types.Removed()
	o.facade = nil
	o.handle = runtime.WorkloadHandle{}
	if tearDownControlInterface {
		o.controlDir = ""
		o.authorizer = nil
	}
	o.mu.Unlock()
}

// create resolves spec's runtime and asks the facade to start it. Unless
// reuseControlInterface is set (handleUpdate decided the existing pipes
// still apply), it also prepares a fresh control interface. A resolution or
// facade failure is reported as a Failed event; the object is left with no
// live facade handle (§4.4, §7).
func (o *Object) create(spec types.WorkloadSpec, reuseControlInterface bool) {
	o.mu.Lock()
	o.spec = spec
	o.mu.Unlock()

	facade, ok := o.resolve(spec.Runtime)
	if !ok {
		o.fail(spec.InstanceName, types.ReasonUnsupportedRuntime)
		return
	}

	var controlDir string
	if reuseControlInterface {
		o.mu.RLock()
		controlDir = o.controlDir
		o.mu.RUnlock()
	} else {
		var err error
		controlDir, err = o.createControlInterface(spec)
		if err != nil {
			o.logger.Warn().Err(err).Msg("create control interface")
		}
	}

	timer := metrics.NewTimer()
	handle, err := facade.CreateWorkload(o.ctx, spec, o.stateEvents)
	timer.ObserveDurationVec(metrics.RuntimeOperationDuration, facade.Name(), "create")
	if err != nil {
		metrics.RuntimeOperationFailuresTotal.WithLabelValues(facade.Name(), "create").Inc()
		o.logger.Warn().Err(err).Msg("create workload")
		o.fail(spec.InstanceName, err.Error())
		return
	}

	o.mu.Lock()
	o.facade = facade
	o.handle = handle
	o.controlDir = controlDir
	o.authorizer = spec.Authorizer
	o.state = types.Pending("created")
	o.mu.Unlock()
}

func (o *Object) createControlInterface(spec types.WorkloadSpec) (string, error) {
	if spec.Authorizer == nil {
		return "", nil
	}
	dir := controlinterface.Dir(o.runFolder, o.agentName, spec.InstanceName)
	if err := controlinterface.Create(dir); err != nil {
		return "", err
	}
	return dir, nil
}

func (o *Object) fail(instanceName types.WorkloadInstanceName, reason string) {
	st := types.Failed(reason)
	o.mu.Lock()
	o.state = st
	o.mu.Unlock()

	select {
	case o.stateEvents <- types.WorkloadStateEvent{InstanceName: instanceName, State: st, ObservedAt: time.Now()}:
	case <-o.ctx.Done():
	}
}
