// Package manager implements the Runtime Manager (C6): the component that
// owns the live set of Workload Objects for this agent, diffs desired state
// against it, and drives the Workload Queue (C3) against Parameter Storage
// (C1) to decide when a queued start or delete is actually dispatched.
//
// Grounded on original_source/agent/src/runtime_manager.rs: the live map is
// keyed by workload name (stable across an update), not instance name
// (§4.6); bootstrap reuses already-running workloads discovered via each
// Runtime Facade's GetReusableWorkloads before the first desired state is
// applied; and "update" is never a distinct wire operation — it falls out
// of the same add/delete diff once Drive notices a workload name is already
// live under a different instance name.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/nodeagent/pkg/log"
	"github.com/cuemby/nodeagent/pkg/metrics"
	"github.com/cuemby/nodeagent/pkg/queue"
	"github.com/cuemby/nodeagent/pkg/runtime"
	"github.com/cuemby/nodeagent/pkg/state"
	"github.com/cuemby/nodeagent/pkg/types"
	"github.com/cuemby/nodeagent/pkg/validator"
	"github.com/cuemby/nodeagent/pkg/workload"
)

// stateEventBuffer bounds the shared channel every live Workload Object
// emits its state-checker events onto, per §5's bounded-queue guidance.
const stateEventBuffer = 20

// Config carries everything a Manager needs for the lifetime of one agent
// process.
type Config struct {
	AgentName types.AgentName
	RunFolder string
	// Facades maps a WorkloadSpec.Runtime key to the backend that handles
	// it. A spec naming a key absent here is an unsupported-runtime case
	// (§3, §7), handled without ever constructing a Workload Object.
	Facades map[string]runtime.RuntimeFacade
}

// Manager is the Runtime Manager. It composes Parameter Storage (C1) and
// the Workload Queue (C3) internally: callers only ever see workload names
// and specs, never the storage/queue types directly.
type Manager struct {
	ctx       context.Context
	agentName types.AgentName
	runFolder string
	facades   map[string]runtime.RuntimeFacade

	storage     *state.Storage
	queue       *queue.Queue
	stateEvents chan types.WorkloadStateEvent

	logger zerolog.Logger

	mu   sync.Mutex
	live map[string]*workload.Object // workload name -> object
}

// New constructs a Manager. ctx governs every Workload Object and Runtime
// Facade call the Manager makes or causes to be made for the rest of its
// life; cancelling it tears the whole agent down.
func New(ctx context.Context, cfg Config) *Manager {
	return &Manager{
		ctx:         ctx,
		agentName:   cfg.AgentName,
		runFolder:   cfg.RunFolder,
		facades:     cfg.Facades,
		storage:     state.New(),
		queue:       queue.New(),
		stateEvents: make(chan types.WorkloadStateEvent, stateEventBuffer),
		logger:      log.WithComponent("manager"),
		live:        make(map[string]*workload.Object),
	}
}

// StateEvents is the shared channel every live Workload Object's
// state-checker posts to. The Agent Manager (pkg/agent) is the sole reader;
// it forwards each event to HandleStateEvent.
func (m *Manager) StateEvents() <-chan types.WorkloadStateEvent {
	return m.stateEvents
}

// Bootstrap implements startup reuse (§4.6, scenario S6): before any
// desired state has been applied, it asks every Runtime Facade what it
// already has running for this agent and either adopts a match in
// initialDesired or deletes the orphan.
func (m *Manager) Bootstrap(initialDesired []types.WorkloadSpec) error {
	wanted := make(map[types.WorkloadInstanceName]types.WorkloadSpec, len(initialDesired))
	for _, spec := range initialDesired {
		wanted[spec.InstanceName] = spec
	}

	for runtimeName, facade := range m.facades {
		reusable, err := facade.GetReusableWorkloads(m.ctx, m.agentName)
		if err != nil {
			return fmt.Errorf("list reusable workloads for runtime %q: %w", runtimeName, err)
		}

		for _, r := range reusable {
			spec, ok := wanted[r.InstanceName]
			if !ok {
				m.deleteOrphan(facade, r)
				continue
			}

			handle := runtime.WorkloadHandle{InstanceName: r.InstanceName, RuntimeID: r.RuntimeID}
			obj, err := workload.Adopt(m.objectConfig(spec), handle)
			if err != nil {
				m.logger.Warn().Err(err).Str("instance", r.InstanceName.String()).Msg("adopt reusable workload")
				m.deleteOrphan(facade, r)
				continue
			}

			m.mu.Lock()
			m.live[spec.WorkloadName()] = obj
			m.mu.Unlock()
			m.logger.Info().Str("instance", r.InstanceName.String()).Msg("adopted reusable workload at startup")
		}
	}
	return nil
}

// deleteOrphan removes a reusable workload that no longer appears in
// desired state. There is no Workload Object to own the delete, so the
// facade is called directly and the resulting event is discarded: nothing
// in Parameter Storage refers to an orphan's workload name.
func (m *Manager) deleteOrphan(facade runtime.RuntimeFacade, r runtime.ReusableWorkload) {
	sink := make(chan types.WorkloadStateEvent, 1)
	handle := runtime.WorkloadHandle{InstanceName: r.InstanceName, RuntimeID: r.RuntimeID}
	if err := facade.DeleteWorkload(m.ctx, handle, sink); err != nil {
		m.logger.Warn().Err(err).Str("instance", r.InstanceName.String()).Msg("delete orphaned reusable workload")
		return
	}
	m.logger.Info().Str("instance", r.InstanceName.String()).Msg("deleted orphaned reusable workload")
}

// ApplyDesiredState enqueues every added spec and deleted workload onto the
// Workload Queue (§4.6's Adds/Deletes/Updates diff). Whether an added spec
// turns out to be a fresh create or an update of something already live is
// decided later, at Drive time, once its dependencies clear.
func (m *Manager) ApplyDesiredState(added []types.WorkloadSpec, deleted []types.DeletedWorkload) {
	timer := metrics.NewTimer()
	if len(added) > 0 {
		m.queue.EnqueueStarts(added)
	}
	if len(deleted) > 0 {
		m.queue.EnqueueDeletes(deleted)
	}
	m.Drive()
	timer.ObserveDuration(metrics.ReconciliationDuration)
	metrics.ReconciliationCyclesTotal.Inc()
}

// HandleStateEvent records a state-checker event into Parameter Storage,
// forwards it to the Workload Object it belongs to (so restart policy can
// react), and re-drives the queue: a state change is exactly the kind of
// event that can unblock another workload's dependencies (§4.2, §8).
func (m *Manager) HandleStateEvent(event types.WorkloadStateEvent) {
	m.storage.Record(event.InstanceName.WorkloadName, event.State)

	m.mu.Lock()
	obj, ok := m.live[event.InstanceName.WorkloadName]
	m.mu.Unlock()
	if ok && obj.InstanceName() == event.InstanceName {
		obj.Observe(event.State)
		metrics.WorkloadTransitionsTotal.WithLabelValues(obj.Runtime(), string(event.State.Kind)).Inc()
	}

	m.Drive()
}

// Drive drains both queues against a fresh Parameter Storage snapshot and
// dispatches every entry whose dependencies are now fulfilled (§4.6
// "Driving the queue"). Deletes are dispatched before starts. Both drains
// evaluate the same snapshot, so a start that waits on a dispatched delete
// is released by a later Drive, once the delete's state events are recorded.
func (m *Manager) Drive() {
	snapshot := validator.Snapshot(m.storage.Snapshot())

	for _, dw := range m.queue.DrainReadyDeletes(snapshot) {
		m.dispatchDelete(dw)
	}
	for _, spec := range m.queue.DrainReadyStarts(snapshot) {
		m.dispatchStart(spec)
	}
}

// dispatchDelete tells the live object for dw's workload name to delete
// itself, then removes it from live once done. A delete for an instance
// name that no longer matches the live object (superseded by a later
// update) is stale and does nothing, since the live object already moved
// on (§4.6).
func (m *Manager) dispatchDelete(dw types.DeletedWorkload) {
	name := dw.WorkloadName()

	m.mu.Lock()
	obj, ok := m.live[name]
	m.mu.Unlock()
	if !ok {
		m.storage.Forget(name)
		return
	}
	if obj.InstanceName() != dw.InstanceName {
		m.logger.Debug().Str("instance", dw.InstanceName.String()).Msg("stale delete: workload already superseded")
		return
	}

	obj.Delete()
	go func() {
		select {
		case <-obj.Done():
		case <-m.ctx.Done():
			return
		}
		m.mu.Lock()
		if m.live[name] == obj {
			delete(m.live, name)
		}
		m.mu.Unlock()
		m.storage.Forget(name)
	}()
}

// dispatchStart realizes one ready start-queue entry: a brand-new create, an
// update of an already-live workload under a new instance name, a no-op for
// a duplicate of what's already live, or — if spec names an unregistered
// Runtime Facade — a Failed event synthesized without ever creating a
// Workload Object (§3, §7, scenario S2).
func (m *Manager) dispatchStart(spec types.WorkloadSpec) {
	name := spec.WorkloadName()

	m.mu.Lock()
	existing, ok := m.live[name]
	m.mu.Unlock()

	if ok {
		if existing.InstanceName() == spec.InstanceName {
			return // duplicate start for what's already live: no-op
		}
		existing.Update(spec)
		return
	}

	if _, supported := m.facades[spec.Runtime]; !supported {
		m.emitUnsupported(spec)
		return
	}

	obj := workload.New(m.objectConfig(spec))
	m.mu.Lock()
	m.live[name] = obj
	m.mu.Unlock()
}

func (m *Manager) emitUnsupported(spec types.WorkloadSpec) {
	event := types.WorkloadStateEvent{
		InstanceName: spec.InstanceName,
		State:        types.Failed(types.ReasonUnsupportedRuntime),
		ObservedAt:   time.Now(),
	}
	select {
	case m.stateEvents <- event:
	case <-m.ctx.Done():
	}
}

func (m *Manager) objectConfig(spec types.WorkloadSpec) workload.Config {
	return workload.Config{
		Spec:        spec,
		Resolve:     m.resolve,
		StateEvents: m.stateEvents,
		RunFolder:   m.runFolder,
		AgentName:   m.agentName,
		Ctx:         m.ctx,
	}
}

func (m *Manager) resolve(runtimeKey string) (runtime.RuntimeFacade, bool) {
	f, ok := m.facades[runtimeKey]
	return f, ok
}

// WorkloadCountsByState implements metrics.ManagerSnapshot.
func (m *Manager) WorkloadCountsByState() map[string]int {
	return m.storage.CountsByState()
}

// QueueDepths implements metrics.ManagerSnapshot.
func (m *Manager) QueueDepths() (start int, deleteCount int) {
	return m.queue.Depths()
}

// Live reports the workload names currently live, for diagnostics and
// tests.
func (m *Manager) Live() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.live))
	for name := range m.live {
		names = append(names, name)
	}
	return names
}
