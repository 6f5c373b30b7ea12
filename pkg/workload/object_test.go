package workload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/nodeagent/pkg/controlinterface"
	"github.com/cuemby/nodeagent/pkg/runtime"
	"github.com/cuemby/nodeagent/pkg/types"
)

type fakeAuthorizer struct{ equal bool }

func (a fakeAuthorizer) Equal(other types.Authorizer) bool { return a.equal }

func pipeInode(t *testing.T, path string) uint64 {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	st, ok := info.Sys().(*syscall.Stat_t)
	require.True(t, ok)
	return st.Ino
}

type fakeFacade struct {
	name        string
	createCalls chan types.WorkloadSpec
	deleteCalls chan runtime.WorkloadHandle
	createErr   error
	attachErr   error
}

func newFakeFacade(name string) *fakeFacade {
	return &fakeFacade{
		name:        name,
		createCalls: make(chan types.WorkloadSpec, 8),
		deleteCalls: make(chan runtime.WorkloadHandle, 8),
	}
}

func (f *fakeFacade) CreateWorkload(_ context.Context, spec types.WorkloadSpec, _ chan<- types.WorkloadStateEvent) (runtime.WorkloadHandle, error) {
	f.createCalls <- spec
	if f.createErr != nil {
		return runtime.WorkloadHandle{}, f.createErr
	}
	return runtime.WorkloadHandle{InstanceName: spec.InstanceName, RuntimeID: spec.InstanceName.String()}, nil
}

func (f *fakeFacade) DeleteWorkload(_ context.Context, handle runtime.WorkloadHandle, events chan<- types.WorkloadStateEvent) error {
	f.deleteCalls <- handle
	events <- types.WorkloadStateEvent{InstanceName: handle.InstanceName, State: types.Removed(), ObservedAt: time.Now()}
	return nil
}

func (f *fakeFacade) GetReusableWorkloads(_ context.Context, _ types.AgentName) ([]runtime.ReusableWorkload, error) {
	return nil, nil
}

func (f *fakeFacade) AttachStateChecker(_ context.Context, _ runtime.WorkloadHandle, _ chan<- types.WorkloadStateEvent) error {
	return f.attachErr
}

func (f *fakeFacade) Name() string { return f.name }

func testSpec(name, configHash string, policy types.RestartCondition) types.WorkloadSpec {
	return types.WorkloadSpec{
		InstanceName: types.WorkloadInstanceName{
			WorkloadName: name,
			ConfigHash:   configHash,
			AgentName:    types.AgentName("agent_A"),
		},
		Runtime:       "fake",
		RestartPolicy: policy,
	}
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", d)
}

func newTestConfig(spec types.WorkloadSpec, facade *fakeFacade) (Config, chan types.WorkloadStateEvent) {
	events := make(chan types.WorkloadStateEvent, 16)
	resolve := func(key string) (runtime.RuntimeFacade, bool) {
		if key != facade.name {
			return nil, false
		}
		return facade, true
	}
	return Config{
		Spec:        spec,
		Resolve:     resolve,
		StateEvents: events,
		RunFolder:   "",
		AgentName:   types.AgentName("agent_A"),
	}, events
}

func TestObject_Create(t *testing.T) {
	facade := newFakeFacade("fake")
	spec := testSpec("web", "h1", types.RestartNever)
	cfg, _ := newTestConfig(spec, facade)

	o := New(cfg)

	select {
	case got := <-facade.createCalls:
		assert.Equal(t, spec.InstanceName, got.InstanceName)
	case <-time.After(time.Second):
		t.Fatal("CreateWorkload was not called")
	}

	waitFor(t, time.Second, func() bool { return o.State().Kind == types.StatePending })
}

func TestObject_UnsupportedRuntime(t *testing.T) {
	facade := newFakeFacade("fake")
	spec := testSpec("web", "h1", types.RestartNever)
	spec.Runtime = "does-not-exist"
	cfg, events := newTestConfig(spec, facade)

	o := New(cfg)

	select {
	case ev := <-events:
		assert.Equal(t, types.ReasonUnsupportedRuntime, ev.State.Reason)
	case <-time.After(time.Second):
		t.Fatal("expected a Failed event for the unsupported runtime")
	}

	waitFor(t, time.Second, func() bool { return o.State().IsFailed() })

	select {
	case <-facade.createCalls:
		t.Fatal("CreateWorkload should never have been called")
	default:
	}
}

func TestObject_CreateFailureReportsFailed(t *testing.T) {
	facade := newFakeFacade("fake")
	facade.createErr = errors.New("image pull failed")
	spec := testSpec("web", "h1", types.RestartNever)
	cfg, events := newTestConfig(spec, facade)

	o := New(cfg)
	<-facade.createCalls

	select {
	case ev := <-events:
		assert.Equal(t, "image pull failed", ev.State.Reason)
	case <-time.After(time.Second):
		t.Fatal("expected a Failed event")
	}
	waitFor(t, time.Second, func() bool { return o.State().IsFailed() })
}

func TestObject_RestartAlways(t *testing.T) {
	facade := newFakeFacade("fake")
	spec := testSpec("web", "h1", types.RestartAlways)
	cfg, _ := newTestConfig(spec, facade)

	o := New(cfg)
	<-facade.createCalls

	o.Observe(types.Running(""))
	o.Observe(types.Succeeded())

	select {
	case <-facade.createCalls:
	case <-time.After(time.Second):
		t.Fatal("RestartAlways should have recreated the workload after Succeeded")
	}
}

func TestObject_RestartOnFailure_IgnoresSucceeded(t *testing.T) {
	facade := newFakeFacade("fake")
	spec := testSpec("web", "h1", types.RestartOnFailure)
	cfg, _ := newTestConfig(spec, facade)

	o := New(cfg)
	<-facade.createCalls

	o.Observe(types.Running(""))
	o.Observe(types.Succeeded())

	select {
	case <-facade.createCalls:
		t.Fatal("RestartOnFailure must not recreate after a Succeeded state")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestObject_RestartOnFailure_RecreatesOnFailed(t *testing.T) {
	facade := newFakeFacade("fake")
	spec := testSpec("web", "h1", types.RestartOnFailure)
	cfg, _ := newTestConfig(spec, facade)

	o := New(cfg)
	<-facade.createCalls

	o.Observe(types.Running(""))
	o.Observe(types.Failed("boom"))

	select {
	case <-facade.createCalls:
	case <-time.After(time.Second):
		t.Fatal("RestartOnFailure should have recreated the workload after Failed")
	}
}

func TestObject_RestartNever(t *testing.T) {
	facade := newFakeFacade("fake")
	spec := testSpec("web", "h1", types.RestartNever)
	cfg, _ := newTestConfig(spec, facade)

	o := New(cfg)
	<-facade.createCalls

	o.Observe(types.Running(""))
	o.Observe(types.Failed("boom"))

	select {
	case <-facade.createCalls:
		t.Fatal("RestartNever must never recreate")
	case <-time.After(100 * time.Millisecond):
	}
	waitFor(t, time.Second, func() bool { return o.State().IsFailed() })
}

func TestObject_Update(t *testing.T) {
	facade := newFakeFacade("fake")
	spec := testSpec("web", "h1", types.RestartNever)
	cfg, _ := newTestConfig(spec, facade)

	o := New(cfg)
	oldSpec := <-facade.createCalls

	newSpec := testSpec("web", "h2", types.RestartNever)
	o.Update(newSpec)

	select {
	case deleted := <-facade.deleteCalls:
		assert.Equal(t, oldSpec.InstanceName, deleted.InstanceName)
	case <-time.After(time.Second):
		t.Fatal("update should have deleted the old instance")
	}

	select {
	case created := <-facade.createCalls:
		assert.Equal(t, newSpec.InstanceName, created.InstanceName)
	case <-time.After(time.Second):
		t.Fatal("update should have created the new instance")
	}

	waitFor(t, time.Second, func() bool { return o.InstanceName() == newSpec.InstanceName })
}

func TestObject_Delete(t *testing.T) {
	facade := newFakeFacade("fake")
	spec := testSpec("web", "h1", types.RestartNever)
	cfg, _ := newTestConfig(spec, facade)

	o := New(cfg)
	<-facade.createCalls

	o.Delete()

	select {
	case <-facade.deleteCalls:
	case <-time.After(time.Second):
		t.Fatal("delete should have called DeleteWorkload")
	}

	select {
	case <-o.Done():
	case <-time.After(time.Second):
		t.Fatal("Done should close after Delete completes")
	}

	assert.Equal(t, types.StateRemoved, o.State().Kind)
}

func TestAdopt(t *testing.T) {
	facade := newFakeFacade("fake")
	spec := testSpec("web", "h1", types.RestartNever)
	cfg, _ := newTestConfig(spec, facade)
	handle := runtime.WorkloadHandle{InstanceName: spec.InstanceName, RuntimeID: "existing-id"}

	o, err := Adopt(cfg, handle)
	require.NoError(t, err)

	assert.Equal(t, types.StatePending, o.State().Kind)

	select {
	case <-facade.createCalls:
		t.Fatal("Adopt must not call CreateWorkload")
	default:
	}
}

func TestObject_Update_ReusesControlInterfaceWhenUnchanged(t *testing.T) {
	facade := newFakeFacade("fake")
	spec := testSpec("web", "h1", types.RestartNever)
	spec.Authorizer = fakeAuthorizer{equal: true}
	cfg, _ := newTestConfig(spec, facade)
	cfg.RunFolder = t.TempDir()

	o := New(cfg)
	<-facade.createCalls

	inputPath := filepath.Join(controlinterface.Dir(cfg.RunFolder, cfg.AgentName, spec.InstanceName), "input")
	before := pipeInode(t, inputPath)

	newSpec := spec
	newSpec.Authorizer = fakeAuthorizer{equal: true}
	o.Update(newSpec)

	<-facade.deleteCalls
	<-facade.createCalls
	waitFor(t, time.Second, func() bool { return o.State().Kind == types.StatePending })

	after := pipeInode(t, inputPath)
	assert.Equal(t, before, after, "an update with an unchanged control-interface configuration must reuse the existing pipe in place")
}

func TestObject_Update_RecreatesControlInterfaceWhenAuthorizerChanges(t *testing.T) {
	facade := newFakeFacade("fake")
	spec := testSpec("web", "h1", types.RestartNever)
	spec.Authorizer = fakeAuthorizer{equal: true}
	cfg, _ := newTestConfig(spec, facade)
	cfg.RunFolder = t.TempDir()

	o := New(cfg)
	<-facade.createCalls

	inputPath := filepath.Join(controlinterface.Dir(cfg.RunFolder, cfg.AgentName, spec.InstanceName), "input")
	before := pipeInode(t, inputPath)

	newSpec := spec
	newSpec.Authorizer = fakeAuthorizer{equal: false}
	o.Update(newSpec)

	<-facade.deleteCalls
	<-facade.createCalls
	waitFor(t, time.Second, func() bool { return o.State().Kind == types.StatePending })

	after := pipeInode(t, inputPath)
	assert.NotEqual(t, before, after, "an update with a changed authorizer must tear down and recreate the control interface")
}

func TestAdopt_UnsupportedRuntime(t *testing.T) {
	facade := newFakeFacade("fake")
	spec := testSpec("web", "h1", types.RestartNever)
	spec.Runtime = "missing"
	cfg, _ := newTestConfig(spec, facade)
	handle := runtime.WorkloadHandle{InstanceName: spec.InstanceName, RuntimeID: "existing-id"}

	_, err := Adopt(cfg, handle)
	require.Error(t, err)
}
