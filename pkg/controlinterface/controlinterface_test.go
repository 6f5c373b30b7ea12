package controlinterface

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/nodeagent/pkg/types"
)

const pipesLocation = "/some/path"

type mockAuthorizer struct {
	equal bool
}

func (m mockAuthorizer) Equal(other types.Authorizer) bool { return m.equal }

func testInstanceName() types.WorkloadInstanceName {
	return types.WorkloadInstanceName{WorkloadName: "workload1", ConfigHash: "h1", AgentName: "agent_A"}
}

func TestNewInfo(t *testing.T) {
	toServer := make(chan Message, 1)
	info := NewInfo(pipesLocation, toServer, testInstanceName(), mockAuthorizer{equal: true})

	assert.Equal(t, pipesLocation, info.ControlInterfacePath())
	assert.Equal(t, testInstanceName(), info.InstanceName())
}

func TestDir(t *testing.T) {
	got := Dir("/run/nodeagent", "agent_A", testInstanceName())
	want := filepath.Join("/run/nodeagent", "agent_A", "workload1.h1.agent_A")
	assert.Equal(t, want, got)
}

func TestHasSameConfiguration_True(t *testing.T) {
	info := NewInfo(pipesLocation, nil, testInstanceName(), mockAuthorizer{equal: true})
	other := New(pipesLocation, mockAuthorizer{equal: true})

	assert.True(t, info.HasSameConfiguration(other))
}

func TestHasSameConfiguration_DifferentLocation(t *testing.T) {
	info := NewInfo(pipesLocation, nil, testInstanceName(), mockAuthorizer{equal: true})
	other := New("/other/path", mockAuthorizer{equal: true})

	assert.False(t, info.HasSameConfiguration(other))
}

func TestHasSameConfiguration_DifferentAuthorizer(t *testing.T) {
	info := NewInfo(pipesLocation, nil, testInstanceName(), mockAuthorizer{equal: false})
	other := New(pipesLocation, mockAuthorizer{equal: false})

	assert.False(t, info.HasSameConfiguration(other))
}

func TestHasSameConfiguration_NilOther(t *testing.T) {
	info := NewInfo(pipesLocation, nil, testInstanceName(), mockAuthorizer{equal: true})

	assert.False(t, info.HasSameConfiguration(nil))
}

func TestCreateAndRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pipes")

	require.NoError(t, Create(dir))
	for _, name := range []string{inputPipeName, outputPipeName} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, "expected %s to exist", name)
		assert.NotZero(t, info.Mode()&os.ModeNamedPipe, "%s is not a named pipe: mode=%v", name, info.Mode())
	}

	require.NoError(t, Create(dir), "Create is idempotent")

	require.NoError(t, Remove(dir))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "expected directory to be removed")
}
