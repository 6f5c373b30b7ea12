package state

import (
	"testing"

	"github.com/cuemby/nodeagent/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_RecordAndStateOf(t *testing.T) {
	s := New()

	_, ok := s.StateOf("web")
	assert.False(t, ok)

	s.Record("web", types.Running(""))

	st, ok := s.StateOf("web")
	require.True(t, ok)
	assert.Equal(t, types.StateRunning, st.Kind)
}

func TestStorage_RecordOverwrites(t *testing.T) {
	s := New()

	s.Record("web", types.Pending(""))
	s.Record("web", types.Running(""))

	st, ok := s.StateOf("web")
	require.True(t, ok)
	assert.Equal(t, types.StateRunning, st.Kind)
}

func TestStorage_Forget(t *testing.T) {
	s := New()
	s.Record("web", types.Removed())

	s.Forget("web")

	_, ok := s.StateOf("web")
	assert.False(t, ok)
}

func TestStorage_Snapshot(t *testing.T) {
	s := New()
	s.Record("web", types.Running(""))
	s.Record("db", types.Failed("exit=1"))

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, types.StateRunning, snap["web"].Kind)
	assert.Equal(t, types.StateFailed, snap["db"].Kind)

	// Mutating the snapshot must not affect the storage.
	snap["web"] = types.Removed()
	st, _ := s.StateOf("web")
	assert.Equal(t, types.StateRunning, st.Kind)
}

func TestStorage_CountsByState(t *testing.T) {
	s := New()
	s.Record("a", types.Running(""))
	s.Record("b", types.Running(""))
	s.Record("c", types.Failed("boom"))

	counts := s.CountsByState()
	assert.Equal(t, 2, counts[string(types.StateRunning)])
	assert.Equal(t, 1, counts[string(types.StateFailed)])
}
