package instanceid

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsfleet/agent-control/internal/layout"
	"github.com/opsfleet/agent-control/internal/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(layout.Dirs{Local: dir + "/local", Remote: dir + "/remote", Logs: dir + "/logs"})
}

// TestGetIsStableWhenIdentifiersUnchanged covers universal invariant 3:
// calling Get twice with the same identifiers returns the same value.
func TestGetIsStableWhenIdentifiersUnchanged(t *testing.T) {
	store := testStore(t)
	agentID := types.AgentID("hello-world")
	ids := Identifiers{"host_id": "X"}

	first, err := store.Get(agentID, ids)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := store.Get(agentID, ids)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// TestIdentifierChangeMintsNewID covers scenario S5: a changed
// Identifiers tuple between runs forces a fresh InstanceID.
func TestIdentifierChangeMintsNewID(t *testing.T) {
	store := testStore(t)
	agentID := types.AgentID("hello-world")

	a, err := store.Get(agentID, Identifiers{"host_id": "X"})
	require.NoError(t, err)

	b, err := store.Get(agentID, Identifiers{"host_id": "Y"})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	// and the stored tuple is now (b, {host_id: Y}), reused on the next call
	c, err := store.Get(agentID, Identifiers{"host_id": "Y"})
	require.NoError(t, err)
	assert.Equal(t, b, c)
}

func TestConcurrentGetReturnsSameID(t *testing.T) {
	store := testStore(t)
	agentID := types.AgentID("hello-world")
	ids := Identifiers{"host_id": "X"}

	const n = 20
	results := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			id, err := store.Get(agentID, ids)
			require.NoError(t, err)
			results[i] = id
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, results[0], results[i])
	}
}

func TestIdentifiersEqual(t *testing.T) {
	a := Identifiers{"host_id": "X", "cloud_id": "c1"}
	b := Identifiers{"host_id": "X", "cloud_id": "c1"}
	c := Identifiers{"host_id": "X"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(Identifiers{"host_id": "Y", "cloud_id": "c1"}))
}

func TestControlPlaneAgentUsesDedicatedPath(t *testing.T) {
	store := testStore(t)
	id, err := store.Get(types.ControlPlaneAgentID, Identifiers{"host_id": "X"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
