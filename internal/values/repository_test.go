package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsfleet/agent-control/internal/acerrors"
	"github.com/opsfleet/agent-control/internal/layout"
	"github.com/opsfleet/agent-control/internal/types"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	dir := t.TempDir()
	dirs := layout.Dirs{Local: dir + "/local", Remote: dir + "/remote", Logs: dir + "/logs"}
	return New(dirs)
}

func TestLoadLocalAbsentReturnsNil(t *testing.T) {
	repo := testRepo(t)
	v, err := repo.LoadLocal(types.AgentID("a1"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestStoreAndLoadRemote(t *testing.T) {
	repo := testRepo(t)
	id := types.AgentID("a1")
	caps := Capabilities{AcceptsRemoteConfig: true}

	err := repo.StoreRemote(id, types.Values{"message": "world"}, types.Hash{Value: "H1", State: types.HashApplying})
	require.NoError(t, err)

	v, err := repo.LoadRemote(id, caps)
	require.NoError(t, err)
	assert.Equal(t, "world", v["message"])

	h, err := repo.GetHash(id)
	require.NoError(t, err)
	assert.Equal(t, "H1", h.Value)
	assert.Equal(t, types.HashApplying, h.State)
}

// TestRemoteCapabilityGate covers the capability gate: absent
// AcceptsRemoteConfig, LoadRemote always returns nil regardless of
// on-disk state.
func TestRemoteCapabilityGate(t *testing.T) {
	repo := testRepo(t)
	id := types.AgentID("a1")

	require.NoError(t, repo.StoreRemote(id, types.Values{"message": "world"}, types.Hash{Value: "H1", State: types.HashApplying}))

	v, err := repo.LoadRemote(id, Capabilities{AcceptsRemoteConfig: false})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestResolvePolicyRemoteFirst(t *testing.T) {
	local := types.Values{"message": "local"}
	remote := types.Values{"message": "remote"}

	resolved, ok := Resolve(local, remote)
	assert.True(t, ok)
	assert.Equal(t, remote, resolved)

	resolved, ok = Resolve(local, nil)
	assert.True(t, ok)
	assert.Equal(t, local, resolved)

	resolved, ok = Resolve(nil, nil)
	assert.False(t, ok)
	assert.Nil(t, resolved)
}

// TestEmptyRemoteFallsBackToLocal covers universal invariant 6: deleting
// the remote entry falls resolution back to local.
func TestEmptyRemoteFallsBackToLocal(t *testing.T) {
	repo := testRepo(t)
	id := types.AgentID("a1")
	caps := Capabilities{AcceptsRemoteConfig: true}

	require.NoError(t, repo.StoreRemote(id, types.Values{"message": "world"}, types.Hash{Value: "H1", State: types.HashApplying}))
	require.NoError(t, repo.DeleteRemote(id))

	v, err := repo.LoadRemote(id, caps)
	require.NoError(t, err)
	assert.Nil(t, v)
}

// TestUpdateHashStateRefusesPastTerminal covers universal invariant 1:
// once a hash reaches a terminal state it may never transition again.
func TestUpdateHashStateRefusesPastTerminal(t *testing.T) {
	repo := testRepo(t)
	id := types.AgentID("a1")

	require.NoError(t, repo.UpdateHashState(id, types.Hash{Value: "H1", State: types.HashApplying}))
	require.NoError(t, repo.UpdateHashState(id, types.Hash{Value: "H1", State: types.HashApplied}))

	err := repo.UpdateHashState(id, types.Hash{Value: "H1", State: types.HashFailed, Message: "late reissue"})
	require.Error(t, err)
	assert.ErrorIs(t, err, acerrors.ErrTerminalHash)
}

func TestUpdateHashStateAllowsNewHashValue(t *testing.T) {
	repo := testRepo(t)
	id := types.AgentID("a1")

	require.NoError(t, repo.UpdateHashState(id, types.Hash{Value: "H1", State: types.HashApplied}))
	require.NoError(t, repo.UpdateHashState(id, types.Hash{Value: "H2", State: types.HashApplying}))

	h, err := repo.GetHash(id)
	require.NoError(t, err)
	assert.Equal(t, "H2", h.Value)
}

func TestGetHashUnsetWhenNeverStored(t *testing.T) {
	repo := testRepo(t)
	h, err := repo.GetHash(types.AgentID("never-seen"))
	require.NoError(t, err)
	assert.Equal(t, types.HashUnset, h.State)
}
