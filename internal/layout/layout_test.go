package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomicCreatesWithMandatedPerms(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "values.yaml")

	require.NoError(t, WriteFileAtomic(path, []byte("message: hello\n")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "message: hello\n", string(data))
}

func TestWriteFileAtomicLeavesNoPartialFileOnRepeatedWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "values.yaml")

	require.NoError(t, WriteFileAtomic(path, []byte("first")))
	require.NoError(t, WriteFileAtomic(path, []byte("second")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp files should remain")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestReadFileMissingReturnsNilNil(t *testing.T) {
	data, err := ReadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestRemoveAllToleratesMissingDir(t *testing.T) {
	require.NoError(t, RemoveAll(filepath.Join(t.TempDir(), "nope")))
}

func TestDirsPaths(t *testing.T) {
	d := Dirs{Local: "/local", Remote: "/remote", Logs: "/logs"}

	assert.Equal(t, "/local/a1/values/values.yaml", d.LocalValuesPath("a1"))
	assert.Equal(t, "/local/agent-types", d.LocalAgentTypesDir())
	assert.Equal(t, "/remote/fleet/agents.d/a1", d.AgentDir("a1"))
	assert.Equal(t, "/remote/fleet/agents.d/a1/values/values.yaml", d.RemoteValuesPath("a1"))
	assert.Equal(t, "/remote/fleet/agents.d/a1/remote_config_status.yaml", d.RemoteConfigStatusPath("a1"))
	assert.Equal(t, "/logs/a1", d.LogDir("a1"))
	assert.Equal(t, "/remote/fleet/agents.d/a1/run", d.RuntimeDir("a1"))
}
