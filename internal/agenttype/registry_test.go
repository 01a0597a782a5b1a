package agenttype

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsfleet/agent-control/internal/acerrors"
	"github.com/opsfleet/agent-control/internal/types"
)

func testLogger() (logrus.FieldLogger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return logger, hook
}

func TestLoadEmbeddedContainsFileLogger(t *testing.T) {
	logger, _ := testLogger()
	reg, err := LoadEmbedded(logger)
	require.NoError(t, err)

	id := types.AgentTypeID{Namespace: "ns", Name: "file-logger", Version: "0.0.0"}
	def, err := reg.Get(id)
	require.NoError(t, err)
	assert.True(t, def.Variables["message"].Required)
}

func TestRegistryGetNotFound(t *testing.T) {
	logger, _ := testLogger()
	reg, err := LoadEmbedded(logger)
	require.NoError(t, err)

	_, err = reg.Get(types.AgentTypeID{Namespace: "ns", Name: "nope", Version: "0.0.0"})
	assert.ErrorIs(t, err, acerrors.ErrNotFound)
}

func TestLoadDynamicOverridesEmbedded(t *testing.T) {
	logger, _ := testLogger()
	reg, err := LoadEmbedded(logger)
	require.NoError(t, err)
	before := reg.Len()

	dir := t.TempDir()
	override := `
namespace: ns
name: file-logger
version: 0.0.0
variables:
  message:
    kind: string
    required: true
  marker:
    kind: string
    default: "overridden"
templates:
  on_host:
    executables: []
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "override.yaml"), []byte(override), 0o644))

	require.NoError(t, reg.LoadDynamic(logger, dir))
	assert.Equal(t, before, reg.Len(), "override replaces, not adds")

	def, err := reg.Get(types.AgentTypeID{Namespace: "ns", Name: "file-logger", Version: "0.0.0"})
	require.NoError(t, err)
	assert.Equal(t, "overridden", def.Variables["marker"].Default)
}

func TestLoadDynamicAddsNewType(t *testing.T) {
	logger, _ := testLogger()
	reg, err := LoadEmbedded(logger)
	require.NoError(t, err)
	before := reg.Len()

	dir := t.TempDir()
	newType := `
namespace: ns
name: brand-new
version: 1.0.0
variables: {}
templates:
  on_host:
    executables: []
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.yaml"), []byte(newType), 0o644))
	require.NoError(t, reg.LoadDynamic(logger, dir))
	assert.Equal(t, before+1, reg.Len())
}

func TestLoadDynamicMissingDirIsNotFatal(t *testing.T) {
	logger, _ := testLogger()
	reg, err := LoadEmbedded(logger)
	require.NoError(t, err)

	require.NoError(t, reg.LoadDynamic(logger, filepath.Join(t.TempDir(), "does-not-exist")))
}

func TestLoadDynamicSkipsInvalidFileAndLogsWarning(t *testing.T) {
	logger, hook := testLogger()
	reg, err := LoadEmbedded(logger)
	require.NoError(t, err)
	before := reg.Len()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("namespace: ns\nname: [unterminated\n"), 0o644))

	require.NoError(t, reg.LoadDynamic(logger, dir))
	assert.Equal(t, before, reg.Len(), "invalid dynamic file must be skipped, not fatal")

	found := false
	for _, entry := range hook.Entries {
		if entry.Level == logrus.WarnLevel {
			found = true
		}
	}
	assert.True(t, found, "expected a warning to be logged for the skipped file")
}

func TestParseDefinitionRejectsMissingIdentity(t *testing.T) {
	_, err := parseDefinition([]byte(`
variables: {}
templates: {}
`))
	require.Error(t, err)
}
