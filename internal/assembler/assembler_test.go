package assembler

import (
	"reflect"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsfleet/agent-control/internal/agenttype"
	"github.com/opsfleet/agent-control/internal/types"
)

func testRegistry(t *testing.T) *agenttype.Registry {
	t.Helper()
	logger, _ := test.NewNullLogger()
	reg, err := agenttype.LoadEmbedded(logger)
	require.NoError(t, err)
	return reg
}

func fileLoggerID() types.AgentTypeID {
	return types.AgentTypeID{Namespace: "ns", Name: "file-logger", Version: "0.0.0"}
}

func TestAssembleHappyPath(t *testing.T) {
	reg := testRegistry(t)
	values := types.Values{"message": "hello", "enable_file_logging": "true"}
	cpVars := ControlPlaneVars{Ac: map[string]string{"host_id": "h1"}, Sub: map[string]string{"agent_id": "a1"}}

	ea, err := Assemble(reg, types.AgentID("a1"), fileLoggerID(), values, types.EnvironmentOnHost, cpVars)
	require.NoError(t, err)

	m := ea.Deployment.(map[string]interface{})
	executables := m["executables"].([]interface{})
	require.Len(t, executables, 1)
	exe := executables[0].(map[string]interface{})
	args := exe["args"].([]interface{})
	assert.Contains(t, args, "hello")
	require.Len(t, ea.Health, 1)
	assert.Equal(t, "exec", ea.Health[0].Kind)
}

// TestAssembleIsDeterministic covers invariant 4: equal inputs produce
// structurally equal EffectiveAgents.
func TestAssembleIsDeterministic(t *testing.T) {
	reg := testRegistry(t)
	values := types.Values{"message": "hello", "enable_file_logging": "true"}
	cpVars := ControlPlaneVars{Ac: map[string]string{"host_id": "h1"}, Sub: map[string]string{"agent_id": "a1"}}

	ea1, err := Assemble(reg, types.AgentID("a1"), fileLoggerID(), values, types.EnvironmentOnHost, cpVars)
	require.NoError(t, err)
	ea2, err := Assemble(reg, types.AgentID("a1"), fileLoggerID(), values, types.EnvironmentOnHost, cpVars)
	require.NoError(t, err)

	assert.True(t, reflect.DeepEqual(ea1.Deployment, ea2.Deployment))
	assert.True(t, reflect.DeepEqual(ea1.Health, ea2.Health))
}

func TestAssembleUnknownAgentTypeFails(t *testing.T) {
	reg := testRegistry(t)
	_, err := Assemble(reg, types.AgentID("a1"), types.AgentTypeID{Namespace: "ns", Name: "nope", Version: "0.0.0"}, types.Values{}, types.EnvironmentOnHost, ControlPlaneVars{})
	require.Error(t, err)
}

func TestAssembleMissingRequiredVariableFails(t *testing.T) {
	reg := testRegistry(t)
	_, err := Assemble(reg, types.AgentID("a1"), fileLoggerID(), types.Values{}, types.EnvironmentOnHost, ControlPlaneVars{})
	require.Error(t, err)
}

func TestAssembleUnknownEnvironmentFails(t *testing.T) {
	reg := testRegistry(t)
	values := types.Values{"message": "hello"}
	_, err := Assemble(reg, types.AgentID("a1"), fileLoggerID(), values, types.Environment("nonexistent"), ControlPlaneVars{})
	require.Error(t, err)
}
