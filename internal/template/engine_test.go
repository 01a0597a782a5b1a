package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsfleet/agent-control/internal/types"
)

func TestRenderSubstitutesAllThreeSigils(t *testing.T) {
	ctx := Context{
		Vars: types.Variables{"message": "hello"},
		Sub:  map[string]string{"agent_id": "worker-1"},
		Ac:   map[string]string{"namespace": "fleet-prod"},
	}

	tree := map[string]interface{}{
		"args": []interface{}{"${nr-var:message}", "${nr-sub:agent_id}", "${nr-ac:namespace}"},
	}

	out, err := ctx.Render(tree)
	require.NoError(t, err)

	m := out.(map[string]interface{})
	args := m["args"].([]interface{})
	assert.Equal(t, "hello", args[0])
	assert.Equal(t, "worker-1", args[1])
	assert.Equal(t, "fleet-prod", args[2])
}

// TestRenderIsNonRecursive covers invariant 5: a value containing another
// reference as its literal text renders to that literal text, never
// resolving the nested reference.
func TestRenderIsNonRecursive(t *testing.T) {
	ctx := Context{Vars: types.Variables{
		"x": "${nr-var:y}",
		"y": "resolved",
	}}

	out, err := ctx.renderString("${nr-var:x}", "$")
	require.NoError(t, err)
	assert.Equal(t, "${nr-var:y}", out)
}

func TestRenderDoesNotMutateSource(t *testing.T) {
	ctx := Context{Vars: types.Variables{"message": "hello"}}
	tree := map[string]interface{}{"greeting": "${nr-var:message}"}

	_, err := ctx.Render(tree)
	require.NoError(t, err)

	assert.Equal(t, "${nr-var:message}", tree["greeting"], "source tree must be untouched")
}

func TestRenderLeavesNonStringLeavesUnchanged(t *testing.T) {
	ctx := Context{}
	tree := map[string]interface{}{"port": float64(8080), "enabled": true, "nothing": nil}

	out, err := ctx.Render(tree)
	require.NoError(t, err)

	m := out.(map[string]interface{})
	assert.Equal(t, float64(8080), m["port"])
	assert.Equal(t, true, m["enabled"])
	assert.Nil(t, m["nothing"])
}

func TestRenderUndefinedVariableFails(t *testing.T) {
	ctx := Context{Vars: types.Variables{}}
	_, err := ctx.Render(map[string]interface{}{"x": "${nr-var:missing}"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined user variable")
}

func TestRenderUnknownSigilFails(t *testing.T) {
	ctx := Context{}
	_, err := ctx.Render(map[string]interface{}{"x": "${nr-bogus:missing}"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown variable sigil")
}

func TestRenderMalformedReferenceFails(t *testing.T) {
	ctx := Context{}
	_, err := ctx.Render(map[string]interface{}{"x": "${novalue}"})
	require.Error(t, err)
}

func TestRenderGoTemplateSprigFunctions(t *testing.T) {
	ctx := Context{Vars: types.Variables{"name": "World"}}
	out, err := RenderGoTemplate("greeting", `Hello, {{ .Vars.name | upper }}!`, ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hello, WORLD!", out)
}

func TestStringifyVarKinds(t *testing.T) {
	cases := []struct {
		name string
		val  interface{}
		want string
	}{
		{"string", "abc", "abc"},
		{"bool", true, "true"},
		{"float", 3.5, "3.5"},
		{"int", 7, "7"},
		{"file", types.FileValue{Path: "/run/a/b"}, "/run/a/b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := stringifyVar("v", tc.val)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStringifyVarUnsupportedKind(t *testing.T) {
	_, err := stringifyVar("v", []string{"nope"})
	require.Error(t, err)
}
