package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentIDValidate(t *testing.T) {
	require.NoError(t, AgentID("hello-world-1").Validate())
	require.Error(t, AgentID("").Validate())
	require.Error(t, AgentID("Hello World").Validate())
	require.Error(t, AgentID("hello_world").Validate())
}

func TestAgentTypeIDStringRoundTrip(t *testing.T) {
	id := AgentTypeID{Namespace: "ns", Name: "file-logger", Version: "1.2.3"}
	s := id.String()
	assert.Equal(t, "ns/file-logger:1.2.3", s)

	parsed, err := ParseAgentTypeID(s)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseAgentTypeIDRejectsMalformed(t *testing.T) {
	cases := []string{
		"missing-slash:1.0.0",
		"ns/missing-colon",
		"/name:1.0.0",
		"ns/:1.0.0",
		"ns/name:",
	}
	for _, c := range cases {
		_, err := ParseAgentTypeID(c)
		assert.Errorf(t, err, "expected %q to fail parsing", c)
	}
}

func TestAgentTypeIDSemVer(t *testing.T) {
	id := AgentTypeID{Namespace: "ns", Name: "n", Version: "1.2.3"}
	v, err := id.SemVer()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.Major())
}

func TestHashStateTerminal(t *testing.T) {
	assert.False(t, HashUnset.Terminal())
	assert.False(t, HashApplying.Terminal())
	assert.True(t, HashApplied.Terminal())
	assert.True(t, HashFailed.Terminal())
}

func TestValuesClone(t *testing.T) {
	orig := Values{"a": map[string]interface{}{"b": []interface{}{1, 2}}}
	clone := orig.Clone()

	inner := clone["a"].(map[string]interface{})
	inner["b"] = []interface{}{99}

	origInner := orig["a"].(map[string]interface{})
	origB := origInner["b"].([]interface{})
	assert.Equal(t, []interface{}{1, 2}, origB, "mutating the clone must not affect the source")
}
