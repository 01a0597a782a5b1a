package probe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecCheckerHealthyWhenAnyRunning(t *testing.T) {
	c := &ExecChecker{
		ExecutableIDs: []string{"sidecar", "main"},
		IsRunning: func(id string) bool {
			return id == "main"
		},
	}
	result, err := c.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Health)
	assert.True(t, result.Health.Healthy)
	assert.Equal(t, "running", result.Health.Status)
}

func TestExecCheckerUnhealthyWhenNoneRunning(t *testing.T) {
	c := &ExecChecker{
		ExecutableIDs: []string{"main"},
		IsRunning:     func(id string) bool { return false },
	}
	result, err := c.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Health)
	assert.False(t, result.Health.Healthy)
	assert.NotEmpty(t, result.Health.LastError)
}
