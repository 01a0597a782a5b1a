package onhost

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/opsfleet/agent-control/internal/assembler"
	"github.com/opsfleet/agent-control/internal/events"
	"github.com/opsfleet/agent-control/internal/layout"
	"github.com/opsfleet/agent-control/internal/supervisor/restart"
	"github.com/opsfleet/agent-control/internal/types"
)

// TestMonitorLoopSurvivesRespawnFailure covers the restart loop (§4.7)
// reacting to a missing/rotated executable on restart: a failed respawn
// must fall into the backoff/retry path rather than dereference a nil
// *exec.Cmd.
func TestMonitorLoopSurvivesRespawnFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dir := t.TempDir()

	ps := &ProcessSupervisor{agentID: types.AgentID("a1"), logger: logger, states: map[string]*execState{}}

	out, err := OpenAppendOnly(dir, "main.stdout")
	require.NoError(t, err)
	errOut, err := OpenAppendOnly(dir, "main.stderr")
	require.NoError(t, err)

	exe := Executable{ID: "main", Path: filepath.Join(dir, "does-not-exist")}
	policy := restart.New(restart.Fixed, time.Millisecond, 1, 0)
	state := &execState{exe: exe, policy: policy, cancel: make(chan struct{}), done: make(chan struct{})}

	sink := make(chan events.SubAgentInternalEvent, 8)

	done := make(chan struct{})
	go func() {
		ps.monitorLoop(state, out, errOut, sink)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitorLoop did not return after exhausting its retry budget")
	}

	exits := 0
drain:
	for {
		select {
		case ev := <-sink:
			require.NotNil(t, ev.Exited)
			require.Equal(t, -1, ev.Exited.ExitCode)
			exits++
		default:
			break drain
		}
	}
	require.GreaterOrEqual(t, exits, 1, "a failed respawn must still report an exit instead of panicking")
}

// TestStopKillsRunningChild covers the stop contract: after Stop returns,
// no child process spawned by the supervisor is still running, even one
// that would otherwise sleep past the grace window.
func TestStopKillsRunningChild(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dir := t.TempDir()
	dirs := layout.Dirs{Local: dir + "/local", Remote: dir + "/remote", Logs: dir + "/logs"}

	b := &Builder{Dirs: dirs, Logger: logger}
	ea := &assembler.EffectiveAgent{
		AgentID: types.AgentID("a1"),
		Deployment: map[string]interface{}{
			"executables": []interface{}{
				map[string]interface{}{"id": "sleeper", "path": "sleep", "args": []interface{}{"60"}},
			},
		},
	}
	starter, err := b.Build(ea)
	require.NoError(t, err)
	ps, err := starter.Start(nil)
	require.NoError(t, err)
	require.True(t, ps.IsRunning("sleeper"))

	start := time.Now()
	require.NoError(t, ps.Stop(context.Background()))
	require.Less(t, time.Since(start), 3*time.Second, "stop must not wait out the child's full sleep")
	require.False(t, ps.IsRunning("sleeper"))
}
