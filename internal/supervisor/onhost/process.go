package onhost

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/opsfleet/agent-control/internal/assembler"
	"github.com/opsfleet/agent-control/internal/events"
	"github.com/opsfleet/agent-control/internal/layout"
	"github.com/opsfleet/agent-control/internal/supervisor"
	"github.com/opsfleet/agent-control/internal/types"
)

// ProcessSupervisor is the running on-host Supervisor. It owns one
// monitor goroutine per executable.
type ProcessSupervisor struct {
	mu         sync.Mutex
	agentID    types.AgentID
	effective  *assembler.EffectiveAgent
	runtimeDir string
	logDir     string
	logger     logrus.FieldLogger
	states     map[string]*execState
	hash       *types.Hash
	phase      supervisor.Phase
	startTime  time.Time

	restartCfg  RestartConfig
	sink        chan<- events.SubAgentInternalEvent
	probeCancel chan struct{}
}

func (ps *ProcessSupervisor) phaseRunning() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.phase = supervisor.Running
	ps.startTime = time.Now()
}

// AgentID implements supervisor.Supervisor.
func (ps *ProcessSupervisor) AgentID() types.AgentID { return ps.agentID }

// State implements supervisor.Supervisor.
func (ps *ProcessSupervisor) State() supervisor.Phase {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.phase
}

// CurrentHash implements supervisor.Supervisor.
func (ps *ProcessSupervisor) CurrentHash() (types.Hash, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.hash == nil {
		return types.Hash{}, false
	}
	return *ps.hash, true
}

// spawn starts exe's monitor loop and returns its bookkeeping.
func (ps *ProcessSupervisor) spawn(exe Executable, cfg RestartConfig, sink chan<- events.SubAgentInternalEvent) (*execState, error) {
	state := &execState{
		exe:    exe,
		policy: defaultRestartPolicy(cfg),
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}

	out, err := OpenAppendOnly(ps.logDir, exe.ID+".stdout")
	if err != nil {
		return nil, err
	}
	errOut, err := OpenAppendOnly(ps.logDir, exe.ID+".stderr")
	if err != nil {
		out.Close()
		return nil, err
	}

	// Spawn once here so Start can fail fast and roll back before
	// committing to the background monitor loop, which then owns
	// waiting on this same process and all subsequent respawns.
	cmd, err := startProcess(exe, out, errOut)
	if err != nil {
		out.Close()
		errOut.Close()
		return nil, err
	}
	state.initialCmd = cmd
	state.setCurrent(cmd)

	go ps.monitorLoop(state, out, errOut, sink)
	return state, nil
}

func startProcess(exe Executable, out, errOut RotatingWriter) (*exec.Cmd, error) {
	cmd := exec.Command(exe.Path, exe.Args...)
	cmd.Env = envSlice(exe.Env)
	cmd.Stdout = out
	cmd.Stderr = errOut
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "spawning executable %q", exe.ID)
	}
	return cmd, nil
}

// monitorLoop implements the restart loop:
//
//	loop:
//	  spawn -> stream stdout/stderr -> wait for exit
//	  if exit_code in restart_exit_codes (or list empty):
//	    if policy.should_retry(): policy.backoff(); continue
//	  break
func (ps *ProcessSupervisor) monitorLoop(state *execState, out, errOut RotatingWriter, sink chan<- events.SubAgentInternalEvent) {
	defer close(state.done)
	defer out.Close()
	defer errOut.Close()

	logger := ps.logger.WithField("agent_id", ps.agentID).WithField("executable", state.exe.ID)

	for {
		cmd := state.initialCmd
		state.initialCmd = nil

		if cmd == nil {
			var err error
			cmd, err = startProcess(state.exe, out, errOut)
			if err != nil {
				logger.WithError(err).Warn("failed to respawn executable")
			}
			state.setCurrent(cmd)
		}

		exitCode := 0
		if cmd != nil && cmd.Process != nil {
			waitErr := cmd.Wait()
			exitCode = exitCodeOf(waitErr)
		} else {
			exitCode = -1
		}
		state.setCurrent(nil)

		if sink != nil {
			sink <- events.SubAgentInternalEvent{
				AgentID: ps.agentID,
				Exited:  &events.ProcessExited{ExecutableID: state.exe.ID, ExitCode: exitCode, At: time.Now()},
			}
		}

		select {
		case <-state.cancel:
			return
		default:
		}

		if !state.exe.ShouldRestart(exitCode) {
			return
		}
		if !state.policy.ShouldRetry() {
			return
		}
		if interrupted := state.policy.Backoff(state.cancel); interrupted {
			return
		}
	}
}

// Apply implements supervisor.Supervisor: the running supervisor
// atomically replaces its desired state by stopping-and-restarting
// affected executables.
func (ps *ProcessSupervisor) Apply(ctx context.Context, ea *assembler.EffectiveAgent) error {
	executables, err := ParseDeployment(ea.Deployment)
	if err != nil {
		return errors.Wrapf(err, "applying %s", ps.agentID)
	}

	if err := PersistFiles(DefaultSecureWriter, ps.runtimeDir, ea.Files); err != nil {
		return errors.Wrapf(err, "applying %s: persisting files", ps.agentID)
	}

	newIDs := map[string]Executable{}
	for _, exe := range executables {
		newIDs[exe.ID] = exe
	}

	if err := ps.replaceStates(ea, newIDs); err != nil {
		return err
	}

	// The rendered probe set may have changed with the deployment;
	// restart it against the new effective agent.
	ps.detachProbes()
	ps.attachProbes(ea, ps.sink)
	return nil
}

// replaceStates swaps the monitored executable set under the lock, which
// attachProbes must not be called under.
func (ps *ProcessSupervisor) replaceStates(ea *assembler.EffectiveAgent, newIDs map[string]Executable) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	// Stop executables no longer present.
	for id, st := range ps.states {
		if _, keep := newIDs[id]; !keep {
			st.stop()
			delete(ps.states, id)
		}
	}

	// (Re)spawn new or changed executables. A minimal viable apply:
	// anything whose argv/env changed is restarted by stopping the old
	// state and spawning fresh; this keeps Apply atomic from the
	// caller's viewpoint even though internally it may restart
	// processes.
	for id, exe := range newIDs {
		if existing, ok := ps.states[id]; ok && !changed(existing.exe, exe) {
			continue
		}
		if existing, ok := ps.states[id]; ok {
			existing.stop()
			<-existing.done
		}
		out, err := OpenAppendOnly(ps.logDir, id+".stdout")
		if err != nil {
			return errors.Wrapf(err, "applying %s", ps.agentID)
		}
		errOut, err := OpenAppendOnly(ps.logDir, id+".stderr")
		if err != nil {
			out.Close()
			return errors.Wrapf(err, "applying %s", ps.agentID)
		}
		cmd, err := startProcess(exe, out, errOut)
		if err != nil {
			out.Close()
			errOut.Close()
			return errors.Wrapf(err, "applying %s", ps.agentID)
		}
		state := &execState{exe: exe, policy: defaultRestartPolicy(ps.restartCfg), cancel: make(chan struct{}), done: make(chan struct{}), initialCmd: cmd}
		state.setCurrent(cmd)
		go ps.monitorLoop(state, out, errOut, ps.sink)
		ps.states[id] = state
	}

	ps.effective = ea
	if ea.Hash != nil {
		h := *ea.Hash
		ps.hash = &h
	}
	return nil
}

func changed(a, b Executable) bool {
	if a.Path != b.Path || len(a.Args) != len(b.Args) || len(a.Env) != len(b.Env) {
		return true
	}
	for i := range a.Args {
		if a.Args[i] != b.Args[i] {
			return true
		}
	}
	for k, v := range a.Env {
		if b.Env[k] != v {
			return true
		}
	}
	return false
}

// Stop implements supervisor.Supervisor: publish cancellation to every
// monitor goroutine, wait up to 10 retries x 100ms for each, then
// consider the supervisor stopped regardless.
// The per-agent runtime directory is removed; log files are preserved.
func (ps *ProcessSupervisor) Stop(ctx context.Context) error {
	ps.mu.Lock()
	states := make([]*execState, 0, len(ps.states))
	for _, st := range ps.states {
		states = append(states, st)
	}
	ps.mu.Unlock()

	ps.detachProbes()
	for _, st := range states {
		st.stop()
	}

	grace := time.Duration(supervisor.StopGraceRetries) * time.Duration(supervisor.StopGraceInterval) * time.Millisecond

	for _, st := range states {
		timeout := time.NewTimer(grace)
		select {
		case <-st.done:
		case <-timeout.C:
			ps.logger.WithField("agent_id", ps.agentID).Warn("stop grace period exceeded, continuing shutdown")
		case <-ctx.Done():
			ps.logger.WithField("agent_id", ps.agentID).Warn("stop cancelled by context, continuing shutdown")
		}
		timeout.Stop()
	}

	if err := layout.RemoveAll(ps.runtimeDir); err != nil {
		ps.logger.WithField("agent_id", ps.agentID).WithError(err).Warn("failed to remove runtime directory")
	}

	ps.mu.Lock()
	ps.phase = supervisor.Stopped
	ps.mu.Unlock()
	return nil
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
