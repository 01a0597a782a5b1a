package onhost

import (
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/opsfleet/agent-control/internal/assembler"
	"github.com/opsfleet/agent-control/internal/events"
	"github.com/opsfleet/agent-control/internal/supervisor/restart"
	"github.com/opsfleet/agent-control/internal/types"
)

// Starter performs the side effects that bring an on-host sub-agent to
// life.
type Starter struct {
	agentID     types.AgentID
	effective   *assembler.EffectiveAgent
	executables []Executable
	runtimeDir  string
	logDir      string
	writer      SecureWriter
	logger      logrus.FieldLogger
	restart     RestartConfig
}

// Start implements supervisor.Starter: persists file-typed variables,
// then spawns one monitor goroutine per declared executable. If any
// executable fails to spawn, the already-started ones are stopped
// (best-effort rollback on a partial start failure).
func (s *Starter) Start(sink chan<- events.SubAgentInternalEvent) (*ProcessSupervisor, error) {
	if err := PersistFiles(s.writer, s.runtimeDir, s.effective.Files); err != nil {
		return nil, errors.Wrapf(err, "starting %s", s.agentID)
	}

	ps := &ProcessSupervisor{
		agentID:    s.agentID,
		effective:  s.effective,
		runtimeDir: s.runtimeDir,
		logDir:     s.logDir,
		logger:     s.logger,
		states:     map[string]*execState{},
		restartCfg: s.restart,
		sink:       sink,
	}
	if s.effective.Hash != nil {
		h := *s.effective.Hash
		ps.hash = &h
	}

	var started []string
	for _, exe := range s.executables {
		state, err := ps.spawn(exe, s.restart, sink)
		if err != nil {
			for _, id := range started {
				ps.states[id].stop()
			}
			return nil, errors.Wrapf(err, "starting %s: executable %q", s.agentID, exe.ID)
		}
		ps.states[exe.ID] = state
		started = append(started, exe.ID)
	}

	ps.phaseRunning()
	ps.attachProbes(s.effective, sink)
	return ps, nil
}

// execState is the supervisor's bookkeeping for one monitored executable.
type execState struct {
	exe        Executable
	policy     *restart.Policy
	cancel     chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	initialCmd *exec.Cmd

	mu      sync.Mutex
	current *exec.Cmd // the live child, set around each Wait
}

func (e *execState) setCurrent(cmd *exec.Cmd) {
	e.mu.Lock()
	e.current = cmd
	e.mu.Unlock()
}

// stop cancels the monitor loop and kills the live child, so the loop's
// pending Wait returns and the loop exits within the stop grace window.
func (e *execState) stop() {
	e.stopOnce.Do(func() { close(e.cancel) })
	e.mu.Lock()
	cmd := e.current
	e.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func defaultRestartPolicy(cfg RestartConfig) *restart.Policy {
	initial := time.Duration(cfg.InitialDelay)
	if initial <= 0 {
		initial = time.Second
	}
	window := time.Duration(cfg.LastRetryInterval)
	return restart.New(cfg.Strategy, initial, cfg.MaxRetries, window)
}
