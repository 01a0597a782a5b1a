package onhost

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/opsfleet/agent-control/internal/assembler"
	"github.com/opsfleet/agent-control/internal/events"
	"github.com/opsfleet/agent-control/internal/probe"
)

// attachProbes starts one goroutine per rendered health probe of ea,
// publishing results onto sink until the returned cancel channel is
// closed. Unknown probe kinds are logged and skipped so one bad template
// entry cannot take down the otherwise-healthy supervisor.
func (ps *ProcessSupervisor) attachProbes(ea *assembler.EffectiveAgent, sink chan<- events.SubAgentInternalEvent) {
	if sink == nil {
		return
	}
	cancel := make(chan struct{})
	ps.probeCancel = cancel

	for _, rp := range ea.Health {
		checker := ps.checkerFor(rp.Kind, rp.Spec)
		if checker == nil {
			ps.logger.WithField("agent_id", ps.agentID).WithField("kind", rp.Kind).Warn("skipping unsupported on-host health probe kind")
			continue
		}
		initialDelay, interval := probe.ScheduleParams(rp.Spec)
		go probe.Schedule(context.Background(), cancel, ps.agentID, checker, initialDelay, interval, sink)
	}
}

// detachProbes stops every probe goroutine started by attachProbes.
func (ps *ProcessSupervisor) detachProbes() {
	if ps.probeCancel != nil {
		close(ps.probeCancel)
		ps.probeCancel = nil
	}
}

func (ps *ProcessSupervisor) checkerFor(kind string, spec map[string]interface{}) probe.Checker {
	switch kind {
	case "exec":
		ids := ps.execProbeTargets(spec)
		return &probe.ExecChecker{ExecutableIDs: ids, IsRunning: ps.IsRunning}
	case "http":
		return &probe.HTTPChecker{
			Client:             http.DefaultClient,
			Host:               probe.StringField(spec, "host"),
			Port:               probe.IntField(spec, "port", 0),
			Path:               probe.StringField(spec, "path"),
			Headers:            probe.StringMapField(spec, "headers"),
			HealthyStatusCodes: probe.IntsField(spec, "healthy_status_codes"),
			Timeout:            probe.DurationField(spec, "timeout_seconds", 0),
		}
	case "file":
		path := probe.StringField(spec, "path")
		if !filepath.IsAbs(path) {
			path = filepath.Join(ps.runtimeDir, path)
		}
		return &probe.FileChecker{Path: path}
	default:
		return nil
	}
}

// execProbeTargets resolves which executables an exec probe watches: an
// explicit executable_id, or every monitored executable when the spec
// names none.
func (ps *ProcessSupervisor) execProbeTargets(spec map[string]interface{}) []string {
	if id := probe.StringField(spec, "executable_id"); id != "" {
		return []string{id}
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ids := make([]string, 0, len(ps.states))
	for id := range ps.states {
		ids = append(ids, id)
	}
	return ids
}

// IsRunning reports whether the named executable's monitor loop is still
// alive. The loop exits only when its process is gone for good (retry
// budget exhausted, non-restartable exit code, or cancellation), so a live
// loop is the supervisor's definition of "still running".
func (ps *ProcessSupervisor) IsRunning(executableID string) bool {
	ps.mu.Lock()
	state, ok := ps.states[executableID]
	ps.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-state.done:
		return false
	default:
		return true
	}
}
