package onhost

import (
	"os/exec"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/opsfleet/agent-control/internal/assembler"
	"github.com/opsfleet/agent-control/internal/layout"
	"github.com/opsfleet/agent-control/internal/supervisor/restart"
)

// RestartConfig configures the restart policy shared by every executable
// of a given sub-agent; a real deployment would read this from the
// agent-type's template, kept simple here as a per-build parameter.
type RestartConfig struct {
	Strategy          restart.Strategy
	InitialDelay      int64 // nanoseconds, avoids importing time in callers that only serialize this
	MaxRetries        int
	LastRetryInterval int64 // nanoseconds
}

// Builder validates a rendered EffectiveAgent and prepares the per-agent
// filesystem layout, starting nothing.
type Builder struct {
	Dirs    layout.Dirs
	Logger  logrus.FieldLogger
	Writer  SecureWriter
	Restart RestartConfig
}

// Build implements supervisor.Builder.
func (b *Builder) Build(ea *assembler.EffectiveAgent) (*Starter, error) {
	executables, err := ParseDeployment(ea.Deployment)
	if err != nil {
		return nil, errors.Wrapf(err, "building on-host supervisor for %s", ea.AgentID)
	}
	if len(executables) == 0 {
		return nil, errors.Errorf("building on-host supervisor for %s: no executables declared", ea.AgentID)
	}

	for _, exe := range executables {
		if _, err := exec.LookPath(exe.Path); err != nil {
			return nil, errors.Wrapf(err, "building on-host supervisor for %s: executable %q", ea.AgentID, exe.ID)
		}
	}

	runtimeDir := b.Dirs.RuntimeDir(string(ea.AgentID))
	if err := layout.EnsureDir(runtimeDir); err != nil {
		return nil, errors.Wrapf(err, "building on-host supervisor for %s", ea.AgentID)
	}
	logDir := b.Dirs.LogDir(string(ea.AgentID))
	if err := layout.EnsureDir(logDir); err != nil {
		return nil, errors.Wrapf(err, "building on-host supervisor for %s", ea.AgentID)
	}

	writer := b.Writer
	if writer == nil {
		writer = DefaultSecureWriter
	}

	return &Starter{
		agentID:     ea.AgentID,
		effective:   ea,
		executables: executables,
		runtimeDir:  runtimeDir,
		logDir:      logDir,
		writer:      writer,
		logger:      b.Logger,
		restart:     b.Restart,
	}, nil
}
