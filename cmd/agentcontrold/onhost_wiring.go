package main

import (
	"github.com/sirupsen/logrus"

	"github.com/opsfleet/agent-control/internal/assembler"
	"github.com/opsfleet/agent-control/internal/controlplane"
	"github.com/opsfleet/agent-control/internal/events"
	"github.com/opsfleet/agent-control/internal/layout"
	"github.com/opsfleet/agent-control/internal/supervisor"
	"github.com/opsfleet/agent-control/internal/supervisor/onhost"
	"github.com/opsfleet/agent-control/internal/types"
)

// selectBuilders picks the on-host or cluster supervisor builder
// depending on the resolved environment.
func selectBuilders(source *controlSource, dirs layout.Dirs, flags *cliFlags, logger logrus.FieldLogger) (controlplane.Builders, error) {
	if source.Environment() == types.EnvironmentK8s {
		client, err := buildDynamicClient(flags.kubeconfig)
		if err != nil {
			return controlplane.Builders{}, err
		}
		return controlplane.Builders{Build: k8sBuildFunc(client, source.cfg.K8s.Namespace, logger)}, nil
	}
	return controlplane.Builders{Build: onHostBuildFunc(dirs, logger)}, nil
}

// onhostStarterAdapter lifts *onhost.Starter into supervisor.Starter: Go
// does not let a concrete return type (*onhost.ProcessSupervisor)
// automatically satisfy an interface method whose signature returns the
// interface (supervisor.Supervisor), so this one-line adapter bridges
// the two without onhost needing to import supervisor's return types
// into its own public API.
type onhostStarterAdapter struct {
	inner *onhost.Starter
}

func (a onhostStarterAdapter) Start(sink chan<- events.SubAgentInternalEvent) (supervisor.Supervisor, error) {
	return a.inner.Start(sink)
}

// onHostBuildFunc returns the controlplane.Builders.Build function for
// the on-host variant.
func onHostBuildFunc(dirs layout.Dirs, logger logrus.FieldLogger) func(ea *assembler.EffectiveAgent) (supervisor.Starter, error) {
	builder := &onhost.Builder{Dirs: dirs, Logger: logger}
	return func(ea *assembler.EffectiveAgent) (supervisor.Starter, error) {
		starter, err := builder.Build(ea)
		if err != nil {
			return nil, err
		}
		return onhostStarterAdapter{inner: starter}, nil
	}
}
