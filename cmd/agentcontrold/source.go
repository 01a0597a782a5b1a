package main

import (
	"github.com/opsfleet/agent-control/internal/assembler"
	"github.com/opsfleet/agent-control/internal/config"
	"github.com/opsfleet/agent-control/internal/controlplane"
	"github.com/opsfleet/agent-control/internal/types"
)

// controlSource adapts a parsed config.Config into controlplane.Source.
type controlSource struct {
	cfg config.Config
	env types.Environment
}

func newControlSource(cfg config.Config, _ string) (*controlSource, error) {
	env := types.EnvironmentOnHost
	if cfg.K8s.ClusterName != "" {
		env = types.EnvironmentK8s
	}
	return &controlSource{cfg: cfg, env: env}, nil
}

// Targets implements controlplane.Source.
func (s *controlSource) Targets() ([]controlplane.Target, error) {
	targets := make([]controlplane.Target, 0, len(s.cfg.Agents))
	for id, a := range s.cfg.Agents {
		agentID := types.AgentID(id)
		if err := agentID.Validate(); err != nil {
			return nil, err
		}
		typeID, err := types.ParseAgentTypeID(a.AgentType)
		if err != nil {
			return nil, err
		}
		targets = append(targets, controlplane.Target{AgentID: agentID, AgentTypeID: typeID})
	}
	return targets, nil
}

// Environment implements controlplane.Source.
func (s *controlSource) Environment() types.Environment { return s.env }

// ControlPlaneVars implements controlplane.Source: nr-ac carries the
// control-plane-wide constants (host_id), nr-sub carries this sub-agent's
// own identifier back to itself for self-referential templates.
func (s *controlSource) ControlPlaneVars(agentID types.AgentID) assembler.ControlPlaneVars {
	return assembler.ControlPlaneVars{
		Ac:  map[string]string{"host_id": s.cfg.HostID},
		Sub: map[string]string{"agent_id": string(agentID)},
	}
}
