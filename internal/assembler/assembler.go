// Package assembler implements the Effective-Agent Assembler: a pure function from (registry, AgentID, AgentTypeID, Values,
// control-plane variable tables) to a fully rendered EffectiveAgent.
package assembler

import (
	"github.com/pkg/errors"

	"github.com/opsfleet/agent-control/internal/acerrors"
	"github.com/opsfleet/agent-control/internal/agenttype"
	"github.com/opsfleet/agent-control/internal/template"
	"github.com/opsfleet/agent-control/internal/types"
)

// EffectiveAgent is the assembler's output: AgentID, AgentTypeID, and a
// fully rendered deployment section for the active environment, plus
// rendered health/version probe templates.
type EffectiveAgent struct {
	AgentID     types.AgentID
	AgentTypeID types.AgentTypeID
	Environment types.Environment
	Deployment  interface{} // rendered agenttype.DeploymentTemplate
	Files       []types.FileValue
	Health      []RenderedProbe
	Version     []RenderedProbe
	// Hash is set by the caller when this EffectiveAgent was produced by
	// a remote configuration push, so the supervisor can track which
	// hash is currently applied.
	Hash *types.Hash
}

// RenderedProbe is a probe template after variable substitution.
type RenderedProbe struct {
	Kind string
	Spec map[string]interface{}
}

// ControlPlaneVars carries the two control-plane-level variable tables
// injected into every assembly: nr-ac constants and nr-sub per-sub-agent
// identifiers.
type ControlPlaneVars struct {
	Ac  map[string]string
	Sub map[string]string
}

// Assemble runs the four-step algorithm: fetch
// definition, bind values to the schema, render the deployment block for
// env, attach rendered health/version probes. Any failure here is a
// per-sub-agent failure: the caller
// must abort (re)configuration of only this sub-agent and preserve the
// existing supervisor, which is why the error is wrapped with
// acerrors.NewPerAgent at the one call site that needs it
// (controlplane.Loop), not here — Assemble itself stays pure and returns
// plain errors.
func Assemble(
	registry *agenttype.Registry,
	agentID types.AgentID,
	typeID types.AgentTypeID,
	values types.Values,
	env types.Environment,
	cpVars ControlPlaneVars,
) (*EffectiveAgent, error) {
	def, err := registry.Get(typeID)
	if err != nil {
		return nil, errors.Wrapf(err, "assembling %s", agentID)
	}

	bound, err := template.Bind(def, values)
	if err != nil {
		return nil, errors.Wrapf(err, "assembling %s: binding values", agentID)
	}

	deployTmpl, ok := def.Templates[env]
	if !ok {
		return nil, errors.Wrapf(acerrors.ErrNotFound, "assembling %s: no %s template for agent type %s", agentID, env, typeID.Key())
	}

	ctx := template.Context{Vars: bound.Variables, Sub: cpVars.Sub, Ac: cpVars.Ac}
	rendered, err := ctx.Render(map[string]interface{}(deployTmpl))
	if err != nil {
		return nil, errors.Wrapf(err, "assembling %s: rendering deployment", agentID)
	}

	health, err := renderProbes(ctx, def.Health)
	if err != nil {
		return nil, errors.Wrapf(err, "assembling %s: rendering health probes", agentID)
	}
	version, err := renderProbes(ctx, def.Version)
	if err != nil {
		return nil, errors.Wrapf(err, "assembling %s: rendering version probes", agentID)
	}

	return &EffectiveAgent{
		AgentID:     agentID,
		AgentTypeID: typeID,
		Environment: env,
		Deployment:  rendered,
		Files:       bound.Files,
		Health:      health,
		Version:     version,
	}, nil
}

func renderProbes(ctx template.Context, tmpls []agenttype.ProbeTemplate) ([]RenderedProbe, error) {
	out := make([]RenderedProbe, 0, len(tmpls))
	for _, t := range tmpls {
		rendered, err := ctx.Render(t.Spec)
		if err != nil {
			return nil, err
		}
		spec, ok := rendered.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("probe %s: rendered spec is not a map", t.Kind)
		}
		out = append(out, RenderedProbe{Kind: t.Kind, Spec: spec})
	}
	return out, nil
}
