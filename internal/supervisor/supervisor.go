// Package supervisor implements the Sub-Agent Supervisor:
// the Builder -> Starter -> Supervisor handoff that takes a rendered
// EffectiveAgent from Not-Started through Running to Stopped, in either
// the on-host or in-cluster variant.
package supervisor

import (
	"context"

	"github.com/opsfleet/agent-control/internal/assembler"
	"github.com/opsfleet/agent-control/internal/events"
	"github.com/opsfleet/agent-control/internal/types"
)

// Phase is the per-sub-agent lifecycle state.
type Phase int

const (
	NotStarted Phase = iota
	Running
	Stopped
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Builder validates a rendered EffectiveAgent and prepares any filesystem
// layout, but starts nothing.
type Builder interface {
	Build(ea *assembler.EffectiveAgent) (Starter, error)
}

// Starter performs the side effects that bring an agent to life and
// returns a running Supervisor.
type Starter interface {
	Start(sink chan<- events.SubAgentInternalEvent) (Supervisor, error)
}

// Supervisor is the running per-sub-agent manager. Apply and Stop
// satisfy the ownership model: a Supervisor exclusively owns its child
// process(es) or cluster resources.
type Supervisor interface {
	// Apply atomically replaces the supervisor's desired state. On
	// failure the supervisor remains in its pre-apply state.
	Apply(ctx context.Context, ea *assembler.EffectiveAgent) error

	// Stop gracefully terminates the sub-agent: publish cancellation,
	// wait up to the configured grace window, then release owned
	// resources. Stop failures are logged but the supervisor is always
	// considered stopped afterward from the caller's perspective.
	Stop(ctx context.Context) error

	AgentID() types.AgentID
	State() Phase

	// CurrentHash reports the Hash (if any) that produced the currently
	// running EffectiveAgent, used by the Remote-Config Pipeline's
	// Complete step.
	CurrentHash() (types.Hash, bool)
}

// StopGraceRetries x StopGraceInterval is the default stop timeout:
// 10 retries x 100ms.
const (
	StopGraceRetries  = 10
	StopGraceInterval = 100 // milliseconds, kept as an int constant so
	// callers can build a time.Duration without importing time here.
)
