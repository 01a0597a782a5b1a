// Package probe implements the health and version probes: each one a
// scheduled loop that runs on its own goroutine after an initial delay,
// then executes a check on a fixed interval, publishing the result onto
// a sub-agent's internal event channel.
package probe

import (
	"context"
	"time"

	"github.com/opsfleet/agent-control/internal/events"
	"github.com/opsfleet/agent-control/internal/types"
)

// Checker performs one probe iteration and returns its result, or an
// error if the check itself could not be performed (distinct from an
// unhealthy-but-successfully-checked result).
type Checker interface {
	Check(ctx context.Context) (Result, error)
}

// Result is a single probe observation. Exactly one of Health or
// Attribute is set, matching the two event shapes a Checker can produce.
type Result struct {
	Health    *events.HealthUpdate
	Attribute *events.AttributeUpdate
}

// Schedule runs checker on its own goroutine: wait initialDelay, then
// check every interval until cancel is closed. Every result (and every
// check error, folded into an unhealthy HealthUpdate) is sent to sink.
// Results are delivered in the order they were observed, matching the
// per-agent ordering guarantee the control loop depends on.
func Schedule(ctx context.Context, cancel <-chan struct{}, agentID types.AgentID, checker Checker, initialDelay, interval time.Duration, sink chan<- events.SubAgentInternalEvent) {
	timer := time.NewTimer(initialDelay)
	defer timer.Stop()

	select {
	case <-cancel:
		return
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	runOnce(ctx, agentID, checker, sink)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-cancel:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(ctx, agentID, checker, sink)
		}
	}
}

func runOnce(ctx context.Context, agentID types.AgentID, checker Checker, sink chan<- events.SubAgentInternalEvent) {
	res, err := checker.Check(ctx)
	now := uint64(time.Now().UnixNano())
	if err != nil {
		sink <- events.SubAgentInternalEvent{
			AgentID: agentID,
			Health: &events.HealthUpdate{
				Healthy:            false,
				LastError:          err.Error(),
				StatusTimeUnixNano: now,
			},
		}
		return
	}
	sink <- events.SubAgentInternalEvent{AgentID: agentID, Health: res.Health, Attribute: res.Attribute}
}
