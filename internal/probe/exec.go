package probe

import (
	"context"
	"time"

	"github.com/opsfleet/agent-control/internal/events"
)

// RunningChecker reports whether a named executable is still running,
// via a supplied predicate that reads the owning supervisor's bookkeeping
// (kept decoupled from internal/supervisor/onhost to avoid an import
// cycle: the supervisor package depends on probe, not the reverse).
type RunningChecker func(executableID string) bool

// ExecChecker is the on-host "Exec" probe: healthy iff at least one
// monitored child is still running.
type ExecChecker struct {
	ExecutableIDs []string
	IsRunning     RunningChecker
}

// Check implements Checker.
func (c *ExecChecker) Check(ctx context.Context) (Result, error) {
	now := uint64(time.Now().UnixNano())
	for _, id := range c.ExecutableIDs {
		if c.IsRunning(id) {
			return Result{Health: &events.HealthUpdate{
				Healthy:            true,
				Status:             "running",
				StatusTimeUnixNano: now,
			}}, nil
		}
	}
	return Result{Health: &events.HealthUpdate{
		Healthy:            false,
		Status:             "no monitored executable is running",
		LastError:          "no monitored executable is running",
		StatusTimeUnixNano: now,
	}}, nil
}
