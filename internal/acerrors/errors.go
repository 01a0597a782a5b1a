// Package acerrors holds the sentinel errors shared across the control
// plane so callers can classify a failure with errors.Is instead of
// string-matching messages.
package acerrors

import "github.com/pkg/errors"

var (
	// ErrNotFound is returned by lookups (registry, repositories, stores)
	// that found nothing for the given key.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is a fatal initialization error: two embedded
	// agent type definitions declared the same AgentTypeID.
	ErrAlreadyExists = errors.New("already exists")

	// ErrTerminalHash is returned when the pipeline is asked to apply a
	// remote config hash that has already reached a terminal state.
	ErrTerminalHash = errors.New("hash already terminal")

	// ErrValidation marks a failure produced by the remote-config
	// validator chain; it is always reported upstream, never retried.
	ErrValidation = errors.New("validation failed")

	// ErrCancelled marks a failure produced by a stop/cancellation
	// signal; it must never be reported upstream as an agent failure.
	ErrCancelled = errors.New("cancelled")
)

// PerAgent wraps an error that should abort reconfiguration of a single
// sub-agent without touching the rest of the fleet.
type PerAgent struct {
	AgentID string
	Cause   error
}

func (e *PerAgent) Error() string {
	return "agent " + e.AgentID + ": " + e.Cause.Error()
}

func (e *PerAgent) Unwrap() error { return e.Cause }

// NewPerAgent wraps cause as a per-agent failure.
func NewPerAgent(agentID string, cause error) error {
	if cause == nil {
		return nil
	}
	return &PerAgent{AgentID: agentID, Cause: cause}
}
