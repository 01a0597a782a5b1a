// Package remoteconfig implements the Remote-Config Pipeline: validate an
// incoming remote configuration push, decide whether it clears or
// replaces the remote entry, persist it, and dispatch the internal event
// that drives the Control-Plane Loop's reconciliation.
package remoteconfig

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"sigs.k8s.io/yaml"

	"github.com/opsfleet/agent-control/internal/acerrors"
	"github.com/opsfleet/agent-control/internal/events"
	"github.com/opsfleet/agent-control/internal/types"
	"github.com/opsfleet/agent-control/internal/values"
)

// Pipeline wires the Config Repository, the validator chain and the
// ConfigUpdated dispatch channel together.
type Pipeline struct {
	Repo       *values.Repository
	Validators []Validator
	Updates    chan<- events.ConfigUpdated
	Status     chan<- events.RemoteConfigStatus
	Logger     logrus.FieldLogger
}

// Process runs steps 1-5 for msg. Step 6 (the Control
// Loop reacting to ConfigUpdated) and step 7 (the supervisor's eventual
// success/failure report back into Complete) happen out of band; Process
// only gets the pipeline to "Applying" or to a terminal Failed if
// validation/persist itself fails before the supervisor is even
// consulted.
func (p *Pipeline) Process(ctx context.Context, msg events.RemoteMessage) error {
	logger := p.Logger.WithField("agent_id", msg.AgentID).WithField("hash", msg.Hash)

	// Step 1: pre-check terminal state.
	current, err := p.Repo.GetHash(msg.AgentID)
	if err != nil {
		return errors.Wrap(err, "pre-check: loading current hash")
	}
	if current.Value == msg.Hash && current.State == types.HashFailed {
		logger.WithField("message", current.Message).Warn("server reissued a known-bad hash")
		p.reportStatus(msg.AgentID, msg.Hash, types.HashFailed, current.Message)
		return errors.Wrapf(acerrors.ErrTerminalHash, "hash %s already failed: %s", msg.Hash, current.Message)
	}

	// Step 3 (checked before full parse, since an empty payload skips
	// validation against a schema that may not even apply): empty
	// payload means "clear remote configuration".
	if isEmptyPayload(msg.ConfigMap) {
		if err := p.Repo.DeleteRemote(msg.AgentID); err != nil {
			return errors.Wrap(err, "deleting remote configuration")
		}
		logger.Info("cleared remote configuration")
		p.dispatch(msg.AgentID)
		// The clear is complete the moment the entry is gone; ack the
		// hash so the server stops re-sending it.
		p.reportStatus(msg.AgentID, msg.Hash, types.HashApplied, "")
		return nil
	}

	payload, err := parsePayload(msg.ConfigMap)
	if err != nil {
		p.fail(msg.AgentID, msg.Hash, err)
		return err
	}

	// Step 2: validation chain.
	if err := Chain(ctx, msg.AgentID, payload, p.Validators); err != nil {
		wrapped := errors.Wrap(acerrors.ErrValidation, err.Error())
		p.fail(msg.AgentID, msg.Hash, wrapped)
		return wrapped
	}

	// Step 4: persist atomically with state Applying.
	hash := types.Hash{Value: msg.Hash, State: types.HashApplying}
	if err := p.Repo.StoreRemote(msg.AgentID, payload, hash); err != nil {
		wrapped := errors.Wrap(err, "persisting remote configuration")
		p.fail(msg.AgentID, msg.Hash, wrapped)
		return wrapped
	}
	p.reportStatus(msg.AgentID, msg.Hash, types.HashApplying, "")

	// Step 5: dispatch ConfigUpdated.
	p.dispatch(msg.AgentID)
	return nil
}

// Complete is invoked by the Control Loop once it knows whether applying
// the new effective agent succeeded.
func (p *Pipeline) Complete(agentID types.AgentID, hashValue string, applyErr error) error {
	if applyErr == nil {
		if err := p.Repo.UpdateHashState(agentID, types.Hash{Value: hashValue, State: types.HashApplied}); err != nil {
			return err
		}
		p.reportStatus(agentID, hashValue, types.HashApplied, "")
		return nil
	}

	msg := applyErr.Error()
	if err := p.Repo.UpdateHashState(agentID, types.Hash{Value: hashValue, State: types.HashFailed, Message: msg}); err != nil {
		return err
	}
	p.reportStatus(agentID, hashValue, types.HashFailed, msg)
	return nil
}

func (p *Pipeline) fail(agentID types.AgentID, hashValue string, err error) {
	msg := err.Error()
	_ = p.Repo.UpdateHashState(agentID, types.Hash{Value: hashValue, State: types.HashFailed, Message: msg})
	p.reportStatus(agentID, hashValue, types.HashFailed, msg)
}

func (p *Pipeline) reportStatus(agentID types.AgentID, hashValue string, state types.HashState, msg string) {
	if p.Status == nil {
		return
	}
	p.Status <- events.RemoteConfigStatus{AgentID: agentID, Hash: hashValue, State: state, ErrorMessage: msg}
}

func (p *Pipeline) dispatch(agentID types.AgentID) {
	if p.Updates == nil {
		return
	}
	p.Updates <- events.ConfigUpdated{AgentID: agentID}
}

// isEmptyPayload reports whether m is "a single empty entry".
func isEmptyPayload(m map[string]string) bool {
	if len(m) != 1 {
		return false
	}
	for _, body := range m {
		return body == ""
	}
	return false
}

// parsePayload decodes the (possibly multi-entry) configuration map into
// Values. A map with more than one entry when the caller expects a single
// body is a validation error; since this pipeline doesn't
// know the agent type's expected body count up front, multi-entry maps
// are merged by name under top-level keys, and the single-entry case is
// parsed directly as the Values document.
func parsePayload(m map[string]string) (types.Values, error) {
	for name, body := range m {
		if _, err := rawNodeScan([]byte(body)); err != nil {
			return nil, errors.Wrapf(err, "remote configuration payload entry %q", name)
		}
	}

	if len(m) == 1 {
		for _, body := range m {
			var v types.Values
			if err := yaml.Unmarshal([]byte(body), &v); err != nil {
				return nil, errors.Wrap(err, "parsing remote configuration payload")
			}
			return v, nil
		}
	}

	merged := types.Values{}
	for name, body := range m {
		var v types.Values
		if err := yaml.Unmarshal([]byte(body), &v); err != nil {
			return nil, errors.Wrapf(err, "parsing remote configuration payload entry %q", name)
		}
		merged[name] = v
	}
	return merged, nil
}
