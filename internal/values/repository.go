// Package values implements the Config Repository: three
// coordinated on-disk stores (local, remote, remote-status) keyed by
// AgentID, behind a single read-write lock per repository instance.
package values

import (
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/opsfleet/agent-control/internal/acerrors"
	"github.com/opsfleet/agent-control/internal/layout"
	"github.com/opsfleet/agent-control/internal/types"
)

// Capabilities is the reported capability set gating remote lookups.
type Capabilities struct {
	AcceptsRemoteConfig bool
}

// Repository is the Config Repository: a single read-write lock guards
// all three stores, so readers may overlap but writers are exclusive.
type Repository struct {
	mu   sync.RWMutex
	dirs layout.Dirs
}

// New constructs a Repository rooted at dirs.
func New(dirs layout.Dirs) *Repository {
	return &Repository{dirs: dirs}
}

// remoteStatusDoc is the on-disk shape of remote_config_status.yaml.
type remoteStatusDoc struct {
	Hash    string `json:"hash"`
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// LoadLocal returns the on-disk local defaults for id, or nil if absent.
// Local is read-only at runtime.
func (r *Repository) LoadLocal(id types.AgentID) (types.Values, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := layout.ReadFile(r.dirs.LocalValuesPath(string(id)))
	if err != nil {
		return nil, errors.Wrapf(err, "loading local values for %s", id)
	}
	if data == nil {
		return nil, nil
	}
	var v types.Values
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrapf(err, "parsing local values for %s", id)
	}
	return v, nil
}

// LoadRemote returns the last-applied remote Values for id, or nil if
// absent, or nil (with no error) if caps does not include
// AcceptsRemoteConfig — the gate applies irrespective of on-disk state.
func (r *Repository) LoadRemote(id types.AgentID, caps Capabilities) (types.Values, error) {
	if !caps.AcceptsRemoteConfig {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := layout.ReadFile(r.dirs.RemoteValuesPath(string(id)))
	if err != nil {
		return nil, errors.Wrapf(err, "loading remote values for %s", id)
	}
	if data == nil {
		return nil, nil
	}
	var v types.Values
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrapf(err, "parsing remote values for %s", id)
	}
	return v, nil
}

// StoreRemote atomically persists vals and hash for id.
func (r *Repository) StoreRemote(id types.AgentID, vals types.Values, hash types.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(vals)
	if err != nil {
		return errors.Wrapf(err, "marshaling remote values for %s", id)
	}
	if err := layout.WriteFileAtomic(r.dirs.RemoteValuesPath(string(id)), data); err != nil {
		return err
	}
	return r.writeHashLocked(id, hash)
}

// DeleteRemote removes the remote entry for id (both values and status).
// Everything else under the agent's directory (instance identifiers, the
// runtime dir) is left alone.
func (r *Repository) DeleteRemote(id types.AgentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	valuesDir := filepath.Dir(r.dirs.RemoteValuesPath(string(id)))
	if err := layout.RemoveAll(valuesDir); err != nil {
		return errors.Wrapf(err, "deleting remote values for %s", id)
	}
	if err := layout.RemoveAll(r.dirs.RemoteConfigStatusPath(string(id))); err != nil {
		return errors.Wrapf(err, "deleting remote status for %s", id)
	}
	return nil
}

// GetHash returns the current remote-status hash/state for id, or the
// zero Hash (HashUnset) if none has ever been stored.
func (r *Repository) GetHash(id types.AgentID) (types.Hash, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := layout.ReadFile(r.dirs.RemoteConfigStatusPath(string(id)))
	if err != nil {
		return types.Hash{}, errors.Wrapf(err, "loading hash state for %s", id)
	}
	if data == nil {
		return types.Hash{}, nil
	}
	var doc remoteStatusDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return types.Hash{}, errors.Wrapf(err, "parsing hash state for %s", id)
	}
	return types.Hash{Value: doc.Hash, State: parseState(doc.State), Message: doc.Message}, nil
}

// UpdateHashState transitions the stored hash's state. It refuses to
// transition a hash that has already reached a terminal state.
func (r *Repository) UpdateHashState(id types.AgentID, newHash types.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.getHashLocked(id)
	if err != nil {
		return err
	}
	if current.Value == newHash.Value && current.State.Terminal() {
		return errors.Wrapf(acerrors.ErrTerminalHash, "agent %s hash %s already %s", id, current.Value, current.State)
	}
	return r.writeHashLocked(id, newHash)
}

func (r *Repository) getHashLocked(id types.AgentID) (types.Hash, error) {
	data, err := layout.ReadFile(r.dirs.RemoteConfigStatusPath(string(id)))
	if err != nil {
		return types.Hash{}, err
	}
	if data == nil {
		return types.Hash{}, nil
	}
	var doc remoteStatusDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return types.Hash{}, err
	}
	return types.Hash{Value: doc.Hash, State: parseState(doc.State), Message: doc.Message}, nil
}

func (r *Repository) writeHashLocked(id types.AgentID, hash types.Hash) error {
	doc := remoteStatusDoc{Hash: hash.Value, State: hash.State.String(), Message: hash.Message}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "marshaling hash state for %s", id)
	}
	return layout.WriteFileAtomic(r.dirs.RemoteConfigStatusPath(string(id)), data)
}

func parseState(s string) types.HashState {
	switch s {
	case "applying":
		return types.HashApplying
	case "applied":
		return types.HashApplied
	case "failed":
		return types.HashFailed
	default:
		return types.HashUnset
	}
}

// Resolve implements the resolution policy consumed by other components:
// remote first, fall back to local; absent both means "no configuration".
func Resolve(local, remote types.Values) (types.Values, bool) {
	if remote != nil {
		return remote, true
	}
	if local != nil {
		return local, true
	}
	return nil, false
}
