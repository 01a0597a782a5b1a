// Package instanceid implements the Instance-Identity Store: a stable, persisted InstanceID per AgentID, minted fresh only
// when the environment's Identifiers tuple changes between runs.
package instanceid

import (
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/opsfleet/agent-control/internal/layout"
	"github.com/opsfleet/agent-control/internal/types"
)

// Identifiers is the environment tuple that determines whether an
// InstanceID must be re-minted: hostname/machine-id/cloud-id/fleet-id
// on-host, cluster-name/fleet-id in-cluster.
type Identifiers map[string]string

// Equal reports whether a and b carry the same identifying values.
func (a Identifiers) Equal(b Identifiers) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

type persisted struct {
	InstanceID  string      `json:"instance_id"`
	Identifiers Identifiers `json:"identifiers"`
}

// Store is the Instance-Identity Store. One Store instance should be
// shared for the process lifetime so its internal mutex can serialize
// concurrent Get calls for the same AgentID.
type Store struct {
	mu   sync.Mutex
	path func(agentID types.AgentID) string
}

// New constructs a Store persisting one identifiers.yaml-shaped document
// per agent under dirs.Remote.
func New(dirs layout.Dirs) *Store {
	return &Store{
		path: func(agentID types.AgentID) string {
			if agentID == types.ControlPlaneAgentID {
				return dirs.IdentifiersPath()
			}
			return filepath.Join(dirs.AgentDir(string(agentID)), "identifiers.yaml")
		},
	}
}

// Get returns the stable InstanceID for agentID given the current
// environment's identifiers tuple, minting and persisting a fresh one if
// none is stored or if current differs from what's stored.
func (s *Store) Get(agentID types.AgentID, current Identifiers) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(agentID)
	data, err := layout.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading instance id for %s", agentID)
	}

	if data != nil {
		var p persisted
		if err := yaml.Unmarshal(data, &p); err != nil {
			return "", errors.Wrapf(err, "parsing instance id for %s", agentID)
		}
		if p.Identifiers.Equal(current) {
			return p.InstanceID, nil
		}
	}

	id, err := mint()
	if err != nil {
		return "", errors.Wrap(err, "minting instance id")
	}
	out, err := yaml.Marshal(persisted{InstanceID: id, Identifiers: current})
	if err != nil {
		return "", errors.Wrapf(err, "marshaling instance id for %s", agentID)
	}
	if err := layout.WriteFileAtomic(path, out); err != nil {
		return "", err
	}
	return id, nil
}

// mint produces a fresh, opaque, time-ordered 128-bit identifier.
func mint() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
