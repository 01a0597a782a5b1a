// Package types holds the data model shared across every component of the
// control plane: identifiers, values, hashes and the
// environment enum. Keeping these in one leaf package lets the registry,
// template engine, assembler, repositories and supervisor all depend on a
// single vocabulary without import cycles.
package types

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
)

// ControlPlaneAgentID is the reserved AgentID the control plane uses to
// describe and report on itself, distinct from any sub-agent.
const ControlPlaneAgentID = AgentID("agent-control")

var agentIDPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// AgentID identifies a sub-agent. It is immutable for the sub-agent's
// lifetime once read from configuration at load time.
type AgentID string

// Validate reports whether id is a non-empty string drawn from [a-z0-9-].
func (id AgentID) Validate() error {
	if id == "" {
		return errors.New("agent id must not be empty")
	}
	if !agentIDPattern.MatchString(string(id)) {
		return errors.Errorf("agent id %q must match [a-z0-9-]+", string(id))
	}
	return nil
}

func (id AgentID) String() string { return string(id) }

// Environment is the deployment target an EffectiveAgent is rendered for.
type Environment string

const (
	EnvironmentOnHost Environment = "on_host"
	EnvironmentK8s    Environment = "k8s"
)

// AgentTypeID is the triple (namespace, name, version) with string
// semantics "ns/name:semver".
type AgentTypeID struct {
	Namespace string
	Name      string
	Version   string
}

func (id AgentTypeID) String() string {
	return fmt.Sprintf("%s/%s:%s", id.Namespace, id.Name, id.Version)
}

// Key returns the registry lookup key, identical to String but named
// distinctly so call sites document intent.
func (id AgentTypeID) Key() string { return id.String() }

// SemVer parses the version component, used by version-probe comparisons
// and by dynamic-override resolution.
func (id AgentTypeID) SemVer() (*semver.Version, error) {
	return semver.NewVersion(id.Version)
}

// ParseAgentTypeID parses the "ns/name:semver" wire form.
func ParseAgentTypeID(s string) (AgentTypeID, error) {
	nsRest := strings.SplitN(s, "/", 2)
	if len(nsRest) != 2 {
		return AgentTypeID{}, errors.Errorf("agent type id %q missing namespace separator '/'", s)
	}
	nameVer := strings.SplitN(nsRest[1], ":", 2)
	if len(nameVer) != 2 {
		return AgentTypeID{}, errors.Errorf("agent type id %q missing version separator ':'", s)
	}
	if nsRest[0] == "" || nameVer[0] == "" || nameVer[1] == "" {
		return AgentTypeID{}, errors.Errorf("agent type id %q has an empty component", s)
	}
	return AgentTypeID{Namespace: nsRest[0], Name: nameVer[0], Version: nameVer[1]}, nil
}
