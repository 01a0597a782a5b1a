// Package agenttype implements the Agent-Type Registry: a
// lookup table from AgentTypeID to AgentTypeDefinition, assembled from an
// embedded, build-time compiled-in set layered under an optional dynamic
// override directory.
package agenttype

import "github.com/opsfleet/agent-control/internal/types"

// VariableDefinition is a typed slot in an agent type's schema.
type VariableDefinition struct {
	Kind     types.VariableKind `json:"kind" yaml:"kind"`
	Required bool               `json:"required,omitempty" yaml:"required,omitempty"`
	Default  interface{}        `json:"default,omitempty" yaml:"default,omitempty"`
	// Final, if non-nil, is an immutable value: user-supplied values for
	// this variable are ignored and Final is used instead.
	Final interface{} `json:"final,omitempty" yaml:"final,omitempty"`
	// Path is the persisted sub-path for file-typed (and map<string,file>)
	// variables, relative to the per-agent persist root.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// ProbeTemplate is a health or version probe template attached to an agent
// type, rendered the same way the deployment block is.
type ProbeTemplate struct {
	Kind string                 `json:"kind" yaml:"kind"`
	Spec map[string]interface{} `json:"spec" yaml:"spec"`
}

// DeploymentTemplate is the per-environment rendered-config template: a
// free-form YAML tree whose leaf strings may contain ${nr-*} references.
type DeploymentTemplate map[string]interface{}

// AgentTypeDefinition declares the typed variable schema, the per-environment
// deployment template(s), and optional health/version probe templates.
type AgentTypeDefinition struct {
	ID        types.AgentTypeID                        `json:"-" yaml:"-"`
	Variables map[string]VariableDefinition            `json:"variables" yaml:"variables"`
	Templates map[types.Environment]DeploymentTemplate `json:"templates" yaml:"templates"`
	Health    []ProbeTemplate                          `json:"health,omitempty" yaml:"health,omitempty"`
	Version   []ProbeTemplate                          `json:"version,omitempty" yaml:"version,omitempty"`
}

// definitionDocument is the on-disk shape of an agent type file: the
// AgentTypeID travels in a header block rather than being implied by the
// filename.
type definitionDocument struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
	AgentTypeDefinition `json:",inline" yaml:",inline"`
}
