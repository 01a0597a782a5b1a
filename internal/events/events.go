// Package events defines the typed payloads carried on the five logical
// queues the control loop coordinates over: SubAgentInternalEvent, SubAgentEvent,
// ControlPlaneEvent, RemoteMessage and Cancellation. Every queue is an
// unbounded Go channel of one of these types; the channels themselves are
// owned by internal/controlplane, but the types live here so probes,
// supervisors and the remote-config pipeline can all produce/consume them
// without importing the control loop.
package events

import (
	"time"

	"github.com/opsfleet/agent-control/internal/types"
)

// SubAgentInternalEvent flows from probes/monitors to the owning
// supervisor.
type SubAgentInternalEvent struct {
	AgentID   types.AgentID
	Attribute *AttributeUpdate
	Health    *HealthUpdate
	Exited    *ProcessExited
}

// AttributeUpdate carries a version/attribute probe result.
type AttributeUpdate struct {
	Name  string
	Value string
}

// HealthUpdate carries a health probe result.
type HealthUpdate struct {
	Healthy            bool
	Status             string
	LastError          string
	StartTimeUnixNano  uint64
	StatusTimeUnixNano uint64
}

// ProcessExited reports an on-host executable's monitor loop observing an
// exit, used by the restart-policy decision inside the monitor loop
// itself and surfaced upward for observability.
type ProcessExited struct {
	ExecutableID string
	ExitCode     int
	At           time.Time
}

// SubAgentEvent flows from a supervisor to the control loop.
type SubAgentEvent struct {
	AgentID types.AgentID
	Health  *HealthUpdate
	Version *AttributeUpdate
	Failed  error // non-nil if the supervisor itself failed terminally
}

// ControlPlaneEvent flows from the control loop to the upstream adapter;
// it is the Go shape of the four upstream status messages: agent
// description, component health, effective config and remote config
// status.
type ControlPlaneEvent struct {
	AgentDescription   *AgentDescription
	ComponentHealth    *ComponentHealth
	EffectiveConfig    *EffectiveConfig
	RemoteConfigStatus *RemoteConfigStatus
}

// AgentDescription identifies a sub-agent with identifying and
// non-identifying attributes.
type AgentDescription struct {
	AgentID             types.AgentID
	InstanceID          string
	IdentifyingAttrs    map[string]string
	NonIdentifyingAttrs map[string]string
}

// ComponentHealth is the upstream health message shape.
type ComponentHealth struct {
	AgentID            types.AgentID
	Healthy            bool
	Status             string
	LastError          string
	StartTimeUnixNano  uint64
	StatusTimeUnixNano uint64
}

// EffectiveConfig is the current local+remote merged view, reported
// upstream.
type EffectiveConfig struct {
	AgentID types.AgentID
	Content []byte
}

// RemoteConfigStatus is the upstream ack/nack for a given hash
// (Applying* -> (Applied | Failed), no further
// transitions after terminal).
type RemoteConfigStatus struct {
	AgentID      types.AgentID
	Hash         string
	State        types.HashState
	ErrorMessage string
}

// RemoteMessage flows from the upstream adapter to the control loop: an
// already-decoded remote configuration push.
type RemoteMessage struct {
	AgentID   types.AgentID
	Hash      string
	ConfigMap map[string]string // name -> body; nil/absent means no payload at all
}

// ConfigUpdated is the internal event the Remote-Config Pipeline
// dispatches after a successful persist.
type ConfigUpdated struct {
	AgentID types.AgentID
}

// Cancellation is published once per background thread by Stop().
type Cancellation struct{}
