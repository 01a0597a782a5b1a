// Package controlplane implements the Control-Plane Loop:
// the single-threaded owner of the SubAgentConfigMap and the five event
// queues, coordinating startup, remote-config-driven reconciliation, probe
// forwarding and shutdown.
package controlplane

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"sigs.k8s.io/yaml"

	"github.com/opsfleet/agent-control/internal/acerrors"
	"github.com/opsfleet/agent-control/internal/agenttype"
	"github.com/opsfleet/agent-control/internal/assembler"
	"github.com/opsfleet/agent-control/internal/events"
	"github.com/opsfleet/agent-control/internal/instanceid"
	"github.com/opsfleet/agent-control/internal/metrics"
	"github.com/opsfleet/agent-control/internal/remoteconfig"
	"github.com/opsfleet/agent-control/internal/supervisor"
	"github.com/opsfleet/agent-control/internal/types"
	"github.com/opsfleet/agent-control/internal/values"
)

// Builders bundles the variant-specific construction functions the Loop
// needs without importing internal/supervisor/onhost or .../k8s directly,
// keeping the cluster and on-host builds decoupled from the loop itself.
type Builders struct {
	Build func(ea *assembler.EffectiveAgent) (supervisor.Starter, error)
}

// Target describes one entry of the intended sub-agent set, resolved
// from control config at startup and after every ConfigUpdated.
type Target struct {
	AgentID     types.AgentID
	AgentTypeID types.AgentTypeID
}

// Source supplies everything the Loop needs to (re)compute the target
// set and assemble an EffectiveAgent for one AgentID; it is implemented
// by the CLI wiring, since config parsing and the registry live outside
// this package.
type Source interface {
	Targets() ([]Target, error)
	Environment() types.Environment
	ControlPlaneVars(agentID types.AgentID) assembler.ControlPlaneVars
}

// Loop is the Control-Plane Loop.
type Loop struct {
	Registry *agenttype.Registry
	Repo     *values.Repository
	Source   Source
	Builders Builders
	Logger   logrus.FieldLogger

	Internal     chan events.SubAgentInternalEvent // probes/monitors -> supervisor
	SubAgent     chan events.SubAgentEvent         // supervisor -> loop
	Upstream     chan events.ControlPlaneEvent     // loop -> upstream adapter
	Remote       chan events.RemoteMessage         // upstream adapter -> loop
	Updates      chan events.ConfigUpdated         // remote-config pipeline -> loop
	RemoteStatus chan events.RemoteConfigStatus    // remote-config pipeline -> loop, forwarded upstream
	Stop         chan struct{}

	// RemoteConfig is the Remote-Config Pipeline bound to this loop's
	// Updates/RemoteStatus channels. Set by the daemon's wiring before
	// Run starts; a nil pipeline means remote pushes are logged and
	// dropped rather than reconciled (e.g. in tests that don't exercise
	// §4.5).
	RemoteConfig *remoteconfig.Pipeline

	mu          sync.Mutex
	supervisors map[types.AgentID]supervisor.Supervisor
}

// New constructs a Loop with its channels allocated. Channels are
// unbounded in the sense that nothing in this package ever blocks a
// producer on a full buffer: each is a large buffered channel sized well
// past any plausible burst, matching the "unbounded multi-producer /
// single-consumer queue" model without requiring an unbounded-growth
// container type.
func New(registry *agenttype.Registry, repo *values.Repository, source Source, builders Builders, logger logrus.FieldLogger) *Loop {
	const queueDepth = 4096
	return &Loop{
		Registry:     registry,
		Repo:         repo,
		Source:       source,
		Builders:     builders,
		Logger:       logger,
		Internal:     make(chan events.SubAgentInternalEvent, queueDepth),
		SubAgent:     make(chan events.SubAgentEvent, queueDepth),
		Upstream:     make(chan events.ControlPlaneEvent, queueDepth),
		Remote:       make(chan events.RemoteMessage, queueDepth),
		Updates:      make(chan events.ConfigUpdated, queueDepth),
		RemoteStatus: make(chan events.RemoteConfigStatus, queueDepth),
		Stop:         make(chan struct{}),
		supervisors:  map[types.AgentID]supervisor.Supervisor{},
	}
}

// Startup loads local+remote config, computes the target set, builds and
// starts each sub-agent, attaches probes (via Builders.Build, which wraps
// supervisor construction with whatever probe-attachment the variant
// needs), and sets its own health to Healthy.
func (l *Loop) Startup(ctx context.Context) error {
	targets, err := l.Source.Targets()
	if err != nil {
		return errors.Wrap(err, "computing target set")
	}

	for _, t := range targets {
		if err := l.createSupervisor(t); err != nil {
			l.Logger.WithField("agent_id", t.AgentID).WithError(err).Warn("failed to start sub-agent at startup")
			continue
		}
	}

	l.publishEffectiveConfig(targets)
	l.setHealthy()
	return nil
}

// Run is the Loop's single blocking select, dispatching each of the five
// event kinds to its handler until Stop fires.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-l.Stop:
			l.handleStopRequested(ctx)
			return
		case <-ctx.Done():
			l.handleStopRequested(context.Background())
			return
		case upd := <-l.Updates:
			l.handleConfigUpdated(ctx, upd)
		case msg := <-l.Remote:
			l.handleRemoteMessage(ctx, msg)
		case status := <-l.RemoteStatus:
			l.publishUpstream(events.ControlPlaneEvent{RemoteConfigStatus: &status})
		case ev := <-l.SubAgent:
			l.handleSubAgentEvent(ev)
		case internal := <-l.Internal:
			l.forwardInternal(internal)
		}
	}
}

// handleConfigUpdated recomputes the intended set and performs
// create/stop/apply against (new-current, current-new, intersection).
func (l *Loop) handleConfigUpdated(ctx context.Context, upd events.ConfigUpdated) {
	targets, err := l.Source.Targets()
	if err != nil {
		l.Logger.WithError(err).Warn("failed to recompute target set after ConfigUpdated")
		return
	}

	l.mu.Lock()
	current := make(map[types.AgentID]bool, len(l.supervisors))
	for id := range l.supervisors {
		current[id] = true
	}
	l.mu.Unlock()

	wanted := make(map[types.AgentID]Target, len(targets))
	for _, t := range targets {
		wanted[t.AgentID] = t
	}

	for id, t := range wanted {
		if current[id] {
			continue
		}
		if err := l.createSupervisor(t); err != nil {
			l.Logger.WithField("agent_id", id).WithError(err).Warn("failed to create sub-agent after ConfigUpdated")
		}
	}

	for id := range current {
		if _, keep := wanted[id]; keep {
			continue
		}
		l.stopSupervisor(ctx, id)
	}

	if t, ok := wanted[upd.AgentID]; ok && current[upd.AgentID] {
		l.applySupervisor(ctx, t)
	}

	l.publishEffectiveConfig(targets)
}

// handleRemoteMessage runs msg through the Remote-Config Pipeline. The
// pipeline reports status and dispatches ConfigUpdated itself; this
// method only logs rejection. Process records and reports a Failed status
// for parse, validation and persist failures (and re-reports it for a
// hash that already failed); repository errors while reading the current
// hash or clearing the remote entry are returned without a status.
func (l *Loop) handleRemoteMessage(ctx context.Context, msg events.RemoteMessage) {
	if l.RemoteConfig == nil {
		l.Logger.WithField("agent_id", msg.AgentID).Warn("remote configuration received with no pipeline wired, dropping")
		return
	}
	if err := l.RemoteConfig.Process(ctx, msg); err != nil {
		l.Logger.WithField("agent_id", msg.AgentID).WithError(err).Warn("remote configuration rejected")
	}
}

func (l *Loop) createSupervisor(t Target) error {
	ea, err := l.assemble(t)
	if err != nil {
		return acerrors.NewPerAgent(string(t.AgentID), err)
	}

	starter, err := l.Builders.Build(ea)
	if err != nil {
		return acerrors.NewPerAgent(string(t.AgentID), err)
	}
	sup, err := starter.Start(l.Internal)
	if err != nil {
		return acerrors.NewPerAgent(string(t.AgentID), err)
	}

	l.mu.Lock()
	l.supervisors[t.AgentID] = sup
	count := len(l.supervisors)
	l.mu.Unlock()

	metrics.ObserveReconcile("create")
	metrics.SetRunningSupervisors(count)
	l.completeRemoteApply(t.AgentID, ea, nil)
	return nil
}

func (l *Loop) applySupervisor(ctx context.Context, t Target) {
	l.mu.Lock()
	sup, ok := l.supervisors[t.AgentID]
	l.mu.Unlock()
	if !ok {
		return
	}

	ea, err := l.assemble(t)
	if err != nil {
		l.Logger.WithField("agent_id", t.AgentID).WithError(err).Warn("failed to assemble effective agent for apply")
		return
	}

	applyErr := sup.Apply(ctx, ea)
	if applyErr != nil {
		l.Logger.WithField("agent_id", t.AgentID).WithError(applyErr).Warn("apply failed, supervisor remains in its pre-apply state")
	} else {
		metrics.ObserveReconcile("apply")
	}
	l.completeRemoteApply(t.AgentID, ea, applyErr)
}

// completeRemoteApply reports an apply's outcome back into the
// Remote-Config Pipeline when ea carries a hash still in Applying state,
// transitioning it to its terminal Applied/Failed status (step 7).
func (l *Loop) completeRemoteApply(agentID types.AgentID, ea *assembler.EffectiveAgent, applyErr error) {
	if l.RemoteConfig == nil || ea.Hash == nil || ea.Hash.State != types.HashApplying {
		return
	}
	if err := l.RemoteConfig.Complete(agentID, ea.Hash.Value, applyErr); err != nil {
		l.Logger.WithField("agent_id", agentID).WithError(err).Warn("failed to record remote-config completion")
	}
}

func (l *Loop) stopSupervisor(ctx context.Context, id types.AgentID) {
	l.mu.Lock()
	sup, ok := l.supervisors[id]
	if ok {
		delete(l.supervisors, id)
	}
	count := len(l.supervisors)
	l.mu.Unlock()
	if !ok {
		return
	}
	if err := sup.Stop(ctx); err != nil {
		l.Logger.WithField("agent_id", id).WithError(err).Warn("stop failed, supervisor considered stopped regardless")
	}
	metrics.ObserveReconcile("stop")
	metrics.SetRunningSupervisors(count)
}

func (l *Loop) assemble(t Target) (*assembler.EffectiveAgent, error) {
	caps := values.Capabilities{AcceptsRemoteConfig: true}

	local, err := l.Repo.LoadLocal(t.AgentID)
	if err != nil {
		return nil, err
	}
	remote, err := l.Repo.LoadRemote(t.AgentID, caps)
	if err != nil {
		return nil, err
	}
	resolved, ok := values.Resolve(local, remote)
	if !ok {
		resolved = types.Values{}
	}

	hash, err := l.Repo.GetHash(t.AgentID)
	if err != nil {
		return nil, err
	}

	ea, err := assembler.Assemble(l.Registry, t.AgentID, t.AgentTypeID, resolved, l.Source.Environment(), l.Source.ControlPlaneVars(t.AgentID))
	if err != nil {
		return nil, err
	}
	if hash.State != types.HashUnset {
		h := hash
		ea.Hash = &h
	}
	return ea, nil
}

// handleSubAgentEvent handles events that arrive already addressed to a
// sub-agent (as opposed to raw probe events, which go through
// forwardInternal): translate into the upstream ControlPlaneEvent shape
// and publish.
func (l *Loop) handleSubAgentEvent(ev events.SubAgentEvent) {
	if ev.Health != nil {
		metrics.ObserveHealth(string(ev.AgentID), ev.Health.Healthy)
		l.publishUpstream(events.ControlPlaneEvent{ComponentHealth: &events.ComponentHealth{
			AgentID:            ev.AgentID,
			Healthy:            ev.Health.Healthy,
			Status:             ev.Health.Status,
			LastError:          ev.Health.LastError,
			StartTimeUnixNano:  ev.Health.StartTimeUnixNano,
			StatusTimeUnixNano: ev.Health.StatusTimeUnixNano,
		}})
	}
	if ev.Version != nil {
		l.publishAttribute(ev.AgentID, ev.Version)
	}
}

// forwardInternal handles probe events flowing directly on the internal
// queue: translate a SubAgentInternalEvent into the upstream shape.
// Per-agent ordering is preserved because this method only ever runs on
// the Loop's single goroutine.
func (l *Loop) forwardInternal(ev events.SubAgentInternalEvent) {
	if ev.Health != nil {
		metrics.ObserveHealth(string(ev.AgentID), ev.Health.Healthy)
		l.publishUpstream(events.ControlPlaneEvent{ComponentHealth: &events.ComponentHealth{
			AgentID:            ev.AgentID,
			Healthy:            ev.Health.Healthy,
			Status:             ev.Health.Status,
			LastError:          ev.Health.LastError,
			StartTimeUnixNano:  ev.Health.StartTimeUnixNano,
			StatusTimeUnixNano: ev.Health.StatusTimeUnixNano,
		}})
	}
	if ev.Attribute != nil {
		l.publishAttribute(ev.AgentID, ev.Attribute)
	}
}

// publishAttribute surfaces a version/attribute probe result upstream as a
// non-identifying attribute on the agent's description.
func (l *Loop) publishAttribute(agentID types.AgentID, attr *events.AttributeUpdate) {
	l.publishUpstream(events.ControlPlaneEvent{AgentDescription: &events.AgentDescription{
		AgentID:             agentID,
		NonIdentifyingAttrs: map[string]string{attr.Name: attr.Value},
	}})
}

// effectiveConfigDoc is the upstream-reported shape of the currently
// reconciled target set, mirroring config.Config's agents block. Agents
// carries no omitempty tag so an empty set still marshals as "agents:
// {}\n" rather than disappearing entirely.
type effectiveConfigDoc struct {
	Agents map[string]effectiveAgentDoc `json:"agents"`
}

type effectiveAgentDoc struct {
	AgentType string `json:"agent_type"`
}

// publishEffectiveConfig reports the current, fully reconciled target set
// upstream as an EffectiveConfig event.
func (l *Loop) publishEffectiveConfig(targets []Target) {
	doc := effectiveConfigDoc{Agents: map[string]effectiveAgentDoc{}}
	for _, t := range targets {
		doc.Agents[string(t.AgentID)] = effectiveAgentDoc{AgentType: t.AgentTypeID.Key()}
	}

	content, err := yaml.Marshal(doc)
	if err != nil {
		l.Logger.WithError(err).Warn("failed to marshal effective configuration for upstream reporting")
		return
	}
	l.publishUpstream(events.ControlPlaneEvent{EffectiveConfig: &events.EffectiveConfig{
		AgentID: types.ControlPlaneAgentID,
		Content: content,
	}})
}

func (l *Loop) publishUpstream(ev events.ControlPlaneEvent) {
	select {
	case l.Upstream <- ev:
	default:
		l.Logger.Warn("upstream event queue full, dropping event")
	}
}

func (l *Loop) setHealthy() {
	l.publishUpstream(events.ControlPlaneEvent{ComponentHealth: &events.ComponentHealth{
		AgentID: types.ControlPlaneAgentID,
		Healthy: true,
		Status:  "running",
	}})
}

// handleStopRequested stops every supervisor, flushes upstream status,
// then returns so Run's caller can exit.
func (l *Loop) handleStopRequested(ctx context.Context) {
	l.mu.Lock()
	ids := make([]types.AgentID, 0, len(l.supervisors))
	for id := range l.supervisors {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	for _, id := range ids {
		l.stopSupervisor(ctx, id)
	}

	l.publishUpstream(events.ControlPlaneEvent{ComponentHealth: &events.ComponentHealth{
		AgentID: types.ControlPlaneAgentID,
		Healthy: false,
		Status:  "stopped",
	}})
}

// RequestStop publishes the stop signal exactly once.
func (l *Loop) RequestStop() {
	select {
	case <-l.Stop:
	default:
		close(l.Stop)
	}
}

// InstanceID resolves and caches (via store) the control plane's own
// instance identity, used when populating AgentDescription upstream.
func (l *Loop) InstanceID(store *instanceid.Store, current instanceid.Identifiers) (string, error) {
	return store.Get(types.ControlPlaneAgentID, current)
}

// PublishDescription reports the control plane's own AgentDescription
// upstream: the stable InstanceID plus the identifiers tuple that minted
// it as identifying attributes.
func (l *Loop) PublishDescription(store *instanceid.Store, current instanceid.Identifiers) error {
	iid, err := l.InstanceID(store, current)
	if err != nil {
		return err
	}
	l.publishUpstream(events.ControlPlaneEvent{AgentDescription: &events.AgentDescription{
		AgentID:          types.ControlPlaneAgentID,
		InstanceID:       iid,
		IdentifyingAttrs: map[string]string(current),
	}})
	return nil
}
