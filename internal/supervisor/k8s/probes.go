package k8s

import (
	"context"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/opsfleet/agent-control/internal/assembler"
	"github.com/opsfleet/agent-control/internal/events"
	"github.com/opsfleet/agent-control/internal/probe"
)

// attachProbes starts one goroutine per rendered health and version probe
// of ea. The cluster variant supports a single probe kind for each: a
// condition-set poll for health, a HelmRelease-shaped revision inspection
// for version, both addressed by (api_version, kind, name, namespace)
// fields in the rendered spec.
func (cs *ClusterSupervisor) attachProbes(ea *assembler.EffectiveAgent, sink chan<- events.SubAgentInternalEvent) {
	if sink == nil {
		return
	}
	cancel := make(chan struct{})
	cs.probeCancel = cancel

	for _, rp := range ea.Health {
		if rp.Kind != "cluster" {
			cs.logger.WithField("agent_id", cs.agentID).WithField("kind", rp.Kind).Warn("skipping unsupported cluster health probe kind")
			continue
		}
		gvr, ns, name := cs.probeTarget(rp.Spec)
		checker := &probe.ClusterChecker{Client: cs.client, GVR: gvr, Namespace: ns, Name: name}
		initialDelay, interval := probe.ScheduleParams(rp.Spec)
		go probe.Schedule(context.Background(), cancel, cs.agentID, checker, initialDelay, interval, sink)
	}

	for _, rp := range ea.Version {
		gvr, ns, name := cs.probeTarget(rp.Spec)
		attr := probe.StringField(rp.Spec, "attribute")
		if attr == "" {
			attr = "agent.version"
		}
		checker := &probe.VersionChecker{Client: cs.client, GVR: gvr, Namespace: ns, Name: name, AttributeName: attr}
		initialDelay, interval := probe.ScheduleParams(rp.Spec)
		go probe.Schedule(context.Background(), cancel, cs.agentID, checker, initialDelay, interval, sink)
	}
}

// detachProbes stops every probe goroutine started by attachProbes.
func (cs *ClusterSupervisor) detachProbes() {
	if cs.probeCancel != nil {
		close(cs.probeCancel)
		cs.probeCancel = nil
	}
}

// probeTarget resolves the cluster object a probe spec addresses, reusing
// the same Kind -> resource mapping the applier uses so a probe always
// polls the object the supervisor applied.
func (cs *ClusterSupervisor) probeTarget(spec map[string]interface{}) (gvr schema.GroupVersionResource, ns, name string) {
	u := &unstructured.Unstructured{Object: map[string]interface{}{}}
	u.SetAPIVersion(probe.StringField(spec, "api_version"))
	u.SetKind(probe.StringField(spec, "kind"))
	resolved, namespaced := guessResource(u)
	ns = ""
	if namespaced {
		ns = probe.StringField(spec, "namespace")
		if ns == "" {
			ns = cs.namespace
		}
	}
	return resolved, ns, probe.StringField(spec, "name")
}
