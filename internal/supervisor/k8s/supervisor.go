package k8s

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/client-go/dynamic"

	"github.com/opsfleet/agent-control/internal/assembler"
	"github.com/opsfleet/agent-control/internal/events"
	"github.com/opsfleet/agent-control/internal/supervisor"
	"github.com/opsfleet/agent-control/internal/types"
)

// ClusterSupervisor is the running cluster-variant Supervisor. It holds
// the currently-applied object set and re-applies it on a fixed tick so
// that an object deleted out of band (kubectl, another operator) is
// recreated at the next tick rather than instantly — the reconciliation
// window is the tradeoff for not running a live watch per object.
type ClusterSupervisor struct {
	mu        sync.Mutex
	client    dynamic.Interface
	agentID   types.AgentID
	namespace string
	effective *assembler.EffectiveAgent
	objects   []resourceRef
	gcPeriod  time.Duration
	logger    logrus.FieldLogger
	phase     supervisor.Phase
	startTime time.Time
	hash      *types.Hash
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once

	sink        chan<- events.SubAgentInternalEvent
	probeCancel chan struct{}
}

// AgentID implements supervisor.Supervisor.
func (cs *ClusterSupervisor) AgentID() types.AgentID { return cs.agentID }

// State implements supervisor.Supervisor.
func (cs *ClusterSupervisor) State() supervisor.Phase {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.phase
}

// CurrentHash implements supervisor.Supervisor.
func (cs *ClusterSupervisor) CurrentHash() (types.Hash, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.hash == nil {
		return types.Hash{}, false
	}
	return *cs.hash, true
}

func (cs *ClusterSupervisor) gcLoop() {
	defer close(cs.doneCh)
	ticker := time.NewTicker(cs.gcPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-cs.stopCh:
			return
		case <-ticker.C:
			cs.reconcileOnce()
		}
	}
}

func (cs *ClusterSupervisor) reconcileOnce() {
	cs.mu.Lock()
	objects := cs.objects
	agentID := string(cs.agentID)
	cs.mu.Unlock()

	ctx := context.Background()
	for _, ref := range objects {
		if err := applyOne(ctx, cs.client, ref, agentID); err != nil {
			cs.logger.WithField("agent_id", cs.agentID).WithError(err).Warn("garbage-collection reconcile failed for object")
		}
	}
}

// Apply implements supervisor.Supervisor: compute the object-set delta,
// delete objects no longer rendered, then create-or-update the rest.
func (cs *ClusterSupervisor) Apply(ctx context.Context, ea *assembler.EffectiveAgent) error {
	objects, err := ParseDeployment(ea.Deployment)
	if err != nil {
		return errors.Wrapf(err, "applying %s", cs.agentID)
	}

	cs.mu.Lock()
	old := cs.objects
	cs.mu.Unlock()

	newRefs := make([]resourceRef, 0, len(objects))
	newKeys := map[string]bool{}
	for _, obj := range objects {
		gvr, namespaced := guessResource(obj)
		ns := ""
		if namespaced {
			ns = obj.GetNamespace()
			if ns == "" {
				ns = cs.namespace
			}
		}
		ref := resourceRef{gvr: gvr, namespace: ns, obj: obj}
		newRefs = append(newRefs, ref)
		newKeys[objKey(ref)] = true
	}

	for _, ref := range old {
		if !newKeys[objKey(ref)] {
			if err := deleteOne(ctx, cs.client, ref); err != nil {
				cs.logger.WithField("agent_id", cs.agentID).WithError(err).Warn("failed to delete retired object during apply")
			}
		}
	}

	for _, ref := range newRefs {
		if err := applyOne(ctx, cs.client, ref, string(cs.agentID)); err != nil {
			return errors.Wrapf(err, "applying %s", cs.agentID)
		}
	}

	cs.mu.Lock()
	cs.objects = newRefs
	cs.effective = ea
	if ea.Hash != nil {
		h := *ea.Hash
		cs.hash = &h
	}
	cs.mu.Unlock()

	// The rendered probe set may have changed with the deployment;
	// restart it against the new effective agent.
	cs.detachProbes()
	cs.attachProbes(ea, cs.sink)
	return nil
}

// Stop implements supervisor.Supervisor: stop the GC loop and delete
// every owned object. Deletion is best-effort; failures are logged, not
// returned, so one stuck finalizer cannot block the rest of shutdown.
func (cs *ClusterSupervisor) Stop(ctx context.Context) error {
	cs.detachProbes()
	cs.stopOnce.Do(func() { close(cs.stopCh) })

	select {
	case <-cs.doneCh:
	case <-ctx.Done():
	case <-time.After(time.Duration(supervisor.StopGraceRetries) * time.Duration(supervisor.StopGraceInterval) * time.Millisecond):
	}

	cs.mu.Lock()
	objects := cs.objects
	cs.mu.Unlock()

	for _, ref := range objects {
		if err := deleteOne(ctx, cs.client, ref); err != nil {
			cs.logger.WithField("agent_id", cs.agentID).WithError(err).Warn("failed to delete object during stop")
		}
	}

	cs.mu.Lock()
	cs.phase = supervisor.Stopped
	cs.mu.Unlock()
	return nil
}

func objKey(r resourceRef) string {
	return r.gvr.String() + "/" + r.namespace + "/" + r.obj.GetName()
}
