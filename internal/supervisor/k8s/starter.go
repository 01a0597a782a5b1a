package k8s

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/client-go/dynamic"

	"github.com/opsfleet/agent-control/internal/assembler"
	"github.com/opsfleet/agent-control/internal/events"
	"github.com/opsfleet/agent-control/internal/supervisor"
	"github.com/opsfleet/agent-control/internal/types"
)

// Starter applies the initial object set and hands back the running
// ClusterSupervisor, which owns the garbage-collection loop from then on.
type Starter struct {
	client    dynamic.Interface
	agentID   types.AgentID
	namespace string
	effective *assembler.EffectiveAgent
	objects   []resourceRef
	gcPeriod  time.Duration
	logger    logrus.FieldLogger
}

// Start implements supervisor.Starter for the cluster variant: every
// object is applied before the call returns, so a failure here leaves no
// supervisor for the caller to track (same partial-apply contract as the
// on-host variant, minus a rollback step: re-applying is idempotent).
func (s *Starter) Start(sink chan<- events.SubAgentInternalEvent) (*ClusterSupervisor, error) {
	ctx := context.Background()
	for _, ref := range s.objects {
		if err := applyOne(ctx, s.client, ref, string(s.agentID)); err != nil {
			return nil, errors.Wrapf(err, "starting %s", s.agentID)
		}
	}

	cs := &ClusterSupervisor{
		client:    s.client,
		agentID:   s.agentID,
		namespace: s.namespace,
		effective: s.effective,
		objects:   s.objects,
		gcPeriod:  s.gcPeriod,
		logger:    s.logger,
		phase:     supervisor.Running,
		startTime: time.Now(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		sink:      sink,
	}
	if s.effective.Hash != nil {
		h := *s.effective.Hash
		cs.hash = &h
	}

	go cs.gcLoop()
	cs.attachProbes(s.effective, sink)
	return cs, nil
}
