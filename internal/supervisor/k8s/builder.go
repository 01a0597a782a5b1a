package k8s

import (
	"github.com/sirupsen/logrus"
	"k8s.io/client-go/dynamic"

	"github.com/opsfleet/agent-control/internal/assembler"
)

// Builder produces the side-effect-free Starter for the cluster variant:
// it resolves each rendered object's GroupVersionResource and validates
// the object set before anything is applied.
type Builder struct {
	Client    dynamic.Interface
	Namespace string
	GCPeriod  GCPeriod
	Logger    logrus.FieldLogger
}

// Build implements supervisor.Builder.
func (b *Builder) Build(ea *assembler.EffectiveAgent) (*Starter, error) {
	agentID := ea.AgentID
	objects, err := ParseDeployment(ea.Deployment)
	if err != nil {
		return nil, err
	}

	resolved := make([]resourceRef, 0, len(objects))
	for _, obj := range objects {
		gvr, namespaced := guessResource(obj)
		ns := ""
		if namespaced {
			ns = obj.GetNamespace()
			if ns == "" {
				ns = b.Namespace
			}
		}
		resolved = append(resolved, resourceRef{gvr: gvr, namespace: ns, obj: obj})
	}

	logger := b.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Starter{
		client:    b.Client,
		agentID:   agentID,
		namespace: b.Namespace,
		effective: ea,
		objects:   resolved,
		gcPeriod:  b.GCPeriod.orDefault(),
		logger:    logger,
	}, nil
}
