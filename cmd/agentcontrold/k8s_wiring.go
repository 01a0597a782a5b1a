package main

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/opsfleet/agent-control/internal/assembler"
	"github.com/opsfleet/agent-control/internal/events"
	"github.com/opsfleet/agent-control/internal/supervisor"
	"github.com/opsfleet/agent-control/internal/supervisor/k8s"
)

// k8sStarterAdapter mirrors onhostStarterAdapter for the cluster variant.
type k8sStarterAdapter struct {
	inner *k8s.Starter
}

func (a k8sStarterAdapter) Start(sink chan<- events.SubAgentInternalEvent) (supervisor.Supervisor, error) {
	return a.inner.Start(sink)
}

// buildDynamicClient resolves a client-go rest.Config the same way every
// in-cluster CLI does: explicit --kubeconfig first, in-cluster service
// account config otherwise.
func buildDynamicClient(kubeconfig string) (dynamic.Interface, error) {
	var (
		restCfg *rest.Config
		err     error
	)
	if kubeconfig != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		restCfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, errors.Wrap(err, "resolving kubernetes client configuration")
	}
	return dynamic.NewForConfig(restCfg)
}

// k8sBuildFunc returns the controlplane.Builders.Build function for the
// cluster variant.
func k8sBuildFunc(client dynamic.Interface, namespace string, logger logrus.FieldLogger) func(ea *assembler.EffectiveAgent) (supervisor.Starter, error) {
	builder := &k8s.Builder{Client: client, Namespace: namespace, Logger: logger}
	return func(ea *assembler.EffectiveAgent) (supervisor.Starter, error) {
		starter, err := builder.Build(ea)
		if err != nil {
			return nil, err
		}
		return k8sStarterAdapter{inner: starter}, nil
	}
}
