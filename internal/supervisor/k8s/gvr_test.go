package k8s

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func unstructuredWithKind(apiVersion, kind string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetAPIVersion(apiVersion)
	u.SetKind(kind)
	return u
}

func TestGuessResourceWellKnownKind(t *testing.T) {
	gvr, namespaced := guessResource(unstructuredWithKind("apps/v1", "Deployment"))
	assert.Equal(t, "apps", gvr.Group)
	assert.Equal(t, "v1", gvr.Version)
	assert.Equal(t, "deployments", gvr.Resource)
	assert.True(t, namespaced)
}

func TestGuessResourceClusterScopedWellKnownKind(t *testing.T) {
	gvr, namespaced := guessResource(unstructuredWithKind("rbac.authorization.k8s.io/v1", "ClusterRole"))
	assert.Equal(t, "clusterroles", gvr.Resource)
	assert.False(t, namespaced)
}

func TestGuessResourceUnknownKindFallsBackToPlural(t *testing.T) {
	gvr, namespaced := guessResource(unstructuredWithKind("helm.cattle.io/v1", "HelmRelease"))
	assert.Equal(t, "helm.cattle.io", gvr.Group)
	assert.Equal(t, "v1", gvr.Version)
	assert.Equal(t, "helmreleases", gvr.Resource)
	assert.True(t, namespaced)
}

func TestPluralize(t *testing.T) {
	cases := map[string]string{
		"Deployment":  "deployments",
		"Ingress":     "ingresses",
		"Policy":      "policies",
		"HelmRelease": "helmreleases",
	}
	for kind, want := range cases {
		assert.Equal(t, want, pluralize(kind), "kind %q", kind)
	}
}
