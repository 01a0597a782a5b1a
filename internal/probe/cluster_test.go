package probe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic/fake"
)

func newClusterObjClient(gvr schema.GroupVersionResource, obj *unstructured.Unstructured) *fake.FakeDynamicClient {
	scheme := runtime.NewScheme()
	gvrToListKind := map[schema.GroupVersionResource]string{gvr: "HelmReleaseList"}
	return fake.NewSimpleDynamicClientWithCustomListKinds(scheme, gvrToListKind, obj)
}

func conditionsObj(conditions ...map[string]interface{}) *unstructured.Unstructured {
	items := make([]interface{}, len(conditions))
	for i, c := range conditions {
		items[i] = c
	}
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "helm.cattle.io/v1",
		"kind":       "HelmRelease",
		"metadata": map[string]interface{}{
			"name":      "hello-world",
			"namespace": "agent-system",
		},
		"status": map[string]interface{}{
			"conditions": items,
		},
	}}
}

func TestClusterCheckerHealthyWhenAllConditionsPass(t *testing.T) {
	obj := conditionsObj(map[string]interface{}{"type": "Ready", "status": "True"})
	client := newClusterObjClient(helmReleaseGVR, obj)

	c := &ClusterChecker{Client: client, GVR: helmReleaseGVR, Namespace: "agent-system", Name: "hello-world"}
	result, err := c.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Health)
	assert.True(t, result.Health.Healthy)
}

func TestClusterCheckerUnhealthyOnFailingCondition(t *testing.T) {
	obj := conditionsObj(
		map[string]interface{}{"type": "Ready", "status": "True"},
		map[string]interface{}{"type": "Deployed", "status": "False", "message": "chart install failed"},
	)
	client := newClusterObjClient(helmReleaseGVR, obj)

	c := &ClusterChecker{Client: client, GVR: helmReleaseGVR, Namespace: "agent-system", Name: "hello-world"}
	result, err := c.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Health)
	assert.False(t, result.Health.Healthy)
	assert.Equal(t, "chart install failed", result.Health.LastError)
	assert.Equal(t, "Deployed", result.Health.Status)
}

func TestClusterCheckerHonorsCustomHealthyStatus(t *testing.T) {
	obj := conditionsObj(map[string]interface{}{"type": "Ready", "status": "Healthy"})
	client := newClusterObjClient(helmReleaseGVR, obj)

	c := &ClusterChecker{Client: client, GVR: helmReleaseGVR, Namespace: "agent-system", Name: "hello-world", HealthyStatus: "Healthy"}
	result, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Health.Healthy)
}

func TestClusterCheckerObjectNotFoundIsError(t *testing.T) {
	scheme := runtime.NewScheme()
	client := fake.NewSimpleDynamicClientWithCustomListKinds(scheme, map[schema.GroupVersionResource]string{helmReleaseGVR: "HelmReleaseList"})

	c := &ClusterChecker{Client: client, GVR: helmReleaseGVR, Namespace: "agent-system", Name: "missing"}
	_, err := c.Check(context.Background())
	require.Error(t, err)
}
