package k8s

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic/fake"
)

var deploymentGVR = schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployments"}

func newFakeClient() *fake.FakeDynamicClient {
	scheme := runtime.NewScheme()
	gvrToListKind := map[schema.GroupVersionResource]string{
		deploymentGVR: "DeploymentList",
	}
	return fake.NewSimpleDynamicClientWithCustomListKinds(scheme, gvrToListKind)
}

func deploymentObj(name string, replicas int64) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": "agent-system",
		},
		"spec": map[string]interface{}{
			"replicas": replicas,
		},
	}}
}

func TestApplyOneCreatesWhenAbsent(t *testing.T) {
	client := newFakeClient()
	ref := resourceRef{gvr: deploymentGVR, namespace: "agent-system", obj: deploymentObj("hello-world", 1)}

	require.NoError(t, applyOne(context.Background(), client, ref, "hello-world"))

	got, err := client.Resource(deploymentGVR).Namespace("agent-system").Get(context.Background(), "hello-world", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello-world", got.GetLabels()[ownerLabelKey])
}

func TestApplyOneUpdatesWhenSpecDiffers(t *testing.T) {
	client := newFakeClient()
	ref := resourceRef{gvr: deploymentGVR, namespace: "agent-system", obj: deploymentObj("hello-world", 1)}
	require.NoError(t, applyOne(context.Background(), client, ref, "hello-world"))

	ref2 := resourceRef{gvr: deploymentGVR, namespace: "agent-system", obj: deploymentObj("hello-world", 3)}
	require.NoError(t, applyOne(context.Background(), client, ref2, "hello-world"))

	got, err := client.Resource(deploymentGVR).Namespace("agent-system").Get(context.Background(), "hello-world", metav1.GetOptions{})
	require.NoError(t, err)
	replicas, _, _ := unstructured.NestedInt64(got.Object, "spec", "replicas")
	assert.Equal(t, int64(3), replicas)
}

func TestApplyOneNoopWhenSpecUnchanged(t *testing.T) {
	client := newFakeClient()
	ref := resourceRef{gvr: deploymentGVR, namespace: "agent-system", obj: deploymentObj("hello-world", 1)}
	require.NoError(t, applyOne(context.Background(), client, ref, "hello-world"))

	got1, err := client.Resource(deploymentGVR).Namespace("agent-system").Get(context.Background(), "hello-world", metav1.GetOptions{})
	require.NoError(t, err)

	require.NoError(t, applyOne(context.Background(), client, ref, "hello-world"))
	got2, err := client.Resource(deploymentGVR).Namespace("agent-system").Get(context.Background(), "hello-world", metav1.GetOptions{})
	require.NoError(t, err)

	assert.Equal(t, got1.GetResourceVersion(), got2.GetResourceVersion(), "a no-op apply must not bump resourceVersion")
}

func TestDeleteOneToleratesAlreadyAbsent(t *testing.T) {
	client := newFakeClient()
	ref := resourceRef{gvr: deploymentGVR, namespace: "agent-system", obj: deploymentObj("hello-world", 1)}
	require.NoError(t, deleteOne(context.Background(), client, ref))
}

func TestDeleteOneRemovesExisting(t *testing.T) {
	client := newFakeClient()
	ref := resourceRef{gvr: deploymentGVR, namespace: "agent-system", obj: deploymentObj("hello-world", 1)}
	require.NoError(t, applyOne(context.Background(), client, ref, "hello-world"))

	require.NoError(t, deleteOne(context.Background(), client, ref))

	_, err := client.Resource(deploymentGVR).Namespace("agent-system").Get(context.Background(), "hello-world", metav1.GetOptions{})
	require.Error(t, err)
}

func TestSanitizeLabelValueTruncatesLongIDs(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "a"
	}
	assert.Len(t, sanitizeLabelValue(long), 63)
}
