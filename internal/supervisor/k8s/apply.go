package k8s

import (
	"context"
	"time"

	"github.com/pkg/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
)

// GCPeriod is the interval between garbage-collection reconciliation
// passes for one cluster-variant supervisor: objects manually deleted out
// of band are recreated at the next tick, not immediately.
type GCPeriod time.Duration

const defaultGCPeriod = 30 * time.Second

func (p GCPeriod) orDefault() time.Duration {
	if p <= 0 {
		return defaultGCPeriod
	}
	return time.Duration(p)
}

type resourceRef struct {
	gvr       schema.GroupVersionResource
	namespace string
	obj       *unstructured.Unstructured
}

func (r resourceRef) iface(client dynamic.Interface) dynamic.ResourceInterface {
	if r.namespace == "" {
		return client.Resource(r.gvr)
	}
	return client.Resource(r.gvr).Namespace(r.namespace)
}

// applyOne creates the object if absent, or updates it in place if the
// live object differs from the desired spec (ownerLabel is stamped onto
// every applied object so a later GC pass can list exactly what this
// supervisor owns).
func applyOne(ctx context.Context, client dynamic.Interface, ref resourceRef, agentID string) error {
	desired := ref.obj.DeepCopy()
	labels := desired.GetLabels()
	if labels == nil {
		labels = map[string]string{}
	}
	labels[ownerLabelKey] = sanitizeLabelValue(agentID)
	desired.SetLabels(labels)

	ri := ref.iface(client)
	existing, err := ri.Get(ctx, desired.GetName(), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err := ri.Create(ctx, desired, metav1.CreateOptions{})
		return errors.Wrapf(err, "creating %s/%s", ref.gvr.Resource, desired.GetName())
	}
	if err != nil {
		return errors.Wrapf(err, "getting %s/%s", ref.gvr.Resource, desired.GetName())
	}

	if specEqual(existing, desired) {
		return nil
	}
	desired.SetResourceVersion(existing.GetResourceVersion())
	_, err = ri.Update(ctx, desired, metav1.UpdateOptions{})
	return errors.Wrapf(err, "updating %s/%s", ref.gvr.Resource, desired.GetName())
}

func deleteOne(ctx context.Context, client dynamic.Interface, ref resourceRef) error {
	err := ref.iface(client).Delete(ctx, ref.obj.GetName(), metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return errors.Wrapf(err, "deleting %s/%s", ref.gvr.Resource, ref.obj.GetName())
}

const ownerLabelKey = "agent-control.opsfleet.io/agent-id"

func sanitizeLabelValue(v string) string {
	if len(v) > 63 {
		return v[:63]
	}
	return v
}

// specEqual compares live and desired with metadata and status removed
// from both, since the live object always carries server-managed metadata
// (resourceVersion, uid, generation, ...) and status even when nothing
// meaningful changed. Everything else must match exactly; a change
// confined to metadata, such as labels or annotations, is not detected.
func specEqual(live, desired *unstructured.Unstructured) bool {
	a := live.DeepCopy()
	b := desired.DeepCopy()
	unstructured.RemoveNestedField(a.Object, "metadata")
	unstructured.RemoveNestedField(b.Object, "metadata")
	unstructured.RemoveNestedField(a.Object, "status")
	unstructured.RemoveNestedField(b.Object, "status")
	return mapsEqual(a.Object, b.Object)
}

func mapsEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if !valuesEqual(av, bv) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		return ok && mapsEqual(av, bv)
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
