package probe

import (
	"context"
	"time"

	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"

	"github.com/opsfleet/agent-control/internal/events"
)

// ClusterChecker is the in-cluster "Cluster resource" health probe: polls
// the object's condition set and reports unhealthy with the first
// failing condition's message.
type ClusterChecker struct {
	Client    dynamic.Interface
	GVR       schema.GroupVersionResource
	Namespace string
	Name      string
	// HealthyStatus is the condition "status" value considered passing,
	// defaulting to "True" (the convention every k8s condition follows).
	HealthyStatus string
}

// Check implements Checker.
func (c *ClusterChecker) Check(ctx context.Context) (Result, error) {
	obj, err := c.get(ctx)
	if err != nil {
		return Result{}, err
	}

	conditions, _, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if err != nil {
		return Result{}, errors.Wrap(err, "reading status.conditions")
	}

	healthyStatus := c.HealthyStatus
	if healthyStatus == "" {
		healthyStatus = string(corev1.ConditionTrue)
	}

	now := uint64(time.Now().UnixNano())
	for _, raw := range conditions {
		cond, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		status, _, _ := unstructured.NestedString(cond, "status")
		if status != healthyStatus {
			message, _, _ := unstructured.NestedString(cond, "message")
			condType, _, _ := unstructured.NestedString(cond, "type")
			return Result{Health: &events.HealthUpdate{
				Healthy:            false,
				Status:             condType,
				LastError:          message,
				StatusTimeUnixNano: now,
			}}, nil
		}
	}

	return Result{Health: &events.HealthUpdate{
		Healthy:            true,
		Status:             "all conditions healthy",
		StatusTimeUnixNano: now,
	}}, nil
}

func (c *ClusterChecker) get(ctx context.Context) (*unstructured.Unstructured, error) {
	ri := c.Client.Resource(c.GVR)
	var iface dynamic.ResourceInterface = ri
	if c.Namespace != "" {
		iface = ri.Namespace(c.Namespace)
	}
	obj, err := iface.Get(ctx, c.Name, metav1.GetOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "getting %s/%s", c.GVR.Resource, c.Name)
	}
	return obj, nil
}
