// Package k8s implements the in-cluster variant of the Sub-Agent
// Supervisor: applying rendered Kubernetes objects
// (create-or-update-if-differs), tracking the owned object set for later
// reconciliation and deletion, and a garbage-collector loop that
// recreates manually-deleted objects at the next tick rather than
// immediately.
package k8s

import (
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// ParseDeployment decodes a rendered k8s deployment tree into the list of
// objects to apply. The expected shape is {"objects": [<k8s object>, ...]}.
func ParseDeployment(deployment interface{}) ([]*unstructured.Unstructured, error) {
	root, ok := deployment.(map[string]interface{})
	if !ok {
		return nil, errors.New("k8s deployment: expected a map at the root")
	}
	raw, ok := root["objects"]
	if !ok {
		return nil, errors.New("k8s deployment: missing \"objects\"")
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, errors.New("k8s deployment: \"objects\" must be a list")
	}

	out := make([]*unstructured.Unstructured, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("k8s deployment: objects[%d] must be a map", i)
		}
		u := &unstructured.Unstructured{Object: m}
		if u.GetAPIVersion() == "" || u.GetKind() == "" {
			return nil, errors.Errorf("k8s deployment: objects[%d] missing apiVersion/kind", i)
		}
		if u.GetName() == "" {
			return nil, errors.Errorf("k8s deployment: objects[%d] missing metadata.name", i)
		}
		out = append(out, u)
	}
	return out, nil
}
