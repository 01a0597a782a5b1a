package probe

import (
	"context"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"

	"github.com/opsfleet/agent-control/internal/events"
)

// VersionChecker is the in-cluster version probe: inspects a
// HelmRelease-shaped object and resolves the effective deployed version
// by preferring spec.chart.spec.version (when not the wildcard "*"),
// falling back to status.lastAttemptedRevision, and finally to the most
// recent entry of status.history sorted by firstDeployed.
type VersionChecker struct {
	Client    dynamic.Interface
	GVR       schema.GroupVersionResource
	Namespace string
	Name      string
	// AttributeName is the attribute key published with the resolved
	// version, e.g. "agent.version".
	AttributeName string
}

// Check implements Checker.
func (c *VersionChecker) Check(ctx context.Context) (Result, error) {
	ri := c.Client.Resource(c.GVR)
	var iface dynamic.ResourceInterface = ri
	if c.Namespace != "" {
		iface = ri.Namespace(c.Namespace)
	}
	obj, err := iface.Get(ctx, c.Name, metav1.GetOptions{})
	if err != nil {
		return Result{}, errors.Wrapf(err, "getting %s/%s", c.GVR.Resource, c.Name)
	}

	version := resolveVersion(obj)
	return Result{Attribute: &events.AttributeUpdate{Name: c.AttributeName, Value: version}}, nil
}

// resolveVersion picks the effective version per the HelmRelease
// precedence rule. A pinned spec version is trusted only if it parses as
// a semantic version; a typo'd pin falls through to the deployed
// revision rather than being reported verbatim.
func resolveVersion(obj *unstructured.Unstructured) string {
	if v, _, _ := unstructured.NestedString(obj.Object, "spec", "chart", "spec", "version"); v != "" && v != "*" {
		if _, err := semver.NewVersion(v); err == nil {
			return v
		}
	}
	if v, _, _ := unstructured.NestedString(obj.Object, "status", "lastAttemptedRevision"); v != "" {
		return v
	}

	history, _, _ := unstructured.NestedSlice(obj.Object, "status", "history")
	type entry struct {
		version       string
		firstDeployed string
	}
	entries := make([]entry, 0, len(history))
	for _, raw := range history {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		v, _, _ := unstructured.NestedString(m, "chartVersion")
		fd, _, _ := unstructured.NestedString(m, "firstDeployed")
		entries = append(entries, entry{version: v, firstDeployed: fd})
	}
	if len(entries) == 0 {
		return ""
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].firstDeployed < entries[j].firstDeployed })
	return entries[len(entries)-1].version
}
