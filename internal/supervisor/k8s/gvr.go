package k8s

import (
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// guessResource maps an object's Kind to its GroupVersionResource without a
// live discovery client, covering the handful of kinds an agent deployment
// realistically renders. Unknown kinds fall back to a lowercased-plural
// guess in the object's own group/version, which is correct for the vast
// majority of "Kind" -> "kinds" pluralizations.
func guessResource(u *unstructured.Unstructured) (schema.GroupVersionResource, bool) {
	gvk := u.GroupVersionKind()
	if info, ok := wellKnown[gvk.Kind]; ok {
		return schema.GroupVersionResource{Group: gvk.Group, Version: gvk.Version, Resource: info.resource}, info.namespaced
	}
	return gvk.GroupVersion().WithResource(pluralize(gvk.Kind)), true
}

type kindInfo struct {
	resource   string
	namespaced bool
}

var wellKnown = map[string]kindInfo{
	"Deployment":               {"deployments", true},
	"StatefulSet":              {"statefulsets", true},
	"DaemonSet":                {"daemonsets", true},
	"Job":                      {"jobs", true},
	"CronJob":                  {"cronjobs", true},
	"Service":                  {"services", true},
	"ConfigMap":                {"configmaps", true},
	"Secret":                   {"secrets", true},
	"ServiceAccount":           {"serviceaccounts", true},
	"PersistentVolumeClaim":    {"persistentvolumeclaims", true},
	"Role":                     {"roles", true},
	"RoleBinding":              {"rolebindings", true},
	"ClusterRole":              {"clusterroles", false},
	"ClusterRoleBinding":       {"clusterrolebindings", false},
	"Namespace":                {"namespaces", false},
	"CustomResourceDefinition": {"customresourcedefinitions", false},
}

func pluralize(kind string) string {
	lower := strings.ToLower(kind)
	switch {
	case strings.HasSuffix(lower, "s"):
		return lower + "es"
	case strings.HasSuffix(lower, "y"):
		return strings.TrimSuffix(lower, "y") + "ies"
	default:
		return lower + "s"
	}
}
