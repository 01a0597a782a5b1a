// Package config implements the typed control-plane configuration
// document: the agents map, fleet-control connection block, host
// identifier and logging block, plus a legacy on-disk shape migration
// run once at startup.
package config

import (
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// Config is the control-plane configuration document at <local-dir>/config.yaml
// and <remote-dir>/config.yaml.
type Config struct {
	Agents       map[string]AgentConfig `json:"agents,omitempty"`
	FleetControl FleetControl           `json:"fleet_control,omitempty"`
	HostID       string                 `json:"host_id,omitempty"`
	Log          Log                    `json:"log,omitempty"`
	K8s          K8s                    `json:"k8s,omitempty"`
}

// AgentConfig names the agent type a given sub-agent is bound to.
type AgentConfig struct {
	AgentType string `json:"agent_type"`
}

// FleetControl describes the upstream control-plane connection.
type FleetControl struct {
	Enabled    bool              `json:"enabled"`
	Endpoint   string            `json:"endpoint,omitempty"`
	AuthConfig map[string]string `json:"auth_config,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// Log configures the ambient logging stack.
type Log struct {
	Level  string  `json:"level,omitempty"`
	File   LogFile `json:"file,omitempty"`
	Format LogFmt  `json:"format,omitempty"`
}

// LogFile toggles on-disk log output alongside stdout.
type LogFile struct {
	Enabled bool `json:"enabled"`
}

// LogFmt configures formatter details shared by every emitted record.
type LogFmt struct {
	Target    bool `json:"target,omitempty"`
	Timestamp bool `json:"timestamp,omitempty"`
}

// K8s configures the cluster-variant build.
type K8s struct {
	ClusterName  string   `json:"cluster_name,omitempty"`
	Namespace    string   `json:"namespace,omitempty"`
	CRTypeMeta   TypeMeta `json:"cr_type_meta,omitempty"`
	ChartVersion string   `json:"chart_version,omitempty"`
}

// TypeMeta names the custom resource kind the cluster variant renders.
type TypeMeta struct {
	APIVersion string `json:"api_version,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

// Parse decodes raw YAML into a Config, migrating a legacy shape first.
// Unknown keys at the top level are ignored; unknown keys inside a typed
// sub-tree are rejected.
func Parse(raw []byte) (Config, bool, error) {
	migrated, didMigrate, err := Migrate(raw)
	if err != nil {
		return Config{}, false, errors.Wrap(err, "migrating control config")
	}

	var cfg Config
	if err := yaml.Unmarshal(migrated, &cfg); err != nil {
		return Config{}, false, errors.Wrap(err, "parsing control config")
	}
	if err := rejectUnknownSubTreeKeys(migrated); err != nil {
		return Config{}, false, err
	}
	return cfg, didMigrate, nil
}

// rejectUnknownSubTreeKeys re-decodes each recognized typed sub-tree in
// strict mode, so a typo inside agents/fleet_control/log/k8s surfaces as
// an error instead of being dropped on the floor, while genuinely unknown
// top-level keys stay ignored.
func rejectUnknownSubTreeKeys(raw []byte) error {
	var top map[string]interface{}
	if err := yaml.Unmarshal(raw, &top); err != nil {
		return errors.Wrap(err, "parsing control config")
	}

	strict := map[string]interface{}{
		"agents":        &map[string]AgentConfig{},
		"fleet_control": &FleetControl{},
		"log":           &Log{},
		"k8s":           &K8s{},
	}
	for key, target := range strict {
		sub, ok := top[key]
		if !ok {
			continue
		}
		data, err := yaml.Marshal(sub)
		if err != nil {
			return errors.Wrapf(err, "control config key %q", key)
		}
		if err := yaml.UnmarshalStrict(data, target); err != nil {
			return errors.Wrapf(err, "control config key %q", key)
		}
	}
	return nil
}

// legacyShape is the pre-fleet_control top-level document: the endpoint
// and enabled flag lived directly under the root instead of nested under
// fleet_control.
type legacyShape struct {
	Agents       map[string]AgentConfig `json:"agents,omitempty"`
	FleetControl *FleetControl          `json:"fleet_control,omitempty"`
	Enabled      *bool                  `json:"enabled,omitempty"`
	Endpoint     string                 `json:"endpoint,omitempty"`
	HostID       string                 `json:"host_id,omitempty"`
	Log          Log                    `json:"log,omitempty"`
	K8s          K8s                    `json:"k8s,omitempty"`
}

// Migrate detects a pre-fleet_control document (an "enabled"/"endpoint"
// pair at the root instead of nested under fleet_control) and rewrites it
// into the current shape. A document that already carries fleet_control
// is returned unchanged.
func Migrate(raw []byte) ([]byte, bool, error) {
	var probe map[string]interface{}
	if err := yaml.Unmarshal(raw, &probe); err != nil {
		return nil, false, errors.Wrap(err, "probing control config shape")
	}
	if _, hasFleetControl := probe["fleet_control"]; hasFleetControl {
		return raw, false, nil
	}
	if _, hasEnabled := probe["enabled"]; !hasEnabled {
		if _, hasEndpoint := probe["endpoint"]; !hasEndpoint {
			return raw, false, nil
		}
	}

	var legacy legacyShape
	if err := yaml.Unmarshal(raw, &legacy); err != nil {
		return nil, false, errors.Wrap(err, "parsing legacy control config")
	}

	fc := FleetControl{Endpoint: legacy.Endpoint}
	if legacy.Enabled != nil {
		fc.Enabled = *legacy.Enabled
	}

	rewritten := Config{
		Agents:       legacy.Agents,
		FleetControl: fc,
		HostID:       legacy.HostID,
		Log:          legacy.Log,
		K8s:          legacy.K8s,
	}

	out, err := yaml.Marshal(rewritten)
	if err != nil {
		return nil, false, errors.Wrap(err, "marshaling migrated control config")
	}
	return out, true, nil
}
