package agenttype

import (
	"embed"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"sigs.k8s.io/yaml"

	"github.com/opsfleet/agent-control/internal/acerrors"
	"github.com/opsfleet/agent-control/internal/types"
)

//go:embed embedded/*.yaml
var embeddedFS embed.FS

// Registry is the immutable-after-init lookup table from AgentTypeID to
// AgentTypeDefinition, populated by the embedded built-ins and any
// dynamic overrides found on disk.
type Registry struct {
	defs map[string]*AgentTypeDefinition
}

// Get returns the definition for id, or acerrors.ErrNotFound.
func (r *Registry) Get(id types.AgentTypeID) (*AgentTypeDefinition, error) {
	def, ok := r.defs[id.Key()]
	if !ok {
		return nil, errors.Wrapf(acerrors.ErrNotFound, "agent type %s", id.Key())
	}
	return def, nil
}

// Len reports how many agent types are currently registered, embedded and
// dynamic combined.
func (r *Registry) Len() int { return len(r.defs) }

// LoadEmbedded parses every embedded definition. A parse error, or two
// embedded definitions sharing an AgentTypeID, is a fatal initialization
// failure: the caller is expected to treat a non-nil error
// here as cause to abort startup.
func LoadEmbedded(logger logrus.FieldLogger) (*Registry, error) {
	entries, err := embeddedFS.ReadDir("embedded")
	if err != nil {
		return nil, errors.Wrap(err, "reading embedded agent type directory")
	}

	r := &Registry{defs: map[string]*AgentTypeDefinition{}}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := embeddedFS.ReadFile(filepath.Join("embedded", entry.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "reading embedded agent type %s", entry.Name())
		}
		def, err := parseDefinition(data)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing embedded agent type %s", entry.Name())
		}
		key := def.ID.Key()
		if _, exists := r.defs[key]; exists {
			return nil, errors.Wrapf(acerrors.ErrAlreadyExists, "embedded agent type %s", key)
		}
		r.defs[key] = def
		logger.WithField("agent_type", key).Debug("loaded embedded agent type")
	}
	return r, nil
}

// LoadDynamic scans dir for user-supplied agent type files, which replace
// embedded entries sharing the same AgentTypeID. Parse errors on dynamic
// files are logged and the file is skipped, never fatal.
func (r *Registry) LoadDynamic(logger logrus.FieldLogger, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "reading dynamic agent type directory %s", dir)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logger.WithError(err).WithField("file", path).Warn("skipping unreadable dynamic agent type")
			continue
		}
		def, err := parseDefinition(data)
		if err != nil {
			logger.WithError(err).WithField("file", path).Warn("skipping invalid dynamic agent type")
			continue
		}
		key := def.ID.Key()
		if _, existed := r.defs[key]; existed {
			logger.WithField("agent_type", key).Info("dynamic agent type overrides embedded definition")
		}
		r.defs[key] = def
	}
	return nil
}

func parseDefinition(data []byte) (*AgentTypeDefinition, error) {
	var doc definitionDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Namespace == "" || doc.Name == "" || doc.Version == "" {
		return nil, errors.New("agent type document missing namespace/name/version")
	}
	def := doc.AgentTypeDefinition
	def.ID = types.AgentTypeID{Namespace: doc.Namespace, Name: doc.Name, Version: doc.Version}
	return &def, nil
}
