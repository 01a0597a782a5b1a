// Package layout centralizes the on-disk directory structure and the
// write-rename discipline every store in this module relies on to avoid
// partially written files.
package layout

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	dirMode  = 0o700
	fileMode = 0o600
)

// Dirs are the three root directories the CLI accepts.
type Dirs struct {
	Local string
	Remote string
	Logs   string
}

// LocalValuesPath returns <local-dir>/<agent-id>/values/values.yaml.
func (d Dirs) LocalValuesPath(agentID string) string {
	return filepath.Join(d.Local, agentID, "values", "values.yaml")
}

// LocalAgentTypesDir returns <local-dir>/<agent-types>/ (dynamic overrides).
func (d Dirs) LocalAgentTypesDir() string {
	return filepath.Join(d.Local, "agent-types")
}

// LocalConfigPath returns <local-dir>/config.yaml.
func (d Dirs) LocalConfigPath() string {
	return filepath.Join(d.Local, "config.yaml")
}

// RemoteConfigPath returns <remote-dir>/config.yaml.
func (d Dirs) RemoteConfigPath() string {
	return filepath.Join(d.Remote, "config.yaml")
}

// IdentifiersPath returns <remote-dir>/identifiers.yaml.
func (d Dirs) IdentifiersPath() string {
	return filepath.Join(d.Remote, "identifiers.yaml")
}

// AgentDir returns <remote-dir>/fleet/agents.d/<agent-id>.
func (d Dirs) AgentDir(agentID string) string {
	return filepath.Join(d.Remote, "fleet", "agents.d", agentID)
}

// RemoteValuesPath returns the per-agent remote values document.
func (d Dirs) RemoteValuesPath(agentID string) string {
	return filepath.Join(d.AgentDir(agentID), "values", "values.yaml")
}

// RemoteConfigStatusPath returns the per-agent hash/state document.
func (d Dirs) RemoteConfigStatusPath(agentID string) string {
	return filepath.Join(d.AgentDir(agentID), "remote_config_status.yaml")
}

// LogDir returns <logs-dir>/<agent-id>.
func (d Dirs) LogDir(agentID string) string {
	return filepath.Join(d.Logs, agentID)
}

// RuntimeDir returns the per-agent directory file-typed variables are
// persisted under before the sub-agent starts, and
// that Supervisor.Stop removes on shutdown while preserving log files.
func (d Dirs) RuntimeDir(agentID string) string {
	return filepath.Join(d.AgentDir(agentID), "run")
}

// EnsureDir creates dir (and parents) with the mandated 0700 mode.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return errors.Wrapf(err, "creating directory %s", dir)
	}
	return nil
}

// WriteFileAtomic writes data to path using a write-rename discipline: it
// writes to a temp file in the same directory, fsyncs it, then renames it
// over path. A crash or failed write never leaves path partially written.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "creating temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "writing temp file %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "syncing temp file %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing temp file %s", tmpName)
	}
	if err := os.Chmod(tmpName, fileMode); err != nil {
		return errors.Wrapf(err, "chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "renaming %s to %s", tmpName, path)
	}
	return nil
}

// ReadFile reads path, returning (nil, nil) if it does not exist so callers
// can express "Option<Values>"-style absence without a sentinel error.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return data, nil
}

// RemoveAll removes dir and everything under it, tolerating a missing dir.
func RemoveAll(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "removing %s", dir)
	}
	return nil
}
