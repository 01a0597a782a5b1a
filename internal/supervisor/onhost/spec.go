// Package onhost implements the on-host variant of the Sub-Agent
// Supervisor: spawning child processes for each declared
// executable, multiplexing their stdio, and running the restart-policy
// monitor loop per executable.
package onhost

import (
	"github.com/pkg/errors"
)

// Executable is one declared child process from an agent type's on_host
// deployment template, after rendering.
type Executable struct {
	ID   string
	Path string
	Args []string
	Env  map[string]string
	// RestartExitCodes is the set of exit codes that trigger a retry;
	// empty means any exit triggers one.
	RestartExitCodes []int
}

// ParseDeployment decodes a rendered on_host deployment tree (as produced
// by internal/assembler) into its executables. The expected shape is
// {"executables": [{"id": ..., "path": ..., "args": [...], "env": {...}}]}.
func ParseDeployment(deployment interface{}) ([]Executable, error) {
	root, ok := deployment.(map[string]interface{})
	if !ok {
		return nil, errors.New("on_host deployment: expected a map at the root")
	}
	raw, ok := root["executables"]
	if !ok {
		return nil, errors.New("on_host deployment: missing \"executables\"")
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, errors.New("on_host deployment: \"executables\" must be a list")
	}

	out := make([]Executable, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("on_host deployment: executables[%d] must be a map", i)
		}
		exe := Executable{Env: map[string]string{}}
		if id, ok := m["id"].(string); ok {
			exe.ID = id
		} else {
			return nil, errors.Errorf("on_host deployment: executables[%d] missing string \"id\"", i)
		}
		if path, ok := m["path"].(string); ok {
			exe.Path = path
		} else {
			return nil, errors.Errorf("on_host deployment: executables[%d] missing string \"path\"", i)
		}
		if args, ok := m["args"].([]interface{}); ok {
			for _, a := range args {
				s, ok := a.(string)
				if !ok {
					return nil, errors.Errorf("on_host deployment: executables[%d].args must all be strings", i)
				}
				exe.Args = append(exe.Args, s)
			}
		}
		if env, ok := m["env"].(map[string]interface{}); ok {
			for k, v := range env {
				s, ok := v.(string)
				if !ok {
					return nil, errors.Errorf("on_host deployment: executables[%d].env.%s must be a string", i, k)
				}
				exe.Env[k] = s
			}
		}
		if codes, ok := m["restart_exit_codes"].([]interface{}); ok {
			for _, c := range codes {
				switch n := c.(type) {
				case float64:
					exe.RestartExitCodes = append(exe.RestartExitCodes, int(n))
				case int:
					exe.RestartExitCodes = append(exe.RestartExitCodes, n)
				default:
					return nil, errors.Errorf("on_host deployment: executables[%d].restart_exit_codes must all be numbers", i)
				}
			}
		}
		out = append(out, exe)
	}
	return out, nil
}

// ShouldRestart reports whether exitCode warrants a retry for exe.
func (e Executable) ShouldRestart(exitCode int) bool {
	if len(e.RestartExitCodes) == 0 {
		return true
	}
	for _, c := range e.RestartExitCodes {
		if c == exitCode {
			return true
		}
	}
	return false
}
