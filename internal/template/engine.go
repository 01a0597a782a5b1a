// Package template implements the Template & Variable Engine: literal, non-recursive substitution of ${nr-var:x}, ${nr-sub:x}
// and ${nr-ac:x} references across every leaf string of a rendered-config
// tree, plus schema binding (variables.go).
//
// Substitution is deliberately plain string replacement, not a general
// template language: the deployment templates this spec renders are YAML
// trees decoded into Go maps/slices, and only their leaf strings carry
// variable references. RenderGoTemplate below applies text/template with
// sprig's function set — the same combination the teacher's
// internal/cmd/controller/target/builder.go uses to render fleet.yaml
// customizations — to text that needs real control flow (loops,
// conditionals). It is a standalone function: the assembler does not call
// it, so agent deployment templates get the ${nr-*} substitution only.
package template

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"

	"github.com/opsfleet/agent-control/internal/types"
)

const (
	sigilVar = "nr-var"
	sigilSub = "nr-sub"
	sigilAc  = "nr-ac"
)

// Context carries the three variable tables a rendering pass draws from:
// user variables bound from the agent's Values (Vars), control-plane
// per-sub-agent identifiers (Sub), and control-plane constants (Ac).
type Context struct {
	Vars types.Variables
	Sub  map[string]string
	Ac   map[string]string
}

// Render walks tree (the decoded YAML deployment template) and returns a
// deep copy with every ${nr-var:x}/${nr-sub:x}/${nr-ac:x} reference in
// leaf strings replaced by its resolved value. Templating
// is performed on copies; tree is never mutated (rule 4). Substitution is
// non-recursive: a substituted value is not re-scanned for further
// references (invariant 5).
func (c Context) Render(tree interface{}) (interface{}, error) {
	return c.renderValue(tree, "$")
}

func (c Context) renderValue(v interface{}, path string) (interface{}, error) {
	switch t := v.(type) {
	case string:
		return c.renderString(t, path)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			rendered, err := c.renderValue(val, path+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			rendered, err := c.renderValue(val, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return v, nil // non-string leaves are left unchanged (rule: substitution is on leaf strings)
	}
}

// renderString replaces every ${sigil:name} occurrence in s with its
// resolved value, via one non-recursive scan-and-replace pass.
func (c Context) renderString(s string, path string) (string, error) {
	var sb strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			sb.WriteString(rest)
			break
		}
		end += start

		sb.WriteString(rest[:start])
		ref := rest[start+2 : end]
		resolved, err := c.resolveRef(ref, path)
		if err != nil {
			return "", err
		}
		sb.WriteString(resolved)
		rest = rest[end+1:]
	}
	return sb.String(), nil
}

func (c Context) resolveRef(ref string, path string) (string, error) {
	sigilName := strings.SplitN(ref, ":", 2)
	if len(sigilName) != 2 {
		return "", errors.Errorf("path %s: malformed variable reference %q", path, ref)
	}
	sigil, name := sigilName[0], sigilName[1]

	switch sigil {
	case sigilVar:
		val, ok := c.Vars[name]
		if !ok {
			return "", errors.Errorf("path %s: undefined user variable %q", path, name)
		}
		return stringifyVar(name, val)
	case sigilSub:
		val, ok := c.Sub[name]
		if !ok {
			return "", errors.Errorf("path %s: undefined sub-agent variable %q", path, name)
		}
		return val, nil
	case sigilAc:
		val, ok := c.Ac[name]
		if !ok {
			return "", errors.Errorf("path %s: undefined control-plane constant %q", path, name)
		}
		return val, nil
	default:
		return "", errors.Errorf("path %s: unknown variable sigil %q", path, sigil)
	}
}

func stringifyVar(name string, val interface{}) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case bool:
		return fmt.Sprintf("%t", v), nil
	case float64:
		return fmt.Sprintf("%g", v), nil
	case int, int64:
		return fmt.Sprintf("%d", v), nil
	case types.FileValue:
		return v.Path, nil // templates reference the persisted path, not raw content
	default:
		return "", errors.Errorf("variable %q: cannot render %T as a string leaf", name, v)
	}
}

// RenderGoTemplate evaluates text, which may contain {{ }} actions using
// the sprig function set, with data available as {{ .Vars.name }} /
// {{ .Ac.name }} / {{ .Sub.name }}. It is independent of the ${nr-*}
// substitution above and never participates in it; the assembler does not
// call it.
func RenderGoTemplate(name, text string, ctx Context) (string, error) {
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "parsing go-template %s", name)
	}
	var buf bytes.Buffer
	data := map[string]interface{}{
		"Vars": ctx.Vars,
		"Sub":  ctx.Sub,
		"Ac":   ctx.Ac,
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "executing go-template %s", name)
	}
	return buf.String(), nil
}
