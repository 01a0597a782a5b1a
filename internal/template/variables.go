package template

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/opsfleet/agent-control/internal/agenttype"
	"github.com/opsfleet/agent-control/internal/types"
)

// BindResult is the output of binding a Values document to an agent type's
// schema: the realized Variables table plus any file-typed variables that
// must be persisted to disk before the sub-agent starts.
type BindResult struct {
	Variables types.Variables
	Files     []types.FileValue
}

// Bind type-checks values against def's schema and resolves required,
// default and final variables per the required/default/final resolution rules.
//
// Binding happens before any rendering: type checking happens
// before render, with a precise path-in-error on mismatch.
func Bind(def *agenttype.AgentTypeDefinition, values types.Values) (*BindResult, error) {
	result := &BindResult{Variables: types.Variables{}}

	for name, varDef := range def.Variables {
		raw, supplied := values[name]

		var value interface{}
		switch {
		case varDef.Final != nil:
			value = varDef.Final
		case supplied:
			value = raw
		case varDef.Default != nil:
			value = varDef.Default
		case varDef.Required:
			return nil, errors.Errorf("path %q: required variable has no value", name)
		default:
			continue // optional, unset, no default: simply absent from Variables
		}

		coerced, err := coerce(name, varDef.Kind, value)
		if err != nil {
			return nil, err
		}
		result.Variables[name] = coerced

		if fv, ok := coerced.(types.FileValue); ok {
			fv.Path = varDef.Path
			result.Variables[name] = fv
			result.Files = append(result.Files, fv)
		}
		if fvs, ok := coerced.(map[string]types.FileValue); ok {
			for key, fv := range fvs {
				fv.Path = varDef.Path + "/" + key
				fvs[key] = fv
				result.Files = append(result.Files, fv)
			}
		}
	}

	return result, nil
}

// coerce type-checks and converts value against kind, returning a precise
// path-in-error on mismatch.
func coerce(path string, kind types.VariableKind, value interface{}) (interface{}, error) {
	switch kind {
	case types.KindString:
		s, ok := value.(string)
		if !ok {
			return nil, errors.Errorf("path %q: expected string, got %T", path, value)
		}
		return s, nil
	case types.KindBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, errors.Errorf("path %q: expected bool, got string %q", path, v)
			}
			return b, nil
		default:
			return nil, errors.Errorf("path %q: expected bool, got %T", path, value)
		}
	case types.KindNumber:
		switch v := value.(type) {
		case float64, int, int64:
			return v, nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, errors.Errorf("path %q: expected number, got string %q", path, v)
			}
			return f, nil
		default:
			return nil, errors.Errorf("path %q: expected number, got %T", path, value)
		}
	case types.KindYAMLValue:
		return value, nil
	case types.KindFile:
		content, err := fileContent(path, value)
		if err != nil {
			return nil, err
		}
		return types.FileValue{Content: content}, nil
	case types.KindMapString:
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("path %q: expected map<string,string>, got %T", path, value)
		}
		out := make(map[string]string, len(m))
		for k, v := range m {
			s, ok := v.(string)
			if !ok {
				return nil, errors.Errorf("path %q.%s: expected string, got %T", path, k, v)
			}
			out[k] = s
		}
		return out, nil
	case types.KindMapFile:
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("path %q: expected map<string,file>, got %T", path, value)
		}
		out := make(map[string]types.FileValue, len(m))
		for k, v := range m {
			content, err := fileContent(fmt.Sprintf("%s.%s", path, k), v)
			if err != nil {
				return nil, err
			}
			out[k] = types.FileValue{Content: content}
		}
		return out, nil
	default:
		return nil, errors.Errorf("path %q: unknown variable kind %q", path, kind)
	}
}

func fileContent(path string, value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, errors.Errorf("path %q: expected file content (string), got %T", path, value)
	}
}
