package types

// Values is the free-form mapping (string -> arbitrary YAML value)
// supplied by the user, before it is bound to an agent type's variable
// schema.
type Values map[string]interface{}

// Clone returns a deep-enough copy for template rendering, which must
// operate on copies and never mutate the template/values source.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = cloneValue(val)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// VariableKind enumerates the typed slots a VariableDefinition can declare.
type VariableKind string

const (
	KindString    VariableKind = "string"
	KindBool      VariableKind = "bool"
	KindNumber    VariableKind = "number"
	KindYAMLValue VariableKind = "yaml-value"
	KindFile      VariableKind = "file"
	KindMapString VariableKind = "map<string,string>"
	KindMapFile   VariableKind = "map<string,file>"
)

// FileValue is the realized value of a file-typed variable: content to be
// persisted at Path before the sub-agent starts.
type FileValue struct {
	Path    string
	Content []byte
}

// Variables is the fully realized table produced by binding Values to a
// type's schema, keyed by dotted path.
type Variables map[string]interface{}
