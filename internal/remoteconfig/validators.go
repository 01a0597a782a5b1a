package remoteconfig

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	yamlv2 "gopkg.in/yaml.v2"

	"github.com/opsfleet/agent-control/internal/agenttype"
	"github.com/opsfleet/agent-control/internal/template"
	"github.com/opsfleet/agent-control/internal/types"
)

// Validator is one link in the validation chain.
// Validators run in configured array order; the first failure stops the
// chain.
type Validator interface {
	Validate(ctx context.Context, agentID types.AgentID, payload types.Values) error
}

// SignatureValidator abstracts the signature-verification step. Its real
// implementation (certificate fetch + verify, per original_source's
// signature/verifier.rs) is outside this core's scope; tests
// and deployments without signature enforcement use AllowAll.
type SignatureValidator interface {
	Validate(ctx context.Context, agentID types.AgentID, payload types.Values, signature []byte) error
}

// AllowAllSignatureValidator accepts every payload unconditionally.
type AllowAllSignatureValidator struct{}

func (AllowAllSignatureValidator) Validate(context.Context, types.AgentID, types.Values, []byte) error {
	return nil
}

// signatureAdapter lifts a SignatureValidator (which needs the raw
// signature bytes, carried out of band) into the plain Validator
// interface used by the chain.
type signatureAdapter struct {
	inner     SignatureValidator
	signature []byte
}

func (a signatureAdapter) Validate(ctx context.Context, agentID types.AgentID, payload types.Values) error {
	return a.inner.Validate(ctx, agentID, payload, a.signature)
}

// NewSignatureValidator wraps inner for use in a Chain, binding the
// signature bytes observed alongside this particular remote message.
func NewSignatureValidator(inner SignatureValidator, signature []byte) Validator {
	return signatureAdapter{inner: inner, signature: signature}
}

// SensitiveFieldValidator rejects payloads where a declared sensitive
// field's value matches a disallowed pattern (e.g. looks like a
// plaintext secret that should have been provided as a file variable).
type SensitiveFieldValidator struct {
	// Fields maps a dotted Values path to the regex its value must NOT
	// match.
	Fields map[string]*regexp.Regexp
}

func (v SensitiveFieldValidator) Validate(_ context.Context, _ types.AgentID, payload types.Values) error {
	for path, pattern := range v.Fields {
		var val interface{} = map[string]interface{}(payload)
		ok := true
		for _, key := range strings.Split(path, ".") {
			m, isMap := val.(map[string]interface{})
			if !isMap {
				ok = false
				break
			}
			if val, ok = m[key]; !ok {
				break
			}
		}
		if !ok {
			continue
		}
		s, ok := val.(string)
		if !ok {
			continue
		}
		if pattern.MatchString(s) {
			return errors.Errorf("sensitive field %q matches disallowed pattern", path)
		}
	}
	return nil
}

// rawNodeScan is a secondary decode path (gopkg.in/yaml.v2) run over each
// payload body before the canonical sigs.k8s.io/yaml decode: the strict
// yaml.v2 decode rejects duplicate mapping keys and non-mapping documents,
// both of which the JSON-shaped decode would silently collapse. Kept as
// its own helper so the canonical marshal path (sigs.k8s.io/yaml, used by
// internal/values) stays the only place that writes to disk.
func rawNodeScan(raw []byte) (map[interface{}]interface{}, error) {
	var node map[interface{}]interface{}
	if err := yamlv2.UnmarshalStrict(raw, &node); err != nil {
		return nil, errors.Wrap(err, "scanning raw yaml node tree")
	}
	return node, nil
}

// SchemaValidator binds payload against the relevant agent type's schema
// without persisting side effects.
type SchemaValidator struct {
	Registry *agenttype.Registry
	TypeID   types.AgentTypeID
}

func (v SchemaValidator) Validate(_ context.Context, _ types.AgentID, payload types.Values) error {
	def, err := v.Registry.Get(v.TypeID)
	if err != nil {
		return err
	}
	_, err = template.Bind(def, payload)
	return err
}

// Chain runs validators in order, stopping at the first failure.
func Chain(ctx context.Context, agentID types.AgentID, payload types.Values, validators []Validator) error {
	for _, v := range validators {
		if err := v.Validate(ctx, agentID, payload); err != nil {
			return err
		}
	}
	return nil
}
