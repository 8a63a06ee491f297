package settings

import (
	"fmt"
	"strings"
)

// UnknownFieldError reports a lookup for a field name that was never
// declared in the schema.
type UnknownFieldError struct {
	Name string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown settings field %q", e.Name)
}

// MissingRequiredFieldError reports every hard-required field that was
// still unresolved after the full pipeline ran. All missing fields are
// carried in one error so a single load attempt surfaces them together.
type MissingRequiredFieldError struct {
	Fields []string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("missing required settings: %s", strings.Join(e.Fields, ", "))
}

// UnresolvedBackendError reports a model name whose backend could not be
// inferred and for which no explicit backend was supplied.
type UnresolvedBackendError struct {
	Model string
}

func (e *UnresolvedBackendError) Error() string {
	return fmt.Sprintf("no LLM backend provided and none could be inferred from llm_model %q", e.Model)
}

// TypeCoercionError reports a raw value that does not parse as its
// field's declared kind.
type TypeCoercionError struct {
	Field string
	Raw   string
	Kind  Kind
}

func (e *TypeCoercionError) Error() string {
	return fmt.Sprintf("settings field %s: cannot parse %q as %s", e.Field, e.Raw, e.Kind)
}
