package settings

// Secret wraps a credential so it cannot leak through logs or casual
// serialization. Reading the plain value requires an explicit Value call.
type Secret struct {
	value string
}

// NewSecret wraps a plain value.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// Value returns the wrapped plain-text value.
func (s Secret) Value() string {
	return s.value
}

// IsSet reports whether the secret holds a non-empty value.
func (s Secret) IsSet() bool {
	return s.value != ""
}

const secretMask = "**********"

// String masks the value. Unset secrets render empty so output can
// distinguish "not configured" from "configured".
func (s Secret) String() string {
	if s.value == "" {
		return ""
	}
	return secretMask
}

// MarshalText masks the value; export paths must unwrap explicitly.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MarshalYAML masks the value for yaml.Marshal output.
func (s Secret) MarshalYAML() (any, error) {
	return s.String(), nil
}
