package settings

import (
	"errors"
	"testing"
)

func TestInferBackend(t *testing.T) {
	cases := []struct {
		model string
		want  Backend
	}{
		{"gpt-3.5-turbo", BackendOpenAIChat},
		{"gpt-4", BackendOpenAIChat},
		{"gpt-4-32k", BackendOpenAIChat},
		{"text-davinci-003", BackendOpenAI},
		{"text-curie-001", BackendOpenAI},
		{"text-babbage-001", BackendOpenAI},
		{"text-ada-001", BackendOpenAI},
		{"claude-2", BackendAnthropic},
		{"claude-instant-1", BackendAnthropic},
	}
	for _, tc := range cases {
		got, err := InferBackend(tc.model)
		if err != nil {
			t.Fatalf("InferBackend(%q) error = %v", tc.model, err)
		}
		if got != tc.want {
			t.Fatalf("InferBackend(%q) = %q, want %q", tc.model, got, tc.want)
		}
	}
}

func TestInferBackendUnknownModel(t *testing.T) {
	_, err := InferBackend("mistral-7b")
	var backendErr *UnresolvedBackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("InferBackend error = %v, want UnresolvedBackendError", err)
	}
}

func TestParseBackendIsCaseInsensitive(t *testing.T) {
	for _, raw := range []string{"anthropic", "ANTHROPIC", "Anthropic"} {
		got, ok := ParseBackend(raw)
		if !ok || got != BackendAnthropic {
			t.Fatalf("ParseBackend(%q) = %q, %v", raw, got, ok)
		}
	}
	if _, ok := ParseBackend("mystery"); ok {
		t.Fatal("ParseBackend accepted an unknown backend")
	}
}

func TestValidateRuleOrderRejectsForwardReads(t *testing.T) {
	schema := NewSchema("APP_", []Field{
		{Name: "alpha", Kind: KindString},
		{Name: "beta", Kind: KindString},
	})

	mustPanic := func(rules []inferenceRule) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Fatal("validateRuleOrder did not panic")
			}
		}()
		validateRuleOrder(schema, rules)
	}

	mustPanic([]inferenceRule{{field: "alpha", reads: []string{"beta"}}})
	mustPanic([]inferenceRule{{field: "alpha", reads: []string{"alpha"}}})
	mustPanic([]inferenceRule{{field: "missing", reads: nil}})
	mustPanic([]inferenceRule{{field: "beta", reads: []string{"missing"}}})

	validateRuleOrder(schema, []inferenceRule{{field: "beta", reads: []string{"alpha"}}})
}

func TestDeclaredRulesSatisfyDeclarationOrder(t *testing.T) {
	// Must not panic; it mirrors the init-time guard.
	validateRuleOrder(defaultSchema, inferenceRules)
}
