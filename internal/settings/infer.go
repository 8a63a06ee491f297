package settings

import (
	"fmt"
	"strings"
)

// Backend identifies the LLM provider implementation a model routes to.
type Backend string

const (
	BackendOpenAI          Backend = "OpenAI"
	BackendAzureOpenAI     Backend = "AzureOpenAI"
	BackendOpenAIChat      Backend = "OpenAIChat"
	BackendAzureOpenAIChat Backend = "AzureOpenAIChat"
	BackendAnthropic       Backend = "Anthropic"
	BackendHuggingFaceHub  Backend = "HuggingFaceHub"
)

var backends = []Backend{
	BackendOpenAI,
	BackendAzureOpenAI,
	BackendOpenAIChat,
	BackendAzureOpenAIChat,
	BackendAnthropic,
	BackendHuggingFaceHub,
}

func backendNames() []string {
	names := make([]string, 0, len(backends))
	for _, b := range backends {
		names = append(names, string(b))
	}
	return names
}

// ParseBackend matches a backend name case-insensitively.
func ParseBackend(value string) (Backend, bool) {
	for _, b := range backends {
		if strings.EqualFold(value, string(b)) {
			return b, true
		}
	}
	return "", false
}

// backendPrefixes classifies common model names. The table does not have
// to be complete: an unmatched model with no explicit backend is a hard
// error, never a silent default, since a wrong backend routes requests
// to the wrong provider.
var backendPrefixes = []struct {
	prefix  string
	backend Backend
}{
	{"gpt-3", BackendOpenAIChat},
	{"gpt-4", BackendOpenAIChat},
	{"text-davinci", BackendOpenAI},
	{"text-curie", BackendOpenAI},
	{"text-babbage", BackendOpenAI},
	{"text-ada", BackendOpenAI},
	{"claude", BackendAnthropic},
}

// InferBackend classifies a model name into a backend.
func InferBackend(model string) (Backend, error) {
	for _, entry := range backendPrefixes {
		if strings.HasPrefix(model, entry.prefix) {
			return entry.backend, nil
		}
	}
	return "", &UnresolvedBackendError{Model: model}
}

// premiumModelPrefix marks models too expensive to waste on response
// formatting; a fixed cheaper model substitutes for them.
const (
	premiumModelPrefix   = "gpt-4"
	cheapFormattingModel = "gpt-3.5-turbo"
)

// inferenceRule derives one field's value from fields resolved earlier
// in declaration order, when no raw value was supplied for it.
type inferenceRule struct {
	field string
	reads []string
	apply func(s *Settings) error
}

// inferenceRules run in fixed order after raw loading. Each rule may
// only read fields declared earlier than its own; validateRuleOrder
// enforces that when the package initializes.
var inferenceRules = []inferenceRule{
	{
		field: "llm_backend",
		reads: []string{"llm_model"},
		apply: func(s *Settings) error {
			backend, err := InferBackend(s.LLMModel)
			if err != nil {
				return err
			}
			s.LLMBackend = backend
			return nil
		},
	},
	{
		field: "llm_model_for_response_format",
		reads: []string{"llm_model"},
		apply: func(s *Settings) error {
			if strings.HasPrefix(s.LLMModel, premiumModelPrefix) {
				s.LLMModelForResponseFormat = cheapFormattingModel
			} else {
				s.LLMModelForResponseFormat = s.LLMModel
			}
			return nil
		},
	},
}

// validateRuleOrder panics when a rule reads a field that is not
// declared strictly earlier than the rule's own field. A cycle or
// forward reference is a schema-definition bug, not a runtime
// condition.
func validateRuleOrder(schema *Schema, rules []inferenceRule) {
	for _, rule := range rules {
		own := schema.fieldIndex(rule.field)
		if own < 0 {
			panic(fmt.Sprintf("settings: inference rule for undeclared field %q", rule.field))
		}
		for _, read := range rule.reads {
			dep := schema.fieldIndex(read)
			if dep < 0 {
				panic(fmt.Sprintf("settings: inference rule for %q reads undeclared field %q", rule.field, read))
			}
			if dep >= own {
				panic(fmt.Sprintf("settings: inference rule for %q reads %q, which is not declared earlier", rule.field, read))
			}
		}
	}
}

func init() {
	validateRuleOrder(defaultSchema, inferenceRules)
}
