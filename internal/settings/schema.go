package settings

import (
	"fmt"
	"strings"
)

// Kind is the declared type of a settings field.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindInt64
	KindFloat
	KindBool
	KindEnum
	KindPath
	KindDuration
	KindSecret
	KindStringMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindInt64:
		return "int64"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	case KindPath:
		return "path"
	case KindDuration:
		return "duration"
	case KindSecret:
		return "secret"
	case KindStringMap:
		return "string map"
	default:
		return "unknown"
	}
}

// Field declares one setting: its kind, default, and the environment
// variables that feed it. Descriptors are immutable once the schema is
// built.
type Field struct {
	Name string
	Kind Kind

	// Default is the raw form of the default value; it runs through the
	// same coercion as environment input. Empty means "no default".
	Default string

	// Aliases lists environment variables probed in priority order.
	// Empty means only the canonical <PREFIX><NAME> key is probed. The
	// order is per-field schema data, not a global rule: provider
	// credentials deliberately place the prefixed key before the
	// provider-conventional global one.
	Aliases []string

	// Required marks a field whose absence after the full pipeline
	// aborts construction.
	Required bool

	// SoftSecret marks a secret whose absence only degrades features;
	// a warning is emitted instead of an error.
	SoftSecret bool

	// Enum lists the accepted values for KindEnum fields.
	Enum []string

	Description string
}

// Schema is the closed set of field descriptors for one settings block.
// Every field ever read by an inference rule or validator must be
// declared here, so typos surface at schema definition time.
type Schema struct {
	prefix string
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema and panics on duplicate field names; the
// registry is static data, so a duplicate is a programming error.
func NewSchema(prefix string, fields []Field) *Schema {
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			panic("settings: field with empty name")
		}
		if _, dup := index[f.Name]; dup {
			panic(fmt.Sprintf("settings: duplicate field %q", f.Name))
		}
		index[f.Name] = i
	}
	return &Schema{prefix: prefix, fields: fields, index: index}
}

// Prefix returns the environment-variable prefix for this block.
func (s *Schema) Prefix() string {
	return s.prefix
}

// Fields returns the descriptors in declaration order.
func (s *Schema) Fields() []Field {
	return s.fields
}

// Lookup returns the descriptor for name.
func (s *Schema) Lookup(name string) (Field, error) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, &UnknownFieldError{Name: name}
	}
	return s.fields[i], nil
}

// fieldIndex returns the declaration position of name, or -1.
func (s *Schema) fieldIndex(name string) int {
	i, ok := s.index[name]
	if !ok {
		return -1
	}
	return i
}

// EnvKey returns the canonical prefixed environment variable for f.
func (s *Schema) EnvKey(f Field) string {
	return s.prefix + strings.ToUpper(f.Name)
}

// EnvKeys returns every environment variable probed for f, in priority
// order.
func (s *Schema) EnvKeys(f Field) []string {
	if len(f.Aliases) > 0 {
		return f.Aliases
	}
	return []string{s.EnvKey(f)}
}

const (
	// EnvPrefix addresses every top-level field as MARLIN_<NAME>.
	EnvPrefix = "MARLIN_"
	// ChromaEnvPrefix addresses the nested vector-store block.
	ChromaEnvPrefix = "MARLIN_CHROMA_"
)

var logLevels = []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

var defaultSchema = NewSchema(EnvPrefix, []Field{
	{Name: "home", Kind: KindPath, Default: "~/.marlin",
		Description: "Root directory for all marlin state; relative path fields resolve beneath it."},
	{Name: "test_mode", Kind: KindBool, Default: "false",
		Description: "Forces a deterministic, side-effect-free field cluster for tests."},

	// Logging.
	{Name: "verbose", Kind: KindBool, Default: "false"},
	{Name: "log_level", Kind: KindEnum, Default: "INFO", Enum: logLevels},
	{Name: "log_console_width", Kind: KindInt,
		Description: "Console width assumed by log rendering; zero means auto-detect."},

	// LLMs.
	{Name: "llm_model", Kind: KindString, Default: "gpt-3.5-turbo",
		Description: "An LLM model name compatible with the backend."},
	{Name: "llm_backend", Kind: KindEnum, Enum: backendNames(),
		Description: "A compatible LLM backend; inferred from llm_model when unset."},
	{Name: "llm_max_tokens", Kind: KindInt, Default: "1250"},
	{Name: "llm_temperature", Kind: KindFloat, Default: "0.8"},
	{Name: "llm_request_timeout", Kind: KindDuration, Default: "600s"},
	{Name: "llm_model_for_response_format", Kind: KindString,
		Description: "Model used solely for formatting responses; inferred from llm_model when unset."},
	{Name: "llm_extra_headers", Kind: KindStringMap,
		Description: "Additional headers passed to the LLM backend, as comma-separated key=value pairs."},

	// Embeddings.
	{Name: "embeddings_cache_path", Kind: KindPath, Default: "cache/embeddings.sqlite"},
	{Name: "embeddings_cache_warn_size", Kind: KindInt64, Default: "4000000000"},

	// OpenAI. Provider credentials also honor the provider's own
	// conventional variable, after the prefixed key.
	{Name: "openai_api_key", Kind: KindSecret, SoftSecret: true,
		Aliases: []string{"MARLIN_OPENAI_API_KEY", "OPENAI_API_KEY"}},
	{Name: "openai_organization", Kind: KindString},
	{Name: "openai_api_base", Kind: KindString},

	// Anthropic.
	{Name: "anthropic_api_key", Kind: KindSecret,
		Aliases: []string{"MARLIN_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"}},

	// Hugging Face Hub.
	{Name: "huggingfacehub_api_token", Kind: KindSecret,
		Aliases: []string{"MARLIN_HUGGINGFACEHUB_API_TOKEN", "HUGGINGFACEHUB_API_TOKEN"}},

	// Database.
	{Name: "database_echo", Kind: KindBool, Default: "false"},
	{Name: "database_connection_url", Kind: KindSecret,
		Default:     "sqlite://$MARLIN_HOME/marlin.sqlite",
		Description: "$MARLIN_HOME is interpolated with the resolved home directory."},
	{Name: "database_check_migration_version_on_startup", Kind: KindBool, Default: "true"},

	// Integrations.
	{Name: "github_token", Kind: KindSecret},
	{Name: "redis_connection_url", Kind: KindSecret},

	// Bots.
	{Name: "bot_create_profile_picture", Kind: KindBool, Default: "false",
		Description: "Generate a profile picture for new bots when they are saved."},
	{Name: "bot_max_iterations", Kind: KindInt, Default: "10"},
	{Name: "bot_load_default_plugins", Kind: KindBool, Default: "true"},

	// Slack.
	{Name: "slack_bot_name", Kind: KindString, Default: "Marlin"},
	{Name: "slack_api_token", Kind: KindSecret},

	// API.
	{Name: "api_base_url", Kind: KindString, Default: "http://127.0.0.1"},
	{Name: "api_port", Kind: KindInt, Default: "4200"},
	{Name: "api_reload", Kind: KindBool, Default: "false"},
})

// chromaSchema resolves the nested vector-store block under its own
// prefix, through the same pipeline.
var chromaSchema = NewSchema(ChromaEnvPrefix, []Field{
	{Name: "server_host", Kind: KindString, Default: "localhost"},
	{Name: "server_http_port", Kind: KindInt, Default: "8000"},
	{Name: "persist_directory", Kind: KindPath, Default: "chroma",
		Description: "Relative paths are prefixed with the marlin home directory."},
})

// DefaultSchema returns the top-level field registry.
func DefaultSchema() *Schema {
	return defaultSchema
}

// ChromaSchema returns the nested vector-store field registry.
func ChromaSchema() *Schema {
	return chromaSchema
}
