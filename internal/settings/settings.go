package settings

import (
	"fmt"
	"maps"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"marlin/internal/logging"
)

// Settings is the fully resolved configuration for one process. Fields
// hold final values only; raw input never survives construction. The
// struct is a plain value so snapshots can copy it wholesale.
type Settings struct {
	Home     string `yaml:"home"`
	TestMode bool   `yaml:"test_mode"`

	Verbose         bool   `yaml:"verbose"`
	LogLevel        string `yaml:"log_level"`
	LogConsoleWidth int    `yaml:"log_console_width"`

	LLMModel                  string            `yaml:"llm_model"`
	LLMBackend                Backend           `yaml:"llm_backend"`
	LLMMaxTokens              int               `yaml:"llm_max_tokens"`
	LLMTemperature            float64           `yaml:"llm_temperature"`
	LLMRequestTimeout         time.Duration     `yaml:"llm_request_timeout"`
	LLMModelForResponseFormat string            `yaml:"llm_model_for_response_format"`
	LLMExtraHeaders           map[string]string `yaml:"llm_extra_headers,omitempty"`

	EmbeddingsCachePath     string `yaml:"embeddings_cache_path"`
	EmbeddingsCacheWarnSize int64  `yaml:"embeddings_cache_warn_size"`

	OpenAIAPIKey       Secret `yaml:"openai_api_key"`
	OpenAIOrganization string `yaml:"openai_organization"`
	OpenAIAPIBase      string `yaml:"openai_api_base"`

	AnthropicAPIKey Secret `yaml:"anthropic_api_key"`

	HuggingFaceHubAPIToken Secret `yaml:"huggingfacehub_api_token"`

	DatabaseEcho                           bool   `yaml:"database_echo"`
	DatabaseConnectionURL                  Secret `yaml:"database_connection_url"`
	DatabaseCheckMigrationVersionOnStartup bool   `yaml:"database_check_migration_version_on_startup"`

	GitHubToken        Secret `yaml:"github_token"`
	RedisConnectionURL Secret `yaml:"redis_connection_url"`

	BotCreateProfilePicture bool `yaml:"bot_create_profile_picture"`
	BotMaxIterations        int  `yaml:"bot_max_iterations"`
	BotLoadDefaultPlugins   bool `yaml:"bot_load_default_plugins"`

	SlackBotName  string `yaml:"slack_bot_name"`
	SlackAPIToken Secret `yaml:"slack_api_token"`

	APIBaseURL string `yaml:"api_base_url"`
	APIPort    int    `yaml:"api_port"`
	APIReload  bool   `yaml:"api_reload"`

	Chroma ChromaSettings `yaml:"chroma"`

	onLogLevelChange func()
	logger           logging.Logger
}

// ChromaSettings configures the vector store connection.
type ChromaSettings struct {
	ServerHost       string `yaml:"server_host"`
	ServerHTTPPort   int    `yaml:"server_http_port"`
	PersistDirectory string `yaml:"persist_directory"`
}

// OnLogLevelChange registers a callback fired after every successful
// log_level update through Set. Restoring a snapshot writes values back
// directly and does not fire it.
func (s *Settings) OnLogLevelChange(fn func()) {
	s.onLogLevelChange = fn
}

// chromaFieldPrefix addresses nested vector-store fields through Set.
const chromaFieldPrefix = "chroma."

// Set updates one field by its schema name, coercing value the same way
// the loader coerces raw input. Nested fields use the "chroma." prefix.
func (s *Settings) Set(name string, value any) error {
	schema := defaultSchema
	lookup := name
	if strings.HasPrefix(name, chromaFieldPrefix) {
		schema = chromaSchema
		lookup = strings.TrimPrefix(name, chromaFieldPrefix)
	}
	f, err := schema.Lookup(lookup)
	if err != nil {
		return err
	}
	if err := s.apply(f, value); err != nil {
		return err
	}
	if name == "log_level" && s.onLogLevelChange != nil {
		s.onLogLevelChange()
	}
	return nil
}

// Get returns the current value of one field by its schema name.
func (s *Settings) Get(name string) (any, error) {
	schema := defaultSchema
	lookup := name
	if strings.HasPrefix(name, chromaFieldPrefix) {
		schema = chromaSchema
		lookup = strings.TrimPrefix(name, chromaFieldPrefix)
	}
	f, err := schema.Lookup(lookup)
	if err != nil {
		return nil, err
	}
	return s.value(f), nil
}

// apply coerces value for the field and stores it. Field names are
// unique across the top-level and nested schemas, so one switch covers
// both.
func (s *Settings) apply(f Field, value any) error {
	switch f.Name {
	case "home":
		return assignString(f, value, &s.Home)
	case "test_mode":
		return assignBool(f, value, &s.TestMode)
	case "verbose":
		return assignBool(f, value, &s.Verbose)
	case "log_level":
		level, err := coerceEnum(f, value, func(raw string) (string, bool) {
			upper := strings.ToUpper(strings.TrimSpace(raw))
			for _, known := range f.Enum {
				if upper == known {
					return upper, true
				}
			}
			return "", false
		})
		if err != nil {
			return err
		}
		s.LogLevel = level
		return nil
	case "log_console_width":
		return assignInt(f, value, &s.LogConsoleWidth)
	case "llm_model":
		return assignString(f, value, &s.LLMModel)
	case "llm_backend":
		backend, err := coerceEnum(f, value, func(raw string) (Backend, bool) {
			return ParseBackend(raw)
		})
		if err != nil {
			return err
		}
		s.LLMBackend = backend
		return nil
	case "llm_max_tokens":
		return assignInt(f, value, &s.LLMMaxTokens)
	case "llm_temperature":
		return assignFloat(f, value, &s.LLMTemperature)
	case "llm_request_timeout":
		return assignDuration(f, value, &s.LLMRequestTimeout)
	case "llm_model_for_response_format":
		return assignString(f, value, &s.LLMModelForResponseFormat)
	case "llm_extra_headers":
		headers, err := coerceStringMap(f, value)
		if err != nil {
			return err
		}
		s.LLMExtraHeaders = headers
		return nil
	case "embeddings_cache_path":
		return assignString(f, value, &s.EmbeddingsCachePath)
	case "embeddings_cache_warn_size":
		return assignInt64(f, value, &s.EmbeddingsCacheWarnSize)
	case "openai_api_key":
		return assignSecret(f, value, &s.OpenAIAPIKey)
	case "openai_organization":
		return assignString(f, value, &s.OpenAIOrganization)
	case "openai_api_base":
		return assignString(f, value, &s.OpenAIAPIBase)
	case "anthropic_api_key":
		return assignSecret(f, value, &s.AnthropicAPIKey)
	case "huggingfacehub_api_token":
		return assignSecret(f, value, &s.HuggingFaceHubAPIToken)
	case "database_echo":
		return assignBool(f, value, &s.DatabaseEcho)
	case "database_connection_url":
		return assignSecret(f, value, &s.DatabaseConnectionURL)
	case "database_check_migration_version_on_startup":
		return assignBool(f, value, &s.DatabaseCheckMigrationVersionOnStartup)
	case "github_token":
		return assignSecret(f, value, &s.GitHubToken)
	case "redis_connection_url":
		return assignSecret(f, value, &s.RedisConnectionURL)
	case "bot_create_profile_picture":
		return assignBool(f, value, &s.BotCreateProfilePicture)
	case "bot_max_iterations":
		return assignInt(f, value, &s.BotMaxIterations)
	case "bot_load_default_plugins":
		return assignBool(f, value, &s.BotLoadDefaultPlugins)
	case "slack_bot_name":
		return assignString(f, value, &s.SlackBotName)
	case "slack_api_token":
		return assignSecret(f, value, &s.SlackAPIToken)
	case "api_base_url":
		return assignString(f, value, &s.APIBaseURL)
	case "api_port":
		return assignInt(f, value, &s.APIPort)
	case "api_reload":
		return assignBool(f, value, &s.APIReload)
	case "server_host":
		return assignString(f, value, &s.Chroma.ServerHost)
	case "server_http_port":
		return assignInt(f, value, &s.Chroma.ServerHTTPPort)
	case "persist_directory":
		return assignString(f, value, &s.Chroma.PersistDirectory)
	default:
		return &UnknownFieldError{Name: f.Name}
	}
}

// value returns the current value for a field descriptor.
func (s *Settings) value(f Field) any {
	switch f.Name {
	case "home":
		return s.Home
	case "test_mode":
		return s.TestMode
	case "verbose":
		return s.Verbose
	case "log_level":
		return s.LogLevel
	case "log_console_width":
		return s.LogConsoleWidth
	case "llm_model":
		return s.LLMModel
	case "llm_backend":
		return s.LLMBackend
	case "llm_max_tokens":
		return s.LLMMaxTokens
	case "llm_temperature":
		return s.LLMTemperature
	case "llm_request_timeout":
		return s.LLMRequestTimeout
	case "llm_model_for_response_format":
		return s.LLMModelForResponseFormat
	case "llm_extra_headers":
		return maps.Clone(s.LLMExtraHeaders)
	case "embeddings_cache_path":
		return s.EmbeddingsCachePath
	case "embeddings_cache_warn_size":
		return s.EmbeddingsCacheWarnSize
	case "openai_api_key":
		return s.OpenAIAPIKey
	case "openai_organization":
		return s.OpenAIOrganization
	case "openai_api_base":
		return s.OpenAIAPIBase
	case "anthropic_api_key":
		return s.AnthropicAPIKey
	case "huggingfacehub_api_token":
		return s.HuggingFaceHubAPIToken
	case "database_echo":
		return s.DatabaseEcho
	case "database_connection_url":
		return s.DatabaseConnectionURL
	case "database_check_migration_version_on_startup":
		return s.DatabaseCheckMigrationVersionOnStartup
	case "github_token":
		return s.GitHubToken
	case "redis_connection_url":
		return s.RedisConnectionURL
	case "bot_create_profile_picture":
		return s.BotCreateProfilePicture
	case "bot_max_iterations":
		return s.BotMaxIterations
	case "bot_load_default_plugins":
		return s.BotLoadDefaultPlugins
	case "slack_bot_name":
		return s.SlackBotName
	case "slack_api_token":
		return s.SlackAPIToken
	case "api_base_url":
		return s.APIBaseURL
	case "api_port":
		return s.APIPort
	case "api_reload":
		return s.APIReload
	case "server_host":
		return s.Chroma.ServerHost
	case "server_http_port":
		return s.Chroma.ServerHTTPPort
	case "persist_directory":
		return s.Chroma.PersistDirectory
	default:
		return nil
	}
}

func (s *Settings) secretValue(name string) (Secret, bool) {
	f, err := defaultSchema.Lookup(name)
	if err != nil || f.Kind != KindSecret {
		return Secret{}, false
	}
	secret, ok := s.value(f).(Secret)
	return secret, ok
}

func (s *Settings) clone() Settings {
	copied := *s
	copied.LLMExtraHeaders = maps.Clone(s.LLMExtraHeaders)
	return copied
}

// Snapshot returns an independent copy of all field values.
func (s *Settings) Snapshot() Settings {
	return s.clone()
}

// Restore writes a snapshot's values back into s. Values are reinstated
// directly: no coercion runs and the log level hook does not fire. The
// registered hook and logger survive the restore.
func (s *Settings) Restore(snap Settings) {
	hook := s.onLogLevelChange
	logger := s.logger
	*s = snap
	s.LLMExtraHeaders = maps.Clone(snap.LLMExtraHeaders)
	s.onLogLevelChange = hook
	s.logger = logger
}

// ExportEnvFile writes every field as KEY=value lines readable by a
// later load. Secrets are written in plain text, so the file itself is
// sensitive; it is created with owner-only permissions.
func (s *Settings) ExportEnvFile(path string) error {
	var b strings.Builder
	for _, f := range defaultSchema.Fields() {
		fmt.Fprintf(&b, "%s=%s\n", defaultSchema.EnvKey(f), s.rawString(f))
	}
	for _, f := range chromaSchema.Fields() {
		fmt.Fprintf(&b, "%s=%s\n", chromaSchema.EnvKey(f), s.rawString(f))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("export settings: %w", err)
	}
	return nil
}

// rawString renders a field's current value back into the raw form the
// loader accepts.
func (s *Settings) rawString(f Field) string {
	value := s.value(f)
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case Backend:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Duration:
		return v.String()
	case Secret:
		return v.Value()
	case map[string]string:
		return joinStringMap(v)
	default:
		return fmt.Sprint(v)
	}
}

func joinStringMap(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+m[key])
	}
	return strings.Join(pairs, ",")
}

func coercionError(f Field, value any) *TypeCoercionError {
	return &TypeCoercionError{Field: f.Name, Raw: fmt.Sprint(value), Kind: f.Kind}
}

func assignString(f Field, value any, dst *string) error {
	v, ok := value.(string)
	if !ok {
		return coercionError(f, value)
	}
	*dst = v
	return nil
}

func assignBool(f Field, value any, dst *bool) error {
	switch v := value.(type) {
	case bool:
		*dst = v
		return nil
	case string:
		parsed, err := parseBoolEnv(v)
		if err != nil {
			return coercionError(f, value)
		}
		*dst = parsed
		return nil
	default:
		return coercionError(f, value)
	}
}

func assignInt(f Field, value any, dst *int) error {
	switch v := value.(type) {
	case int:
		*dst = v
		return nil
	case int64:
		*dst = int(v)
		return nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return coercionError(f, value)
		}
		*dst = parsed
		return nil
	default:
		return coercionError(f, value)
	}
}

func assignInt64(f Field, value any, dst *int64) error {
	switch v := value.(type) {
	case int64:
		*dst = v
		return nil
	case int:
		*dst = int64(v)
		return nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return coercionError(f, value)
		}
		*dst = parsed
		return nil
	default:
		return coercionError(f, value)
	}
}

func assignFloat(f Field, value any, dst *float64) error {
	switch v := value.(type) {
	case float64:
		*dst = v
		return nil
	case float32:
		*dst = float64(v)
		return nil
	case int:
		*dst = float64(v)
		return nil
	case string:
		parsed, err := parseFloatValue(v)
		if err != nil {
			return coercionError(f, value)
		}
		*dst = parsed
		return nil
	default:
		return coercionError(f, value)
	}
}

func assignDuration(f Field, value any, dst *time.Duration) error {
	switch v := value.(type) {
	case time.Duration:
		*dst = v
		return nil
	case int:
		*dst = time.Duration(v) * time.Second
		return nil
	case string:
		parsed, err := parseDurationValue(v)
		if err != nil {
			return coercionError(f, value)
		}
		*dst = parsed
		return nil
	default:
		return coercionError(f, value)
	}
}

func assignSecret(f Field, value any, dst *Secret) error {
	switch v := value.(type) {
	case Secret:
		*dst = v
		return nil
	case string:
		*dst = NewSecret(v)
		return nil
	default:
		return coercionError(f, value)
	}
}

// coerceEnum validates string input through match; already-typed values
// pass through as-is.
func coerceEnum[T any](f Field, value any, match func(string) (T, bool)) (T, error) {
	var zero T
	if raw, ok := value.(string); ok {
		matched, ok := match(raw)
		if !ok {
			return zero, coercionError(f, value)
		}
		return matched, nil
	}
	if typed, ok := value.(T); ok {
		return typed, nil
	}
	return zero, coercionError(f, value)
}

func coerceStringMap(f Field, value any) (map[string]string, error) {
	switch v := value.(type) {
	case map[string]string:
		return maps.Clone(v), nil
	case string:
		parsed, err := parseStringMap(v)
		if err != nil {
			return nil, coercionError(f, value)
		}
		return parsed, nil
	default:
		return nil, coercionError(f, value)
	}
}

func parseFloatValue(value string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(value), 64)
}
