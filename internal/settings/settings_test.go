package settings

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"marlin/internal/logging"
)

func envLookup(values map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func loadForTest(t *testing.T, env map[string]string, extra ...Option) (*Settings, Metadata) {
	t.Helper()
	home := t.TempDir()
	opts := append([]Option{
		WithEnv(envLookup(env)),
		WithHomeDir(func() (string, error) { return home, nil }),
		WithLogger(logging.Nop()),
	}, extra...)
	s, meta, err := Load(opts...)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return s, meta
}

func TestLoadDefaults(t *testing.T) {
	s, meta := loadForTest(t, nil)

	if s.LLMModel != "gpt-3.5-turbo" {
		t.Fatalf("LLMModel = %q, want gpt-3.5-turbo", s.LLMModel)
	}
	if s.LLMMaxTokens != 1250 {
		t.Fatalf("LLMMaxTokens = %d, want 1250", s.LLMMaxTokens)
	}
	if s.LLMTemperature != 0.8 {
		t.Fatalf("LLMTemperature = %v, want 0.8", s.LLMTemperature)
	}
	if s.LLMRequestTimeout != 600*time.Second {
		t.Fatalf("LLMRequestTimeout = %v, want 10m", s.LLMRequestTimeout)
	}
	if s.LogLevel != "INFO" {
		t.Fatalf("LogLevel = %q, want INFO", s.LogLevel)
	}
	if s.APIPort != 4200 {
		t.Fatalf("APIPort = %d, want 4200", s.APIPort)
	}
	if s.SlackBotName != "Marlin" {
		t.Fatalf("SlackBotName = %q, want Marlin", s.SlackBotName)
	}
	if s.Chroma.ServerHost != "localhost" || s.Chroma.ServerHTTPPort != 8000 {
		t.Fatalf("Chroma = %+v, want localhost:8000", s.Chroma)
	}
	if meta.Source("llm_model") != SourceDefault {
		t.Fatalf("llm_model source = %q, want default", meta.Source("llm_model"))
	}
	if meta.Source("llm_backend") != SourceInferred {
		t.Fatalf("llm_backend source = %q, want inferred", meta.Source("llm_backend"))
	}
	if meta.LoadedAt().IsZero() {
		t.Fatal("LoadedAt is zero")
	}
}

func TestLoadResolvesHomeAndRelativePaths(t *testing.T) {
	s, _ := loadForTest(t, nil)

	if !filepath.IsAbs(s.Home) {
		t.Fatalf("Home = %q, want absolute", s.Home)
	}
	if filepath.Base(s.Home) != ".marlin" {
		t.Fatalf("Home = %q, want .marlin directory", s.Home)
	}
	if info, err := os.Stat(s.Home); err != nil || !info.IsDir() {
		t.Fatalf("home directory missing: %v", err)
	}
	if info, err := os.Stat(filepath.Join(s.Home, "cache")); err != nil || !info.IsDir() {
		t.Fatalf("cache directory missing: %v", err)
	}
	if !strings.HasPrefix(s.EmbeddingsCachePath, s.Home) {
		t.Fatalf("EmbeddingsCachePath = %q, want under %q", s.EmbeddingsCachePath, s.Home)
	}
	if !strings.HasPrefix(s.Chroma.PersistDirectory, s.Home) {
		t.Fatalf("PersistDirectory = %q, want under %q", s.Chroma.PersistDirectory, s.Home)
	}
	if info, err := os.Stat(s.Chroma.PersistDirectory); err != nil || !info.IsDir() {
		t.Fatalf("persist directory missing: %v", err)
	}

	wantURL := "sqlite://" + s.Home + "/marlin.sqlite"
	if got := s.DatabaseConnectionURL.Value(); got != wantURL {
		t.Fatalf("DatabaseConnectionURL = %q, want %q", got, wantURL)
	}
}

func TestLoadRelativeCachePathAnchorsUnderHome(t *testing.T) {
	home := t.TempDir()
	appHome := filepath.Join(home, ".app")
	s, _ := loadForTest(t, map[string]string{
		"MARLIN_HOME":                  appHome,
		"MARLIN_EMBEDDINGS_CACHE_PATH": "cache/embeddings.db",
	})

	want := filepath.Join(appHome, "cache", "embeddings.db")
	if s.EmbeddingsCachePath != want {
		t.Fatalf("EmbeddingsCachePath = %q, want %q", s.EmbeddingsCachePath, want)
	}
	if info, err := os.Stat(filepath.Dir(want)); err != nil || !info.IsDir() {
		t.Fatalf("cache parent directory missing: %v", err)
	}
}

func TestLoadNormalizationIsIdempotent(t *testing.T) {
	s, _ := loadForTest(t, nil)

	env := map[string]string{
		"MARLIN_HOME":                     s.Home,
		"MARLIN_EMBEDDINGS_CACHE_PATH":    s.EmbeddingsCachePath,
		"MARLIN_DATABASE_CONNECTION_URL":  s.DatabaseConnectionURL.Value(),
		"MARLIN_CHROMA_PERSIST_DIRECTORY": s.Chroma.PersistDirectory,
	}
	again, _ := loadForTest(t, env)

	if again.Home != s.Home {
		t.Fatalf("Home changed: %q -> %q", s.Home, again.Home)
	}
	if again.EmbeddingsCachePath != s.EmbeddingsCachePath {
		t.Fatalf("EmbeddingsCachePath changed: %q -> %q", s.EmbeddingsCachePath, again.EmbeddingsCachePath)
	}
	if again.DatabaseConnectionURL.Value() != s.DatabaseConnectionURL.Value() {
		t.Fatalf("DatabaseConnectionURL changed")
	}
	if again.Chroma.PersistDirectory != s.Chroma.PersistDirectory {
		t.Fatalf("PersistDirectory changed")
	}
}

func TestLoadEnvBeatsEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "MARLIN_SLACK_BOT_NAME=FromFile\nMARLIN_API_PORT=9999\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	s, meta := loadForTest(t, map[string]string{
		"MARLIN_SLACK_BOT_NAME": "FromEnv",
	}, WithEnvFile(envFile))

	if s.SlackBotName != "FromEnv" {
		t.Fatalf("SlackBotName = %q, want FromEnv", s.SlackBotName)
	}
	if meta.Source("slack_bot_name") != SourceEnv {
		t.Fatalf("slack_bot_name source = %q, want environment", meta.Source("slack_bot_name"))
	}
	if s.APIPort != 9999 {
		t.Fatalf("APIPort = %d, want 9999 from file", s.APIPort)
	}
	if meta.Source("api_port") != SourceEnvFile {
		t.Fatalf("api_port source = %q, want env_file", meta.Source("api_port"))
	}
}

func TestLoadMissingEnvFileIsFine(t *testing.T) {
	s, _ := loadForTest(t, nil, WithEnvFile(filepath.Join(t.TempDir(), "nope", ".env")))
	if s.SlackBotName != "Marlin" {
		t.Fatalf("SlackBotName = %q, want default", s.SlackBotName)
	}
}

func TestLoadAliasPriorityPrefersPrefixedKey(t *testing.T) {
	s, _ := loadForTest(t, map[string]string{
		"MARLIN_OPENAI_API_KEY": "sk-prefixed",
		"OPENAI_API_KEY":        "sk-global",
	})
	if got := s.OpenAIAPIKey.Value(); got != "sk-prefixed" {
		t.Fatalf("OpenAIAPIKey = %q, want sk-prefixed", got)
	}

	s, _ = loadForTest(t, map[string]string{
		"OPENAI_API_KEY": "sk-global",
	})
	if got := s.OpenAIAPIKey.Value(); got != "sk-global" {
		t.Fatalf("OpenAIAPIKey = %q, want sk-global fallback", got)
	}
}

func TestLoadEmptyEnvValueCountsAsAbsent(t *testing.T) {
	s, meta := loadForTest(t, map[string]string{
		"MARLIN_SLACK_BOT_NAME": "",
	})
	if s.SlackBotName != "Marlin" {
		t.Fatalf("SlackBotName = %q, want default", s.SlackBotName)
	}
	if meta.Source("slack_bot_name") != SourceDefault {
		t.Fatalf("slack_bot_name source = %q, want default", meta.Source("slack_bot_name"))
	}
}

func TestLoadPremiumModelGetsCheapFormattingModel(t *testing.T) {
	s, meta := loadForTest(t, map[string]string{
		"MARLIN_LLM_MODEL": "gpt-4",
	})
	if s.LLMBackend != BackendOpenAIChat {
		t.Fatalf("LLMBackend = %q, want OpenAIChat", s.LLMBackend)
	}
	if s.LLMModelForResponseFormat != "gpt-3.5-turbo" {
		t.Fatalf("LLMModelForResponseFormat = %q, want gpt-3.5-turbo", s.LLMModelForResponseFormat)
	}
	if meta.Source("llm_model_for_response_format") != SourceInferred {
		t.Fatalf("response format model source = %q, want inferred", meta.Source("llm_model_for_response_format"))
	}
}

func TestLoadNonPremiumModelFormatsWithItself(t *testing.T) {
	s, _ := loadForTest(t, map[string]string{
		"MARLIN_LLM_MODEL": "claude-2",
	})
	if s.LLMBackend != BackendAnthropic {
		t.Fatalf("LLMBackend = %q, want Anthropic", s.LLMBackend)
	}
	if s.LLMModelForResponseFormat != "claude-2" {
		t.Fatalf("LLMModelForResponseFormat = %q, want claude-2", s.LLMModelForResponseFormat)
	}
}

func TestLoadExplicitBackendSkipsInference(t *testing.T) {
	s, meta := loadForTest(t, map[string]string{
		"MARLIN_LLM_MODEL":   "my-custom-model",
		"MARLIN_LLM_BACKEND": "huggingfacehub",
	})
	if s.LLMBackend != BackendHuggingFaceHub {
		t.Fatalf("LLMBackend = %q, want HuggingFaceHub", s.LLMBackend)
	}
	if meta.Source("llm_backend") != SourceEnv {
		t.Fatalf("llm_backend source = %q, want environment", meta.Source("llm_backend"))
	}
}

func TestLoadUnresolvableBackendFails(t *testing.T) {
	home := t.TempDir()
	_, _, err := Load(
		WithEnv(envLookup(map[string]string{"MARLIN_LLM_MODEL": "llama-7b"})),
		WithHomeDir(func() (string, error) { return home, nil }),
		WithLogger(logging.Nop()),
	)
	var backendErr *UnresolvedBackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("Load() error = %v, want UnresolvedBackendError", err)
	}
	if backendErr.Model != "llama-7b" {
		t.Fatalf("Model = %q, want llama-7b", backendErr.Model)
	}
}

func TestLoadCollectsAllCoercionErrors(t *testing.T) {
	home := t.TempDir()
	_, _, err := Load(
		WithEnv(envLookup(map[string]string{
			"MARLIN_VERBOSE":  "maybe",
			"MARLIN_API_PORT": "not-a-port",
		})),
		WithHomeDir(func() (string, error) { return home, nil }),
		WithLogger(logging.Nop()),
	)
	if err == nil {
		t.Fatal("Load() error = nil, want coercion failures")
	}
	var coercionErr *TypeCoercionError
	if !errors.As(err, &coercionErr) {
		t.Fatalf("Load() error = %v, want TypeCoercionError", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "verbose") || !strings.Contains(msg, "api_port") {
		t.Fatalf("error %q does not report both fields", msg)
	}
}

func TestLoadTestModeForcesDeterministicCluster(t *testing.T) {
	s, _ := loadForTest(t, map[string]string{
		"MARLIN_TEST_MODE":       "1",
		"MARLIN_LLM_MODEL":       "gpt-4",
		"MARLIN_LLM_TEMPERATURE": "0.9",
		"MARLIN_LOG_LEVEL":       "ERROR",
	})

	if s.LLMModel != "gpt-3.5-turbo" {
		t.Fatalf("LLMModel = %q, want gpt-3.5-turbo", s.LLMModel)
	}
	if s.LLMBackend != BackendOpenAIChat {
		t.Fatalf("LLMBackend = %q, want OpenAIChat", s.LLMBackend)
	}
	if s.LLMTemperature != 0.0 {
		t.Fatalf("LLMTemperature = %v, want 0.0", s.LLMTemperature)
	}
	if s.LogLevel != "DEBUG" {
		t.Fatalf("LogLevel = %q, want DEBUG", s.LogLevel)
	}
	if !s.Verbose {
		t.Fatal("Verbose = false, want true")
	}
	if s.BotCreateProfilePicture || s.BotLoadDefaultPlugins {
		t.Fatal("bot side effects still enabled in test mode")
	}
	if s.DatabaseCheckMigrationVersionOnStartup {
		t.Fatal("migration check still enabled in test mode")
	}
}

func TestLoadBoolSpellings(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "T": true, "yes": true, "Y": true, "on": true,
		"0": false, "false": false, "F": false, "no": false, "N": false, "off": false,
	}
	for raw, want := range cases {
		s, _ := loadForTest(t, map[string]string{"MARLIN_DATABASE_ECHO": raw})
		if s.DatabaseEcho != want {
			t.Fatalf("DatabaseEcho(%q) = %v, want %v", raw, s.DatabaseEcho, want)
		}
	}
}

func TestLoadDurationAcceptsBareSeconds(t *testing.T) {
	s, _ := loadForTest(t, map[string]string{"MARLIN_LLM_REQUEST_TIMEOUT": "90"})
	if s.LLMRequestTimeout != 90*time.Second {
		t.Fatalf("LLMRequestTimeout = %v, want 90s", s.LLMRequestTimeout)
	}

	s, _ = loadForTest(t, map[string]string{"MARLIN_LLM_REQUEST_TIMEOUT": "2m30s"})
	if s.LLMRequestTimeout != 150*time.Second {
		t.Fatalf("LLMRequestTimeout = %v, want 2m30s", s.LLMRequestTimeout)
	}
}

func TestLoadExtraHeaders(t *testing.T) {
	s, _ := loadForTest(t, map[string]string{
		"MARLIN_LLM_EXTRA_HEADERS": "X-Org=acme, X-Env=staging",
	})
	if s.LLMExtraHeaders["X-Org"] != "acme" || s.LLMExtraHeaders["X-Env"] != "staging" {
		t.Fatalf("LLMExtraHeaders = %v", s.LLMExtraHeaders)
	}
}

func TestExportEnvFileRoundTrip(t *testing.T) {
	s, _ := loadForTest(t, map[string]string{
		"MARLIN_LLM_MODEL":               "gpt-4",
		"MARLIN_OPENAI_API_KEY":          "sk-secret",
		"MARLIN_CHROMA_SERVER_HTTP_PORT": "9000",
	})

	path := filepath.Join(t.TempDir(), "marlin.env")
	if err := s.ExportEnvFile(path); err != nil {
		t.Fatalf("ExportEnvFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "MARLIN_OPENAI_API_KEY=sk-secret") {
		t.Fatal("export does not contain the unwrapped secret")
	}
	if strings.Contains(string(data), secretMask) {
		t.Fatal("export contains a masked value")
	}

	reloaded, _ := loadForTest(t, nil, WithEnvFile(path))
	if reloaded.LLMModel != s.LLMModel {
		t.Fatalf("LLMModel = %q, want %q", reloaded.LLMModel, s.LLMModel)
	}
	if reloaded.LLMBackend != s.LLMBackend {
		t.Fatalf("LLMBackend = %q, want %q", reloaded.LLMBackend, s.LLMBackend)
	}
	if reloaded.LLMModelForResponseFormat != s.LLMModelForResponseFormat {
		t.Fatalf("LLMModelForResponseFormat = %q, want %q", reloaded.LLMModelForResponseFormat, s.LLMModelForResponseFormat)
	}
	if reloaded.OpenAIAPIKey.Value() != "sk-secret" {
		t.Fatalf("OpenAIAPIKey = %q, want sk-secret", reloaded.OpenAIAPIKey.Value())
	}
	if reloaded.LLMRequestTimeout != s.LLMRequestTimeout {
		t.Fatalf("LLMRequestTimeout = %v, want %v", reloaded.LLMRequestTimeout, s.LLMRequestTimeout)
	}
	if reloaded.Chroma.ServerHTTPPort != 9000 {
		t.Fatalf("Chroma.ServerHTTPPort = %d, want 9000", reloaded.Chroma.ServerHTTPPort)
	}
	if reloaded.Home != s.Home {
		t.Fatalf("Home = %q, want %q", reloaded.Home, s.Home)
	}
}

func TestResolveEnvFilePathPrefersExplicitVariable(t *testing.T) {
	got := ResolveEnvFilePath(envLookup(map[string]string{
		"MARLIN_ENV_FILE": "/etc/marlin/env",
	}), nil)
	if got != "/etc/marlin/env" {
		t.Fatalf("ResolveEnvFilePath = %q, want /etc/marlin/env", got)
	}

	got = ResolveEnvFilePath(envLookup(nil), func() (string, error) { return "/home/user", nil })
	want := filepath.Join("/home/user", ".marlin", ".env")
	if got != want {
		t.Fatalf("ResolveEnvFilePath = %q, want %q", got, want)
	}
}

func TestCollectMissingReportsAllRequiredFields(t *testing.T) {
	scratch := NewSchema("APP_", []Field{
		{Name: "first", Kind: KindString, Required: true},
		{Name: "second", Kind: KindString, Required: true},
		{Name: "third", Kind: KindString, Required: true},
		{Name: "optional", Kind: KindString},
	})
	missing := collectMissing(scratch, map[string]bool{"second": true})
	if len(missing) != 2 || missing[0] != "first" || missing[1] != "third" {
		t.Fatalf("collectMissing = %v, want [first third]", missing)
	}

	err := &MissingRequiredFieldError{Fields: missing}
	if got := err.Error(); got != "missing required settings: first, third" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestSetUnknownFieldFails(t *testing.T) {
	s, _ := loadForTest(t, nil)
	err := s.Set("no_such_field", "x")
	var unknownErr *UnknownFieldError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("Set() error = %v, want UnknownFieldError", err)
	}
}

func TestSetCoercesAndCanonicalizes(t *testing.T) {
	s, _ := loadForTest(t, nil)

	if err := s.Set("log_level", "debug"); err != nil {
		t.Fatalf("Set(log_level) error = %v", err)
	}
	if s.LogLevel != "DEBUG" {
		t.Fatalf("LogLevel = %q, want DEBUG", s.LogLevel)
	}

	if err := s.Set("api_port", "8080"); err != nil {
		t.Fatalf("Set(api_port) error = %v", err)
	}
	if s.APIPort != 8080 {
		t.Fatalf("APIPort = %d, want 8080", s.APIPort)
	}

	if err := s.Set("chroma.server_host", "chroma.internal"); err != nil {
		t.Fatalf("Set(chroma.server_host) error = %v", err)
	}
	if s.Chroma.ServerHost != "chroma.internal" {
		t.Fatalf("ServerHost = %q", s.Chroma.ServerHost)
	}

	if err := s.Set("log_level", "noisy"); err == nil {
		t.Fatal("Set(log_level, noisy) succeeded, want error")
	}
}

func TestLogLevelHookFiresOnSetOnly(t *testing.T) {
	s, _ := loadForTest(t, nil)

	fired := 0
	s.OnLogLevelChange(func() { fired++ })

	snap := s.Snapshot()
	if err := s.Set("log_level", "ERROR"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if fired != 1 {
		t.Fatalf("hook fired %d times, want 1", fired)
	}

	s.Restore(snap)
	if fired != 1 {
		t.Fatalf("hook fired on restore")
	}
	if s.LogLevel != "INFO" {
		t.Fatalf("LogLevel = %q after restore, want INFO", s.LogLevel)
	}

	if err := s.Set("verbose", true); err != nil {
		t.Fatalf("Set(verbose) error = %v", err)
	}
	if fired != 1 {
		t.Fatalf("hook fired for a non-level field")
	}
}

func TestGetReturnsCurrentValues(t *testing.T) {
	s, _ := loadForTest(t, map[string]string{"MARLIN_BOT_MAX_ITERATIONS": "3"})

	got, err := s.Get("bot_max_iterations")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.(int) != 3 {
		t.Fatalf("Get(bot_max_iterations) = %v, want 3", got)
	}

	if _, err := s.Get("nope"); err == nil {
		t.Fatal("Get(nope) succeeded, want error")
	}
}
