package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// A validator sees the whole settings object after every field resolved
// and may rewrite fields or fail construction.
type validator func(s *Settings, opts *loadOptions) error

// validators run in registration order. The mode override runs after
// the path and interpolation steps so nothing can undo its cluster;
// the secret warning only reads, so it goes last.
var validators = []validator{
	normalizePaths,
	interpolateHome,
	applyTestMode,
	warnMissingSecrets,
}

// normalizePaths resolves the home directory to an absolute path,
// creates it, and anchors every relative path field beneath it. Running
// it on already-absolute values is a no-op.
func normalizePaths(s *Settings, opts *loadOptions) error {
	home, err := expandHome(s.Home, opts.homeDir)
	if err != nil {
		return err
	}
	if !filepath.IsAbs(home) {
		abs, err := filepath.Abs(home)
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		home = abs
	}
	s.Home = filepath.Clean(home)
	if err := os.MkdirAll(s.Home, 0o755); err != nil {
		return fmt.Errorf("create home directory: %w", err)
	}

	if !filepath.IsAbs(s.EmbeddingsCachePath) {
		s.EmbeddingsCachePath = filepath.Join(s.Home, s.EmbeddingsCachePath)
	}
	if err := os.MkdirAll(filepath.Dir(s.EmbeddingsCachePath), 0o755); err != nil {
		return fmt.Errorf("create embeddings cache directory: %w", err)
	}

	if !filepath.IsAbs(s.Chroma.PersistDirectory) {
		s.Chroma.PersistDirectory = filepath.Join(s.Home, s.Chroma.PersistDirectory)
	}
	if err := os.MkdirAll(s.Chroma.PersistDirectory, 0o755); err != nil {
		return fmt.Errorf("create chroma persist directory: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(s.Home, "cache"), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	return nil
}

func expandHome(path string, homeDir func() (string, error)) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	resolver := homeDir
	if resolver == nil {
		resolver = os.UserHomeDir
	}
	home, err := resolver()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

// homePlaceholder is the token connection strings may embed to refer to
// the resolved home directory.
const homePlaceholder = "$MARLIN_HOME"

func interpolateHome(s *Settings, _ *loadOptions) error {
	url := s.DatabaseConnectionURL.Value()
	if strings.Contains(url, homePlaceholder) {
		s.DatabaseConnectionURL = NewSecret(strings.ReplaceAll(url, homePlaceholder, s.Home))
	}
	return nil
}

// applyTestMode forces a deterministic, side-effect-free cluster when
// test mode is on, regardless of what raw loading produced for the
// affected fields.
func applyTestMode(s *Settings, _ *loadOptions) error {
	if !s.TestMode {
		return nil
	}
	s.LogLevel = "DEBUG"
	s.Verbose = true
	s.LLMModel = "gpt-3.5-turbo"
	s.LLMBackend = BackendOpenAIChat
	s.LLMTemperature = 0.0
	s.BotCreateProfilePicture = false
	s.BotLoadDefaultPlugins = false
	s.DatabaseCheckMigrationVersionOnStartup = false
	return nil
}

// warnMissingSecrets logs for every soft-secret credential left unset.
// Absence degrades features but never fails construction.
func warnMissingSecrets(s *Settings, _ *loadOptions) error {
	for _, f := range defaultSchema.Fields() {
		if !f.SoftSecret {
			continue
		}
		if secret, ok := s.secretValue(f.Name); ok && !secret.IsSet() {
			s.logger.Warn("%s is not set; features that depend on it will be unavailable", f.Name)
		}
	}
	return nil
}
