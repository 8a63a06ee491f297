package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"marlin/internal/logging"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceEnvFile  ValueSource = "env_file"
	SourceEnv      ValueSource = "environment"
	SourceInferred ValueSource = "inferred"
)

// Metadata contains provenance details for loaded settings.
type Metadata struct {
	sources  map[string]ValueSource
	loadedAt time.Time
}

// Source returns the origin for the given field.
func (m Metadata) Source(field string) ValueSource {
	if m.sources == nil {
		return SourceDefault
	}
	if src, ok := m.sources[field]; ok {
		return src
	}
	return SourceDefault
}

// Sources returns a copy of the provenance map.
func (m Metadata) Sources() map[string]ValueSource {
	copied := make(map[string]ValueSource, len(m.sources))
	for key, value := range m.sources {
		copied[key] = value
	}
	return copied
}

// LoadedAt returns the timestamp when the settings were constructed.
func (m Metadata) LoadedAt() time.Time {
	return m.loadedAt
}

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)

// DefaultEnvLookup delegates to os.LookupEnv.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup EnvLookup
	readFile  func(string) ([]byte, error)
	homeDir   func() (string, error)
	envFile   string
	logger    logging.Logger
}

// WithEnv supplies a custom environment lookup implementation.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// WithEnvFile forces the loader to read the env file from a specific path.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) {
		o.envFile = path
	}
}

// WithFileReader injects a custom reader, used primarily for tests.
func WithFileReader(reader func(string) ([]byte, error)) Option {
	return func(o *loadOptions) {
		o.readFile = reader
	}
}

// WithHomeDir overrides how the loader resolves the user's home directory.
func WithHomeDir(resolver func() (string, error)) Option {
	return func(o *loadOptions) {
		o.homeDir = resolver
	}
}

// WithLogger routes loader warnings to the given logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *loadOptions) {
		o.logger = logger
	}
}

const envFileVar = "MARLIN_ENV_FILE"

// ResolveEnvFilePath returns the env file location.
// Priority order:
//  1. Explicit MARLIN_ENV_FILE.
//  2. $HOME/.marlin/.env.
func ResolveEnvFilePath(envLookup EnvLookup, homeDir func() (string, error)) string {
	if envLookup == nil {
		envLookup = DefaultEnvLookup
	}
	if value, ok := envLookup(envFileVar); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}

	home := ""
	if homeDir != nil {
		if resolved, err := homeDir(); err == nil {
			home = strings.TrimSpace(resolved)
		}
	}
	if home == "" {
		if resolved, err := os.UserHomeDir(); err == nil {
			home = strings.TrimSpace(resolved)
		}
	}
	if home != "" {
		return filepath.Join(home, ".marlin", ".env")
	}
	return ""
}

// Load constructs the settings object by running the full resolution
// pipeline: raw loading from environment and env file, per-field
// inference in declaration order, then whole-object validators in
// registration order. Fatal problems are collected so one attempt
// surfaces them all; any fatal problem aborts construction entirely.
func Load(opts ...Option) (*Settings, Metadata, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
		logger:    logging.New("settings"),
	}
	for _, opt := range opts {
		opt(&options)
	}

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}
	s := &Settings{logger: logging.OrNop(options.logger)}

	fileValues, err := readEnvFile(options)
	if err != nil {
		return nil, Metadata{}, err
	}

	var errs []error
	present := map[string]bool{}

	resolve := func(schema *Schema) {
		for _, f := range schema.Fields() {
			raw, src, ok := probeRaw(schema, f, options.envLookup, fileValues)
			if !ok {
				if f.Default == "" {
					continue
				}
				raw = f.Default
				src = SourceDefault
			}
			if err := s.apply(f, raw); err != nil {
				errs = append(errs, err)
				continue
			}
			if src != SourceDefault {
				present[f.Name] = true
				meta.sources[f.Name] = src
			}
		}
	}
	resolve(defaultSchema)
	resolve(chromaSchema)

	for _, rule := range inferenceRules {
		if present[rule.field] {
			continue
		}
		if err := rule.apply(s); err != nil {
			errs = append(errs, err)
			continue
		}
		meta.sources[rule.field] = SourceInferred
	}

	if missing := collectMissing(defaultSchema, present); len(missing) > 0 {
		errs = append(errs, &MissingRequiredFieldError{Fields: missing})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, Metadata{}, err
	}

	for _, validate := range validators {
		if err := validate(s, &options); err != nil {
			return nil, Metadata{}, err
		}
	}

	return s, meta, nil
}

// probeRaw checks every env alias for f in priority order, then the env
// file under the same keys. Empty values count as absent.
func probeRaw(schema *Schema, f Field, lookup EnvLookup, fileValues map[string]string) (string, ValueSource, bool) {
	if lookup == nil {
		lookup = DefaultEnvLookup
	}
	for _, key := range schema.EnvKeys(f) {
		if value, ok := lookup(key); ok && value != "" {
			return value, SourceEnv, true
		}
	}
	for _, key := range schema.EnvKeys(f) {
		if value, ok := fileValues[key]; ok && value != "" {
			return value, SourceEnvFile, true
		}
	}
	return "", "", false
}

func readEnvFile(options loadOptions) (map[string]string, error) {
	path := options.envFile
	if path == "" {
		path = ResolveEnvFilePath(options.envLookup, options.homeDir)
	}
	if path == "" {
		return nil, nil
	}

	data, err := options.readFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read env file: %w", err)
	}

	values, err := godotenv.UnmarshalBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse env file: %w", err)
	}
	return values, nil
}

// collectMissing gathers every hard-required field left unresolved, so
// they can be reported together rather than one at a time.
func collectMissing(schema *Schema, present map[string]bool) []string {
	var missing []string
	for _, f := range schema.Fields() {
		if f.Required && f.Default == "" && !present[f.Name] {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

func parseBoolEnv(value string) (bool, error) {
	trimmed := strings.TrimSpace(value)
	lower := strings.ToLower(trimmed)
	switch lower {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value %q", value)
	}
}

// parseDurationValue accepts a time.Duration string or a bare number of
// seconds.
func parseDurationValue(value string) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if d, err := time.ParseDuration(trimmed); err == nil {
		return d, nil
	}
	seconds, err := parseFloatValue(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q", value)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// parseStringMap reads comma-separated key=value pairs.
func parseStringMap(value string) (map[string]string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	result := map[string]string{}
	for _, pair := range strings.Split(trimmed, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, val, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid key=value pair %q", pair)
		}
		result[key] = strings.TrimSpace(val)
	}
	return result, nil
}
