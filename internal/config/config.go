// Package config loads project settings for envseal.
//
// Settings are resolved in this order, later sources winning:
//   - built-in defaults
//   - the project file (.envseal.yaml in the project root, or the path in
//     ENVSEAL_CONFIG)
//   - ENVSEAL_* environment variables
//   - command line flags, applied by the caller
//
// A missing project file is not an error. A file with unknown keys is.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/illarion/envseal/internal/crypto"
	"github.com/illarion/envseal/internal/storage"
)

// FileName is the project config file looked up in the root
const FileName = ".envseal.yaml"

// Config holds project settings. Paths are relative to the project root.
type Config struct {
	// Backend selects the artifact store: "file" or "bolt".
	Backend string `yaml:"backend"`

	// Artifact is the encrypted file. Empty means the backend default
	// (.env.enc for file, .env.db for bolt).
	Artifact string `yaml:"artifact"`

	// KeyFile holds hex key material for password-less reads.
	KeyFile string `yaml:"key_file"`

	// Source is the plaintext file read by init and import.
	Source string `yaml:"source"`

	// WriteKeyFile makes init and import also write KeyFile.
	WriteKeyFile bool `yaml:"write_key_file"`

	// Iterations is the PBKDF2 count for new artifacts.
	Iterations int `yaml:"iterations"`

	// UseKeyring enables remembering the password in the OS keyring.
	UseKeyring bool `yaml:"use_keyring"`

	// MaskPatterns are case-insensitive substrings; values of matching
	// keys are masked by view unless --show-secrets is given.
	MaskPatterns []string `yaml:"mask_patterns"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Backend:      storage.KindFile,
		KeyFile:      ".env.key",
		Source:       ".env",
		WriteKeyFile: true,
		Iterations:   crypto.DefaultIterations,
		UseKeyring:   true,
		MaskPatterns: []string{"password", "secret", "key", "token"},
		LogLevel:     "warn",
	}
}

// Load resolves settings for the project at root. getenv is usually
// os.Getenv. ENVSEAL_CONFIG names a file to use instead of the project file.
func Load(root string, getenv func(string) string) (*Config, error) {
	if path := getenv("ENVSEAL_CONFIG"); path != "" {
		return LoadFile(path, getenv)
	}

	cfg := Default()
	// The project file is optional
	if err := cfg.loadFile(filepath.Join(root, FileName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return cfg.finish(getenv)
}

// LoadFile resolves settings from an explicitly named file, which has to
// exist. ENVSEAL_* variables still apply on top of it.
func LoadFile(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	return cfg.finish(getenv)
}

func (c *Config) finish(getenv func(string) string) (*Config, error) {
	if err := c.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadFile merges a YAML file into c
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides settings from ENVSEAL_* variables
func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("ENVSEAL_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := getenv("ENVSEAL_ARTIFACT"); v != "" {
		c.Artifact = v
	}
	if v := getenv("ENVSEAL_KEY_FILE"); v != "" {
		c.KeyFile = v
	}
	if v := getenv("ENVSEAL_SOURCE"); v != "" {
		c.Source = v
	}
	if v := getenv("ENVSEAL_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ENVSEAL_ITERATIONS: %w", err)
		}
		c.Iterations = n
	}
	if v := getenv("ENVSEAL_NO_KEYRING"); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ENVSEAL_NO_KEYRING: %w", err)
		}
		c.UseKeyring = !disabled
	}
	if v := getenv("ENVSEAL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []error

	if c.Backend != storage.KindFile && c.Backend != storage.KindBolt {
		errs = append(errs, fmt.Errorf("invalid backend: %q (want %s or %s)", c.Backend, storage.KindFile, storage.KindBolt))
	}
	if c.KeyFile == "" {
		errs = append(errs, fmt.Errorf("key_file is required"))
	}
	if c.Source == "" {
		errs = append(errs, fmt.Errorf("source is required"))
	}
	if c.Iterations < crypto.MinIterations || c.Iterations > crypto.MaxIterations {
		errs = append(errs, fmt.Errorf("iterations must be between %d and %d, got %d", crypto.MinIterations, crypto.MaxIterations, c.Iterations))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log_level: %q", c.LogLevel))
	}

	return errors.Join(errs...)
}

// IsMasked reports whether the value of key should be hidden
func (c *Config) IsMasked(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range c.MaskPatterns {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
