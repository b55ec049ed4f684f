// Package loader hands a decrypted envseal configuration to a running
// program.
//
// Load unlocks the project artifact in one call, honouring .envseal.yaml
// and the ENVSEAL_* variables the way the envseal command does. Apply and
// Merge move the values into an environment explicitly; nothing here
// touches the process environment on its own.
//
//	m, err := loader.Load(ctx, loader.Options{})
//	if err != nil {
//		return err
//	}
//	_, err = loader.Apply(m, os.LookupEnv, os.Setenv, false)
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/illarion/envseal/internal/config"
	"github.com/illarion/envseal/internal/core"
	"github.com/illarion/envseal/internal/crypto"
	"github.com/illarion/envseal/internal/dotenv"
)

// Mapping is the decrypted configuration, ordered as stored
type Mapping = dotenv.Mapping

var (
	ErrAuthFailed       = core.ErrAuthFailed
	ErrNotInitialized   = core.ErrNotInitialized
	ErrPasswordRequired = core.ErrPasswordRequired
)

// Options selects the artifact and credential. Empty fields fall back to
// the project config.
type Options struct {
	Root     string // project directory, defaults to "."
	Backend  string // "file" or "bolt"
	Artifact string
	KeyFile  string
	Password []byte // used when no key file is present; defaults to ENVSEAL_PASSWORD
	Logger   *slog.Logger

	// Getenv replaces os.Getenv for config and password lookup
	Getenv func(string) string
}

// Load decrypts the project configuration. The key file is preferred
// when present, otherwise the password is used.
func Load(ctx context.Context, opts Options) (*Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	cfg, err := config.Load(opts.Root, opts.Getenv)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if opts.Backend != "" {
		cfg.Backend = opts.Backend
	}
	if opts.Artifact != "" {
		cfg.Artifact = opts.Artifact
	}
	if opts.KeyFile != "" {
		cfg.KeyFile = opts.KeyFile
	}

	v, err := core.New(opts.Root, core.Options{
		Backend:    cfg.Backend,
		Artifact:   cfg.Artifact,
		KeyFile:    cfg.KeyFile,
		Iterations: cfg.Iterations,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	defer v.Close()

	if exists, err := v.Exists(); err != nil {
		return nil, err
	} else if !exists {
		return nil, ErrNotInitialized
	}

	var cred core.Credential
	key, err := v.ReadKeyFile()
	switch {
	case err == nil:
		defer key.Destroy()
		opts.Logger.Debug("unlocking with key file", "path", v.KeyFilePath())
		cred = core.Key(key)
	case !errors.Is(err, core.ErrNoKeyFile):
		return nil, err
	default:
		password := opts.Password
		if password == nil {
			if env := opts.Getenv(core.PasswordEnv); env != "" {
				password = []byte(env)
				defer crypto.ClearBytes(password)
			}
		}
		if password == nil {
			return nil, fmt.Errorf("%w: no key file at %s", ErrPasswordRequired, v.KeyFilePath())
		}
		cred = core.Password(password)
	}

	session, err := v.Open(cred)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	return session.Mapping, nil
}

// Apply sets every pair through setenv. Without override, keys already
// present according to lookup are left alone. Returns the number of keys set.
func Apply(m *Mapping, lookup func(string) (string, bool), setenv func(key, value string) error, override bool) (int, error) {
	n := 0
	for _, p := range m.Pairs() {
		if !override {
			if _, exists := lookup(p.Key); exists {
				continue
			}
		}
		if err := setenv(p.Key, p.Value); err != nil {
			return n, fmt.Errorf("setting %s: %w", p.Key, err)
		}
		n++
	}
	return n, nil
}

// Merge builds a child environment from base (KEY=VALUE strings as from
// os.Environ) and m. Base order is kept; keys only in m are appended in
// mapping order. With override, values from m replace base values in place.
func Merge(base []string, m *Mapping, override bool) []string {
	out := make([]string, 0, len(base)+m.Len())
	seen := make(map[string]bool, len(base))

	for _, entry := range base {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = true
		if override {
			if value, err := m.Get(key); err == nil {
				out = append(out, key+"="+value)
				continue
			}
		}
		out = append(out, entry)
	}

	for _, p := range m.Pairs() {
		if !seen[p.Key] {
			out = append(out, p.Key+"="+p.Value)
		}
	}
	return out
}
