package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/pflag"

	"github.com/illarion/envseal/internal/config"
	"github.com/illarion/envseal/internal/core"
	"github.com/illarion/envseal/internal/crypto"
	"github.com/illarion/envseal/internal/keyring"
)

// Exit statuses, one per error class
const (
	ExitError       = 1
	ExitState       = 2 // not initialized, already exists
	ExitAuth        = 3
	ExitMalformed   = 4
	ExitNotFound    = 5
	ExitSourceParse = 6
)

// Globals are the flags accepted by every command
type Globals struct {
	Config    string
	Artifact  string
	Backend   string
	KeyFile   string
	Password  string
	Verbose   bool
	NoKeyring bool
}

// Register adds the global flags to fs
func (g *Globals) Register(fs *pflag.FlagSet) {
	fs.StringVar(&g.Config, "config", "", "Project config file (default .envseal.yaml)")
	fs.StringVar(&g.Artifact, "artifact", "", "Encrypted artifact path")
	fs.StringVar(&g.Backend, "backend", "", "Artifact backend: file or bolt")
	fs.StringVar(&g.KeyFile, "key-file", "", "Key file path (default .env.key)")
	fs.StringVarP(&g.Password, "password", "p", "", "Password (prefer "+core.PasswordEnv+")")
	fs.BoolVarP(&g.Verbose, "verbose", "v", false, "Log diagnostics to stderr")
	fs.BoolVar(&g.NoKeyring, "no-keyring", false, "Do not use the OS keyring")
}

// Env is the resolved environment a command runs in
type Env struct {
	Config *config.Config
	Vault  *core.Vault
	Log    *slog.Logger

	password []byte // from --password
}

// Setup resolves configuration, builds the logger and opens the vault
func Setup(g *Globals) *Env {
	var cfg *config.Config
	var err error
	if g.Config != "" {
		cfg, err = config.LoadFile(g.Config, os.Getenv)
	} else {
		cfg, err = config.Load(".", os.Getenv)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %s\n", err)
		os.Exit(ExitError)
	}

	// Flags win over file and environment
	if g.Backend != "" {
		cfg.Backend = g.Backend
	}
	if g.Artifact != "" {
		cfg.Artifact = g.Artifact
	}
	if g.KeyFile != "" {
		cfg.KeyFile = g.KeyFile
	}
	if g.NoKeyring {
		cfg.UseKeyring = false
	}
	if g.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %s\n", err)
		os.Exit(ExitError)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	vault, err := core.New(".", core.Options{
		Backend:    cfg.Backend,
		Artifact:   cfg.Artifact,
		KeyFile:    cfg.KeyFile,
		Iterations: cfg.Iterations,
		Logger:     logger,
	})
	if err != nil {
		HandleError(err)
	}

	env := &Env{Config: cfg, Vault: vault, Log: logger}
	if g.Password != "" {
		env.password = []byte(g.Password)
	}
	return env
}

// Close releases the vault and wipes the flag password
func (e *Env) Close() {
	crypto.ClearBytes(e.password)
	e.Vault.Close()
}

// PasswordSource indicates where a credential came from
type PasswordSource int

const (
	SourceFlag PasswordSource = iota
	SourceEnv
	SourceKeyFile
	SourceKeyring
	SourcePrompt
)

// Secret is a resolved credential. Close wipes it.
type Secret struct {
	Source   PasswordSource
	Password []byte // nil when the key file is used
	key      core.KeyMaterial
}

// Credential returns the core credential for s
func (s *Secret) Credential() core.Credential {
	if s.key != nil {
		return core.Key(s.key)
	}
	return core.Password(s.Password)
}

// Close wipes the secret
func (s *Secret) Close() {
	crypto.ClearBytes(s.Password)
	s.key.Destroy()
}

// copyBytes returns a copy so the caller can wipe it independently
func copyBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}

// explicitPassword returns --password or ENVSEAL_PASSWORD
func (e *Env) explicitPassword() (*Secret, bool) {
	if e.password != nil {
		return &Secret{Source: SourceFlag, Password: copyBytes(e.password)}, true
	}
	if password := core.GetPasswordFromEnv(); password != nil {
		return &Secret{Source: SourceEnv, Password: password}, true
	}
	return nil, false
}

// vaultID returns the keyring id, or "" when the keyring is off or the
// vault does not exist yet
func (e *Env) vaultID() string {
	if !e.Config.UseKeyring {
		return ""
	}
	id, err := e.Vault.GetVaultID()
	if err != nil {
		return ""
	}
	return id
}

// GetPasswordWithRetry resolves a password from the flag, environment,
// keyring or prompt and checks it with verify. A keyring entry that no
// longer opens the vault is removed and the user is prompted instead.
func (e *Env) GetPasswordWithRetry(prompt string, verify func([]byte) error) (*Secret, error) {
	if s, ok := e.explicitPassword(); ok {
		if err := verify(s.Password); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	}

	if id := e.vaultID(); id != "" {
		password, err := keyring.GetPassword(id)
		if err == nil {
			if err := verify(password); err == nil {
				return &Secret{Source: SourceKeyring, Password: password}, nil
			}
			crypto.ClearBytes(password)
			fmt.Fprintln(os.Stderr, "warning: stored keyring password is stale, removing it")
			if err := keyring.DeletePassword(id); err != nil {
				e.Log.Warn("failed to remove stale keyring entry", "error", err)
			}
		} else if !errors.Is(err, keyring.ErrNotFound) {
			e.Log.Debug("keyring unavailable", "error", err)
		}
	}

	password, err := core.ReadPassword(prompt)
	if err != nil {
		return nil, err
	}
	if err := verify(password); err != nil {
		crypto.ClearBytes(password)
		return nil, err
	}
	return &Secret{Source: SourcePrompt, Password: password}, nil
}

// KeyFileMismatchError is returned when the key file no longer opens the
// artifact, usually after the password was changed elsewhere
type KeyFileMismatchError struct {
	Path string
}

func (e *KeyFileMismatchError) Error() string {
	return fmt.Sprintf("key file %s does not match the artifact", e.Path)
}

func (e *KeyFileMismatchError) Unwrap() error {
	return core.ErrAuthFailed
}

// Unlock resolves a credential for reading the vault and opens it. An
// explicit password wins, then the key file, then the keyring, then a
// prompt. The caller closes both results. Failures exit.
func (e *Env) Unlock(prompt string) (*Secret, *core.Session) {
	s, session, err := e.unlock(prompt)
	if err != nil {
		HandleError(err)
	}
	return s, session
}

// unlock is Unlock returning the error instead of exiting
func (e *Env) unlock(prompt string) (*Secret, *core.Session, error) {
	if exists, err := e.Vault.Exists(); err != nil {
		return nil, nil, err
	} else if !exists {
		return nil, nil, core.ErrNotInitialized
	}

	var session *core.Session
	open := func(cred core.Credential) error {
		s, err := e.Vault.Open(cred)
		if err != nil {
			return err
		}
		session = s
		return nil
	}

	if s, ok := e.explicitPassword(); ok {
		if err := open(s.Credential()); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, session, nil
	}

	key, err := e.Vault.ReadKeyFile()
	switch {
	case err == nil:
		s := &Secret{Source: SourceKeyFile, key: key}
		if err := open(s.Credential()); err != nil {
			s.Close()
			if errors.Is(err, core.ErrAuthFailed) {
				return nil, nil, &KeyFileMismatchError{Path: e.Vault.KeyFilePath()}
			}
			return nil, nil, err
		}
		return s, session, nil
	case !errors.Is(err, core.ErrNoKeyFile):
		return nil, nil, err
	}

	s, err := e.GetPasswordWithRetry(prompt, func(password []byte) error {
		return open(core.Password(password))
	})
	if err != nil {
		return nil, nil, err
	}
	return s, session, nil
}

// UnlockPassword is Unlock without the key file, for operations that need
// the password itself
func (e *Env) UnlockPassword(prompt string) *Secret {
	s, err := e.GetPasswordWithRetry(prompt, e.Vault.VerifyPassword)
	if err != nil {
		HandleError(err)
	}
	return s
}

// NewPassword reads a password for a new artifact: flag, environment, or a
// confirmed prompt
func (e *Env) NewPassword(prompt string) []byte {
	if s, ok := e.explicitPassword(); ok {
		return s.Password
	}
	password, err := core.ReadPasswordConfirm(prompt)
	if err != nil {
		HandleError(err)
	}
	return password
}

// OfferToSavePassword asks to remember a prompted password in the keyring
func (e *Env) OfferToSavePassword(s *Secret) {
	if s.Source != SourcePrompt || !core.IsInteractive() {
		return
	}
	id := e.vaultID()
	if id == "" || keyring.HasPassword(id) {
		return
	}

	fmt.Fprint(os.Stderr, "Save password to OS keyring? [y/N]: ")
	var response string
	fmt.Scanln(&response)
	if response != "y" && response != "Y" && response != "yes" {
		return
	}

	if err := keyring.SavePassword(id, s.Password); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save to keyring: %s\n", err)
		return
	}
	fmt.Fprintln(os.Stderr, "Password saved to keyring")
}

// ExitCode maps an error to the process exit status
func ExitCode(err error) int {
	var spe *core.SourceParseError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &spe):
		return ExitSourceParse
	case errors.Is(err, core.ErrAuthFailed):
		return ExitAuth
	case errors.Is(err, core.ErrMalformedEntry), errors.Is(err, core.ErrDuplicateKey):
		return ExitMalformed
	case errors.Is(err, core.ErrKeyNotFound):
		return ExitNotFound
	case errors.Is(err, core.ErrNotInitialized),
		errors.Is(err, core.ErrAlreadyExists),
		errors.Is(err, core.ErrFileExists):
		return ExitState
	default:
		return ExitError
	}
}

// HandleError prints err with a hint where one helps and exits, wiping
// protected memory first
func HandleError(err error) {
	var mismatch *KeyFileMismatchError
	switch {
	case errors.As(err, &mismatch):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Run 'envseal keygen' to regenerate it\n")
	case errors.Is(err, core.ErrNotInitialized):
		fmt.Fprintf(os.Stderr, "Error: envseal not initialized\n")
		fmt.Fprintf(os.Stderr, "Run 'envseal init' first\n")
	case errors.Is(err, core.ErrAlreadyExists):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Use --force to replace it\n")
	case errors.Is(err, core.ErrFileExists):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Use --force to overwrite it\n")
	case errors.Is(err, core.ErrAuthFailed):
		fmt.Fprintf(os.Stderr, "Error: wrong password or corrupted artifact\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	memguard.SafeExit(ExitCode(err))
}
