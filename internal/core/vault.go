package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/illarion/envseal/internal/artifact"
	"github.com/illarion/envseal/internal/crypto"
	"github.com/illarion/envseal/internal/dotenv"
	"github.com/illarion/envseal/internal/git"
	"github.com/illarion/envseal/internal/security"
	"github.com/illarion/envseal/internal/share"
	"github.com/illarion/envseal/internal/storage"
)

const (
	DefaultSourceFile   = ".env"
	DefaultArtifactFile = ".env.enc"
	DefaultBoltFile     = ".env.db"
	DefaultKeyFile      = ".env.key"
	DefaultExportFile   = ".env.exported"
	FilePermSecure      = 0600 // File: owner rw only
)

var ErrCompactUnsupported = errors.New("compact is only supported by the bolt backend")

// Options configures a Vault. Paths are relative to the vault root.
type Options struct {
	Backend    string // storage.KindFile (default) or storage.KindBolt
	Artifact   string // defaults to .env.enc or .env.db depending on Backend
	KeyFile    string // defaults to .env.key
	Iterations int    // PBKDF2 iterations for new artifacts, 0 for default
	Logger     *slog.Logger
}

// Vault binds the store operations to a project directory: an artifact in
// a storage backend plus an optional key file next to it.
type Vault struct {
	root      string
	artifact  string
	keyFile   string
	opts      Options
	backend   storage.Backend
	validator *security.PathValidator
	log       *slog.Logger
}

// New creates a Vault rooted at root. Nothing is read or written yet.
func New(root string, opts Options) (*Vault, error) {
	validator, err := security.New(root)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize path validator: %w", err)
	}

	if opts.Artifact == "" {
		opts.Artifact = DefaultArtifactFile
		if opts.Backend == storage.KindBolt {
			opts.Artifact = DefaultBoltFile
		}
	}
	if opts.KeyFile == "" {
		opts.KeyFile = DefaultKeyFile
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	artifactPath, err := validator.ValidateAndNormalize(opts.Artifact)
	if err != nil {
		validator.Close()
		return nil, fmt.Errorf("invalid artifact path: %w", err)
	}
	keyFile, err := validator.ValidateAndNormalize(opts.KeyFile)
	if err != nil {
		validator.Close()
		return nil, fmt.Errorf("invalid key file path: %w", err)
	}

	backend, err := storage.Open(opts.Backend, filepath.Join(validator.Root(), filepath.FromSlash(artifactPath)))
	if err != nil {
		validator.Close()
		return nil, err
	}

	return &Vault{
		root:      validator.Root(),
		artifact:  artifactPath,
		keyFile:   keyFile,
		opts:      opts,
		backend:   backend,
		validator: validator,
		log:       logger.With("artifact", artifactPath, "backend", backend.Kind()),
	}, nil
}

// Close releases resources held by the Vault
func (v *Vault) Close() error {
	if v.validator != nil {
		return v.validator.Close()
	}
	return nil
}

// ArtifactPath returns the artifact path relative to the root
func (v *Vault) ArtifactPath() string { return v.artifact }

// KeyFilePath returns the key file path relative to the root
func (v *Vault) KeyFilePath() string { return v.keyFile }

// Exists reports whether an artifact has been written
func (v *Vault) Exists() (bool, error) {
	return v.backend.Exists()
}

func (v *Vault) readArtifact() (*artifact.Artifact, error) {
	data, err := v.backend.Read()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	a, err := artifact.Parse(data)
	if err != nil {
		v.log.Debug("artifact did not parse")
		return nil, ErrAuthFailed
	}
	return a, nil
}

func (v *Vault) writeArtifact(a *artifact.Artifact) error {
	data, err := a.MarshalBinary()
	if err != nil {
		return err
	}
	if err := v.backend.Write(data); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	v.log.Debug("artifact written", "bytes", len(data), "fingerprint", a.Fingerprint())
	return nil
}

// KeyFileExists reports whether the key file is present
func (v *Vault) KeyFileExists() bool {
	info, err := v.validator.StatInRoot(v.keyFile)
	return err == nil && info.Mode().IsRegular()
}

// ReadKeyFile loads key material from the key file
func (v *Vault) ReadKeyFile() (KeyMaterial, error) {
	data, err := v.validator.ReadFileInRoot(v.keyFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoKeyFile
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	defer crypto.ClearBytes(data)
	return ParseKeyMaterial(data)
}

func (v *Vault) writeKeyFile(key KeyMaterial) error {
	text, err := key.MarshalText()
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(text)
	if err := v.validator.WriteFileInRoot(v.keyFile, append(text, '\n'), FilePermSecure); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	v.log.Debug("key file written", "path", v.keyFile)
	return nil
}

// InitOptions controls Init
type InitOptions struct {
	Source   string // plaintext input, defaults to .env; a missing file means empty
	Force    bool   // replace an existing artifact
	WriteKey bool   // also write the key file
}

// InitResult describes what Init wrote
type InitResult struct {
	Keys    int
	KeyFile string // empty if no key file was written
}

// Init seals the source file into a new artifact
func (v *Vault) Init(password []byte, opts InitOptions) (*InitResult, error) {
	if opts.Source == "" {
		opts.Source = DefaultSourceFile
	}

	source, err := v.validator.ReadFileInRoot(opts.Source)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", opts.Source, err)
	}
	defer crypto.ClearBytes(source)

	m, err := ImportPlain(source)
	if err != nil {
		return nil, withSourcePath(err, opts.Source)
	}
	return v.create(m, password, opts.Force, opts.WriteKey)
}

// create seals m into a brand new artifact. An existing key file is
// always rewritten so it never refers to a replaced salt.
func (v *Vault) create(m *dotenv.Mapping, password []byte, force, writeKey bool) (*InitResult, error) {
	exists, err := v.backend.Exists()
	if err != nil {
		return nil, err
	}
	if exists && !force {
		return nil, ErrAlreadyExists
	}

	a, key, err := seal(m, password, v.opts.Iterations)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	if err := v.writeArtifact(a); err != nil {
		return nil, err
	}

	result := &InitResult{Keys: m.Len()}
	if writeKey || v.KeyFileExists() {
		if err := v.writeKeyFile(key); err != nil {
			return nil, err
		}
		result.KeyFile = v.keyFile
	}

	v.log.Debug("artifact created", "keys", m.Len(), "iterations", a.Iterations, "replaced", exists)
	return result, nil
}

// Session is an unlocked artifact. Mapping may be edited freely; Save
// persists it under the same salt.
type Session struct {
	Mapping *dotenv.Mapping

	vault *Vault
	art   *artifact.Artifact
	key   KeyMaterial
}

// Open unlocks the artifact with cred
func (v *Vault) Open(cred Credential) (*Session, error) {
	a, err := v.readArtifact()
	if err != nil {
		return nil, err
	}

	m, key, err := Load(a, cred)
	if err != nil {
		return nil, err
	}

	v.log.Debug("artifact opened", "keys", m.Len())
	return &Session{Mapping: m, vault: v, art: a, key: key}, nil
}

// Save re-seals the mapping and replaces the stored artifact
func (s *Session) Save() error {
	next, err := Persist(s.Mapping, s.art, s.key)
	if err != nil {
		return err
	}
	if err := s.vault.writeArtifact(next); err != nil {
		return err
	}
	s.art = next
	return nil
}

// Key returns a copy of the session's key material
func (s *Session) Key() KeyMaterial {
	return append(KeyMaterial(nil), s.key...)
}

// Close wipes the session key
func (s *Session) Close() {
	s.key.Destroy()
}

// ChangeResult describes what ChangePassword rewrote
type ChangeResult struct {
	KeyFileUpdated bool
}

// ChangePassword re-seals the artifact under newPassword with a fresh salt.
// The artifact is replaced in a single backend write; a wrong old password
// leaves it untouched. An existing key file is rewritten for the new salt.
func (v *Vault) ChangePassword(oldPassword, newPassword []byte) (*ChangeResult, error) {
	a, err := v.readArtifact()
	if err != nil {
		return nil, err
	}

	next, key, err := ChangePassword(a, oldPassword, newPassword)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	if err := v.writeArtifact(next); err != nil {
		return nil, err
	}

	result := &ChangeResult{}
	if v.KeyFileExists() {
		if err := v.writeKeyFile(key); err != nil {
			return result, fmt.Errorf("password changed but key file is stale (run keygen): %w", err)
		}
		result.KeyFileUpdated = true
	}

	v.log.Debug("password changed", "fingerprint", next.Fingerprint())
	return result, nil
}

// RegenerateKey writes a key file matching the current artifact
func (v *Vault) RegenerateKey(password []byte) (string, error) {
	a, err := v.readArtifact()
	if err != nil {
		return "", err
	}

	key, err := RegenerateKeyMaterial(a, password)
	if err != nil {
		return "", err
	}
	defer key.Destroy()

	if err := v.writeKeyFile(key); err != nil {
		return "", err
	}
	return v.keyFile, nil
}

// ExportOptions controls Export
type ExportOptions struct {
	Path       string   // defaults to .env.exported
	Force      bool     // overwrite an existing file
	Recipients []string // age recipients; plaintext when empty
}

// Export writes the decrypted configuration to a file and returns the
// number of keys written
func (v *Vault) Export(cred Credential, opts ExportOptions) (int, error) {
	if opts.Path == "" {
		opts.Path = DefaultExportFile
	}
	if _, err := v.validator.StatInRoot(opts.Path); err == nil && !opts.Force {
		return 0, fmt.Errorf("%w: %s", ErrFileExists, opts.Path)
	}

	session, err := v.Open(cred)
	if err != nil {
		return 0, err
	}
	defer session.Close()

	data := ExportPlain(session.Mapping)
	defer crypto.ClearBytes(data)

	if len(opts.Recipients) > 0 {
		encrypted, err := share.Encrypt(data, opts.Recipients)
		if err != nil {
			return 0, err
		}
		data = encrypted
	}

	if err := v.validator.WriteFileInRoot(opts.Path, data, FilePermSecure); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", opts.Path, err)
	}

	v.log.Debug("exported", "path", opts.Path, "keys", session.Mapping.Len(), "age", len(opts.Recipients) > 0)
	return session.Mapping.Len(), nil
}

// ImportOptions controls Import
type ImportOptions struct {
	Path     string // defaults to .env
	Force    bool   // replace an existing artifact
	WriteKey bool
	Identity []byte // age identity file content, required for age input
}

// Import replaces the artifact with the contents of a plaintext file, the
// way init does, but the file must exist
func (v *Vault) Import(password []byte, opts ImportOptions) (*InitResult, error) {
	if opts.Path == "" {
		opts.Path = DefaultSourceFile
	}

	data, err := v.validator.ReadFileInRoot(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", opts.Path, err)
	}
	defer crypto.ClearBytes(data)

	if share.IsEncrypted(data) {
		if opts.Identity == nil {
			return nil, fmt.Errorf("%s is age encrypted, an identity file is required", opts.Path)
		}
		plaintext, err := share.Decrypt(data, opts.Identity)
		if err != nil {
			return nil, err
		}
		defer crypto.ClearBytes(plaintext)
		data = plaintext
	}

	m, err := ImportPlain(data)
	if err != nil {
		return nil, withSourcePath(err, opts.Path)
	}
	return v.create(m, password, opts.Force, opts.WriteKey)
}

// DiffResult compares the vault with a plaintext file
type DiffResult struct {
	Changes *KeyChanges
	Unified string // value level diff, only filled when requested
}

// Diff compares the decrypted configuration with the plaintext file at
// path. Both sides are normalized through the codec, so comments and
// quoting style do not show up as changes.
func (v *Vault) Diff(ctx context.Context, cred Credential, path string, unified bool) (*DiffResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path == "" {
		path = DefaultSourceFile
	}

	local, err := v.readPlain(path)
	if err != nil {
		return nil, err
	}

	session, err := v.Open(cred)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	result := &DiffResult{Changes: CompareMappings(session.Mapping, local)}
	if unified && !result.Changes.Empty() {
		vaultData := ExportPlain(session.Mapping)
		defer crypto.ClearBytes(vaultData)
		localData := ExportPlain(local)
		defer crypto.ClearBytes(localData)

		result.Unified = GenerateUnifiedDiff(path, vaultData, localData)
	}
	return result, nil
}

func (v *Vault) readPlain(path string) (*dotenv.Mapping, error) {
	data, err := v.validator.ReadFileInRoot(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer crypto.ClearBytes(data)

	m, err := ImportPlain(data)
	if err != nil {
		return nil, withSourcePath(err, path)
	}
	return m, nil
}

// EditResult describes an Edit or Merge
type EditResult struct {
	Changes *KeyChanges
	Saved   bool
}

// Edit opens the decrypted configuration in an editor and saves the
// result if it changed
func (v *Vault) Edit(cred Credential, edit EditFunc) (*EditResult, error) {
	session, err := v.Open(cred)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	edited, err := EditMapping(session.Mapping, edit)
	if err != nil {
		return nil, err
	}
	return session.replace(edited)
}

// Merge reconciles a local plaintext file with the vault through an editor
// session with conflict markers, then saves the resolved configuration
func (v *Vault) Merge(cred Credential, path string, edit EditFunc) (*EditResult, error) {
	if path == "" {
		path = DefaultSourceFile
	}
	local, err := v.readPlain(path)
	if err != nil {
		return nil, err
	}

	session, err := v.Open(cred)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	if session.Mapping.Equal(local) {
		return &EditResult{Changes: &KeyChanges{}}, nil
	}

	merged, err := MergeMappings(local, session.Mapping, edit)
	if err != nil {
		return nil, err
	}
	return session.replace(merged)
}

func (s *Session) replace(m *dotenv.Mapping) (*EditResult, error) {
	result := &EditResult{Changes: CompareMappings(s.Mapping, m)}
	if s.Mapping.Equal(m) {
		return result, nil
	}
	s.Mapping = m
	if err := s.Save(); err != nil {
		return nil, err
	}
	result.Saved = true
	return result, nil
}

// StatusInfo contains status information
type StatusInfo struct {
	Backend        string
	ArtifactPath   string
	Size           int64
	Created        time.Time
	Modified       time.Time
	Version        uint16
	Algorithm      string
	KDF            string
	KDFIterations  uint32
	Fingerprint    string
	Corrupt        bool
	KeyFile        string
	KeyFilePresent bool
	GitStatus      *git.GitStatus
}

// Status reports what can be learned without a password
func (v *Vault) Status(ctx context.Context) (*StatusInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := v.backend.Read()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}

	status := &StatusInfo{
		Backend:        v.backend.Kind(),
		ArtifactPath:   v.artifact,
		Size:           int64(len(data)),
		Algorithm:      "AES-256-GCM",
		KDF:            "PBKDF2-HMAC-SHA256",
		KeyFile:        v.keyFile,
		KeyFilePresent: v.KeyFileExists(),
	}

	if info, err := v.backend.Stat(); err == nil {
		status.Created = info.Created
		status.Modified = info.Modified
	}

	if a, err := artifact.Parse(data); err == nil {
		status.Version = a.Version
		status.KDFIterations = a.Iterations
		status.Fingerprint = a.Fingerprint()
	} else {
		status.Corrupt = true
	}

	// Only plaintext files that exist are worth checking
	var secrets []string
	for _, name := range []string{DefaultSourceFile, v.keyFile, DefaultExportFile} {
		if _, err := v.validator.StatInRoot(name); err == nil {
			secrets = append(secrets, name)
		}
	}

	gitStatus, err := git.CheckGitIntegration(ctx, v.root, v.artifact, secrets)
	if err == nil && gitStatus.IsRepo {
		status.GitStatus = gitStatus
	}

	return status, nil
}

// Compact compacts the bolt database to reclaim space left by rewrites
func (v *Vault) Compact() error {
	compactor, ok := v.backend.(interface{ Compact() error })
	if !ok {
		return ErrCompactUnsupported
	}
	exists, err := v.backend.Exists()
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotInitialized
	}
	return compactor.Compact()
}

// GetVaultID returns the stable identifier used for keyring entries
func (v *Vault) GetVaultID() (string, error) {
	exists, err := v.backend.Exists()
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrNotInitialized
	}
	return v.backend.VaultID()
}

// VerifyPassword checks if the password opens the artifact
func (v *Vault) VerifyPassword(password []byte) error {
	session, err := v.Open(Password(password))
	if err != nil {
		return err
	}
	session.Close()
	return nil
}

func withSourcePath(err error, path string) error {
	var spe *SourceParseError
	if errors.As(err, &spe) {
		spe.Path = path
	}
	return err
}
