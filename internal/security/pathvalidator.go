package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrPathEscapes  = errors.New("path escapes project root")
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
	ErrEmptyPath    = errors.New("empty path not allowed")
)

// PathValidator confines file access to a project root using os.Root, so
// a configured path such as "../../etc/passwd" can never be read or
// overwritten.
type PathValidator struct {
	repoRoot *os.Root
	repoPath string
}

// New opens root for confined access
func New(root string) (*PathValidator, error) {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	r, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open project root: %w", err)
	}

	return &PathValidator{
		repoRoot: r,
		repoPath: absPath,
	}, nil
}

// Close releases the root handle
func (pv *PathValidator) Close() error {
	if pv.repoRoot != nil {
		return pv.repoRoot.Close()
	}
	return nil
}

// Root returns the absolute path of the project root
func (pv *PathValidator) Root() string {
	return pv.repoPath
}

// ValidateAndNormalize checks that userPath is a relative path inside the
// root and returns it cleaned, with forward slashes. Absolute paths, ".."
// escapes and Windows reserved names are rejected.
func (pv *PathValidator) ValidateAndNormalize(userPath string) (string, error) {
	if userPath == "" {
		return "", ErrEmptyPath
	}

	if !filepath.IsLocal(userPath) {
		if filepath.IsAbs(userPath) {
			return "", fmt.Errorf("%w: %s", ErrAbsolutePath, userPath)
		}
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, userPath)
	}

	cleanPath := filepath.Clean(userPath)
	relPath, err := filepath.Rel(pv.repoPath, filepath.Join(pv.repoPath, cleanPath))
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if strings.HasPrefix(relPath, "..") || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, userPath)
	}

	return filepath.ToSlash(relPath), nil
}

func (pv *PathValidator) platformPath(p string) (string, error) {
	valid, err := pv.ValidateAndNormalize(filepath.FromSlash(p))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	return filepath.FromSlash(valid), nil
}

// WriteFileInRoot replaces the file at p with data. The content goes to a
// temp file in the same directory first and is renamed into place, so a
// reader never sees a partial file. Missing parent directories are created.
func (pv *PathValidator) WriteFileInRoot(p string, data []byte, perm os.FileMode) error {
	target, err := pv.platformPath(p)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(target); dir != "." {
		if err := pv.repoRoot.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Errorf("failed to name temp file: %w", err)
	}
	tmpPath := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".tmp-"+hex.EncodeToString(suffix))

	f, err := pv.repoRoot.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		pv.repoRoot.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		pv.repoRoot.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		pv.repoRoot.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := pv.repoRoot.Chmod(tmpPath, perm); err != nil {
		pv.repoRoot.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := pv.repoRoot.Rename(tmpPath, target); err != nil {
		pv.repoRoot.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path.Base(p), err)
	}
	return nil
}

// ReadFileInRoot reads a file inside the root
func (pv *PathValidator) ReadFileInRoot(p string) ([]byte, error) {
	target, err := pv.platformPath(p)
	if err != nil {
		return nil, err
	}
	return pv.repoRoot.ReadFile(target)
}

// StatInRoot stats a file inside the root
func (pv *PathValidator) StatInRoot(p string) (os.FileInfo, error) {
	target, err := pv.platformPath(p)
	if err != nil {
		return nil, err
	}
	return pv.repoRoot.Stat(target)
}

// RemoveInRoot removes a file inside the root
func (pv *PathValidator) RemoveInRoot(p string) error {
	target, err := pv.platformPath(p)
	if err != nil {
		return err
	}
	return pv.repoRoot.Remove(target)
}
