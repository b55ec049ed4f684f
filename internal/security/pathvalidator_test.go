package security

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func newValidator(t *testing.T) (*PathValidator, string) {
	t.Helper()
	dir := t.TempDir()
	validator, err := New(dir)
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	t.Cleanup(func() { validator.Close() })
	return validator, validator.Root()
}

func TestPathValidator_ValidateAndNormalize(t *testing.T) {
	validator, _ := newValidator(t)

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"hidden file", ".env", ".env", nil},
		{"nested key file", "secrets/.env.key", "secrets/.env.key", nil},
		{"dot slash", "./.env.enc", ".env.enc", nil},
		{"dot segments", "a/./b/../.env", "a/.env", nil},
		{"redundant slashes", "a//b///.env", "a/b/.env", nil},

		{"parent directory", "../.env", "", ErrPathEscapes},
		{"nested parent", "a/../../.env", "", ErrPathEscapes},
		{"absolute path", "/etc/passwd", "", ErrAbsolutePath},
		{"empty path", "", "", ErrEmptyPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validator.ValidateAndNormalize(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidateAndNormalize(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error for %q: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ValidateAndNormalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPathValidator_WriteFileInRoot(t *testing.T) {
	validator, root := newValidator(t)

	tests := []struct {
		name      string
		path      string
		shouldErr bool
	}{
		{"top level", ".env.exported", false},
		{"creates parent directories", "out/nested/.env.exported", false},
		{"path traversal attempt", "../outside.txt", true},
		{"absolute path", "/etc/shadow", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.WriteFileInRoot(tt.path, []byte("A=1\n"), 0600)
			if tt.shouldErr {
				if err == nil {
					t.Errorf("Expected error when writing to %q, got none", tt.path)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error writing to %q: %v", tt.path, err)
			}

			content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(tt.path)))
			if err != nil {
				t.Fatalf("Failed to read written file: %v", err)
			}
			if string(content) != "A=1\n" {
				t.Errorf("File content mismatch: got %q", content)
			}
		})
	}
}

func TestPathValidator_WriteFileInRootReplaces(t *testing.T) {
	validator, root := newValidator(t)

	if err := os.WriteFile(filepath.Join(root, ".env.key"), []byte("old content that is longer"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := validator.WriteFileInRoot(".env.key", []byte("new"), 0600); err != nil {
		t.Fatalf("WriteFileInRoot failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(root, ".env.key"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "new" {
		t.Errorf("Content not replaced: %q", content)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(root, ".env.key"))
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("Permissions not tightened: got %o", perm)
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("Temp file left behind: %s", e.Name())
		}
	}
}

func TestPathValidator_ReadStatRemove(t *testing.T) {
	validator, root := newValidator(t)

	if err := os.WriteFile(filepath.Join(root, ".env"), []byte("A=1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	data, err := validator.ReadFileInRoot(".env")
	if err != nil {
		t.Fatalf("ReadFileInRoot failed: %v", err)
	}
	if string(data) != "A=1\n" {
		t.Errorf("Content mismatch: got %q", data)
	}

	if _, err := validator.StatInRoot(".env"); err != nil {
		t.Errorf("StatInRoot failed: %v", err)
	}
	if _, err := validator.ReadFileInRoot("missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected fs.ErrNotExist for missing file, got %v", err)
	}
	if _, err := validator.ReadFileInRoot("../.env"); err == nil {
		t.Error("Expected error reading outside root")
	}

	if err := validator.RemoveInRoot(".env"); err != nil {
		t.Fatalf("RemoveInRoot failed: %v", err)
	}
	if _, err := validator.StatInRoot(".env"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("File should be gone, got %v", err)
	}
}

// os.Root must refuse a symlink that leads out of the project
func TestPathValidator_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	validator, root := newValidator(t)

	outside := t.TempDir()
	secret := filepath.Join(outside, "secret")
	if err := os.WriteFile(secret, []byte("outside"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(secret, filepath.Join(root, ".env")); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	if _, err := validator.ReadFileInRoot(".env"); err == nil {
		t.Error("Reading through an escaping symlink should fail")
	}
}

func TestPathValidator_ActualEscapePrevention(t *testing.T) {
	validator, root := newValidator(t)

	targetFile := filepath.Join(filepath.Dir(root), "should_not_be_written.txt")
	defer os.Remove(targetFile)

	if err := validator.WriteFileInRoot("../should_not_be_written.txt", []byte("pwned"), 0644); err == nil {
		t.Error("Expected error when trying to write outside root, got none")
	}

	if _, statErr := os.Stat(targetFile); statErr == nil {
		t.Error("File was created outside the project root")
	}
}
