package core

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/illarion/envseal/internal/crypto"
	"github.com/illarion/envseal/internal/dotenv"
)

var ErrUnresolvedConflicts = errors.New("conflict markers still present")

// EditFunc edits the file at path in place and returns when done
type EditFunc func(path string) error

// getEditor returns the editor to use, checking environment variables with fallback
func getEditor() string {
	if editor := os.Getenv("VISUAL"); editor != "" {
		return editor
	}
	if editor := os.Getenv("EDITOR"); editor != "" {
		return editor
	}
	if runtime.GOOS == "windows" {
		return "notepad"
	}
	return "vi"
}

// InvokeEditor opens $VISUAL or $EDITOR on path and waits for it to exit
func InvokeEditor(path string) error {
	editor := getEditor()

	if _, err := exec.LookPath(editor); err != nil {
		return fmt.Errorf("editor '%s' not found: %w\nPlease set VISUAL or EDITOR environment variable", editor, err)
	}

	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("editor exited with code %d", exitErr.ExitCode())
	}
	return err
}

// editPlaintext writes content to a private temp file, runs edit on it and
// returns what the editor left behind. The temp file is overwritten with
// zeros before removal.
func editPlaintext(content []byte, edit EditFunc) ([]byte, error) {
	tmpFile, err := os.CreateTemp("", "envseal-edit-*.env")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer scrubFile(tmpPath)

	if err := os.Chmod(tmpPath, 0600); err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("failed to set temp file permissions: %w", err)
	}
	if _, err := tmpFile.Write(content); err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := edit(tmpPath); err != nil {
		return nil, err
	}

	edited, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read edited file: %w", err)
	}
	return edited, nil
}

// scrubFile zeroes a file's content before removing it
func scrubFile(path string) {
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		if f, err := os.OpenFile(path, os.O_WRONLY, 0); err == nil {
			_, _ = f.Write(make([]byte, info.Size()))
			_ = f.Sync()
			_ = f.Close()
		}
	}
	_ = os.Remove(path)
}

// EditMapping lets edit rewrite m in KEY=VALUE form and parses the result.
// A parse failure is a *SourceParseError and m is left untouched.
func EditMapping(m *dotenv.Mapping, edit EditFunc) (*dotenv.Mapping, error) {
	plaintext := dotenv.Encode(m)
	defer crypto.ClearBytes(plaintext)

	edited, err := editPlaintext(plaintext, edit)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(edited)

	return ImportPlain(edited)
}

// MergeMappings opens local and vault contents in one file with git-style
// conflict markers around the differing lines. The resolved file becomes
// the result.
func MergeMappings(local, vault *dotenv.Mapping, edit EditFunc) (*dotenv.Mapping, error) {
	localData := dotenv.Encode(local)
	defer crypto.ClearBytes(localData)
	vaultData := dotenv.Encode(vault)
	defer crypto.ClearBytes(vaultData)

	conflicted := createLineDiff(localData, vaultData)
	defer crypto.ClearBytes(conflicted)

	edited, err := editPlaintext(conflicted, edit)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(edited)

	if hasConflictMarkers(edited) {
		return nil, ErrUnresolvedConflicts
	}
	return ImportPlain(edited)
}
