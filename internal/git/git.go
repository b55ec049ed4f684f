package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitStatus contains git integration status information
type GitStatus struct {
	IsRepo           bool
	ArtifactPath     string
	ArtifactTracked  bool
	UntrackedSecrets []string // Plaintext files not tracked by git (good)
	TrackedSecrets   []string // Plaintext files tracked by git (bad)
	IgnoredSecrets   []string // Plaintext files in .gitignore (good)
	UnignoredSecrets []string // Plaintext files not in .gitignore (warning)
}

// runGit runs git in dir. A non-zero exit is returned as an error.
func runGit(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	return cmd.Output()
}

// IsGitRepo checks if dir is inside a git work tree
func IsGitRepo(ctx context.Context, dir string) bool {
	out, err := runGit(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && bytes.Equal(bytes.TrimSpace(out), []byte("true"))
}

// IsTracked checks if path is in the git index
func IsTracked(ctx context.Context, dir, path string) bool {
	out, err := runGit(ctx, dir, "ls-files", "--", path)
	return err == nil && len(bytes.TrimSpace(out)) > 0
}

// IsIgnored checks if path matches any gitignore rule. check-ignore
// exits 0 only for ignored paths.
func IsIgnored(ctx context.Context, dir, path string) bool {
	_, err := runGit(ctx, dir, "check-ignore", "-q", "--", path)
	return err == nil
}

// CheckGitIntegration reports whether the encrypted artifact is committed
// and whether any plaintext secret file (source, key file, export) could be.
// Outside a repository only IsRepo is set.
func CheckGitIntegration(ctx context.Context, dir, artifactPath string, secretFiles []string) (*GitStatus, error) {
	status := &GitStatus{ArtifactPath: artifactPath}
	if !IsGitRepo(ctx, dir) {
		return status, ctx.Err()
	}
	status.IsRepo = true
	status.ArtifactTracked = IsTracked(ctx, dir, artifactPath)

	for _, file := range secretFiles {
		if IsTracked(ctx, dir, file) {
			status.TrackedSecrets = append(status.TrackedSecrets, file)
		} else {
			status.UntrackedSecrets = append(status.UntrackedSecrets, file)
		}

		if IsIgnored(ctx, dir, file) {
			status.IgnoredSecrets = append(status.IgnoredSecrets, file)
		} else {
			status.UnignoredSecrets = append(status.UnignoredSecrets, file)
		}
	}

	return status, ctx.Err()
}

// FormatGitStatus renders status as an indented report, or "" outside a
// repository
func FormatGitStatus(status *GitStatus) string {
	if !status.IsRepo {
		return ""
	}

	var b strings.Builder
	line := func(level, format string, args ...any) {
		fmt.Fprintf(&b, "   %s: %s\n", level, fmt.Sprintf(format, args...))
	}

	b.WriteString("\nGit Integration:\n")

	if status.ArtifactTracked {
		line("ok", "%s is tracked by git", status.ArtifactPath)
	} else {
		line("warning", "%s not tracked (run: git add %s)", status.ArtifactPath, status.ArtifactPath)
	}

	// A committed plaintext file defeats the encryption
	tracked := make(map[string]bool, len(status.TrackedSecrets))
	for _, file := range status.TrackedSecrets {
		tracked[file] = true
		line("error", "%s is tracked by git (run: git rm --cached %s)", file, file)
	}
	if len(status.TrackedSecrets) == 0 && len(status.UntrackedSecrets) > 0 {
		line("ok", "no plaintext secrets tracked by git")
	}

	unignored := 0
	for _, file := range status.UnignoredSecrets {
		if tracked[file] {
			continue
		}
		unignored++
		line("warning", "%s not in .gitignore (add it to .gitignore)", file)
	}
	if unignored == 0 && len(status.IgnoredSecrets) > 0 {
		line("ok", "%d plaintext file(s) in .gitignore", len(status.IgnoredSecrets))
	}

	return b.String()
}
