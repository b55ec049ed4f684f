package git

import (
	"context"
	"os/exec"
	"strings"
	"testing"
)

func TestCheckGitIntegrationOutsideRepo(t *testing.T) {
	dir := t.TempDir()

	status, err := CheckGitIntegration(context.Background(), dir, ".env.enc", []string{".env"})
	if err != nil {
		t.Fatalf("CheckGitIntegration failed: %v", err)
	}
	// A temp dir may sit inside a repo on some machines
	if status.IsRepo {
		t.Skip("temp dir is inside a git work tree")
	}
	if FormatGitStatus(status) != "" {
		t.Error("Expected empty output outside a repository")
	}
}

func TestCheckGitIntegrationInRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	if err := exec.Command("git", "init", "-q", dir).Run(); err != nil {
		t.Skipf("git init failed: %v", err)
	}

	status, err := CheckGitIntegration(context.Background(), dir, ".env.enc", []string{".env", ".env.key"})
	if err != nil {
		t.Fatalf("CheckGitIntegration failed: %v", err)
	}
	if !status.IsRepo {
		t.Fatal("Expected a repository")
	}
	if status.ArtifactTracked {
		t.Error("Artifact should not be tracked in a fresh repository")
	}
	if len(status.UnignoredSecrets) != 2 {
		t.Errorf("Expected 2 unignored secrets, got %v", status.UnignoredSecrets)
	}
}

func TestFormatGitStatus(t *testing.T) {
	status := &GitStatus{
		IsRepo:           true,
		ArtifactPath:     ".env.enc",
		ArtifactTracked:  true,
		TrackedSecrets:   []string{".env"},
		UnignoredSecrets: []string{".env", ".env.key"},
	}

	out := FormatGitStatus(status)
	for _, want := range []string{
		"ok: .env.enc is tracked by git",
		"error: .env is tracked by git (run: git rm --cached .env)",
		"warning: .env.key not in .gitignore",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
	// Tracked files are reported once, not again as unignored
	if strings.Contains(out, "warning: .env not in .gitignore") {
		t.Errorf("Tracked file reported twice:\n%s", out)
	}
}
