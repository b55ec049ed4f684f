package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illarion/envseal/internal/core"
	"github.com/illarion/envseal/internal/git"
	"github.com/illarion/envseal/internal/keyring"
)

// Status shows what can be learned without a password
func Status(ctx context.Context, env *Env) {
	status, err := env.Vault.Status(ctx)
	if errors.Is(err, core.ErrNotInitialized) {
		fmt.Printf("No encrypted configuration at %s\n", env.Vault.ArtifactPath())
		fmt.Println("Run 'envseal init' to create one")
		return
	}
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("Artifact:   %s (%s backend, %s)\n", status.ArtifactPath, status.Backend, formatSize(status.Size))
	if status.Corrupt {
		fmt.Println("State:      unreadable header (corrupted or not an envseal artifact)")
	} else {
		fmt.Printf("Format:     version %d, %s\n", status.Version, status.Algorithm)
		fmt.Printf("KDF:        %s, %d iterations\n", status.KDF, status.KDFIterations)
		fmt.Printf("Salt:       %s\n", status.Fingerprint)
	}
	if !status.Created.IsZero() {
		fmt.Printf("Created:    %s\n", status.Created.Format(time.RFC3339))
	}
	if !status.Modified.IsZero() {
		fmt.Printf("Modified:   %s\n", status.Modified.Format(time.RFC3339))
	}

	if status.KeyFilePresent {
		fmt.Printf("Key file:   %s (present)\n", status.KeyFile)
	} else {
		fmt.Printf("Key file:   %s (absent)\n", status.KeyFile)
	}

	if env.Config.UseKeyring {
		if id := env.vaultID(); id != "" && keyring.HasPassword(id) {
			fmt.Println("Keyring:    password stored")
		} else {
			fmt.Println("Keyring:    not stored")
		}
	}

	if status.GitStatus != nil {
		fmt.Print(git.FormatGitStatus(status.GitStatus))
	}
}

// formatSize formats a file size in human-readable form
func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
