package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/illarion/envseal/internal/core"
)

// Edit opens the decrypted configuration in $VISUAL or $EDITOR
func Edit(env *Env) {
	secret, session := env.Unlock("Enter password: ")
	defer secret.Close()
	session.Close()

	result, err := env.Vault.Edit(secret.Credential(), core.InvokeEditor)
	if err != nil {
		HandleError(err)
	}
	printEditResult(result)
}

// Merge reconciles a local plaintext file with the vault. Differences are
// presented with conflict markers in the editor.
func Merge(env *Env, path string) {
	if path == "" {
		path = env.Config.Source
	}

	secret, session := env.Unlock("Enter password: ")
	defer secret.Close()
	session.Close()

	result, err := env.Vault.Merge(secret.Credential(), path, core.InvokeEditor)
	if errors.Is(err, core.ErrUnresolvedConflicts) {
		fmt.Fprintf(os.Stderr, "Error: %s, nothing saved\n", err)
		os.Exit(ExitError)
	}
	if err != nil {
		HandleError(err)
	}
	printEditResult(result)
}

func printEditResult(result *core.EditResult) {
	if !result.Saved {
		fmt.Println("no changes")
		return
	}
	printKeyChanges(result.Changes)
	fmt.Println("saved")
}

func printKeyChanges(changes *core.KeyChanges) {
	for _, key := range changes.Added {
		fmt.Printf("  + %s\n", key)
	}
	for _, key := range changes.Removed {
		fmt.Printf("  - %s\n", key)
	}
	for _, key := range changes.Changed {
		fmt.Printf("  ~ %s\n", key)
	}
}
