package cmd

import (
	"context"
	"fmt"
)

// Diff compares the vault with a local plaintext file. Only key names are
// printed unless showValues is set.
func Diff(ctx context.Context, env *Env, path string, showValues bool) {
	if path == "" {
		path = env.Config.Source
	}

	secret, session := env.Unlock("Enter password: ")
	defer secret.Close()
	session.Close()

	result, err := env.Vault.Diff(ctx, secret.Credential(), path, showValues)
	if err != nil {
		HandleError(err)
	}

	if result.Changes.Empty() {
		fmt.Printf("%s matches the vault\n", path)
		return
	}
	if showValues {
		fmt.Print(result.Unified)
		return
	}
	fmt.Printf("%s differs from the vault:\n", path)
	printKeyChanges(result.Changes)
}
