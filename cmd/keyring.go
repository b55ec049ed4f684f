package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/envseal/internal/core"
	"github.com/illarion/envseal/internal/crypto"
	"github.com/illarion/envseal/internal/keyring"
)

// KeyringSave saves the password to the OS keyring
func KeyringSave(env *Env) {
	vaultID, err := env.Vault.GetVaultID()
	if err != nil {
		HandleError(err)
	}

	password, err := core.ReadPassword("Enter password: ")
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(password)

	// Verify password is correct
	if err := env.Vault.VerifyPassword(password); err != nil {
		HandleError(err)
	}

	if err := keyring.SavePassword(vaultID, password); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save to keyring: %s\n", err)
		os.Exit(ExitError)
	}

	fmt.Println("Password saved to keyring")
}

// KeyringDelete removes the password from the OS keyring
func KeyringDelete(env *Env) {
	vaultID, err := env.Vault.GetVaultID()
	if err != nil {
		fmt.Println("No password stored in keyring")
		return
	}

	if !keyring.HasPassword(vaultID) {
		fmt.Println("No password stored in keyring")
		return
	}
	if err := keyring.DeletePassword(vaultID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to remove from keyring: %s\n", err)
		os.Exit(ExitError)
	}

	fmt.Println("Password removed from keyring")
}

// KeyringStatus checks if a password is stored in the keyring
func KeyringStatus(env *Env) {
	vaultID, err := env.Vault.GetVaultID()
	if err != nil {
		fmt.Println("Password: not stored")
		return
	}

	if keyring.HasPassword(vaultID) {
		fmt.Println("Password: stored in keyring")
	} else {
		fmt.Println("Password: not stored")
	}
}
