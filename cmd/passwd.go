package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/envseal/internal/core"
	"github.com/illarion/envseal/internal/crypto"
	"github.com/illarion/envseal/internal/keyring"
	"github.com/illarion/envseal/internal/storage"
)

// Passwd changes the password of the artifact
func Passwd(env *Env) {
	// Vault ID for keyring lookup, empty if the keyring is off
	vaultID := env.vaultID()

	current := env.UnlockPassword("Enter current password: ")
	defer current.Close()

	newPassword, err := core.ReadPasswordConfirm("Enter new password: ")
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(newPassword)

	result, err := env.Vault.ChangePassword(current.Password, newPassword)
	if err != nil {
		HandleError(err)
	}

	updateKeyring(vaultID, newPassword)

	if result.KeyFileUpdated {
		fmt.Printf("Key file %s updated\n", env.Vault.KeyFilePath())
	}

	// Compact database after rewriting all data
	if env.Config.Backend == storage.KindBolt {
		if err := env.Vault.Compact(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: compaction failed: %s\n", err)
		}
	}

	fmt.Println("password changed successfully")
}

// updateKeyring replaces a stored password after a change. The old entry
// no longer opens the vault, so it is removed if it cannot be replaced.
func updateKeyring(vaultID string, newPassword []byte) {
	if vaultID == "" || !keyring.HasPassword(vaultID) {
		return
	}
	if err := keyring.SavePassword(vaultID, newPassword); err == nil {
		fmt.Println("Keyring updated with new password")
		return
	}
	if err := keyring.DeletePassword(vaultID); err != nil {
		fmt.Fprintf(os.Stderr, "warning: stale keyring entry could not be removed: %s\n", err)
	}
}
