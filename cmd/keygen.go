package cmd

import (
	"fmt"
)

// Keygen writes a key file matching the current artifact
func Keygen(env *Env) {
	secret := env.UnlockPassword("Enter password: ")
	defer secret.Close()

	path, err := env.Vault.RegenerateKey(secret.Password)
	if err != nil {
		HandleError(err)
	}
	fmt.Printf("key file written: %s (keep it out of version control)\n", path)
}
