package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/envseal/internal/core"
	"github.com/illarion/envseal/internal/crypto"
)

// ExportOptions holds export flags
type ExportOptions struct {
	Output     string
	Force      bool
	Recipients []string
}

// Export writes the decrypted configuration to a plaintext or
// age-encrypted file
func Export(env *Env, opts ExportOptions) {
	secret, session := env.Unlock("Enter password: ")
	defer secret.Close()
	// Export opens the vault itself
	session.Close()

	n, err := env.Vault.Export(secret.Credential(), core.ExportOptions{
		Path:       opts.Output,
		Force:      opts.Force,
		Recipients: opts.Recipients,
	})
	if err != nil {
		HandleError(err)
	}

	output := opts.Output
	if output == "" {
		output = core.DefaultExportFile
	}
	if len(opts.Recipients) > 0 {
		fmt.Printf("exported: %d keys to %s (age, %d recipient(s))\n", n, output, len(opts.Recipients))
		return
	}
	fmt.Printf("exported: %d keys to %s\n", n, output)
	fmt.Fprintf(os.Stderr, "warning: %s holds plaintext secrets, delete it when done\n", output)
}

// ImportOptions holds import flags
type ImportOptions struct {
	Input     string
	Force     bool
	Identity  string
	NoKeyFile bool
}

// Import replaces the artifact with the contents of a plaintext file
func Import(env *Env, opts ImportOptions) {
	if opts.Input == "" {
		opts.Input = env.Config.Source
	}

	var identity []byte
	if opts.Identity != "" {
		data, err := os.ReadFile(opts.Identity)
		if err != nil {
			HandleError(fmt.Errorf("failed to read identity file: %w", err))
		}
		identity = data
		defer crypto.ClearBytes(identity)
	}

	exists, err := env.Vault.Exists()
	if err != nil {
		HandleError(err)
	}
	if exists && !opts.Force {
		HandleError(fmt.Errorf("%w: %s", core.ErrAlreadyExists, env.Vault.ArtifactPath()))
	}

	// Replacing an artifact needs its password, a new one gets a new password
	var password []byte
	if exists {
		secret := env.UnlockPassword("Enter password: ")
		defer secret.Close()
		password = secret.Password
	} else {
		password = env.NewPassword("Enter new password: ")
		defer crypto.ClearBytes(password)
	}

	result, err := env.Vault.Import(password, core.ImportOptions{
		Path:     opts.Input,
		Force:    opts.Force,
		WriteKey: env.Config.WriteKeyFile && !opts.NoKeyFile,
		Identity: identity,
	})
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("imported: %d keys from %s into %s\n", result.Keys, opts.Input, env.Vault.ArtifactPath())
	if result.KeyFile != "" {
		fmt.Printf("key file: %s\n", result.KeyFile)
	}
}
