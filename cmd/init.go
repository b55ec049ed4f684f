package cmd

import (
	"fmt"

	"github.com/illarion/envseal/internal/core"
	"github.com/illarion/envseal/internal/crypto"
)

// InitOptions holds init flags
type InitOptions struct {
	Source    string
	Force     bool
	NoKeyFile bool
}

// Init seals the source file into a new artifact
func Init(env *Env, opts InitOptions) {
	if opts.Source == "" {
		opts.Source = env.Config.Source
	}

	// Refuse before asking for a password
	if !opts.Force {
		if exists, err := env.Vault.Exists(); err != nil {
			HandleError(err)
		} else if exists {
			HandleError(fmt.Errorf("%w: %s", core.ErrAlreadyExists, env.Vault.ArtifactPath()))
		}
	}

	password := env.NewPassword("Enter new password: ")
	defer crypto.ClearBytes(password)

	result, err := env.Vault.Init(password, core.InitOptions{
		Source:   opts.Source,
		Force:    opts.Force,
		WriteKey: env.Config.WriteKeyFile && !opts.NoKeyFile,
	})
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("sealed: %d keys into %s\n", result.Keys, env.Vault.ArtifactPath())
	if result.KeyFile != "" {
		fmt.Printf("key file: %s (keep it out of version control)\n", result.KeyFile)
	}
}
