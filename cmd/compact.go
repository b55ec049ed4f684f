package cmd

import (
	"context"
	"fmt"
	"os"
)

// Compact compacts the bolt artifact to reclaim unused space
func Compact(ctx context.Context, env *Env) {
	if err := ctx.Err(); err != nil {
		HandleError(err)
	}
	sizeBefore := artifactSize(env)

	if err := env.Vault.Compact(); err != nil {
		HandleError(err)
	}

	fmt.Printf("Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(artifactSize(env)))
}

func artifactSize(env *Env) int64 {
	info, err := os.Stat(env.Vault.ArtifactPath())
	if err != nil {
		return 0
	}
	return info.Size()
}
