package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/illarion/envseal/loader"
)

// Run executes argv with the decrypted configuration added to its
// environment. The child's exit status becomes ours.
func Run(ctx context.Context, env *Env, argv []string, override bool) {
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: envseal run [--override] -- <command> [args...]")
		os.Exit(ExitError)
	}

	secret, session := env.Unlock("Enter password: ")
	childEnv := loader.Merge(os.Environ(), session.Mapping, override)
	env.Log.Debug("starting child", "command", argv[0], "keys", session.Mapping.Len(), "override", override)
	session.Close()
	secret.Close()
	env.Close()

	code, err := runChild(ctx, argv, childEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
	os.Exit(code)
}

// runChild runs argv with environ and returns its exit status. Failure to
// start is an error; a non-zero exit is not.
func runChild(ctx context.Context, argv []string, environ []string) (int, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = environ
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal()), nil
		}
		if code := exitErr.ExitCode(); code >= 0 {
			return code, nil
		}
		return ExitError, nil
	}
	return ExitError, fmt.Errorf("failed to start %s: %w", argv[0], err)
}
