package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/illarion/envseal/internal/core"
	"github.com/illarion/envseal/internal/dotenv"
)

const maskedValue = "********"

// displayValue masks value when key looks sensitive
func displayValue(env *Env, key, value string, showSecrets bool) string {
	if !showSecrets && env.Config.IsMasked(key) {
		return maskedValue
	}
	return value
}

// printMapping prints KEY = VALUE lines in mapping order, keys padded
func printMapping(env *Env, m *dotenv.Mapping, showSecrets bool) {
	width := 0
	for _, key := range m.Keys() {
		width = max(width, len(key))
	}
	for _, p := range m.Pairs() {
		fmt.Printf("%-*s = %s\n", width, p.Key, displayValue(env, p.Key, p.Value, showSecrets))
	}
}

// View prints every key, masking sensitive values
func View(env *Env, showSecrets bool) {
	secret, session := env.Unlock("Enter password: ")
	defer secret.Close()
	defer session.Close()

	if session.Mapping.Len() == 0 {
		fmt.Println("No values stored")
	} else {
		printMapping(env, session.Mapping, showSecrets)
	}
	env.OfferToSavePassword(secret)
}

// Get prints the raw value of key, suitable for command substitution
func Get(env *Env, key string) {
	secret, session := env.Unlock("Enter password: ")
	defer secret.Close()
	defer session.Close()

	value, err := core.GetValue(session.Mapping, key)
	if err != nil {
		HandleError(err)
	}
	fmt.Println(value)
}

// Set stores value under key. With readValue the value is read from the
// terminal without echo, or from stdin when piped, keeping it out of
// shell history.
func Set(env *Env, key, value string, readValue bool) {
	if err := dotenv.ValidateKey(key); err != nil {
		HandleError(err)
	}

	secret, session := env.Unlock("Enter password: ")
	defer secret.Close()
	defer session.Close()

	if readValue {
		v, err := readSecretValue(key)
		if err != nil {
			HandleError(err)
		}
		value = v
	}

	existed := session.Mapping.Has(key)
	if err := core.SetValue(session.Mapping, key, value); err != nil {
		HandleError(err)
	}
	if err := session.Save(); err != nil {
		HandleError(err)
	}

	if existed {
		fmt.Printf("updated: %s\n", key)
	} else {
		fmt.Printf("added: %s\n", key)
	}
}

// Unset removes key
func Unset(env *Env, key string) {
	secret, session := env.Unlock("Enter password: ")
	defer secret.Close()
	defer session.Close()

	if err := core.DeleteValue(session.Mapping, key); err != nil {
		HandleError(err)
	}
	if err := session.Save(); err != nil {
		HandleError(err)
	}
	fmt.Printf("removed: %s\n", key)
}

func readSecretValue(key string) (string, error) {
	if core.IsInteractive() {
		value, err := core.ReadPassword(fmt.Sprintf("Value for %s: ", key))
		if err != nil {
			return "", err
		}
		return string(value), nil
	}

	data, err := io.ReadAll(bufio.NewReader(os.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read value from stdin: %w", err)
	}
	return strings.TrimSuffix(strings.TrimSuffix(string(data), "\n"), "\r"), nil
}
