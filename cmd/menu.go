package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/illarion/envseal/internal/core"
	"github.com/illarion/envseal/internal/crypto"
	"github.com/illarion/envseal/internal/dotenv"
)

// menu is the interactive configuration manager. The credential is
// resolved on first use and kept for the rest of the loop.
type menu struct {
	env    *Env
	in     *bufio.Reader
	secret *Secret
}

// Menu runs the interactive loop until the user exits
func Menu(ctx context.Context, env *Env) {
	if !core.IsInteractive() {
		fmt.Fprintln(os.Stderr, "Error: menu needs an interactive terminal")
		os.Exit(ExitError)
	}

	m := &menu{env: env, in: bufio.NewReader(os.Stdin)}
	defer func() {
		if m.secret != nil {
			m.secret.Close()
		}
	}()

	for ctx.Err() == nil {
		m.header("Configuration Manager")
		fmt.Println("1. View all values")
		fmt.Println("2. Edit a value")
		fmt.Println("3. Add a value")
		fmt.Println("4. Delete a value")
		fmt.Println("5. Initialize/reset configuration")
		fmt.Println("6. Export configuration")
		fmt.Println("7. Import configuration")
		fmt.Println("8. Change password")
		fmt.Println("9. Exit")
		fmt.Print("\nChoice [1-9]: ")

		choice, err := m.readChoice()
		if err != nil {
			return
		}

		switch choice {
		case "1":
			m.view()
		case "2":
			m.edit()
		case "3":
			m.add()
		case "4":
			m.remove()
		case "5":
			m.reset()
		case "6":
			m.export()
		case "7":
			m.importFile()
		case "8":
			m.changePassword()
		case "9", "q":
			return
		default:
			fmt.Println("Invalid choice. Please enter 1-9")
			continue
		}
		m.pause()
	}
}

func (m *menu) header(title string) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("%*s\n", 30+len(title)/2, title)
	fmt.Println(strings.Repeat("=", 60))
}

func (m *menu) pause() {
	fmt.Print("\nPress Enter to continue...")
	_, _ = m.readLine()
}

// readChoice reads a single key in raw mode, or a line when raw mode is
// unavailable
func (m *menu) readChoice() (string, error) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		line, err := m.readLine()
		if err != nil {
			return "", err
		}
		return strings.ToLower(line), nil
	}
	defer func() { _ = term.Restore(fd, oldState) }()

	buf := make([]byte, 1)
	if _, err := os.Stdin.Read(buf); err != nil {
		return "", err
	}
	// Ctrl-C and Ctrl-D leave the menu
	if buf[0] == 3 || buf[0] == 4 {
		return "", io.EOF
	}

	choice := strings.ToLower(string(buf[0]))
	fmt.Printf("%s\r\n", choice) // Echo the choice
	return choice, nil
}

func (m *menu) readLine() (string, error) {
	line, err := m.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (m *menu) confirm(question string) bool {
	fmt.Printf("%s (y/n): ", question)
	answer, err := m.readLine()
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// readValue reads a value, hidden when the key is sensitive
func (m *menu) readValue(key, prompt string) (string, error) {
	if m.env.Config.IsMasked(key) {
		value, err := core.ReadPassword(prompt)
		if err != nil {
			return "", err
		}
		return string(value), nil
	}
	fmt.Print(prompt)
	return m.readLine()
}

// open unlocks the vault, resolving the credential on first use
func (m *menu) open() (*core.Session, bool) {
	if exists, err := m.env.Vault.Exists(); err != nil || !exists {
		fmt.Println("No configuration yet, choose 5 to initialize one")
		return nil, false
	}
	if m.secret == nil {
		secret, session, err := m.env.unlock("Enter password: ")
		if err != nil {
			m.report(err)
			return nil, false
		}
		m.secret = secret
		return session, true
	}
	session, err := m.env.Vault.Open(m.secret.Credential())
	if err != nil {
		m.report(err)
		return nil, false
	}
	return session, true
}

// usePassword replaces the held credential after the artifact was rewritten
func (m *menu) usePassword(password []byte) {
	if m.secret != nil {
		m.secret.Close()
	}
	m.secret = &Secret{Source: SourcePrompt, Password: copyBytes(password)}
}

func (m *menu) report(err error) {
	if err != nil {
		fmt.Printf("Failed: %s\n", err)
	}
}

func (m *menu) view() {
	session, ok := m.open()
	if !ok {
		return
	}
	defer session.Close()

	m.header("Configuration Values")
	if session.Mapping.Len() == 0 {
		fmt.Println("No values stored")
		return
	}
	printMapping(m.env, session.Mapping, false)

	hidden := 0
	for _, key := range session.Mapping.Keys() {
		if m.env.Config.IsMasked(key) {
			hidden++
		}
	}
	if hidden == 0 || !m.confirm("\nShow sensitive values?") {
		return
	}

	fmt.Println("\nSensitive values:")
	fmt.Println(strings.Repeat("-", 60))
	for _, p := range session.Mapping.Pairs() {
		if m.env.Config.IsMasked(p.Key) {
			fmt.Printf("%s = %s\n", p.Key, p.Value)
		}
	}
}

// pickKey lists keys and reads a 1-based index, 0 cancels
func (m *menu) pickKey(mapping *dotenv.Mapping, action string) (string, bool) {
	keys := mapping.Keys()
	if len(keys) == 0 {
		fmt.Println("No values stored")
		return "", false
	}

	fmt.Println("Available keys:")
	for i, key := range keys {
		fmt.Printf("%d. %s\n", i+1, key)
	}
	fmt.Printf("\nKey number to %s (0 to cancel): ", action)
	line, err := m.readLine()
	if err != nil {
		return "", false
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 0 || n > len(keys) {
		fmt.Println("Invalid key number")
		return "", false
	}
	if n == 0 {
		return "", false
	}
	return keys[n-1], true
}

func (m *menu) edit() {
	session, ok := m.open()
	if !ok {
		return
	}
	defer session.Close()

	m.header("Edit Value")
	key, ok := m.pickKey(session.Mapping, "edit")
	if !ok {
		return
	}

	current, _ := session.Mapping.Get(key)
	fmt.Printf("\nCurrent value for %s: %s\n", key, displayValue(m.env, key, current, false))

	value, err := m.readValue(key, "New value (empty to cancel): ")
	if err != nil || value == "" {
		fmt.Println("Edit cancelled")
		return
	}
	if !m.confirm(fmt.Sprintf("Update %s?", key)) {
		fmt.Println("Edit cancelled")
		return
	}

	if err := core.SetValue(session.Mapping, key, value); err != nil {
		m.report(err)
		return
	}
	if err := session.Save(); err != nil {
		m.report(err)
		return
	}
	fmt.Printf("updated: %s\n", key)
}

func (m *menu) add() {
	session, ok := m.open()
	if !ok {
		return
	}
	defer session.Close()

	m.header("Add Value")
	fmt.Print("Key name: ")
	key, err := m.readLine()
	if err != nil {
		return
	}
	key = strings.TrimSpace(key)
	if err := dotenv.ValidateKey(key); err != nil {
		m.report(err)
		return
	}
	if session.Mapping.Has(key) {
		fmt.Printf("%s already exists, use edit to change it\n", key)
		return
	}

	value, err := m.readValue(key, fmt.Sprintf("Value for %s: ", key))
	if err != nil {
		m.report(err)
		return
	}
	if !m.confirm(fmt.Sprintf("Add %s?", key)) {
		fmt.Println("Addition cancelled")
		return
	}

	if err := core.SetValue(session.Mapping, key, value); err != nil {
		m.report(err)
		return
	}
	if err := session.Save(); err != nil {
		m.report(err)
		return
	}
	fmt.Printf("added: %s\n", key)
}

func (m *menu) remove() {
	session, ok := m.open()
	if !ok {
		return
	}
	defer session.Close()

	m.header("Delete Value")
	key, ok := m.pickKey(session.Mapping, "delete")
	if !ok {
		return
	}
	if !m.confirm(fmt.Sprintf("Delete %s?", key)) {
		fmt.Println("Deletion cancelled")
		return
	}

	if err := core.DeleteValue(session.Mapping, key); err != nil {
		m.report(err)
		return
	}
	if err := session.Save(); err != nil {
		m.report(err)
		return
	}
	fmt.Printf("removed: %s\n", key)
}

func (m *menu) reset() {
	m.header("Initialize Configuration")

	exists, err := m.env.Vault.Exists()
	if err != nil {
		m.report(err)
		return
	}
	if exists && !m.confirm(fmt.Sprintf("%s exists and will be replaced. Continue?", m.env.Vault.ArtifactPath())) {
		return
	}

	fmt.Printf("Source file [%s]: ", m.env.Config.Source)
	source, err := m.readLine()
	if err != nil {
		return
	}
	if source = strings.TrimSpace(source); source == "" {
		source = m.env.Config.Source
	}

	password, err := core.ReadPasswordConfirm("Enter new password: ")
	if err != nil {
		m.report(err)
		return
	}
	defer crypto.ClearBytes(password)

	result, err := m.env.Vault.Init(password, core.InitOptions{
		Source:   source,
		Force:    true,
		WriteKey: m.env.Config.WriteKeyFile,
	})
	if err != nil {
		m.report(err)
		return
	}
	m.usePassword(password)
	fmt.Printf("sealed: %d keys into %s\n", result.Keys, m.env.Vault.ArtifactPath())
}

func (m *menu) export() {
	m.header("Export Configuration")

	fmt.Printf("Output file [%s]: ", core.DefaultExportFile)
	output, err := m.readLine()
	if err != nil {
		return
	}
	if output = strings.TrimSpace(output); output == "" {
		output = core.DefaultExportFile
	}

	force := false
	if _, err := os.Stat(output); err == nil {
		if !m.confirm(fmt.Sprintf("%s exists. Overwrite?", output)) {
			return
		}
		force = true
	}

	session, ok := m.open()
	if !ok {
		return
	}
	session.Close()

	n, err := m.env.Vault.Export(m.secret.Credential(), core.ExportOptions{Path: output, Force: force})
	if err != nil {
		m.report(err)
		return
	}
	fmt.Printf("exported: %d keys to %s\n", n, output)
	fmt.Printf("warning: %s holds plaintext secrets, delete it when done\n", output)
}

func (m *menu) importFile() {
	m.header("Import Configuration")

	fmt.Printf("Input file [%s]: ", m.env.Config.Source)
	input, err := m.readLine()
	if err != nil {
		return
	}
	if input = strings.TrimSpace(input); input == "" {
		input = m.env.Config.Source
	}

	exists, err := m.env.Vault.Exists()
	if err != nil {
		m.report(err)
		return
	}

	var password []byte
	if exists {
		if !m.confirm(fmt.Sprintf("This replaces all values in %s. Continue?", m.env.Vault.ArtifactPath())) {
			return
		}
		if password, err = m.password(); err != nil {
			m.report(err)
			return
		}
	} else {
		password, err = core.ReadPasswordConfirm("Enter new password: ")
		if err != nil {
			m.report(err)
			return
		}
	}
	defer crypto.ClearBytes(password)

	result, err := m.env.Vault.Import(password, core.ImportOptions{
		Path:     input,
		Force:    true,
		WriteKey: m.env.Config.WriteKeyFile,
	})
	if err != nil {
		m.report(err)
		return
	}
	m.usePassword(password)
	fmt.Printf("imported: %d keys from %s\n", result.Keys, input)
}

// password returns a copy of the verified password. A key file credential
// is not enough for operations that create a new salt.
func (m *menu) password() ([]byte, error) {
	if m.secret != nil && m.secret.Password != nil {
		return copyBytes(m.secret.Password), nil
	}
	secret, err := m.env.GetPasswordWithRetry("Enter password: ", m.env.Vault.VerifyPassword)
	if err != nil {
		return nil, err
	}
	defer secret.Close()
	return copyBytes(secret.Password), nil
}

func (m *menu) changePassword() {
	m.header("Change Password")

	vaultID := m.env.vaultID()
	current, err := m.password()
	if err != nil {
		m.report(err)
		return
	}
	defer crypto.ClearBytes(current)

	newPassword, err := core.ReadPasswordConfirm("Enter new password: ")
	if err != nil {
		m.report(err)
		return
	}
	defer crypto.ClearBytes(newPassword)

	result, err := m.env.Vault.ChangePassword(current, newPassword)
	if err != nil {
		m.report(err)
		return
	}
	m.usePassword(newPassword)
	updateKeyring(vaultID, newPassword)

	if result.KeyFileUpdated {
		fmt.Printf("Key file %s updated\n", m.env.Vault.KeyFilePath())
	}
	fmt.Println("password changed successfully")
}
