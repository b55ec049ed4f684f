package share

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/illarion/envseal/internal/crypto"
)

var (
	ErrNoRecipients = errors.New("at least one recipient is required")
	ErrNoIdentities = errors.New("no identities found")
)

// IsEncrypted reports whether data looks like armored age output
func IsEncrypted(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte(armor.Header))
}

// ParseRecipients parses age1... public keys
func ParseRecipients(keys []string) ([]age.Recipient, error) {
	if len(keys) == 0 {
		return nil, ErrNoRecipients
	}
	recipients := make([]age.Recipient, 0, len(keys))
	for _, key := range keys {
		recipient, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// Encrypt encrypts plaintext to every recipient key
func Encrypt(plaintext []byte, recipientKeys []string) ([]byte, error) {
	recipients, err := ParseRecipients(recipientKeys)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	armored := armor.NewWriter(&out)
	writer, err := age.Encrypt(armored, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("finalizing armor: %w", err)
	}
	return out.Bytes(), nil
}

// ParseIdentities reads an age identity file (AGE-SECRET-KEY-1... lines,
// # comments allowed)
func ParseIdentities(identityFile []byte) ([]age.Identity, error) {
	identities, err := age.ParseIdentities(bufio.NewReader(bytes.NewReader(identityFile)))
	if err != nil {
		return nil, fmt.Errorf("parsing identities: %w", err)
	}
	if len(identities) == 0 {
		return nil, ErrNoIdentities
	}
	return identities, nil
}

// Decrypt decrypts armored age data with the identities in identityFile.
// On failure the partially decrypted plaintext is wiped.
func Decrypt(ciphertext, identityFile []byte) ([]byte, error) {
	identities, err := ParseIdentities(identityFile)
	if err != nil {
		return nil, err
	}

	reader, err := age.Decrypt(armor.NewReader(bytes.NewReader(ciphertext)), identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		crypto.ClearBytes(plaintext)
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return plaintext, nil
}
