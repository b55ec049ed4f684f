package core

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/illarion/envseal/internal/artifact"
	"github.com/illarion/envseal/internal/crypto"
)

// KeyMaterial is a derived key. It opens exactly the artifact whose salt
// and iteration count produced it.
type KeyMaterial []byte

// ParseKeyMaterial decodes the hex form written by MarshalText
func ParseKeyMaterial(text []byte) (KeyMaterial, error) {
	text = bytes.TrimSpace(text)
	if len(text) != hex.EncodedLen(crypto.KeySize) {
		return nil, fmt.Errorf("%w: expected %d hex characters", ErrInvalidKeyMaterial, hex.EncodedLen(crypto.KeySize))
	}
	k := make(KeyMaterial, crypto.KeySize)
	if _, err := hex.Decode(k, text); err != nil {
		return nil, fmt.Errorf("%w: not hex encoded", ErrInvalidKeyMaterial)
	}
	return k, nil
}

// MarshalText returns the key as lowercase hex
func (k KeyMaterial) MarshalText() ([]byte, error) {
	if len(k) != crypto.KeySize {
		return nil, ErrInvalidKeyMaterial
	}
	out := make([]byte, hex.EncodedLen(len(k)))
	hex.Encode(out, k)
	return out, nil
}

// String keeps key material out of logs and %v output
func (k KeyMaterial) String() string {
	return "KeyMaterial(redacted)"
}

func (k KeyMaterial) GoString() string {
	return k.String()
}

// Destroy wipes the key
func (k KeyMaterial) Destroy() {
	crypto.ClearBytes(k)
}

// Credential unlocks an artifact
type Credential interface {
	// deriveKey returns a fresh copy of the key for a. The caller owns it.
	deriveKey(a *artifact.Artifact) (KeyMaterial, error)
}

type passwordCredential []byte

// Password returns a credential that derives the key from password using
// the artifact's own salt and iteration count.
func Password(password []byte) Credential {
	return passwordCredential(password)
}

func (p passwordCredential) deriveKey(a *artifact.Artifact) (KeyMaterial, error) {
	key, err := crypto.Derive(p, a.Salt, int(a.Iterations))
	if err != nil {
		return nil, err
	}
	return KeyMaterial(key), nil
}

type keyCredential KeyMaterial

// Key returns a credential that uses previously derived key material
func Key(k KeyMaterial) Credential {
	return keyCredential(k)
}

func (k keyCredential) deriveKey(*artifact.Artifact) (KeyMaterial, error) {
	if len(k) != crypto.KeySize {
		return nil, ErrAuthFailed
	}
	return append(KeyMaterial(nil), k...), nil
}
