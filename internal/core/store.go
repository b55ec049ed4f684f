package core

import (
	"errors"
	"fmt"

	"github.com/illarion/envseal/internal/artifact"
	"github.com/illarion/envseal/internal/crypto"
	"github.com/illarion/envseal/internal/dotenv"
)

// Initialize parses source and seals it under a key derived from password
// with a fresh salt. iterations of 0 selects crypto.DefaultIterations.
// The returned key belongs to the caller.
func Initialize(source, password []byte, iterations int) (*artifact.Artifact, KeyMaterial, error) {
	m, err := ImportPlain(source)
	if err != nil {
		return nil, nil, err
	}
	return seal(m, password, iterations)
}

// seal encrypts m into a brand new artifact with a fresh salt
func seal(m *dotenv.Mapping, password []byte, iterations int) (*artifact.Artifact, KeyMaterial, error) {
	kdf, err := crypto.NewKDF(iterations)
	if err != nil {
		return nil, nil, err
	}

	key, err := kdf.DeriveKey(password)
	if err != nil {
		return nil, nil, err
	}

	a := &artifact.Artifact{
		Version:    artifact.CurrentVersion,
		Iterations: uint32(kdf.Iterations),
		Salt:       kdf.Salt,
	}
	if err := sealInto(a, m, key); err != nil {
		crypto.ClearBytes(key)
		return nil, nil, err
	}
	return a, KeyMaterial(key), nil
}

// sealInto encodes m and stores the ciphertext in a.Sealed, binding a's
// header as additional data.
func sealInto(a *artifact.Artifact, m *dotenv.Mapping, key []byte) error {
	enc, err := crypto.NewEnvelope(key)
	if err != nil {
		return err
	}
	defer enc.Destroy()

	plaintext := dotenv.Encode(m)
	defer crypto.ClearBytes(plaintext)

	sealed, err := enc.Seal(plaintext, a.Header())
	if err != nil {
		return fmt.Errorf("failed to encrypt configuration: %w", err)
	}
	a.Sealed = sealed
	return nil
}

// openWith decrypts a with key. Every failure is ErrAuthFailed.
func openWith(a *artifact.Artifact, key []byte) ([]byte, error) {
	enc, err := crypto.NewEnvelope(key)
	if err != nil {
		return nil, ErrAuthFailed
	}
	defer enc.Destroy()

	return enc.Open(a.Sealed, a.Header())
}

// Load decrypts and decodes a. A wrong credential and a damaged artifact
// both return ErrAuthFailed. On success the caller owns the returned key
// and can pass it to Persist.
func Load(a *artifact.Artifact, cred Credential) (*dotenv.Mapping, KeyMaterial, error) {
	if a == nil || cred == nil {
		return nil, nil, ErrAuthFailed
	}

	key, err := cred.deriveKey(a)
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidKDFParams) {
			return nil, nil, ErrAuthFailed
		}
		return nil, nil, err
	}

	plaintext, err := openWith(a, key)
	if err != nil {
		key.Destroy()
		return nil, nil, ErrAuthFailed
	}
	defer crypto.ClearBytes(plaintext)

	m, err := dotenv.Decode(plaintext)
	if err != nil {
		key.Destroy()
		return nil, nil, fmt.Errorf("decrypted configuration: %w", err)
	}
	return m, key, nil
}

// LoadBytes parses a serialized artifact and loads it. A file that does not
// parse is reported as ErrAuthFailed, the same as a wrong credential.
func LoadBytes(data []byte, cred Credential) (*artifact.Artifact, *dotenv.Mapping, KeyMaterial, error) {
	a, err := artifact.Parse(data)
	if err != nil {
		return nil, nil, nil, ErrAuthFailed
	}
	m, key, err := Load(a, cred)
	if err != nil {
		return nil, nil, nil, err
	}
	return a, m, key, nil
}

// GetValue returns the value for key
func GetValue(m *dotenv.Mapping, key string) (string, error) {
	return m.Get(key)
}

// SetValue overwrites key in place or appends it
func SetValue(m *dotenv.Mapping, key, value string) error {
	return m.Set(key, value)
}

// DeleteValue removes key
func DeleteValue(m *dotenv.Mapping, key string) error {
	return m.Delete(key)
}

// Persist re-seals m under key, keeping a's version, salt and iteration
// count. The key must open a, so a stale key cannot rebind the artifact.
func Persist(m *dotenv.Mapping, a *artifact.Artifact, key KeyMaterial) (*artifact.Artifact, error) {
	plaintext, err := openWith(a, key)
	if err != nil {
		return nil, ErrAuthFailed
	}
	crypto.ClearBytes(plaintext)

	next := &artifact.Artifact{
		Version:    a.Version,
		Iterations: a.Iterations,
		Salt:       append([]byte(nil), a.Salt...),
	}
	if err := sealInto(next, m, key); err != nil {
		return nil, err
	}
	return next, nil
}

// ChangePassword verifies oldPassword against a and re-seals the same
// mapping under newPassword with a fresh salt. The iteration count is kept.
// a is not modified.
func ChangePassword(a *artifact.Artifact, oldPassword, newPassword []byte) (*artifact.Artifact, KeyMaterial, error) {
	m, oldKey, err := Load(a, Password(oldPassword))
	if err != nil {
		return nil, nil, err
	}
	oldKey.Destroy()

	return seal(m, newPassword, int(a.Iterations))
}

// RegenerateKeyMaterial verifies password against a and returns the key
// derived from the artifact's current salt.
func RegenerateKeyMaterial(a *artifact.Artifact, password []byte) (KeyMaterial, error) {
	_, key, err := Load(a, Password(password))
	if err != nil {
		return nil, err
	}
	return key, nil
}

// ExportPlain returns the mapping in plaintext KEY=VALUE form
func ExportPlain(m *dotenv.Mapping) []byte {
	return dotenv.Encode(m)
}

// ImportPlain parses plaintext KEY=VALUE data
func ImportPlain(data []byte) (*dotenv.Mapping, error) {
	m, err := dotenv.Decode(data)
	if err != nil {
		return nil, &SourceParseError{Err: err}
	}
	return m, nil
}
