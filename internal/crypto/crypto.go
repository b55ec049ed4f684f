package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize          = 32       // Salt size in bytes
	KeySize           = 32       // AES-256 key size
	NonceSize         = 12       // GCM nonce size
	TagSize           = 16       // GCM authentication tag size
	DefaultIterations = 100000   // Default PBKDF2 iterations
	MinIterations     = 100000   // Lower bound accepted by Derive
	MaxIterations     = 10000000 // Upper bound accepted by Derive
)

var (
	ErrInvalidKDFParams = errors.New("invalid key derivation parameters")
	ErrInvalidKey       = errors.New("invalid key size")
	ErrAuthFailed       = errors.New("authentication failed")
)

// KDF handles key derivation from passwords
type KDF struct {
	Salt       []byte
	Iterations int
}

// NewKDF creates a new KDF with a random salt
func NewKDF(iterations int) (*KDF, error) {
	if iterations == 0 {
		iterations = DefaultIterations
	}
	if err := checkIterations(iterations); err != nil {
		return nil, err
	}

	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}

	return &KDF{
		Salt:       salt,
		Iterations: iterations,
	}, nil
}

// NewSalt returns SaltSize fresh random bytes
func NewSalt() ([]byte, error) {
	salt, err := GenerateRandom(SaltSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives an encryption key from a password
func (k *KDF) DeriveKey(password []byte) ([]byte, error) {
	return Derive(password, k.Salt, k.Iterations)
}

// Derive runs PBKDF2-HMAC-SHA256 over password and salt. The output is
// always KeySize bytes. An empty password is accepted.
func Derive(password, salt []byte, iterations int) ([]byte, error) {
	if len(salt) < SaltSize {
		return nil, fmt.Errorf("%w: salt is %d bytes, need %d", ErrInvalidKDFParams, len(salt), SaltSize)
	}
	if err := checkIterations(iterations); err != nil {
		return nil, err
	}
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New), nil
}

// checkIterations keeps the work factor within [MinIterations, MaxIterations]
func checkIterations(iterations int) error {
	switch {
	case iterations < MinIterations:
		return fmt.Errorf("%w: %d iterations is below %d", ErrInvalidKDFParams, iterations, MinIterations)
	case iterations > MaxIterations:
		return fmt.Errorf("%w: %d iterations is above %d", ErrInvalidKDFParams, iterations, MaxIterations)
	}
	return nil
}

// Envelope provides authenticated encryption under a single derived key.
// The key lives in a locked memguard buffer until Destroy is called.
type Envelope struct {
	key *memguard.LockedBuffer
}

// NewEnvelope copies key into protected memory. The caller keeps ownership
// of key and should clear it when done.
func NewEnvelope(key []byte) (*Envelope, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(key), KeySize)
	}
	buf := memguard.NewBuffer(KeySize)
	buf.Copy(key)
	buf.Freeze()
	return &Envelope{key: buf}, nil
}

func (e *Envelope) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext using AES-256-GCM. additionalData is authenticated
// but not encrypted; pass the same bytes to Open.
func (e *Envelope) Seal(plaintext, additionalData []byte) ([]byte, error) {
	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	// Fresh nonce on every call
	nonce, err := GenerateRandom(NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Output is nonce || ciphertext || tag
	result := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	copy(result, nonce)
	return gcm.Seal(result, nonce, plaintext, additionalData), nil
}

// Open decrypts data produced by Seal. Wrong keys, truncated input and
// tampering all return ErrAuthFailed.
func (e *Envelope) Open(sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) < NonceSize+TagSize {
		return nil, ErrAuthFailed
	}

	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	nonce := sealed[:NonceSize]
	plaintext, err := gcm.Open(nil, nonce, sealed[NonceSize:], additionalData)
	if err != nil {
		return nil, ErrAuthFailed
	}

	return plaintext, nil
}

// Destroy clears the envelope's key from memory
func (e *Envelope) Destroy() {
	if e.key != nil {
		e.key.Destroy()
	}
}

// ClearBytes securely clears a byte slice
func ClearBytes(b []byte) {
	memguard.WipeBytes(b)
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateRandom generates n random bytes
func GenerateRandom(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

// Fingerprint returns a short non-secret identifier for a salt, used in
// status output so two artifacts can be told apart without printing the salt.
func Fingerprint(salt []byte) string {
	sum := sha256.Sum256(salt)
	return fmt.Sprintf("%x", sum[:6])
}
