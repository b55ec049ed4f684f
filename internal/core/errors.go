package core

import (
	"errors"
	"fmt"

	"github.com/illarion/envseal/internal/crypto"
	"github.com/illarion/envseal/internal/dotenv"
)

var (
	ErrNotInitialized     = errors.New("envseal not initialized")
	ErrAlreadyExists      = errors.New("encrypted configuration already exists")
	ErrFileExists         = errors.New("file already exists")
	ErrPasswordRequired   = errors.New("password required")
	ErrInvalidKeyMaterial = errors.New("invalid key material")
	ErrNoKeyFile          = errors.New("no key file")

	// Re-exported so callers only need this package to classify failures
	ErrAuthFailed     = crypto.ErrAuthFailed
	ErrMalformedEntry = dotenv.ErrMalformedEntry
	ErrDuplicateKey   = dotenv.ErrDuplicateKey
	ErrKeyNotFound    = dotenv.ErrKeyNotFound
	ErrInvalidKey     = dotenv.ErrInvalidKey
)

// SourceParseError reports plaintext input that could not be decoded.
// It is distinct from a malformed entry inside a decrypted artifact.
type SourceParseError struct {
	Path string
	Err  error
}

func (e *SourceParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to parse source: %v", e.Err)
	}
	return fmt.Sprintf("failed to parse %s: %v", e.Path, e.Err)
}

func (e *SourceParseError) Unwrap() error {
	return e.Err
}
