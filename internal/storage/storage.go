package storage

import (
	"errors"
	"fmt"
	"time"
)

const (
	KindFile = "file"
	KindBolt = "bolt"
)

var (
	ErrNotFound       = errors.New("artifact not found")
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Info describes a stored artifact. Created is zero when the backend does
// not record it.
type Info struct {
	Created  time.Time
	Modified time.Time
	Size     int64
}

// Backend stores a single artifact. Write replaces the previous artifact
// atomically: a reader sees either the old bytes or the new bytes.
type Backend interface {
	Kind() string
	Path() string
	Exists() (bool, error)
	Read() ([]byte, error)
	Write(data []byte) error
	Stat() (*Info, error)
	// VaultID returns a stable identifier for the artifact location, used
	// as the keyring account name.
	VaultID() (string, error)
}

// Open returns the backend of the given kind rooted at path
func Open(kind, path string) (Backend, error) {
	switch kind {
	case KindFile, "":
		return NewFile(path), nil
	case KindBolt:
		return NewBolt(path), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}
