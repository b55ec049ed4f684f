package artifact

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/illarion/envseal/internal/crypto"
)

const (
	Version1       uint16 = 1
	CurrentVersion        = Version1

	magicSize  = 8
	headerSize = magicSize + 2 + 4 + 2 // magic, version, iterations, salt length
)

var magic = [magicSize]byte{'E', 'N', 'V', 'S', 'E', 'A', 'L', 0}

var (
	ErrCorrupt = errors.New("artifact is corrupt or not an envseal file")
)

// Artifact is the persisted unit: KDF parameters in clear, configuration
// sealed under the derived key. Header fields are authenticated as GCM
// additional data, see Header.
type Artifact struct {
	Version    uint16
	Iterations uint32
	Salt       []byte
	Sealed     []byte // nonce || ciphertext || tag
}

// Header returns the encoded fixed fields and salt. It is both the prefix of
// MarshalBinary and the additional data bound into Sealed.
func (a *Artifact) Header() []byte {
	buf := make([]byte, headerSize, headerSize+len(a.Salt))
	copy(buf, magic[:])
	binary.BigEndian.PutUint16(buf[magicSize:], a.Version)
	binary.BigEndian.PutUint32(buf[magicSize+2:], a.Iterations)
	binary.BigEndian.PutUint16(buf[magicSize+6:], uint16(len(a.Salt)))
	return append(buf, a.Salt...)
}

// MarshalBinary encodes the artifact into its self-describing file form
func (a *Artifact) MarshalBinary() ([]byte, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	header := a.Header()
	out := make([]byte, 0, len(header)+len(a.Sealed))
	out = append(out, header...)
	return append(out, a.Sealed...), nil
}

// UnmarshalBinary decodes data produced by MarshalBinary. The slices in the
// artifact do not alias data.
func (a *Artifact) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize || !bytes.Equal(data[:magicSize], magic[:]) {
		return ErrCorrupt
	}

	version := binary.BigEndian.Uint16(data[magicSize:])
	if version != Version1 {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}
	iterations := binary.BigEndian.Uint32(data[magicSize+2:])
	saltLen := int(binary.BigEndian.Uint16(data[magicSize+6:]))

	rest := data[headerSize:]
	if len(rest) < saltLen {
		return ErrCorrupt
	}

	parsed := Artifact{
		Version:    version,
		Iterations: iterations,
		Salt:       append([]byte(nil), rest[:saltLen]...),
		Sealed:     append([]byte(nil), rest[saltLen:]...),
	}
	if err := parsed.validate(); err != nil {
		return err
	}

	*a = parsed
	return nil
}

// Parse is a convenience wrapper around UnmarshalBinary
func Parse(data []byte) (*Artifact, error) {
	var a Artifact
	if err := a.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &a, nil
}

func (a *Artifact) validate() error {
	switch {
	case a.Version != Version1:
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, a.Version)
	case a.Iterations < crypto.MinIterations:
		return fmt.Errorf("%w: iteration count %d below minimum", ErrCorrupt, a.Iterations)
	case a.Iterations > crypto.MaxIterations:
		return fmt.Errorf("%w: iteration count %d above maximum", ErrCorrupt, a.Iterations)
	case len(a.Salt) < crypto.SaltSize || len(a.Salt) > 0xffff:
		return fmt.Errorf("%w: salt length %d", ErrCorrupt, len(a.Salt))
	case len(a.Sealed) < crypto.NonceSize+crypto.TagSize:
		return fmt.Errorf("%w: sealed section truncated", ErrCorrupt)
	}
	return nil
}

// Clone returns a deep copy
func (a *Artifact) Clone() *Artifact {
	return &Artifact{
		Version:    a.Version,
		Iterations: a.Iterations,
		Salt:       append([]byte(nil), a.Salt...),
		Sealed:     append([]byte(nil), a.Sealed...),
	}
}

// Fingerprint identifies the salt without revealing it
func (a *Artifact) Fingerprint() string {
	return crypto.Fingerprint(a.Salt)
}
