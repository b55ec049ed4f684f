package artifact

import (
	"bytes"
	"errors"
	"testing"

	"github.com/illarion/envseal/internal/crypto"
)

func sample() *Artifact {
	return &Artifact{
		Version:    CurrentVersion,
		Iterations: crypto.DefaultIterations,
		Salt:       bytes.Repeat([]byte{0xab}, crypto.SaltSize),
		Sealed:     bytes.Repeat([]byte{0xcd}, crypto.NonceSize+crypto.TagSize+10),
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	a := sample()
	data, err := a.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	if !bytes.HasPrefix(data, a.Header()) {
		t.Error("encoded artifact does not start with its header")
	}

	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.Version != a.Version || parsed.Iterations != a.Iterations {
		t.Errorf("header mismatch: got v%d/%d, want v%d/%d", parsed.Version, parsed.Iterations, a.Version, a.Iterations)
	}
	if !bytes.Equal(parsed.Salt, a.Salt) || !bytes.Equal(parsed.Sealed, a.Sealed) {
		t.Error("salt or sealed section mismatch")
	}

	// Parsed slices must not alias the input
	data[len(data)-1] ^= 0xff
	if parsed.Sealed[len(parsed.Sealed)-1] != 0xcd {
		t.Error("parsed artifact aliases input buffer")
	}
}

func TestParseCorrupt(t *testing.T) {
	good, _ := sample().MarshalBinary()

	badMagic := append([]byte(nil), good...)
	badMagic[0] = 'X'

	badVersion := append([]byte(nil), good...)
	badVersion[magicSize+1] = 9

	lowIters := sample()
	lowIters.Iterations = 1
	lowItersData := append(lowIters.Header(), lowIters.Sealed...)

	// top bit of the iteration count flipped
	hugeIters := append([]byte(nil), good...)
	hugeIters[magicSize+2] ^= 0x80

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"plaintext", []byte("A=1\nB=2\n")},
		{"bad magic", badMagic},
		{"bad version", badVersion},
		{"truncated header", good[:headerSize-1]},
		{"truncated salt", good[:headerSize+crypto.SaltSize-1]},
		{"truncated sealed", good[:headerSize+crypto.SaltSize+crypto.NonceSize]},
		{"low iterations", lowItersData},
		{"huge iterations", hugeIters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data); !errors.Is(err, ErrCorrupt) {
				t.Errorf("expected ErrCorrupt, got %v", err)
			}
		})
	}
}

func TestMarshalRejectsInvalid(t *testing.T) {
	a := sample()
	a.Salt = []byte("short")
	if _, err := a.MarshalBinary(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestCloneIndependent(t *testing.T) {
	a := sample()
	c := a.Clone()
	c.Salt[0] = 0
	c.Sealed[0] = 0
	if a.Salt[0] != 0xab || a.Sealed[0] != 0xcd {
		t.Error("Clone shares backing arrays")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different salts share a fingerprint")
	}
}
