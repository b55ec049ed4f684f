package core

import (
	"bytes"
	"errors"
	"testing"

	"github.com/illarion/envseal/internal/artifact"
	"github.com/illarion/envseal/internal/crypto"
	"github.com/illarion/envseal/internal/dotenv"
)

const testSource = "DB_HOST=localhost\nDB_PASSWORD=\"p@ss word \"\nAPI_TOKEN=abc#123\n"

func mustInitialize(t *testing.T, source, password string) (*artifact.Artifact, KeyMaterial) {
	t.Helper()
	a, key, err := Initialize([]byte(source), []byte(password), crypto.MinIterations)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return a, key
}

func TestInitializeLoadRoundTrip(t *testing.T) {
	a, key := mustInitialize(t, testSource, "test123")

	if a.Iterations != crypto.MinIterations {
		t.Errorf("Iterations not recorded: got %d", a.Iterations)
	}
	if bytes.Contains(a.Sealed, []byte("localhost")) {
		t.Fatal("Sealed section contains plaintext")
	}

	m, loadedKey, err := Load(a, Password([]byte("test123")))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(loadedKey, key) {
		t.Error("Load should return the key Initialize derived")
	}

	want, _ := dotenv.Decode([]byte(testSource))
	if !m.Equal(want) {
		t.Errorf("Loaded mapping differs: got %v, want %v", m.Pairs(), want.Pairs())
	}
}

func TestInitializeDefaultIterations(t *testing.T) {
	a, _, err := Initialize(nil, []byte("pw"), 0)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if a.Iterations != crypto.DefaultIterations {
		t.Errorf("Expected default iterations, got %d", a.Iterations)
	}
}

func TestInitializeSourceParseError(t *testing.T) {
	_, _, err := Initialize([]byte("A=1\nA=2\n"), []byte("pw"), crypto.MinIterations)

	var spe *SourceParseError
	if !errors.As(err, &spe) {
		t.Fatalf("Expected *SourceParseError, got %T %v", err, err)
	}
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("Expected duplicate key cause, got %v", err)
	}
}

func TestLoadWithKeyMaterial(t *testing.T) {
	a, key := mustInitialize(t, testSource, "test123")

	m, _, err := Load(a, Key(key))
	if err != nil {
		t.Fatalf("Load with key failed: %v", err)
	}
	if m.Len() != 3 {
		t.Errorf("Expected 3 keys, got %d", m.Len())
	}
}

func TestLoadRejectsWrongCredentials(t *testing.T) {
	a, key := mustInitialize(t, testSource, "test123")
	_, otherKey := mustInitialize(t, testSource, "test123")

	tests := []struct {
		name string
		cred Credential
	}{
		{"wrong password", Password([]byte("wrong"))},
		{"empty password", Password(nil)},
		{"key from another salt", Key(otherKey)},
		{"truncated key", Key(key[:16])},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Load(a, tt.cred); !errors.Is(err, ErrAuthFailed) {
				t.Errorf("Expected ErrAuthFailed, got %v", err)
			}
		})
	}
}

func TestLoadTamperIndistinguishable(t *testing.T) {
	a, _ := mustInitialize(t, "A=1\n", "test123")
	data, err := a.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	// Flip the low and the high bit of every byte: header, salt and
	// sealed section
	for _, mask := range []byte{0x01, 0x80} {
		for i := range data {
			tampered := append([]byte(nil), data...)
			tampered[i] ^= mask

			_, _, _, err := LoadBytes(tampered, Password([]byte("test123")))
			if !errors.Is(err, ErrAuthFailed) {
				t.Fatalf("Byte %d mask %#x: expected ErrAuthFailed, got %v", i, mask, err)
			}
		}
	}

	_, _, _, err = LoadBytes(data[:len(data)-1], Password([]byte("test123")))
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Truncated artifact: expected ErrAuthFailed, got %v", err)
	}
	_, _, _, err = LoadBytes([]byte("A=1\n"), Password([]byte("test123")))
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Plaintext file: expected ErrAuthFailed, got %v", err)
	}
}

func TestPersistKeepsSaltAndOrder(t *testing.T) {
	a, key := mustInitialize(t, "A=1\nB=2\nC=3\n", "test123")
	m, _, err := Load(a, Key(key))
	if err != nil {
		t.Fatal(err)
	}

	if err := SetValue(m, "B", "changed"); err != nil {
		t.Fatal(err)
	}
	if err := SetValue(m, "D", "4"); err != nil {
		t.Fatal(err)
	}
	if err := DeleteValue(m, "A"); err != nil {
		t.Fatal(err)
	}

	next, err := Persist(m, a, key)
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if !bytes.Equal(next.Salt, a.Salt) || next.Iterations != a.Iterations {
		t.Error("Persist must not rotate salt or iterations")
	}
	if bytes.Equal(next.Sealed[:crypto.NonceSize], a.Sealed[:crypto.NonceSize]) {
		t.Error("Persist must use a fresh nonce")
	}

	reloaded, _, err := Load(next, Password([]byte("test123")))
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	want := []string{"B", "C", "D"}
	got := reloaded.Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Keys = %v, want %v", got, want)
		}
	}
	if v, _ := GetValue(reloaded, "B"); v != "changed" {
		t.Errorf("B = %q, want changed", v)
	}
}

func TestPersistRejectsForeignKey(t *testing.T) {
	a, _ := mustInitialize(t, "A=1\n", "test123")
	_, otherKey := mustInitialize(t, "A=1\n", "test123")

	if _, err := Persist(dotenv.New(), a, otherKey); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Expected ErrAuthFailed, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	a, oldKey := mustInitialize(t, testSource, "old")
	snapshot := a.Clone()

	next, newKey, err := ChangePassword(a, []byte("old"), []byte("new"))
	if err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if bytes.Equal(next.Salt, a.Salt) {
		t.Error("ChangePassword must use a fresh salt")
	}
	if bytes.Equal(newKey, oldKey) {
		t.Error("New key must differ from old key")
	}
	if !bytes.Equal(a.Sealed, snapshot.Sealed) || !bytes.Equal(a.Salt, snapshot.Salt) {
		t.Error("Input artifact must not be modified")
	}

	if _, _, err := Load(next, Password([]byte("old"))); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Old password should no longer work, got %v", err)
	}
	if _, _, err := Load(next, Key(oldKey)); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Old key material should no longer work, got %v", err)
	}
	m, _, err := Load(next, Password([]byte("new")))
	if err != nil {
		t.Fatalf("New password failed: %v", err)
	}
	original, _, _ := Load(a, Key(oldKey))
	if !m.Equal(original) {
		t.Error("Mapping changed across password change")
	}
}

func TestChangePasswordWrongOld(t *testing.T) {
	a, _ := mustInitialize(t, testSource, "old")

	next, _, err := ChangePassword(a, []byte("bad"), []byte("new"))
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("Expected ErrAuthFailed, got %v", err)
	}
	if next != nil {
		t.Error("No artifact should be produced on failure")
	}
}

func TestRegenerateKeyMaterial(t *testing.T) {
	a, key := mustInitialize(t, testSource, "test123")

	regenerated, err := RegenerateKeyMaterial(a, []byte("test123"))
	if err != nil {
		t.Fatalf("RegenerateKeyMaterial failed: %v", err)
	}
	if !bytes.Equal(regenerated, key) {
		t.Error("Regenerated key should match the original derivation")
	}

	if _, err := RegenerateKeyMaterial(a, []byte("wrong")); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Expected ErrAuthFailed, got %v", err)
	}
}

func TestExportImportPlain(t *testing.T) {
	m, err := ImportPlain([]byte(testSource))
	if err != nil {
		t.Fatalf("ImportPlain failed: %v", err)
	}

	again, err := ImportPlain(ExportPlain(m))
	if err != nil {
		t.Fatalf("ImportPlain of export failed: %v", err)
	}
	if !again.Equal(m) {
		t.Error("Export/import round trip changed the mapping")
	}

	var spe *SourceParseError
	if _, err := ImportPlain([]byte("NOSEPARATOR\n")); !errors.As(err, &spe) {
		t.Errorf("Expected *SourceParseError, got %v", err)
	}
}

func TestKeyMaterialText(t *testing.T) {
	_, key := mustInitialize(t, "", "pw")

	text, err := key.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}
	if len(text) != 2*crypto.KeySize {
		t.Errorf("Unexpected encoded length %d", len(text))
	}

	parsed, err := ParseKeyMaterial(append(text, '\n'))
	if err != nil {
		t.Fatalf("ParseKeyMaterial failed: %v", err)
	}
	if !bytes.Equal(parsed, key) {
		t.Error("Parsed key differs")
	}

	for _, bad := range []string{"", "abcd", string(text[:len(text)-1]) + "z"} {
		if _, err := ParseKeyMaterial([]byte(bad)); !errors.Is(err, ErrInvalidKeyMaterial) {
			t.Errorf("ParseKeyMaterial(%q): expected ErrInvalidKeyMaterial, got %v", bad, err)
		}
	}

	if s := key.String(); bytes.Contains([]byte(s), text[:8]) {
		t.Error("String must not reveal key material")
	}
}
