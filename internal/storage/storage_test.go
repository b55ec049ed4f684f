package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func backends(t *testing.T) []Backend {
	dir := t.TempDir()
	return []Backend{
		NewFile(filepath.Join(dir, ".env.enc")),
		NewBolt(filepath.Join(dir, ".env.db")),
	}
}

func TestBackendLifecycle(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.Kind(), func(t *testing.T) {
			exists, err := b.Exists()
			if err != nil {
				t.Fatalf("Exists failed: %v", err)
			}
			if exists {
				t.Fatal("Fresh backend should not report an artifact")
			}

			if _, err := b.Read(); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Read on empty backend: got %v, want ErrNotFound", err)
			}
			if _, err := os.Stat(b.Path()); !os.IsNotExist(err) {
				t.Fatal("Reading must not create the backing file")
			}

			first := []byte("first artifact")
			if err := b.Write(first); err != nil {
				t.Fatalf("Write failed: %v", err)
			}

			exists, err = b.Exists()
			if err != nil || !exists {
				t.Fatalf("Exists after write: %v, %v", exists, err)
			}

			got, err := b.Read()
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if !bytes.Equal(got, first) {
				t.Errorf("Read mismatch: got %q, want %q", got, first)
			}

			second := []byte("second, longer artifact")
			if err := b.Write(second); err != nil {
				t.Fatalf("Second write failed: %v", err)
			}
			got, err = b.Read()
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if !bytes.Equal(got, second) {
				t.Errorf("Read after overwrite: got %q, want %q", got, second)
			}

			info, err := b.Stat()
			if err != nil {
				t.Fatalf("Stat failed: %v", err)
			}
			if info.Size != int64(len(second)) {
				t.Errorf("Size mismatch: got %d, want %d", info.Size, len(second))
			}
			if info.Modified.IsZero() {
				t.Error("Modified time should be set")
			}
		})
	}
}

func TestVaultIDStable(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.Kind(), func(t *testing.T) {
			if err := b.Write([]byte("a")); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			id1, err := b.VaultID()
			if err != nil {
				t.Fatalf("VaultID failed: %v", err)
			}
			if len(id1) != 32 {
				t.Errorf("VaultID should be 32 hex chars, got %q", id1)
			}

			if err := b.Write([]byte("b")); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			id2, err := b.VaultID()
			if err != nil {
				t.Fatalf("VaultID failed: %v", err)
			}
			if id1 != id2 {
				t.Errorf("VaultID changed across writes: %s != %s", id1, id2)
			}
		})
	}
}

func TestFileWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	b := NewFile(filepath.Join(dir, ".env.enc"))

	for i := 0; i < 3; i++ {
		if err := b.Write([]byte("data")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only the artifact, found %v", names)
	}

	info, err := os.Stat(b.Path())
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != FilePerm {
		t.Errorf("Artifact permissions: got %o, want %o", perm, FilePerm)
	}
}

func TestFileExistsRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env.enc")
	if err := os.Mkdir(path, 0700); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFile(path).Exists(); err == nil {
		t.Error("Expected error for a directory in place of the artifact")
	}
}

func TestBoltTimestamps(t *testing.T) {
	b := NewBolt(filepath.Join(t.TempDir(), ".env.db"))

	if err := b.Write([]byte("one")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	info1, err := b.Stat()
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info1.Created.IsZero() {
		t.Fatal("Created time should be recorded")
	}

	time.Sleep(10 * time.Millisecond)

	if err := b.Write([]byte("two")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	info2, err := b.Stat()
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !info2.Created.Equal(info1.Created) {
		t.Error("Created time should not change on rewrite")
	}
	if !info2.Modified.After(info1.Modified) {
		t.Error("Modified time should advance on rewrite")
	}
}

func TestBoltCompact(t *testing.T) {
	b := NewBolt(filepath.Join(t.TempDir(), ".env.db"))

	big := bytes.Repeat([]byte("x"), 256*1024)
	for i := 0; i < 4; i++ {
		if err := b.Write(big); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	final := []byte("small artifact")
	if err := b.Write(final); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	id, err := b.VaultID()
	if err != nil {
		t.Fatalf("VaultID failed: %v", err)
	}

	if err := b.Compact(); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	got, err := b.Read()
	if err != nil {
		t.Fatalf("Read after compact failed: %v", err)
	}
	if !bytes.Equal(got, final) {
		t.Errorf("Artifact changed by compact: got %q", got)
	}
	id2, err := b.VaultID()
	if err != nil {
		t.Fatalf("VaultID after compact failed: %v", err)
	}
	if id != id2 {
		t.Error("VaultID changed by compact")
	}
	if _, err := os.Stat(b.Path() + ".backup"); !os.IsNotExist(err) {
		t.Error("Backup file should be removed after compact")
	}
}

func TestOpenKinds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x")

	for kind, want := range map[string]string{"": KindFile, KindFile: KindFile, KindBolt: KindBolt} {
		b, err := Open(kind, path)
		if err != nil {
			t.Fatalf("Open(%q) failed: %v", kind, err)
		}
		if b.Kind() != want {
			t.Errorf("Open(%q).Kind() = %s, want %s", kind, b.Kind(), want)
		}
	}

	if _, err := Open("s3", path); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Expected ErrUnknownBackend, got %v", err)
	}
}
