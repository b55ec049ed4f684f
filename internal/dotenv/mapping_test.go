package dotenv

import (
	"errors"
	"reflect"
	"testing"
)

func TestSetPreservesOrder(t *testing.T) {
	m := mustPairs(t, Pair{"A", "1"}, Pair{"B", "2"})

	appended := m.Clone()
	if err := appended.Set("C", "3"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	want := []Pair{{"A", "1"}, {"B", "2"}, {"C", "3"}}
	if got := appended.Pairs(); !reflect.DeepEqual(got, want) {
		t.Errorf("append: got %v, want %v", got, want)
	}

	overwritten := m.Clone()
	if err := overwritten.Set("A", "9"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	want = []Pair{{"A", "9"}, {"B", "2"}}
	if got := overwritten.Pairs(); !reflect.DeepEqual(got, want) {
		t.Errorf("overwrite: got %v, want %v", got, want)
	}

	// Clones are independent
	if v, _ := m.Get("A"); v != "1" {
		t.Errorf("original mutated through clone: A=%s", v)
	}
}

func TestGetAndDelete(t *testing.T) {
	m := mustPairs(t, Pair{"A", "1"}, Pair{"B", "2"}, Pair{"C", "3"})

	if v, err := m.Get("B"); err != nil || v != "2" {
		t.Errorf("Get(B): got %q, %v", v, err)
	}
	if _, err := m.Get("MISSING"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}

	if err := m.Delete("B"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got := m.Keys(); !reflect.DeepEqual(got, []string{"A", "C"}) {
		t.Errorf("keys after delete: %v", got)
	}
	if err := m.Delete("B"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound on second delete, got %v", err)
	}

	// Index stays consistent after a delete
	if err := m.Set("C", "33"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := m.Pairs(); !reflect.DeepEqual(got, []Pair{{"A", "1"}, {"C", "33"}}) {
		t.Errorf("pairs after delete+set: %v", got)
	}
}

func TestSetRejectsInvalidKeys(t *testing.T) {
	m := New()
	for _, key := range []string{"", "A=B", "HAS SPACE", "#COMMENT", "QUO\"TE", "NEW\nLINE", "export"} {
		if err := m.Set(key, "v"); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Set(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
	if m.Len() != 0 {
		t.Errorf("invalid keys were stored: %v", m.Keys())
	}
}

func TestFromPairsDuplicate(t *testing.T) {
	if _, err := FromPairs(Pair{"A", "1"}, Pair{"A", "2"}); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestEnviron(t *testing.T) {
	m := mustPairs(t, Pair{"A", "1"}, Pair{"B", "x=y"})
	if got := m.Environ(); !reflect.DeepEqual(got, []string{"A=1", "B=x=y"}) {
		t.Errorf("Environ: got %v", got)
	}
}
