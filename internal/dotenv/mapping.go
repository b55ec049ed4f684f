package dotenv

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrInvalidKey  = errors.New("invalid key")
)

// Pair is a single KEY=VALUE entry
type Pair struct {
	Key   string
	Value string
}

// Mapping is an ordered set of unique keys. Insertion order is preserved
// across Set, Delete and every Encode/Decode round trip.
type Mapping struct {
	pairs []Pair
	index map[string]int
}

// New creates an empty mapping
func New() *Mapping {
	return &Mapping{index: make(map[string]int)}
}

// FromPairs builds a mapping from pairs in order. Duplicate or invalid keys
// are rejected.
func FromPairs(pairs ...Pair) (*Mapping, error) {
	m := New()
	for _, p := range pairs {
		if _, ok := m.index[p.Key]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, p.Key)
		}
		if err := m.Set(p.Key, p.Value); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ValidateKey reports whether key can be stored and encoded losslessly
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "#") {
		return fmt.Errorf("%w: %q starts with a comment marker", ErrInvalidKey, key)
	}
	if strings.ContainsAny(key, "=\"'") {
		return fmt.Errorf("%w: %q contains a separator or quote", ErrInvalidKey, key)
	}
	for _, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains whitespace or control characters", ErrInvalidKey, key)
		}
	}
	if key == "export" {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidKey, key)
	}
	return nil
}

// Len returns the number of pairs
func (m *Mapping) Len() int {
	return len(m.pairs)
}

// Get returns the value stored under key
func (m *Mapping) Get(key string) (string, error) {
	i, ok := m.index[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return m.pairs[i].Value, nil
}

// Has reports whether key is present
func (m *Mapping) Has(key string) bool {
	_, ok := m.index[key]
	return ok
}

// Set overwrites key in place if present, otherwise appends it
func (m *Mapping) Set(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if i, ok := m.index[key]; ok {
		m.pairs[i].Value = value
		return nil
	}
	m.index[key] = len(m.pairs)
	m.pairs = append(m.pairs, Pair{Key: key, Value: value})
	return nil
}

// Delete removes key, keeping the relative order of the remaining pairs
func (m *Mapping) Delete(key string) error {
	i, ok := m.index[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	m.pairs = append(m.pairs[:i], m.pairs[i+1:]...)
	delete(m.index, key)
	for j := i; j < len(m.pairs); j++ {
		m.index[m.pairs[j].Key] = j
	}
	return nil
}

// Keys returns keys in mapping order
func (m *Mapping) Keys() []string {
	keys := make([]string, len(m.pairs))
	for i, p := range m.pairs {
		keys[i] = p.Key
	}
	return keys
}

// Pairs returns a copy of the pairs in mapping order
func (m *Mapping) Pairs() []Pair {
	return append([]Pair(nil), m.pairs...)
}

// Clone returns an independent copy
func (m *Mapping) Clone() *Mapping {
	c := &Mapping{
		pairs: m.Pairs(),
		index: make(map[string]int, len(m.index)),
	}
	for k, v := range m.index {
		c.index[k] = v
	}
	return c
}

// Equal reports whether both mappings hold the same pairs in the same order
func (m *Mapping) Equal(other *Mapping) bool {
	if len(m.pairs) != len(other.pairs) {
		return false
	}
	for i := range m.pairs {
		if m.pairs[i] != other.pairs[i] {
			return false
		}
	}
	return true
}

// Environ returns KEY=VALUE strings in mapping order, the form expected by
// os/exec.Cmd.Env.
func (m *Mapping) Environ() []string {
	env := make([]string, len(m.pairs))
	for i, p := range m.pairs {
		env[i] = p.Key + "=" + p.Value
	}
	return env
}
