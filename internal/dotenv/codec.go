package dotenv

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedEntry = errors.New("malformed entry")
	ErrDuplicateKey   = errors.New("duplicate key")
)

// MalformedEntryError identifies the offending line of a decode failure.
// The line content is never included, it may hold a secret.
type MalformedEntryError struct {
	Line   int
	Reason string
	Err    error // ErrDuplicateKey, ErrInvalidKey or nil
}

func (e *MalformedEntryError) Error() string {
	return fmt.Sprintf("%s on line %d: %s", ErrMalformedEntry, e.Line, e.Reason)
}

// Is makes every MalformedEntryError match ErrMalformedEntry
func (e *MalformedEntryError) Is(target error) bool {
	return target == ErrMalformedEntry
}

func (e *MalformedEntryError) Unwrap() error {
	return e.Err
}

// Encode serializes m as KEY=VALUE lines in mapping order
func Encode(m *Mapping) []byte {
	var buf bytes.Buffer
	for _, p := range m.pairs {
		buf.WriteString(p.Key)
		buf.WriteByte('=')
		if needsQuoting(p.Value) {
			writeQuoted(&buf, p.Value)
		} else {
			buf.WriteString(p.Value)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// needsQuoting reports whether an unquoted value would be altered by Decode
func needsQuoting(value string) bool {
	if value == "" {
		return false
	}
	if strings.ContainsAny(value, "\n\r") {
		return true
	}
	if strings.TrimSpace(value) != value {
		return true
	}
	return value[0] == '"' || value[0] == '\''
}

func writeQuoted(buf *bytes.Buffer, value string) {
	buf.WriteByte('"')
	for i := 0; i < len(value); i++ {
		switch c := value[i]; c {
		case '\\':
			buf.WriteString(`\\`)
		case '"':
			buf.WriteString(`\"`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte('"')
}

// Decode parses KEY=VALUE lines. Blank lines and # comments are skipped,
// a leading "export " is accepted. Duplicate keys are an error.
func Decode(data []byte) (*Mapping, error) {
	m := New()
	lines := strings.Split(string(data), "\n")

	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if rest, ok := cutExport(line); ok {
			line = rest
		}

		sep := strings.IndexByte(line, '=')
		if sep < 0 {
			return nil, &MalformedEntryError{Line: lineNo, Reason: "missing '=' separator"}
		}

		key := strings.TrimSpace(line[:sep])
		if err := ValidateKey(key); err != nil {
			return nil, &MalformedEntryError{Line: lineNo, Reason: "empty or invalid key", Err: ErrInvalidKey}
		}

		value, err := parseValue(strings.TrimSpace(line[sep+1:]))
		if err != nil {
			return nil, &MalformedEntryError{Line: lineNo, Reason: err.Error()}
		}

		if m.Has(key) {
			return nil, &MalformedEntryError{
				Line:   lineNo,
				Reason: fmt.Sprintf("%s %s", ErrDuplicateKey, key),
				Err:    ErrDuplicateKey,
			}
		}
		m.index[key] = len(m.pairs)
		m.pairs = append(m.pairs, Pair{Key: key, Value: value})
	}

	return m, nil
}

// cutExport strips a shell-style "export " prefix
func cutExport(line string) (string, bool) {
	const prefix = "export"
	if !strings.HasPrefix(line, prefix) || len(line) == len(prefix) {
		return line, false
	}
	next := line[len(prefix)]
	if next != ' ' && next != '\t' {
		return line, false
	}
	return strings.TrimLeft(line[len(prefix):], " \t"), true
}

func parseValue(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}

	switch raw[0] {
	case '"':
		value, rest, err := unquoteDouble(raw[1:])
		if err != nil {
			return "", err
		}
		return value, checkTrailing(rest)
	case '\'':
		end := strings.IndexByte(raw[1:], '\'')
		if end < 0 {
			return "", errors.New("unterminated single-quoted value")
		}
		return raw[1 : end+1], checkTrailing(raw[end+2:])
	default:
		return raw, nil
	}
}

// unquoteDouble reads up to the closing quote and returns the value and
// whatever follows it. Unknown escapes are kept verbatim.
func unquoteDouble(s string) (string, string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			return b.String(), s[i+1:], nil
		case '\\':
			if i+1 >= len(s) {
				return "", "", errors.New("unterminated double-quoted value")
			}
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case '\\', '"':
				b.WriteByte(s[i])
			default:
				b.WriteByte('\\')
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", "", errors.New("unterminated double-quoted value")
}

func checkTrailing(rest string) error {
	rest = strings.TrimSpace(rest)
	if rest == "" || strings.HasPrefix(rest, "#") {
		return nil
	}
	return errors.New("unexpected characters after closing quote")
}
