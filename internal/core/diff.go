package core

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/illarion/envseal/internal/dotenv"
)

// KeyChanges lists keys that differ between two mappings. It never carries
// values, so it is safe to print.
type KeyChanges struct {
	Added   []string // only in the second mapping
	Removed []string // only in the first mapping
	Changed []string // in both, different value
}

// Empty reports whether the mappings had identical keys and values
func (c *KeyChanges) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Changed) == 0
}

// CompareMappings reports key level differences from base to other.
// Order changes alone are not reported.
func CompareMappings(base, other *dotenv.Mapping) *KeyChanges {
	changes := &KeyChanges{}
	for _, p := range base.Pairs() {
		v, err := other.Get(p.Key)
		if err != nil {
			changes.Removed = append(changes.Removed, p.Key)
			continue
		}
		if v != p.Value {
			changes.Changed = append(changes.Changed, p.Key)
		}
	}
	for _, p := range other.Pairs() {
		if !base.Has(p.Key) {
			changes.Added = append(changes.Added, p.Key)
		}
	}
	return changes
}

// GenerateUnifiedDiff renders a line diff of two KEY=VALUE documents with
// -/+ prefixes. Returns the empty string if the inputs are identical.
func GenerateUnifiedDiff(path string, vaultData, localData []byte) string {
	if bytes.Equal(vaultData, localData) {
		return ""
	}

	dmp := diffmatchpatch.New()

	// Line-mode diff for better output
	a, b, lineArray := dmp.DiffLinesToChars(string(vaultData), string(localData))
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var result strings.Builder
	result.WriteString(fmt.Sprintf("--- vault/%s\n", path))
	result.WriteString(fmt.Sprintf("+++ local/%s\n", path))
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			result.WriteString(prefix)
			result.WriteString(strings.TrimSuffix(line, "\n"))
			result.WriteByte('\n')
		}
	}

	return result.String()
}

// createLineDiff creates a line-level diff with conflict markers only around differences.
// Common lines appear once, and only differing sections are wrapped in markers.
func createLineDiff(localData, vaultData []byte) []byte {
	dmp := diffmatchpatch.New()

	localStr := string(localData)
	vaultStr := string(vaultData)

	a, b, lineArray := dmp.DiffLinesToChars(localStr, vaultStr)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	return buildConflictFromDiffs(diffs)
}

// buildConflictFromDiffs converts diff output to conflict-marked content.
// Equal sections pass through unchanged, while delete/insert pairs become conflict hunks.
func buildConflictFromDiffs(diffs []diffmatchpatch.Diff) []byte {
	var buf bytes.Buffer

	i := 0
	for i < len(diffs) {
		d := diffs[i]

		switch d.Type {
		case diffmatchpatch.DiffEqual:
			buf.WriteString(d.Text)
			i++

		case diffmatchpatch.DiffDelete, diffmatchpatch.DiffInsert:
			buf.WriteString(markerLocal + "\n")
			for i < len(diffs) && diffs[i].Type == diffmatchpatch.DiffDelete {
				writeLine(&buf, diffs[i].Text)
				i++
			}

			buf.WriteString(markerSeparator + "\n")
			for i < len(diffs) && diffs[i].Type == diffmatchpatch.DiffInsert {
				writeLine(&buf, diffs[i].Text)
				i++
			}

			buf.WriteString(markerVault + "\n")
		}
	}

	return buf.Bytes()
}

func writeLine(buf *bytes.Buffer, text string) {
	buf.WriteString(text)
	if len(text) > 0 && text[len(text)-1] != '\n' {
		buf.WriteByte('\n')
	}
}

const (
	markerLocal     = "<<<<<<< local"
	markerSeparator = "======="
	markerVault     = ">>>>>>> vault"
)

// hasConflictMarkers checks if content still contains unresolved conflict markers
func hasConflictMarkers(data []byte) bool {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "<<<<<<<") || line == markerSeparator || strings.HasPrefix(line, ">>>>>>>") {
			return true
		}
	}
	return false
}
