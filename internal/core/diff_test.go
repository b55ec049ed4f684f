package core

import (
	"strings"
	"testing"

	"github.com/illarion/envseal/internal/dotenv"
)

func mapping(t *testing.T, s string) *dotenv.Mapping {
	t.Helper()
	m, err := dotenv.Decode([]byte(s))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return m
}

func TestCompareMappings(t *testing.T) {
	base := mapping(t, "A=1\nB=2\nC=3\n")
	other := mapping(t, "C=3\nB=two\nD=4\n")

	changes := CompareMappings(base, other)
	if strings.Join(changes.Added, ",") != "D" {
		t.Errorf("Added = %v", changes.Added)
	}
	if strings.Join(changes.Removed, ",") != "A" {
		t.Errorf("Removed = %v", changes.Removed)
	}
	if strings.Join(changes.Changed, ",") != "B" {
		t.Errorf("Changed = %v", changes.Changed)
	}

	// Reordering alone is not a change
	if !CompareMappings(base, mapping(t, "C=3\nA=1\nB=2\n")).Empty() {
		t.Error("Reordered mapping should compare equal")
	}
}

func TestGenerateUnifiedDiff(t *testing.T) {
	if got := GenerateUnifiedDiff(".env", []byte("A=1\n"), []byte("A=1\n")); got != "" {
		t.Errorf("Identical input should produce no diff, got %q", got)
	}

	got := GenerateUnifiedDiff(".env", []byte("A=1\nB=2\n"), []byte("A=1\nB=3\n"))
	for _, want := range []string{"--- vault/.env\n", "+++ local/.env\n", " A=1\n", "-B=2\n", "+B=3\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("Diff missing %q:\n%s", want, got)
		}
	}
}

func TestCreateLineDiff_SingleLineChange(t *testing.T) {
	local := []byte("A=1\nB=local\nC=3\n")
	vault := []byte("A=1\nB=vault\nC=3\n")

	result := string(createLineDiff(local, vault))

	want := "A=1\n" + markerLocal + "\nB=local\n" + markerSeparator + "\nB=vault\n" + markerVault + "\nC=3\n"
	if result != want {
		t.Errorf("Unexpected conflict file.\nGot:\n%s\nWant:\n%s", result, want)
	}
}

func TestCreateLineDiff_IdenticalFiles(t *testing.T) {
	content := []byte("A=1\nB=2\n")

	result := createLineDiff(content, content)
	if string(result) != string(content) {
		t.Errorf("Identical files should return same content.\nGot: %q\nWant: %q", result, content)
	}
	if hasConflictMarkers(result) {
		t.Error("Identical files should not have conflict markers")
	}
}

func TestCreateLineDiff_MultipleChanges(t *testing.T) {
	local := []byte("A=1\nB=2\nC=3\nD=4\nE=5\n")
	vault := []byte("A=1\nB=x\nC=3\nD=y\nE=5\n")

	result := string(createLineDiff(local, vault))
	if count := strings.Count(result, markerLocal); count != 2 {
		t.Errorf("Expected 2 conflict sections, got %d", count)
	}
}

func TestCreateLineDiff_AddedAndRemovedLines(t *testing.T) {
	added := string(createLineDiff([]byte("A=1\n"), []byte("A=1\nB=2\n")))
	if !strings.Contains(added, markerLocal) || !strings.Contains(added, "B=2") {
		t.Errorf("Added line not marked:\n%s", added)
	}

	removed := string(createLineDiff([]byte("A=1\nB=2\n"), []byte("A=1\n")))
	if !strings.Contains(removed, markerLocal) || !strings.Contains(removed, "B=2") {
		t.Errorf("Removed line not marked:\n%s", removed)
	}
}

func TestHasConflictMarkers(t *testing.T) {
	tests := []struct {
		name string
		data string
		want bool
	}{
		{"clean", "A=1\nB=2\n", false},
		{"value containing equals run", "SEP=======\n", false},
		{"local marker", "<<<<<<< local\nA=1\n", true},
		{"separator line", "A=1\n=======\nA=2\n", true},
		{"vault marker", "A=1\n>>>>>>> vault\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasConflictMarkers([]byte(tt.data)); got != tt.want {
				t.Errorf("hasConflictMarkers(%q) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}
