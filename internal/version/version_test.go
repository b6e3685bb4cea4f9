package version

import (
	"strings"
	"testing"
)

func TestLines(t *testing.T) {
	oldV, oldC := Version, Commit
	t.Cleanup(func() { Version, Commit = oldV, oldC })

	Version, Commit = "1.2.3", "abc123"
	got := Lines("snapshot schema: 1.0.0")
	want := "1.2.3\ncommit: abc123\nsnapshot schema: 1.0.0"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	Version = ""
	if strings.HasPrefix(Lines(), "\n") {
		t.Fatal("expected no leading empty line when version is unset")
	}
}
