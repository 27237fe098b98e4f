package event

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCanonicalize_ResolvesSymlinkedWorkspace(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires elevated privileges on windows")
	}

	real := t.TempDir()
	realResolved, err := filepath.EvalSymlinks(real)
	if err != nil {
		t.Fatalf("EvalSymlinks(%q): %v", real, err)
	}

	link := filepath.Join(t.TempDir(), "workspace-link")
	if err := os.Symlink(real, link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	got := Canonicalize(link)
	if got != realResolved {
		t.Fatalf("Canonicalize(%q) = %q, want %q", link, got, realResolved)
	}
}

func TestCanonicalize_NestedSymlinkSegment(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires elevated privileges on windows")
	}

	real := t.TempDir()
	nested := filepath.Join(real, "project")
	if err := os.Mkdir(nested, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	nestedResolved, err := filepath.EvalSymlinks(nested)
	if err != nil {
		t.Fatalf("EvalSymlinks(%q): %v", nested, err)
	}

	linkParent := t.TempDir()
	link := filepath.Join(linkParent, "alias")
	if err := os.Symlink(real, link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	got := Canonicalize(filepath.Join(link, "project"))
	if got != nestedResolved {
		t.Fatalf("Canonicalize(%q) = %q, want %q", filepath.Join(link, "project"), got, nestedResolved)
	}
}

func TestCanonicalize_NonexistentDirFallsBackToAbs(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	got := Canonicalize(missing)
	if got != missing {
		t.Fatalf("Canonicalize(%q) = %q, want the unresolved absolute path", missing, got)
	}
}

func TestCanonicalize_EmptyStringPassesThrough(t *testing.T) {
	if got := Canonicalize(""); got != "" {
		t.Fatalf("Canonicalize(\"\") = %q, want empty", got)
	}
}

func TestEvent_CommandAndPrimaryPath(t *testing.T) {
	ev := Event{ToolInput: map[string]any{"command": "ls -la", "file_path": "src/main.go"}}
	if got := ev.Command(); got != "ls -la" {
		t.Errorf("Command() = %q", got)
	}
	if got := ev.PrimaryPath(); got != "src/main.go" {
		t.Errorf("PrimaryPath() = %q", got)
	}
}

func TestEvent_PrimaryPathFallsBackThroughFieldNames(t *testing.T) {
	ev := Event{ToolInput: map[string]any{"path": "notes.md"}}
	if got := ev.PrimaryPath(); got != "notes.md" {
		t.Errorf("PrimaryPath() = %q", got)
	}
}

func TestEvent_StringFieldMissingOrWrongType(t *testing.T) {
	ev := Event{ToolInput: map[string]any{"count": 5}}
	if got := ev.StringField("count"); got != "" {
		t.Errorf("StringField on a non-string value = %q, want empty", got)
	}
	if got := ev.StringField("absent"); got != "" {
		t.Errorf("StringField on an absent key = %q, want empty", got)
	}
	if got := (Event{}).StringField("command"); got != "" {
		t.Errorf("StringField on a nil ToolInput = %q, want empty", got)
	}
}
