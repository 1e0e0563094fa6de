package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/extract"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(t.TempDir(), extract.NewExtractor())
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func writeWorkspaceFile(t *testing.T, r *Registry, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(r.Workspace(), name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readWorkspaceFile(t *testing.T, r *Registry, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(r.Workspace(), name))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestReadFile(t *testing.T) {
	r := newTestRegistry(t)
	writeWorkspaceFile(t, r, "notes.txt", "hello")

	got, err := r.ReadFile("notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Errorf("content = %q", got)
	}

	if _, err := r.ReadFile("missing.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing file: %v", err)
	}
}

func TestReadFileDeniesEscape(t *testing.T) {
	r := newTestRegistry(t)
	for _, path := range []string{"../outside.txt", "a/../../etc/passwd", "/etc/passwd"} {
		if _, err := r.ReadFile(path); !errors.Is(err, ErrAccessDenied) {
			t.Errorf("%q: got %v, want ErrAccessDenied", path, err)
		}
	}
}

func TestExtractDocument(t *testing.T) {
	r := newTestRegistry(t)
	writeWorkspaceFile(t, r, "doc.txt", "line one\nline two")

	text, segments, err := r.ExtractDocument("doc.txt")
	if err != nil {
		t.Fatal(err)
	}
	if segments != 1 {
		t.Errorf("segments = %d", segments)
	}
	if !strings.Contains(text, "line one") {
		t.Errorf("text = %q", text)
	}

	writeWorkspaceFile(t, r, "image.png", "binary")
	if _, _, err := r.ExtractDocument("image.png"); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("png: %v", err)
	}
	if _, _, err := r.ExtractDocument("missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: %v", err)
	}
}

func TestListDir(t *testing.T) {
	r := newTestRegistry(t)
	writeWorkspaceFile(t, r, "b.txt", "b")
	writeWorkspaceFile(t, r, "a.txt", "a")
	if err := os.MkdirAll(filepath.Join(r.Workspace(), "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	writeWorkspaceFile(t, r, filepath.Join("sub", "c.txt"), "c")

	names, err := r.ListDir("", false)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.txt", "b.txt", "sub/"}
	if len(names) != len(want) {
		t.Fatalf("names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	names, err = r.ListDir("", true)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, n := range names {
		if n == "sub/c.txt" {
			found = true
		}
	}
	if !found {
		t.Errorf("recursive listing missing nested file: %v", names)
	}

	if _, err := r.ListDir("nope", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing dir: %v", err)
	}
}

func TestInsertTextAppend(t *testing.T) {
	r := newTestRegistry(t)
	writeWorkspaceFile(t, r, "notes.txt", "one\ntwo\n")

	if err := r.InsertText("notes.txt", "three", 3, 1); err != nil {
		t.Fatal(err)
	}
	if got := readWorkspaceFile(t, r, "notes.txt"); got != "one\ntwo\nthree\n" {
		t.Errorf("content = %q", got)
	}
}

func TestInsertTextNewLineBefore(t *testing.T) {
	r := newTestRegistry(t)
	writeWorkspaceFile(t, r, "notes.txt", "one\ntwo\nthree")

	if err := r.InsertText("notes.txt", "X", 3, 1); err != nil {
		t.Fatal(err)
	}
	if got := readWorkspaceFile(t, r, "notes.txt"); got != "one\ntwo\nX\nthree" {
		t.Errorf("content = %q", got)
	}
}

func TestInsertTextSpliceIntoLine(t *testing.T) {
	r := newTestRegistry(t)
	writeWorkspaceFile(t, r, "notes.txt", "one\ntwo\nabcdef")

	if err := r.InsertText("notes.txt", "X", 3, 5); err != nil {
		t.Fatal(err)
	}
	if got := readWorkspaceFile(t, r, "notes.txt"); got != "one\ntwo\nabcdXef" {
		t.Errorf("content = %q", got)
	}
}

func TestInsertTextErrors(t *testing.T) {
	r := newTestRegistry(t)
	writeWorkspaceFile(t, r, "notes.txt", "one\n")

	if err := r.InsertText("missing.txt", "X", 1, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: %v", err)
	}
	if err := r.InsertText("notes.txt", "X", 0, 1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("line 0: %v", err)
	}
	if err := r.InsertText("notes.txt", "X", 5, 1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("line past end: %v", err)
	}
	if err := r.InsertText("sub/notes.txt", "X", 1, 1); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("path separator: %v", err)
	}
	if err := r.InsertText("../notes.txt", "X", 1, 1); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("traversal: %v", err)
	}
}

func TestCallDispatch(t *testing.T) {
	r := newTestRegistry(t)
	writeWorkspaceFile(t, r, "notes.txt", "hello world")
	ctx := context.Background()

	got, err := r.Call(ctx, "read_file", map[string]any{"path": "notes.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello world" {
		t.Errorf("read_file = %q", got)
	}

	got, err = r.Call(ctx, "list_dir", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if got != "notes.txt" {
		t.Errorf("list_dir = %q", got)
	}

	// JSON numbers arrive as float64.
	if _, err := r.Call(ctx, "insert_text", map[string]any{
		"filename": "notes.txt", "text": "X", "line": float64(2), "column": float64(1),
	}); err != nil {
		t.Fatal(err)
	}
	if got := readWorkspaceFile(t, r, "notes.txt"); got != "hello world\nX" {
		t.Errorf("after insert = %q", got)
	}

	if _, err := r.Call(ctx, "destroy_everything", nil); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("unknown tool: %v", err)
	}
	if _, err := r.Call(ctx, "read_file", map[string]any{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("missing arg: %v", err)
	}
}
