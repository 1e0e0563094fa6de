package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestMatchExtension(t *testing.T) {
	cases := []struct {
		path string
		exts []string
		want bool
	}{
		{"report.pdf", []string{"pdf", "txt"}, true},
		{"report.PDF", []string{"pdf"}, true},
		{"report.pdf", []string{".pdf"}, true},
		{"image.png", []string{"pdf", "txt"}, false},
		{"anything.bin", nil, true},
		{"noext", []string{"txt"}, false},
	}
	for _, tc := range cases {
		if got := matchExtension(tc.path, tc.exts); got != tc.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tc.path, tc.exts, got, tc.want)
		}
	}
}

func TestBuildQuery(t *testing.T) {
	if got := buildQuery([]string{"quarterly", "revenue"}); got != "quarterly revenue" {
		t.Errorf("buildQuery = %q", got)
	}
	if got := buildQuery(nil); got != "" {
		t.Errorf("buildQuery(nil) = %q", got)
	}
}

func TestArgsReorder(t *testing.T) {
	got := argsReorder([]string{"what", "is", "this", "--session", "s1"})
	want := []string{"--session", "s1", "what", "is", "this"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("argsReorder = %v, want %v", got, want)
	}

	unchanged := []string{"--top-k", "3", "query"}
	if got := argsReorder(unchanged); !reflect.DeepEqual(got, unchanged) {
		t.Errorf("argsReorder = %v, want %v", got, unchanged)
	}
}

func TestLoadConfigExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := "debug: true\nworkspace:\n  dir: ./ws\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != path {
		t.Errorf("resolved = %q, want %q", resolved, path)
	}
	if !cfg.Debug {
		t.Error("debug flag not loaded")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
