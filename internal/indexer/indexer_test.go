package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/storage"
)

func newTestIndexer(t *testing.T) (*Indexer, *index.Index) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	idx, err := index.New(store, embedding.NewMockEmbedder(8))
	if err != nil {
		t.Fatal(err)
	}
	ix, err := NewIndexer(idx, extract.NewExtractor(), filepath.Join(dir, "workspace"))
	if err != nil {
		t.Fatal(err)
	}
	return ix, idx
}

func TestUploadIndexesAndSavesFile(t *testing.T) {
	ix, idx := newTestIndexer(t)
	ctx := context.Background()

	doc, stored, warning, err := ix.Upload(ctx, "notes.txt", []byte("alpha beta\ngamma delta\n"))
	if err != nil {
		t.Fatal(err)
	}
	if warning != "" {
		t.Errorf("unexpected warning %q", warning)
	}
	if StripUniquePrefix(stored) != "notes.txt" {
		t.Errorf("stored = %q", stored)
	}
	if _, err := os.Stat(filepath.Join(ix.Workspace(), stored)); err != nil {
		t.Errorf("backing file missing: %v", err)
	}
	if idx.CountDocuments() != 1 || doc.ChunkCount == 0 {
		t.Errorf("docs=%d chunks=%d", idx.CountDocuments(), doc.ChunkCount)
	}
}

func TestUploadUnparseableIsTolerated(t *testing.T) {
	ix, idx := newTestIndexer(t)
	ctx := context.Background()

	// A .docx that is not a zip fails extraction but must still register.
	doc, stored, warning, err := ix.Upload(ctx, "broken.docx", []byte("not a zip"))
	if err != nil {
		t.Fatalf("upload should tolerate parse failure: %v", err)
	}
	if warning == "" {
		t.Error("expected a warning")
	}
	if _, err := os.Stat(filepath.Join(ix.Workspace(), stored)); err != nil {
		t.Errorf("file should be kept: %v", err)
	}
	if idx.CountDocuments() != 1 {
		t.Errorf("document not registered")
	}
	_ = doc
}

func TestIndexContentRejectsUnparseable(t *testing.T) {
	ix, _ := newTestIndexer(t)
	if _, err := ix.IndexContent(context.Background(), "broken.docx", "not a zip"); err == nil {
		t.Fatal("direct indexing of unparseable content must fail")
	}
}

func TestDeleteRemovesBackingFile(t *testing.T) {
	ix, idx := newTestIndexer(t)
	ctx := context.Background()

	_, stored, _, err := ix.Upload(ctx, "a.txt", []byte("content here"))
	if err != nil {
		t.Fatal(err)
	}
	// Delete by display name.
	found, err := ix.Delete(ctx, "a.txt")
	if err != nil || !found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if idx.CountDocuments() != 0 {
		t.Error("index entry remains")
	}
	if _, err := os.Stat(filepath.Join(ix.Workspace(), stored)); !os.IsNotExist(err) {
		t.Error("backing file remains")
	}

	found, err = ix.Delete(ctx, "missing.txt")
	if err != nil || found {
		t.Errorf("delete missing: found=%v err=%v", found, err)
	}
}

func TestClearAllReportsFileCount(t *testing.T) {
	ix, idx := newTestIndexer(t)
	ctx := context.Background()
	for _, name := range []string{"a.txt", "b.txt"} {
		if _, _, _, err := ix.Upload(ctx, name, []byte("text for "+name)); err != nil {
			t.Fatal(err)
		}
	}
	n, err := ix.ClearAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	if idx.CountDocuments() != 0 {
		t.Error("index not empty")
	}
	entries, _ := os.ReadDir(ix.Workspace())
	if len(entries) != 0 {
		t.Errorf("%d files remain on disk", len(entries))
	}
}

func TestReindexReplacesDocument(t *testing.T) {
	ix, idx := newTestIndexer(t)
	ctx := context.Background()
	path := filepath.Join(ix.Workspace(), "notes.md")
	if err := os.WriteFile(path, []byte("version one"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.IndexFile(ctx, path); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("version two"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.IndexFile(ctx, path); err != nil {
		t.Fatal(err)
	}
	if idx.CountDocuments() != 1 {
		t.Errorf("reindex created duplicate: %d docs", idx.CountDocuments())
	}
}

func TestPlaceholder(t *testing.T) {
	if !IsPlaceholder(Placeholder("x.pdf")) {
		t.Error("placeholder not recognized")
	}
	if IsPlaceholder("regular document text") {
		t.Error("false positive")
	}
}

func TestUniqueNames(t *testing.T) {
	a := UniqueName("report.pdf")
	b := UniqueName("report.pdf")
	if a == b {
		t.Error("unique names collide")
	}
	if StripUniquePrefix(a) != "report.pdf" {
		t.Errorf("strip: %q", StripUniquePrefix(a))
	}
	if StripUniquePrefix("plain.txt") != "plain.txt" {
		t.Error("unprefixed name should be unchanged")
	}
}
