// Package integration exercises the full pipeline against real storage:
// upload through the indexer, persistence across reopen, retrieval, and an
// agent chat round trip.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/agent"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/tools"
)

func TestPipeline_IndexSearchChat(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "index.db")
	workspace := filepath.Join(dir, "workspace")
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	embedder := embedding.NewMockEmbedder(8)
	idx, err := index.New(store, embedder)
	if err != nil {
		t.Fatal(err)
	}
	extractor := extract.NewExtractor()
	ix, err := indexer.NewIndexer(idx, extractor, workspace)
	if err != nil {
		t.Fatal(err)
	}

	doc, stored, warning, err := ix.Upload(ctx, "meeting.txt", []byte("the launch is scheduled for friday\nbudget review follows next week\n"))
	if err != nil {
		t.Fatal(err)
	}
	if warning != "" {
		t.Errorf("unexpected warning: %q", warning)
	}
	if doc.ChunkCount == 0 {
		t.Fatal("no chunks indexed")
	}
	if _, err := os.Stat(filepath.Join(workspace, stored)); err != nil {
		t.Errorf("stored file missing: %v", err)
	}

	results, err := idx.Search(ctx, "when is the launch", 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("no search results")
	}
	if results[0].Chunk.Filename != "meeting.txt" {
		t.Errorf("filename = %q", results[0].Chunk.Filename)
	}

	registry, err := tools.NewRegistry(workspace, extractor)
	if err != nil {
		t.Fatal(err)
	}
	sessions := session.NewStore(40)
	client := llm.NewMockClient("the launch is on friday")
	orchestrator := agent.New(idx, registry, client, sessions)

	resp, err := orchestrator.Chat(ctx, &models.ChatRequest{
		Message:   "when is the launch",
		SessionID: "s1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Response != "the launch is on friday" {
		t.Errorf("response = %q", resp.Response)
	}
	if len(resp.Citations) == 0 {
		t.Error("expected citations from retrieval")
	}
}

func TestPipeline_PersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "index.db")
	workspace := filepath.Join(dir, "workspace")
	ctx := context.Background()
	embedder := embedding.NewMockEmbedder(8)

	idx, store, err := index.Open(dbPath, embedder, nil)
	if err != nil {
		t.Fatal(err)
	}
	ix, err := indexer.NewIndexer(idx, extract.NewExtractor(), workspace)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ix.IndexContent(ctx, "notes.txt", "alpha beta gamma"); err != nil {
		t.Fatal(err)
	}
	wantChunks := idx.Size()
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, store2, err := index.Open(dbPath, embedder, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store2.Close()

	if reopened.CountDocuments() != 1 {
		t.Errorf("documents after reopen = %d", reopened.CountDocuments())
	}
	if reopened.Size() != wantChunks {
		t.Errorf("chunks after reopen = %d, want %d", reopened.Size(), wantChunks)
	}
	results, err := reopened.Search(ctx, "alpha", 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Error("no results after reopen")
	}
}
