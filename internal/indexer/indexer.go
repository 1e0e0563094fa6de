package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/models"
)

// placeholderPrefix marks a registered document whose upload could not be
// parsed. Such documents are listable and deletable but carry no real text.
const placeholderPrefix = "[unparsed:"

// Placeholder returns the chunk text registered for an unparseable upload.
func Placeholder(filename string) string {
	return fmt.Sprintf("%s %s]", placeholderPrefix, filename)
}

// IsPlaceholder reports whether content is an unparsed-upload marker.
func IsPlaceholder(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), placeholderPrefix)
}

// Indexer turns files and raw content into indexed documents and owns the
// workspace files backing them.
type Indexer struct {
	index     *index.Index
	extractor *extract.Extractor
	chunker   *Chunker
	workspace string
	logger    *zap.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(ix *Indexer) { ix.logger = l }
}

// WithChunker overrides the default line chunker.
func WithChunker(c *Chunker) Option {
	return func(ix *Indexer) { ix.chunker = c }
}

// NewIndexer creates an indexer. workspaceDir is created if missing.
func NewIndexer(idx *index.Index, extractor *extract.Extractor, workspaceDir string, opts ...Option) (*Indexer, error) {
	if err := os.MkdirAll(workspaceDir, 0755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	ix := &Indexer{
		index:     idx,
		extractor: extractor,
		chunker:   NewChunker(40, 5),
		workspace: workspaceDir,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Workspace returns the workspace root directory.
func (ix *Indexer) Workspace() string {
	return ix.workspace
}

// Upload saves data under the workspace with a uniqueness-qualified name and
// indexes it. If extraction fails the file is kept and the document is
// registered with a placeholder chunk; the parse error is returned as a
// warning string rather than a failure.
func (ix *Indexer) Upload(ctx context.Context, filename string, data []byte) (doc *models.Document, stored string, warning string, err error) {
	stored = UniqueName(filename)
	path := filepath.Join(ix.workspace, stored)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, "", "", fmt.Errorf("save upload: %w", err)
	}

	segments, extractErr := ix.extractor.ExtractBytes(data, strings.ToLower(filepath.Ext(filename)))
	if extractErr != nil || len(segments) == 0 {
		warning = "could not parse document content"
		if extractErr != nil {
			warning = fmt.Sprintf("could not parse document content: %v", extractErr)
		}
		segments = []models.Segment{{
			Text:     Placeholder(stored),
			Location: models.Location{LineStart: 1, LineEnd: 1},
		}}
	}
	doc, err = ix.indexStored(ctx, stored, segments)
	if err != nil {
		return nil, "", "", err
	}
	if ix.logger != nil {
		ix.logger.Debug("upload indexed",
			zap.String("filename", filename), zap.String("stored", stored),
			zap.Int("chunks", doc.ChunkCount), zap.String("warning", warning))
	}
	return doc, stored, warning, nil
}

// IndexFile extracts and indexes the workspace file at path. An existing
// document with the same stored name is replaced. Used by the workspace
// watcher and the CLI.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (*models.Document, error) {
	segments, err := ix.extractor.Extract(path)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("no content to index in %s", path)
	}
	return ix.indexStored(ctx, filepath.Base(path), segments)
}

// IndexContent parses raw content by filename extension and indexes it
// without requiring a physical upload. Unparseable content is an error here,
// unlike Upload.
func (ix *Indexer) IndexContent(ctx context.Context, filename, content string) (*models.Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".txt"
	}
	segments, err := ix.extractor.ExtractBytes([]byte(content), ext)
	if err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("no content to index in %q", filename)
	}
	return ix.indexStored(ctx, filename, segments)
}

// indexStored replaces any document stored under filename and indexes the
// chunked segments.
func (ix *Indexer) indexStored(ctx context.Context, filename string, segments []models.Segment) (*models.Document, error) {
	if _, err := ix.index.DeleteDocument(ctx, filename); err != nil {
		return nil, err
	}
	return ix.index.IndexDocument(ctx, "", filename, ix.chunker.Split(segments))
}

// Delete removes the document matching idOrFilename (document ID, stored
// filename, or display filename) along with its backing workspace file.
// Returns whether anything was found.
func (ix *Indexer) Delete(ctx context.Context, idOrFilename string) (bool, error) {
	stored := ""
	for _, doc := range ix.index.ListDocuments() {
		if doc.ID == idOrFilename || doc.Filename == idOrFilename || StripUniquePrefix(doc.Filename) == idOrFilename {
			stored = doc.Filename
			found, err := ix.index.DeleteDocument(ctx, doc.ID)
			if err != nil || !found {
				return found, err
			}
			break
		}
	}
	if stored == "" {
		return false, nil
	}
	if err := os.Remove(filepath.Join(ix.workspace, stored)); err != nil && !os.IsNotExist(err) {
		return true, fmt.Errorf("remove backing file: %w", err)
	}
	return true, nil
}

// ClearAll empties the index and deletes all regular files under the
// workspace root. Returns the number of files deleted.
func (ix *Indexer) ClearAll(ctx context.Context) (int, error) {
	if err := ix.index.Clear(ctx); err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(ix.workspace)
	if err != nil {
		return 0, fmt.Errorf("read workspace: %w", err)
	}
	deleted := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(ix.workspace, e.Name())); err != nil {
			return deleted, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		deleted++
	}
	return deleted, nil
}

// RemoveByPath deletes the index entry for a workspace file that was removed
// on disk. Used by the watcher.
func (ix *Indexer) RemoveByPath(ctx context.Context, path string) error {
	_, err := ix.index.DeleteDocument(ctx, filepath.Base(path))
	return err
}
