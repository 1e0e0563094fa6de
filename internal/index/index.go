// Package index provides the in-memory embedding index with write-through
// persistence and similarity search.
package index

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Index stores document chunks and their vectors, answers similarity
// searches, and writes every mutation through to durable storage. All
// mutations are serialized; searches may run concurrently with each other
// but never observe a partially-written index.
type Index struct {
	embedder embedding.Embedder
	store    storage.Storage
	logger   *zap.Logger

	mu     sync.RWMutex
	docs   map[string]*models.Document
	chunks []*models.Chunk // insertion order, the tie-break for equal scores
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Index) { idx.logger = l }
}

// New creates an index backed by store, loading any persisted snapshot.
func New(store storage.Storage, embedder embedding.Embedder, opts ...Option) (*Index, error) {
	idx := &Index{
		embedder: embedder,
		store:    store,
		docs:     make(map[string]*models.Document),
	}
	for _, opt := range opts {
		opt(idx)
	}
	docs, chunks, err := store.LoadAll(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	for _, d := range docs {
		idx.docs[d.ID] = d
	}
	idx.chunks = chunks
	return idx, nil
}

// Open opens the index at dbPath. A snapshot that cannot be opened or read
// is moved aside and replaced with an empty one rather than crashing.
func Open(dbPath string, embedder embedding.Embedder, logger *zap.Logger) (*Index, storage.Storage, error) {
	store, err := storage.NewSQLiteStorage(dbPath)
	if err == nil {
		idx, newErr := New(store, embedder, WithLogger(logger))
		if newErr == nil {
			return idx, store, nil
		}
		_ = store.Close()
		err = newErr
	}
	if logger != nil {
		logger.Warn("index snapshot unreadable, starting empty",
			zap.String("path", dbPath), zap.Error(err))
	}
	if renameErr := os.Rename(dbPath, dbPath+".corrupt"); renameErr != nil && !os.IsNotExist(renameErr) {
		return nil, nil, fmt.Errorf("move corrupt snapshot aside: %w", renameErr)
	}
	store, err = storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("recreate index storage: %w", err)
	}
	idx, err := New(store, embedder, WithLogger(logger))
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return idx, store, nil
}

// IndexDocument embeds all segments and registers the document with one chunk
// per segment. Indexing is atomic: if embedding any segment fails, the
// document is not registered and no partial chunks remain.
func (idx *Index) IndexDocument(ctx context.Context, id, filename string, segments []models.Segment) (*models.Document, error) {
	if id == "" {
		id = uuid.New().String()
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("document %q has no content to index", filename)
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	doc := &models.Document{ID: id, Filename: filename, ChunkCount: len(segments)}
	chunks := make([]*models.Chunk, len(segments))
	for i, seg := range segments {
		utils.NormalizeL2(vectors[i])
		chunks[i] = &models.Chunk{
			ID:       fmt.Sprintf("%s_%s", id, uuid.New().String()[:8]),
			DocID:    id,
			Filename: filename,
			Text:     seg.Text,
			Location: seg.Location,
			Vector:   vectors[i],
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.docs[id]; exists {
		return nil, fmt.Errorf("document %s already indexed", id)
	}
	if err := idx.store.SaveDocument(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("failed to persist document: %w", err)
	}
	idx.docs[id] = doc
	idx.chunks = append(idx.chunks, chunks...)
	if idx.logger != nil {
		idx.logger.Debug("document indexed",
			zap.String("doc_id", id), zap.String("filename", filename), zap.Int("chunks", len(chunks)))
	}
	return doc, nil
}

// Search embeds the query and returns up to topK chunks by descending
// similarity. When docIDs is non-empty, candidates are restricted to those
// documents. Equal scores preserve insertion order. An empty index yields an
// empty result, never an error.
func (idx *Index) Search(ctx context.Context, query string, topK int, docIDs []string) ([]*models.SearchResult, error) {
	idx.mu.RLock()
	empty := len(idx.chunks) == 0
	idx.mu.RUnlock()
	if empty || topK <= 0 {
		return []*models.SearchResult{}, nil
	}

	queryVec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	utils.NormalizeL2(queryVec)

	var allowed map[string]bool
	if len(docIDs) > 0 {
		allowed = make(map[string]bool, len(docIDs))
		for _, id := range docIDs {
			allowed[id] = true
		}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	results := make([]*models.SearchResult, 0, len(idx.chunks))
	for _, ch := range idx.chunks {
		if allowed != nil && !allowed[ch.DocID] {
			continue
		}
		results = append(results, &models.SearchResult{
			Chunk: ch,
			Score: utils.InnerProduct(queryVec, ch.Vector),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// DeleteDocument removes the document matching idOrFilename (ID first, then
// stored filename) and all of its chunks. Returns whether anything was found.
func (idx *Index) DeleteDocument(ctx context.Context, idOrFilename string) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	docID := ""
	if _, ok := idx.docs[idOrFilename]; ok {
		docID = idOrFilename
	} else {
		for id, doc := range idx.docs {
			if doc.Filename == idOrFilename {
				docID = id
				break
			}
		}
	}
	if docID == "" {
		return false, nil
	}

	if err := idx.store.DeleteDocument(ctx, docID); err != nil {
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
	delete(idx.docs, docID)
	kept := idx.chunks[:0]
	for _, ch := range idx.chunks {
		if ch.DocID != docID {
			kept = append(kept, ch)
		}
	}
	idx.chunks = kept
	if idx.logger != nil {
		idx.logger.Debug("document deleted", zap.String("doc_id", docID))
	}
	return true, nil
}

// GetDocument returns the document with the given ID, or nil.
func (idx *Index) GetDocument(id string) *models.Document {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.docs[id]
}

// ListDocuments returns all documents sorted by filename.
func (idx *Index) ListDocuments() []*models.Document {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	docs := make([]*models.Document, 0, len(idx.docs))
	for _, d := range idx.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Filename < docs[j].Filename })
	return docs
}

// CountDocuments returns the number of indexed documents.
func (idx *Index) CountDocuments() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Size returns the number of indexed chunks.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.chunks)
}

// Clear resets to an empty index and persists immediately.
func (idx *Index) Clear(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	idx.docs = make(map[string]*models.Document)
	idx.chunks = nil
	return nil
}
