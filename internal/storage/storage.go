// Package storage persists the embedding index: documents, chunks, and vectors.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Storage defines the durable index artifact. Every mutating call is
// committed before it returns; SaveDocument writes a document and all of its
// chunks in one transaction so a failure leaves no partial document behind.
type Storage interface {
	SaveDocument(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error
	DeleteDocument(ctx context.Context, docID string) error
	LoadAll(ctx context.Context) ([]*models.Document, []*models.Chunk, error)
	Clear(ctx context.Context) error

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
