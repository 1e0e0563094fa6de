// Package models defines core data structures for documents, chunks, and chat.
package models

import "time"

// Document represents an indexed document.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Location identifies where a piece of text came from within its source file.
// Page is set for paginated formats (PDF), Sheet for spreadsheets. LineStart
// and LineEnd are 1-based and inclusive.
type Location struct {
	Page      int    `json:"page,omitempty"`
	Sheet     string `json:"sheet,omitempty"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
}

// Segment is an ordered unit of extracted text with location metadata,
// produced by the extract package before chunking.
type Segment struct {
	Text     string
	Location Location
}

// Chunk is a unit of indexed text with location metadata and an embedding
// vector. Chunks are immutable once created; the vector is computed exactly
// once at indexing time.
type Chunk struct {
	ID       string    `json:"id"`
	DocID    string    `json:"doc_id"`
	Filename string    `json:"filename"`
	Text     string    `json:"text"`
	Location Location  `json:"location"`
	Vector   []float32 `json:"-"`
}
