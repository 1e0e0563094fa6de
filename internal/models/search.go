package models

import "fmt"

// SearchRequest is a similarity search request with an optional document scope.
type SearchRequest struct {
	Query       string   `json:"query"`
	TopK        int      `json:"top_k,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// Validate ensures the search request has valid fields and sets defaults.
func (r *SearchRequest) Validate() error {
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if r.TopK <= 0 {
		r.TopK = 5
	}
	if r.TopK > 100 {
		r.TopK = 100
	}
	return nil
}

// SearchResult is a single similarity hit. Ephemeral, never persisted.
type SearchResult struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"`
}

// SearchHit is the wire shape of a search result.
type SearchHit struct {
	Filename  string  `json:"filename"`
	Score     float64 `json:"score"`
	DocID     string  `json:"doc_id"`
	Text      string  `json:"text"`
	Page      int     `json:"page,omitempty"`
	Sheet     string  `json:"sheet,omitempty"`
	LineStart int     `json:"line_start"`
	LineEnd   int     `json:"line_end"`
}

// Hit converts a SearchResult to its wire shape.
func (r *SearchResult) Hit() *SearchHit {
	return &SearchHit{
		Filename:  r.Chunk.Filename,
		Score:     r.Score,
		DocID:     r.Chunk.DocID,
		Text:      r.Chunk.Text,
		Page:      r.Chunk.Location.Page,
		Sheet:     r.Chunk.Location.Sheet,
		LineStart: r.Chunk.Location.LineStart,
		LineEnd:   r.Chunk.Location.LineEnd,
	}
}
