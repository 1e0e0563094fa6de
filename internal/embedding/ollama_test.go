package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		calls++
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{3, 4, 0, 0}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL+"/api", "test-model", 4, 10)
	emb, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(emb) != 4 {
		t.Fatalf("dimensions = %d, want 4", len(emb))
	}
	var norm float64
	for _, v := range emb {
		norm += float64(v * v)
	}
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("embedding not normalized: norm^2 = %v", norm)
	}

	// Second call for the same text hits the cache.
	if _, err := e.Embed(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", calls)
	}
}

func TestOllamaEmbedder_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL+"/api", "missing", 4, 10)
	if _, err := e.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error from upstream failure")
	}
}

func TestFitDimensions(t *testing.T) {
	if got := fitDimensions([]float32{1, 2, 3}, 2); len(got) != 2 {
		t.Errorf("truncate: len = %d", len(got))
	}
	got := fitDimensions([]float32{1}, 3)
	if len(got) != 3 || got[1] != 0 {
		t.Errorf("pad: got %v", got)
	}
}
