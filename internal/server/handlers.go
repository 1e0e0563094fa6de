package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/tools"
)

const maxUploadBytes = 64 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	doc, stored, warning, err := s.indexer.Upload(r.Context(), header.Filename, data)
	if err != nil {
		s.logger.Error("upload failed", zap.String("filename", header.Filename), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{
		"id":        doc.ID,
		"filename":  header.Filename,
		"stored_as": stored,
		"chunks":    doc.ChunkCount,
		"status":    "uploaded",
	}
	if warning != "" {
		resp["warning"] = warning
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

type documentInput struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// handleIndexDocuments indexes raw content directly, accepting either one
// document object or an array of them. Unlike upload, unparseable content is
// a hard failure here.
func (s *Server) handleIndexDocuments(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var inputs []documentInput
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(body, &inputs); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		var single documentInput
		if err := json.Unmarshal(body, &single); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		inputs = []documentInput{single}
	}

	for _, input := range inputs {
		if input.Filename == "" || input.Content == "" {
			s.respondError(w, http.StatusBadRequest, "filename and content are required")
			return
		}
	}

	indexed := make([]map[string]any, 0, len(inputs))
	for _, input := range inputs {
		doc, err := s.indexer.IndexContent(r.Context(), input.Filename, input.Content)
		if err != nil {
			s.logger.Error("direct indexing failed", zap.String("filename", input.Filename), zap.Error(err))
			s.respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		indexed = append(indexed, map[string]any{
			"id":       doc.ID,
			"filename": doc.Filename,
			"chunks":   doc.ChunkCount,
		})
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{"documents": indexed})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := s.index.ListDocuments()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"count":     len(docs),
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	found, err := s.indexer.Delete(r.Context(), id)
	if err != nil {
		s.logger.Error("deletion failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleClearDocuments(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.indexer.ClearAll(r.Context())
	if err != nil {
		s.logger.Error("clear failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":        "cleared",
		"deleted_files": deleted,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.index.Search(r.Context(), req.Query, req.TopK, req.DocumentIDs)
	if err != nil {
		s.logger.Error("search failed", zap.String("query", req.Query), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	hits := make([]*models.SearchHit, 0, len(results))
	for _, result := range results {
		hits = append(hits, result.Hit())
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"results": hits,
		"count":   len(hits),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		req.SessionID = r.Header.Get("X-Session-ID")
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.orchestrator.Chat(r.Context(), &req)
	if err != nil {
		s.logger.Error("chat failed", zap.Error(err))
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type insertTextRequest struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

func (s *Server) handleInsertText(w http.ResponseWriter, r *http.Request) {
	var req insertTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Filename == "" {
		s.respondError(w, http.StatusBadRequest, "filename is required")
		return
	}
	if req.Column == 0 {
		req.Column = 1
	}

	if err := s.registry.InsertText(req.Filename, req.Text, req.Line, req.Column); err != nil {
		s.logger.Debug("insert text failed", zap.String("filename", req.Filename), zap.Error(err))
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":   "inserted",
		"filename": req.Filename,
		"line":     req.Line,
	})
}

func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.sessions.Clear(id)
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"documents":  s.index.CountDocuments(),
		"chunks":     s.index.Size(),
		"session_id": r.Header.Get("X-Session-ID"),
	}
	resp["config"] = map[string]any{
		"embedding_backend":    s.config.Embedding.Backend,
		"embedding_model":      s.config.Embedding.Model,
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"llm_model":            s.config.LLM.Model,
		"workspace_dir":        s.config.Workspace.Dir,
		"database_path":        s.config.Storage.DatabasePath,
		"retrieval_top_k":      s.config.Retrieval.TopK,
		"agent_max_steps":      s.config.Agent.MaxSteps,
	}
	if diskBytes, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath, s.config.Workspace.Dir); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, tools.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, tools.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, tools.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, extract.ErrUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, llm.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
