// Package agent implements the control loop behind the chat endpoint: it
// routes a request by intent, decides retrieval scope, runs a bounded
// tool-calling dialogue with the language model and assembles a cited answer.
package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/intent"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/tools"
)

const (
	// minInlineDocBytes is the threshold below which an inline document is
	// not worth a transient index entry.
	minInlineDocBytes = 40

	defaultMaxSteps       = 4
	defaultTopK           = 5
	defaultCandidates     = 10
	defaultScoreThreshold = 0.3
	defaultDegradeBest    = 3
)

// Retrieval bundles the open-retrieval tuning knobs.
type Retrieval struct {
	TopK           int
	Candidates     int
	ScoreThreshold float64
	DegradeBest    int
}

// Orchestrator ties the index, tools, session memory and the language model
// into one request-scoped control loop.
type Orchestrator struct {
	index    *index.Index
	registry *tools.Registry
	client   llm.Client
	sessions *session.Store
	logger   *zap.Logger

	maxSteps    int
	retrieval   Retrieval
	modelConfig llm.ModelConfig
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMaxSteps caps the number of reasoning steps per request.
func WithMaxSteps(steps int) Option {
	return func(o *Orchestrator) {
		if steps > 0 {
			o.maxSteps = steps
		}
	}
}

// WithRetrieval overrides the retrieval tuning.
func WithRetrieval(r Retrieval) Option {
	return func(o *Orchestrator) {
		if r.TopK > 0 {
			o.retrieval.TopK = r.TopK
		}
		if r.Candidates > 0 {
			o.retrieval.Candidates = r.Candidates
		}
		if r.ScoreThreshold > 0 {
			o.retrieval.ScoreThreshold = r.ScoreThreshold
		}
		if r.DegradeBest > 0 {
			o.retrieval.DegradeBest = r.DegradeBest
		}
	}
}

// WithModelConfig sets the generation parameters for model calls.
func WithModelConfig(cfg llm.ModelConfig) Option {
	return func(o *Orchestrator) {
		o.modelConfig = cfg
	}
}

// New creates an orchestrator.
func New(idx *index.Index, registry *tools.Registry, client llm.Client, sessions *session.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		index:    idx,
		registry: registry,
		client:   client,
		sessions: sessions,
		logger:   zap.NewNop(),
		maxSteps: defaultMaxSteps,
		retrieval: Retrieval{
			TopK:           defaultTopK,
			Candidates:     defaultCandidates,
			ScoreThreshold: defaultScoreThreshold,
			DegradeBest:    defaultDegradeBest,
		},
		modelConfig: llm.DefaultModelConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Chat handles one chat request end to end.
func (o *Orchestrator) Chat(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	classified := intent.Classify(req.Message)

	if classified.IsMetaQuestion {
		return o.metaAnswer(ctx, req)
	}

	passages, transientID, err := o.scopeRetrieval(ctx, req, classified)
	if transientID != "" {
		defer func() {
			if _, delErr := o.index.DeleteDocument(context.WithoutCancel(ctx), transientID); delErr != nil {
				o.logger.Warn("failed to remove transient document",
					zap.String("doc_id", transientID), zap.Error(delErr))
			}
		}()
	}
	if err != nil {
		return nil, err
	}
	hasRelevantDocs := len(passages) > 0

	resp, err := o.toolLoop(ctx, req, passages, hasRelevantDocs)
	if err != nil {
		return nil, err
	}

	o.sessions.Append(req.SessionID,
		models.Turn{Role: models.RoleUser, Content: req.Message},
		models.Turn{Role: models.RoleAssistant, Content: resp.Response})
	return resp, nil
}

// metaAnswer lists the workspace deterministically, bypassing retrieval and
// the model, so meta-questions never hallucinate file names.
func (o *Orchestrator) metaAnswer(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	entries, err := o.registry.ListDir("", false)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasSuffix(entry, "/") {
			continue
		}
		names = append(names, indexer.StripUniquePrefix(entry))
	}
	sort.Strings(names)

	var answer string
	if len(names) == 0 {
		answer = "Your workspace is empty."
	} else {
		var b strings.Builder
		b.WriteString("Your workspace contains the following files:\n\n")
		for _, name := range names {
			b.WriteString("- ")
			b.WriteString(name)
			b.WriteString("\n")
		}
		answer = strings.TrimRight(b.String(), "\n")
	}

	resp := &models.ChatResponse{
		Response:  answer,
		Citations: []models.Citation{},
		ToolCalls: []models.ToolCallRecord{
			{Name: tools.ToolListDir, Args: map[string]any{"path": "", "recursive": false}},
		},
		CreatedFiles: []string{},
	}
	o.sessions.Append(req.SessionID,
		models.Turn{Role: models.RoleUser, Content: req.Message},
		models.Turn{Role: models.RoleAssistant, Content: answer})
	return resp, nil
}

// scopeRetrieval decides what to search and returns the retrieved passages.
// A non-empty transientID means an inline document was indexed for this turn
// and must be removed afterwards.
func (o *Orchestrator) scopeRetrieval(ctx context.Context, req *models.ChatRequest, classified intent.Result) ([]*models.SearchResult, string, error) {
	crossDoc := classified.HasCrossDocumentIntent || len(classified.MentionedDocumentNames) > 0

	// Precedence 1: caller-supplied restriction, unless overridden.
	if len(req.DocumentIDs) > 0 && !classified.HasCrossDocumentIntent {
		results, err := o.index.Search(ctx, req.Message, o.retrieval.TopK, req.DocumentIDs)
		if err != nil {
			return nil, "", err
		}
		return results, "", nil
	}

	// Precedence 2: cross-document language forces whole-index search.
	if crossDoc {
		results, err := o.index.Search(ctx, req.Message, o.retrieval.TopK, nil)
		if err != nil {
			return nil, "", err
		}
		return results, "", nil
	}

	// Precedence 3: a meaningful inline document is indexed transiently and
	// becomes the only search target for this turn.
	if doc := req.Document; doc != nil && meaningfulInlineDoc(doc.Content) {
		transientID := "transient_" + uuid.New().String()[:8]
		segments := inlineSegments(doc.Filename, doc.Content)
		if _, err := o.index.IndexDocument(ctx, transientID, doc.Filename, segments); err != nil {
			return nil, "", fmt.Errorf("failed to index inline document: %w", err)
		}
		results, err := o.index.Search(ctx, req.Message, o.retrieval.TopK, []string{transientID})
		if err != nil {
			return nil, transientID, err
		}
		return results, transientID, nil
	}

	// Precedence 4: open retrieval with over-fetch and threshold filtering.
	candidates, err := o.index.Search(ctx, req.Message, o.retrieval.Candidates, nil)
	if err != nil {
		return nil, "", err
	}
	passages := make([]*models.SearchResult, 0, o.retrieval.TopK)
	for _, r := range candidates {
		if r.Score > o.retrieval.ScoreThreshold {
			passages = append(passages, r)
		}
		if len(passages) == o.retrieval.TopK {
			break
		}
	}
	if len(passages) == 0 && len(candidates) > 0 {
		// Nothing cleared the bar; degrade to the best few rather than
		// returning nothing.
		n := o.retrieval.DegradeBest
		if n > len(candidates) {
			n = len(candidates)
		}
		passages = candidates[:n]
	}
	return passages, "", nil
}

// inlineSegments parses inline document content by its filename extension,
// falling back to a single plain-text segment when parsing fails.
func inlineSegments(filename, content string) []models.Segment {
	ext := strings.ToLower(filepath.Ext(filename))
	segments, err := extract.NewExtractor().ExtractBytes([]byte(content), ext)
	if err != nil || len(segments) == 0 {
		lines := strings.Count(content, "\n") + 1
		return []models.Segment{{
			Text:     content,
			Location: models.Location{LineStart: 1, LineEnd: lines},
		}}
	}
	return segments
}

func meaningfulInlineDoc(content string) bool {
	return len(strings.TrimSpace(content)) >= minInlineDocBytes && !indexer.IsPlaceholder(content)
}

// toolLoop runs the bounded reasoning loop: at each step the model either
// answers or requests exactly one tool call, whose result (or error) is fed
// back into the conversation.
func (o *Orchestrator) toolLoop(ctx context.Context, req *models.ChatRequest, passages []*models.SearchResult, hasRelevantDocs bool) (*models.ChatResponse, error) {
	messages := o.buildMessages(req, passages, hasRelevantDocs)

	toolCalls := []models.ToolCallRecord{}
	createdFiles := []string{}

	var answer string
	answered := false
	for step := 0; step < o.maxSteps; step++ {
		turn, err := o.client.Chat(ctx, messages, o.modelConfig)
		if err != nil {
			return nil, err
		}

		call, ok := parseToolCall(turn.Content)
		if !ok {
			answer = turn.Content
			answered = true
			break
		}

		toolCalls = append(toolCalls, models.ToolCallRecord{Name: call.Tool, Args: call.Args})
		result, toolErr := o.registry.Call(ctx, call.Tool, call.Args)
		if toolErr != nil {
			// Tool failures are recoverable: the model sees the error and
			// can adapt or try another tool.
			result = "ERROR: " + toolErr.Error()
			o.logger.Debug("tool call failed", zap.String("tool", call.Tool), zap.Error(toolErr))
		} else if call.Tool == tools.ToolInsertText {
			if name, ok := call.Args["filename"].(string); ok {
				createdFiles = append(createdFiles, name)
			}
		}

		messages = append(messages,
			models.Turn{Role: models.RoleAssistant, Content: turn.Content},
			models.Turn{Role: models.RoleTool, Content: fmt.Sprintf("Result of %s:\n%s", call.Tool, result)})
	}

	if !answered {
		// Budget exhausted: force a best-effort answer from the accumulated
		// context instead of failing the request.
		messages = append(messages, models.Turn{
			Role:    models.RoleUser,
			Content: "Answer the original question now, using what you have gathered so far. Do not request any more tools.",
		})
		turn, err := o.client.Chat(ctx, messages, o.modelConfig)
		if err != nil {
			return nil, err
		}
		answer = turn.Content
		if _, stillCalling := parseToolCall(answer); stillCalling {
			// The model ignored the instruction; raw tool-call JSON must not
			// reach the user.
			answer = "I could not reach a definitive answer with the information gathered. Please rephrase or narrow the question."
		}
	}

	return &models.ChatResponse{
		Response:             answer,
		Citations:            buildCitations(passages),
		ToolCalls:            toolCalls,
		CreatedFiles:         createdFiles,
		UsedGeneralKnowledge: !hasRelevantDocs,
	}, nil
}

// buildCitations converts retrieved passages into structured citations,
// independent of whatever citation text the model produced inline.
func buildCitations(passages []*models.SearchResult) []models.Citation {
	citations := make([]models.Citation, 0, len(passages))
	for _, p := range passages {
		citations = append(citations, models.Citation{
			Filename:  indexer.StripUniquePrefix(p.Chunk.Filename),
			DocID:     p.Chunk.DocID,
			Score:     p.Score,
			Page:      p.Chunk.Location.Page,
			Sheet:     p.Chunk.Location.Sheet,
			LineStart: p.Chunk.Location.LineStart,
			LineEnd:   p.Chunk.Location.LineEnd,
		})
	}
	return citations
}
