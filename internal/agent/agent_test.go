package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/tools"
)

func newTestOrchestrator(t *testing.T, client llm.Client, opts ...Option) (*Orchestrator, *index.Index, *tools.Registry) {
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
	workspace := filepath.Join(dir, "workspace")
	if err := os.MkdirAll(workspace, 0755); err != nil {
		t.Fatal(err)
	}
	registry, err := tools.NewRegistry(workspace, extract.NewExtractor())
	if err != nil {
		t.Fatal(err)
	}
	sessions := session.NewStore(40)
	return New(idx, registry, client, sessions, opts...), idx, registry
}

func indexText(t *testing.T, idx *index.Index, id, filename, text string) {
	t.Helper()
	_, err := idx.IndexDocument(context.Background(), id, filename, []models.Segment{
		{Text: text, Location: models.Location{LineStart: 1, LineEnd: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestMetaQuestionListsWorkspace(t *testing.T) {
	o, _, registry := newTestOrchestrator(t, llm.NewMockClient("should never be called"))
	for _, name := range []string{"a.md", "b.pdf", "deadbeef_c.txt"} {
		if err := os.WriteFile(filepath.Join(registry.Workspace(), name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := o.Chat(context.Background(), &models.ChatRequest{Message: "What files do I have?"})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"- a.md", "- b.pdf", "- c.txt"} {
		if !strings.Contains(resp.Response, want) {
			t.Errorf("listing missing %q:\n%s", want, resp.Response)
		}
	}
	if strings.Contains(resp.Response, "deadbeef") {
		t.Error("uniqueness prefix leaked into listing")
	}
	if len(resp.Citations) != 0 {
		t.Errorf("meta answer has %d citations", len(resp.Citations))
	}
}

func TestExplicitDocumentRestriction(t *testing.T) {
	client := llm.NewMockClient("answer from restricted scope")
	o, idx, _ := newTestOrchestrator(t, client)
	indexText(t, idx, "doc-a", "a.txt", "alpha beta")
	indexText(t, idx, "doc-b", "b.txt", "gamma delta")

	resp, err := o.Chat(context.Background(), &models.ChatRequest{
		Message:     "what does it say about alpha",
		DocumentIDs: []string{"doc-b"},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range resp.Citations {
		if c.DocID != "doc-b" {
			t.Errorf("citation outside restriction: %+v", c)
		}
	}
}

func TestCrossDocumentIntentOverridesRestriction(t *testing.T) {
	client := llm.NewMockClient("comparing both documents")
	o, idx, _ := newTestOrchestrator(t, client)
	indexText(t, idx, "doc-a", "report.pdf", "quarterly revenue numbers")
	indexText(t, idx, "doc-b", "notes.txt", "meeting notes")

	resp, err := o.Chat(context.Background(), &models.ChatRequest{
		Message:     "is this consistent with what is based on the document report.pdf?",
		DocumentIDs: []string{"doc-b"},
	})
	if err != nil {
		t.Fatal(err)
	}
	foundOther := false
	for _, c := range resp.Citations {
		if c.DocID == "doc-a" {
			foundOther = true
		}
	}
	if !foundOther {
		t.Errorf("restriction was not widened: %+v", resp.Citations)
	}
}

func TestToolLoopExecutesAndRecords(t *testing.T) {
	client := llm.NewMockClient(
		`{"tool": "read_file", "args": {"path": "notes.txt"}}`,
		"The file says hello.",
	)
	o, idx, registry := newTestOrchestrator(t, client)
	indexText(t, idx, "doc-a", "notes.txt", "hello from the notes file")
	if err := os.WriteFile(filepath.Join(registry.Workspace(), "notes.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	resp, err := o.Chat(context.Background(), &models.ChatRequest{Message: "what do the notes say"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Response != "The file says hello." {
		t.Errorf("response = %q", resp.Response)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "read_file" {
		t.Errorf("tool trace = %+v", resp.ToolCalls)
	}

	// The tool result must be part of the second call's context.
	calls := client.Calls()
	if len(calls) != 2 {
		t.Fatalf("model calls = %d", len(calls))
	}
	last := calls[1][len(calls[1])-1]
	if last.Role != models.RoleTool || !strings.Contains(last.Content, "hello") {
		t.Errorf("tool result not fed back: %+v", last)
	}
}

func TestToolErrorIsRecoverable(t *testing.T) {
	client := llm.NewMockClient(
		`{"tool": "read_file", "args": {"path": "missing.txt"}}`,
		"I could not find that file.",
	)
	o, idx, _ := newTestOrchestrator(t, client)
	indexText(t, idx, "doc-a", "a.txt", "some indexed text")

	resp, err := o.Chat(context.Background(), &models.ChatRequest{Message: "read the missing file"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Response != "I could not find that file." {
		t.Errorf("response = %q", resp.Response)
	}
	calls := client.Calls()
	last := calls[1][len(calls[1])-1]
	if !strings.Contains(last.Content, "ERROR") {
		t.Errorf("tool error not fed back: %q", last.Content)
	}
}

func TestStepBudgetForcesAnswer(t *testing.T) {
	client := llm.NewMockClient(
		`{"tool": "list_dir", "args": {}}`,
		`{"tool": "list_dir", "args": {}}`,
		"best effort answer",
	)
	o, idx, _ := newTestOrchestrator(t, client, WithMaxSteps(2))
	indexText(t, idx, "doc-a", "a.txt", "content")

	resp, err := o.Chat(context.Background(), &models.ChatRequest{Message: "keep looping"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Response != "best effort answer" {
		t.Errorf("response = %q", resp.Response)
	}
	if len(resp.ToolCalls) != 2 {
		t.Errorf("tool calls = %d, want 2", len(resp.ToolCalls))
	}
	if len(client.Calls()) != 3 {
		t.Errorf("model calls = %d, want 2 steps + forced answer", len(client.Calls()))
	}
}

func TestForcedAnswerNeverLeaksToolCallJSON(t *testing.T) {
	// The mock repeats its last response, so every call including the forced
	// one comes back as a tool request.
	client := llm.NewMockClient(`{"tool": "list_dir", "args": {}}`)
	o, idx, _ := newTestOrchestrator(t, client, WithMaxSteps(2))
	indexText(t, idx, "doc-a", "a.txt", "content")

	resp, err := o.Chat(context.Background(), &models.ChatRequest{Message: "keep looping"})
	if err != nil {
		t.Fatal(err)
	}
	if _, isCall := parseToolCall(resp.Response); isCall {
		t.Errorf("tool-call JSON reached the user: %q", resp.Response)
	}
	if resp.Response == "" {
		t.Error("empty forced answer")
	}
}

func TestInlineDocumentIsTransient(t *testing.T) {
	client := llm.NewMockClient("answer about the draft")
	o, idx, _ := newTestOrchestrator(t, client)

	content := strings.Repeat("the draft discusses delivery timelines. ", 3)
	resp, err := o.Chat(context.Background(), &models.ChatRequest{
		Message:  "what is the draft about",
		Document: &models.InlineDocument{Filename: "draft.txt", Content: content},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Citations) == 0 || resp.Citations[0].Filename != "draft.txt" {
		t.Errorf("citations = %+v", resp.Citations)
	}
	if idx.CountDocuments() != 0 {
		t.Errorf("transient document leaked: %d docs remain", idx.CountDocuments())
	}
}

func TestTrivialInlineDocumentIsIgnored(t *testing.T) {
	client := llm.NewMockClient("general answer")
	o, idx, _ := newTestOrchestrator(t, client)

	resp, err := o.Chat(context.Background(), &models.ChatRequest{
		Message:  "hello there",
		Document: &models.InlineDocument{Filename: "x.txt", Content: "tiny"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.UsedGeneralKnowledge {
		t.Error("expected general-knowledge answer on empty index")
	}
	if idx.CountDocuments() != 0 {
		t.Error("trivial inline doc was indexed")
	}
}

func TestUpstreamFailurePropagates(t *testing.T) {
	client := llm.NewMockClient()
	client.Fail(llm.ErrUpstream)
	o, idx, _ := newTestOrchestrator(t, client)
	indexText(t, idx, "doc-a", "a.txt", "content")

	_, err := o.Chat(context.Background(), &models.ChatRequest{Message: "anything"})
	if !errors.Is(err, llm.ErrUpstream) {
		t.Errorf("got %v, want ErrUpstream", err)
	}
}

func TestSessionHistoryIsSurfaced(t *testing.T) {
	client := llm.NewMockClient("first answer", "second answer")
	o, idx, _ := newTestOrchestrator(t, client)
	indexText(t, idx, "doc-a", "a.txt", "content")

	ctx := context.Background()
	if _, err := o.Chat(ctx, &models.ChatRequest{Message: "first question", SessionID: "s1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Chat(ctx, &models.ChatRequest{Message: "second question", SessionID: "s1"}); err != nil {
		t.Fatal(err)
	}

	calls := client.Calls()
	second := calls[1]
	var sawFirst bool
	for _, turn := range second {
		if turn.Content == "first question" && turn.Role == models.RoleUser {
			sawFirst = true
		}
	}
	if !sawFirst {
		t.Error("previous exchange missing from second call")
	}
}
