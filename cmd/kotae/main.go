// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/agent"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/tools"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence, so running from the project dir
// picks up the project's config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "index":
		runIndex()
	case "search":
		runSearch()
	case "chat":
		runChat()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fsFlags := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fsFlags.String("config", defaultConfigPath, "config file path")
	debug := fsFlags.Bool("debug", false, "enable debug logging")
	_ = fsFlags.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode))

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.EnabledOrDefault() {
		ix := components.Indexer
		watch := watcher.NewWatcher(
			cfg.Workspace.Dir,
			cfg.Watch.Extensions,
			func(path string) {
				if _, err := ix.IndexFile(context.Background(), path); err != nil {
					logger.Warn("watch index file failed", zap.String("path", path), zap.Error(err))
				}
			},
			func(path string) {
				if err := ix.RemoveByPath(context.Background(), path); err != nil {
					logger.Warn("watch remove failed", zap.String("path", path), zap.Error(err))
				}
			},
			watcher.WithLogger(logger),
		)
		if err := watch.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watch.Stop()
	}

	srv := server.NewServer(
		components.Orchestrator,
		components.Index,
		components.Indexer,
		components.Registry,
		components.Sessions,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIndex() {
	fsFlags := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fsFlags.String("config", defaultConfigPath, "config file path")
	_ = fsFlags.Parse(os.Args[2:])

	if fsFlags.NArg() < 1 {
		fmt.Println("Usage: kotae index [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fsFlags.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		exts := cfg.Watch.Extensions
		count := 0
		walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if !matchExtension(p, exts) {
				return nil
			}
			if _, err := components.Indexer.IndexFile(ctx, p); err != nil {
				fmt.Printf("Skipping %s: %v\n", p, err)
				return nil
			}
			count++
			return nil
		})
		if walkErr != nil {
			fmt.Printf("Indexing directory failed: %v\n", walkErr)
			os.Exit(1)
		}
		fmt.Printf("Indexed %d file(s) from %s\n", count, path)
		return
	}
	doc, err := components.Indexer.IndexFile(ctx, path)
	if err != nil {
		fmt.Printf("Indexing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document indexed: %s (%d chunks)\n", doc.ID, doc.ChunkCount)
}

// matchExtension reports whether path has one of the given extensions
// (empty list matches everything).
func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// buildQuery joins positional args with spaces so multi-word queries work
// with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves flags (and their values) that appear after positional
// arguments to the front so flag.Parse sees them.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	searchArgs := argsReorder(os.Args[2:])
	fsFlags := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fsFlags.String("config", defaultConfigPath, "config file path")
	serverURL := fsFlags.String("server", "http://localhost:8080", "server URL (empty = direct storage access)")
	topK := fsFlags.Int("top-k", 5, "number of results")
	docIDs := fsFlags.String("docs", "", "comma-separated document IDs to restrict the search")
	outputFormat := fsFlags.String("output", "text", "output format: text or json")
	_ = fsFlags.Parse(searchArgs)

	query := buildQuery(fsFlags.Args())
	if query == "" {
		fmt.Println("Usage: kotae search [flags] <query>")
		os.Exit(1)
	}

	req := &models.SearchRequest{Query: query, TopK: *topK}
	if *docIDs != "" {
		req.DocumentIDs = strings.Split(*docIDs, ",")
	}

	var hits []*models.SearchHit
	if *serverURL != "" {
		res, err := searchViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		hits = res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()

		results, err := components.Index.Search(context.Background(), req.Query, req.TopK, req.DocumentIDs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		for _, r := range results {
			hits = append(hits, r.Hit())
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(hits); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		if len(hits) == 0 {
			fmt.Println("No results.")
			return
		}
		for i, hit := range hits {
			where := fmt.Sprintf("lines %d-%d", hit.LineStart, hit.LineEnd)
			if hit.Page > 0 {
				where = fmt.Sprintf("page %d, %s", hit.Page, where)
			}
			if hit.Sheet != "" {
				where = fmt.Sprintf("sheet %s, %s", hit.Sheet, where)
			}
			fmt.Printf("%d. %s (%s) score=%.3f\n   %s\n",
				i+1, hit.Filename, where, hit.Score, utils.Truncate(hit.Text, 160))
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, req *models.SearchRequest) ([]*models.SearchHit, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		Results []*models.SearchHit `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Results, nil
}

func runChat() {
	chatArgs := argsReorder(os.Args[2:])
	fsFlags := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fsFlags.String("config", defaultConfigPath, "config file path")
	serverURL := fsFlags.String("server", "http://localhost:8080", "server URL (empty = run the agent locally)")
	sessionID := fsFlags.String("session", "", "session ID for conversation memory")
	_ = fsFlags.Parse(chatArgs)

	message := buildQuery(fsFlags.Args())
	if message == "" {
		fmt.Println("Usage: kotae chat [flags] <message>")
		os.Exit(1)
	}

	req := &models.ChatRequest{Message: message, SessionID: *sessionID}

	var resp *models.ChatResponse
	if *serverURL != "" {
		res, err := chatViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Chat failed: %v\n", err)
			os.Exit(1)
		}
		resp = res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()

		res, err := components.Orchestrator.Chat(context.Background(), req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Chat failed: %v\n", err)
			os.Exit(1)
		}
		resp = res
	}

	fmt.Println(resp.Response)
	if len(resp.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, c := range resp.Citations {
			where := fmt.Sprintf("lines %d-%d", c.LineStart, c.LineEnd)
			if c.Page > 0 {
				where = fmt.Sprintf("page %d", c.Page)
			}
			if c.Sheet != "" {
				where = fmt.Sprintf("sheet %s", c.Sheet)
			}
			fmt.Printf("  - %s (%s)\n", c.Filename, where)
		}
	}
	if len(resp.ToolCalls) > 0 {
		fmt.Println("\nTools used:")
		for _, tc := range resp.ToolCalls {
			fmt.Printf("  - %s\n", tc.Name)
		}
	}
	if resp.UsedGeneralKnowledge {
		fmt.Println("\n(no relevant documents found; answered from general knowledge)")
	}
}

func chatViaHTTP(serverURL string, req *models.ChatRequest) (*models.ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequest(http.MethodPost, serverURL+"/api/v1/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.SessionID != "" {
		httpReq.Header.Set("X-Session-ID", req.SessionID)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out models.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func runDelete() {
	fsFlags := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fsFlags.String("config", defaultConfigPath, "config file path")
	serverURL := fsFlags.String("server", "http://localhost:8080", "server URL (empty = direct storage access)")
	_ = fsFlags.Parse(os.Args[2:])

	if fsFlags.NArg() < 1 {
		fmt.Println("Usage: kotae delete [flags] <document-id-or-filename>")
		os.Exit(1)
	}
	docID := fsFlags.Arg(0)

	if *serverURL != "" {
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/documents/"+docID, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Delete failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Document deleted: %s\n", docID)
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	found, err := components.Indexer.Delete(context.Background(), docID)
	if err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	if !found {
		fmt.Printf("Document not found: %s\n", docID)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runStatus() {
	fsFlags := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fsFlags.String("config", defaultConfigPath, "config file path")
	serverURL := fsFlags.String("server", "http://localhost:8080", "server URL (empty = direct storage access)")
	outputFormat := fsFlags.String("output", "text", "output format: text or json")
	_ = fsFlags.Parse(os.Args[2:])

	status := map[string]any{}
	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			fmt.Fprintf(os.Stderr, "Decode failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()

		status["documents"] = components.Index.CountDocuments()
		status["chunks"] = components.Index.Size()
		if diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Workspace.Dir); err == nil {
			status["disk_usage_bytes"] = diskBytes
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("documents:        %v\n", status["documents"])
		fmt.Printf("chunks:           %v\n", status["chunks"])
		if v, ok := status["disk_usage_bytes"]; ok {
			fmt.Printf("disk_usage_bytes: %v\n", v)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	Embedder     embedding.Embedder
	Index        *index.Index
	Indexer      *indexer.Indexer
	Registry     *tools.Registry
	Sessions     *session.Store
	LLM          llm.Client
	Orchestrator *agent.Orchestrator
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.LLM != nil {
		_ = c.LLM.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	embedder := embedding.New(&cfg.Embedding, logger)

	idx, store, err := index.Open(cfg.Storage.DatabasePath, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	extractor := extract.NewExtractor()
	ix, err := indexer.NewIndexer(idx, extractor, cfg.Workspace.Dir, indexer.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize indexer: %w", err)
	}

	registry, err := tools.NewRegistry(cfg.Workspace.Dir, extractor, tools.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tools: %w", err)
	}

	sessions := session.NewStore(cfg.Session.Retention)
	client := llm.NewOllamaClient(cfg.LLM.OllamaURL, cfg.LLM.Model, llm.WithLogger(logger))

	modelConfig := llm.DefaultModelConfig()
	if cfg.LLM.Temperature > 0 {
		modelConfig.Temperature = cfg.LLM.Temperature
	}
	if cfg.LLM.MaxTokens > 0 {
		modelConfig.MaxTokens = cfg.LLM.MaxTokens
	}

	orchestrator := agent.New(idx, registry, client, sessions,
		agent.WithLogger(logger),
		agent.WithMaxSteps(cfg.Agent.MaxSteps),
		agent.WithRetrieval(agent.Retrieval{
			TopK:           cfg.Retrieval.TopK,
			Candidates:     cfg.Retrieval.Candidates,
			ScoreThreshold: cfg.Retrieval.ScoreThreshold,
			DegradeBest:    cfg.Retrieval.DegradeBest,
		}),
		agent.WithModelConfig(modelConfig),
	)

	return &Components{
		Storage:      store,
		Embedder:     embedder,
		Index:        idx,
		Indexer:      ix,
		Registry:     registry,
		Sessions:     sessions,
		LLM:          client,
		Orchestrator: orchestrator,
	}, nil
}

func printUsage() {
	fmt.Println(`kotae - document-aware chat assistant

Usage:
  kotae server [flags]            Start the HTTP server
  kotae index [flags] <path>      Index a file or directory
  kotae search [flags] <query>    Search indexed documents
  kotae chat [flags] <message>    Ask the assistant a question
  kotae delete [flags] <id>       Delete a document (by ID or filename)
  kotae status [flags]            Show index status
  kotae version                   Show version
  kotae help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --server string    Server URL (default: http://localhost:8080). Empty = direct storage.
  --top-k int        Number of results (default: 5)
  --docs string      Comma-separated document IDs to restrict the search
  --output string    Output format: text or json (default: text)

Chat Flags:
  --server string    Server URL (default: http://localhost:8080). Empty = run locally.
  --session string   Session ID for conversation memory

Examples:
  kotae server
  kotae index report.pdf
  kotae search quarterly revenue
  kotae chat what does the report say about Q3
  kotae chat --session s1 "and compared to Q2?"
  kotae delete report.pdf
  kotae status --output json`)
}
