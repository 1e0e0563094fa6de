// Package tools implements the workspace-sandboxed capabilities the agent can
// invoke: reading and extracting documents, listing the workspace, and
// inserting text into files. Every path resolution is confined to the
// workspace root.
package tools

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/extract"
)

const (
	ToolReadFile        = "read_file"
	ToolExtractDocument = "extract_document"
	ToolListDir         = "list_dir"
	ToolInsertText      = "insert_text"
)

// extractableExts is the whitelist for extract_document. Narrower than the
// extractor itself supports: the tool surface exposed to the model stays
// conservative.
var extractableExts = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
}

// Definition describes one tool for prompt construction.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Registry is the closed set of tools, bound to one workspace root. Tool
// names arriving from the model are dispatched through Call; code paths that
// know which tool they need use the typed methods directly.
type Registry struct {
	workspace string
	extractor *extract.Extractor
	logger    *zap.Logger
}

// Option configures the registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a registry sandboxed to workspaceDir.
func NewRegistry(workspaceDir string, extractor *extract.Extractor, opts ...Option) (*Registry, error) {
	abs, err := filepath.Abs(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace dir: %w", err)
	}
	r := &Registry{
		workspace: abs,
		extractor: extractor,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Workspace returns the absolute workspace root.
func (r *Registry) Workspace() string {
	return r.workspace
}

// Definitions returns the tool descriptions in a stable order.
func (r *Registry) Definitions() []Definition {
	return []Definition{
		{
			Name:        ToolReadFile,
			Description: "Read the raw text content of a file in the workspace.",
			Parameters: map[string]any{
				"path": map[string]any{"type": "string", "description": "File path relative to the workspace"},
			},
		},
		{
			Name:        ToolExtractDocument,
			Description: "Extract the text of a pdf, docx or txt document in the workspace.",
			Parameters: map[string]any{
				"path": map[string]any{"type": "string", "description": "Document path relative to the workspace"},
			},
		},
		{
			Name:        ToolListDir,
			Description: "List the files in the workspace.",
			Parameters: map[string]any{
				"path":      map[string]any{"type": "string", "description": "Directory relative to the workspace, defaults to the root"},
				"recursive": map[string]any{"type": "boolean", "description": "Descend into subdirectories"},
			},
		},
		{
			Name:        ToolInsertText,
			Description: "Insert text into a workspace file at a line and column.",
			Parameters: map[string]any{
				"filename": map[string]any{"type": "string", "description": "File name in the workspace root"},
				"text":     map[string]any{"type": "string", "description": "Text to insert"},
				"line":     map[string]any{"type": "integer", "description": "1-based target line; line-count+1 appends"},
				"column":   map[string]any{"type": "integer", "description": "1-based column; 1 inserts a whole new line"},
			},
		},
	}
}

// Call dispatches a model-issued tool invocation by name. The string result
// is what gets fed back into the reasoning context.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch name {
	case ToolReadFile:
		path, err := stringArg(args, "path", true)
		if err != nil {
			return "", err
		}
		return r.ReadFile(path)
	case ToolExtractDocument:
		path, err := stringArg(args, "path", true)
		if err != nil {
			return "", err
		}
		text, segments, err := r.ExtractDocument(path)
		if err != nil {
			return "", err
		}
		r.logger.Debug("extracted document", zap.String("path", path), zap.Int("segments", segments))
		return text, nil
	case ToolListDir:
		path, err := stringArg(args, "path", false)
		if err != nil {
			return "", err
		}
		recursive, err := boolArg(args, "recursive")
		if err != nil {
			return "", err
		}
		names, err := r.ListDir(path, recursive)
		if err != nil {
			return "", err
		}
		if len(names) == 0 {
			return "(empty)", nil
		}
		return strings.Join(names, "\n"), nil
	case ToolInsertText:
		filename, err := stringArg(args, "filename", true)
		if err != nil {
			return "", err
		}
		text, err := stringArg(args, "text", true)
		if err != nil {
			return "", err
		}
		line, ok, err := intArg(args, "line")
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("%w: line is required", ErrInvalidArgument)
		}
		column, ok, err := intArg(args, "column")
		if err != nil {
			return "", err
		}
		if !ok {
			column = 1
		}
		if err := r.InsertText(filename, text, line, column); err != nil {
			return "", err
		}
		return fmt.Sprintf("inserted text into %s at line %d", filename, line), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

// ReadFile returns the raw content of a workspace file.
func (r *Registry) ReadFile(path string) (string, error) {
	resolved, err := r.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// ExtractDocument parses a pdf, docx or txt file and returns its full text
// (segments joined by a blank line) and the segment count.
func (r *Registry) ExtractDocument(path string) (string, int, error) {
	resolved, err := r.resolve(path)
	if err != nil {
		return "", 0, err
	}
	if !extractableExts[strings.ToLower(filepath.Ext(resolved))] {
		return "", 0, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(path))
	}
	if _, err := os.Stat(resolved); err != nil {
		if os.IsNotExist(err) {
			return "", 0, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", 0, err
	}
	segments, err := r.extractor.Extract(resolved)
	if err != nil {
		return "", 0, fmt.Errorf("failed to extract %s: %w", path, err)
	}
	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		texts = append(texts, seg.Text)
	}
	return strings.Join(texts, "\n\n"), len(segments), nil
}

// ListDir enumerates workspace entries as relative names, sorted. An empty
// path lists the workspace root.
func (r *Registry) ListDir(path string, recursive bool) ([]string, error) {
	if path == "" {
		path = "."
	}
	resolved, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidArgument, path)
	}

	var names []string
	if recursive {
		err = filepath.WalkDir(resolved, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, relErr := filepath.Rel(resolved, p)
			if relErr != nil {
				return relErr
			}
			names = append(names, filepath.ToSlash(rel))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", path, err)
		}
	} else {
		entries, readErr := os.ReadDir(resolved)
		if readErr != nil {
			return nil, fmt.Errorf("failed to list %s: %w", path, readErr)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// InsertText splices text into a workspace file. The filename is confined to
// its base name under the workspace root. Line is 1-based; line-count+1
// appends a new final line; column 1 inserts a whole new line before the
// target; any other column splices into the target line at the 0-based
// offset column-1. The file is rewritten in full.
func (r *Registry) InsertText(filename, text string, line, column int) error {
	if filename == "" {
		return fmt.Errorf("%w: filename is required", ErrInvalidArgument)
	}
	if filepath.Base(filename) != filename || filename == "." || filename == ".." {
		return fmt.Errorf("%w: %s", ErrAccessDenied, filename)
	}
	if line < 1 {
		return fmt.Errorf("%w: line must be >= 1", ErrInvalidArgument)
	}
	if column < 1 {
		return fmt.Errorf("%w: column must be >= 1", ErrInvalidArgument)
	}

	path := filepath.Join(r.workspace, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, filename)
		}
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}

	content := string(data)
	trailingNewline := strings.HasSuffix(content, "\n")
	content = strings.TrimSuffix(content, "\n")
	var lines []string
	if content != "" {
		lines = strings.Split(content, "\n")
	}

	if line > len(lines)+1 {
		return fmt.Errorf("%w: line %d exceeds %d lines", ErrInvalidArgument, line, len(lines))
	}

	switch {
	case line == len(lines)+1:
		lines = append(lines, text)
	case column == 1:
		lines = append(lines[:line-1], append([]string{text}, lines[line-1:]...)...)
	default:
		target := lines[line-1]
		offset := column - 1
		if offset > len(target) {
			offset = len(target)
		}
		lines[line-1] = target[:offset] + text + target[offset:]
	}

	out := strings.Join(lines, "\n")
	if trailingNewline {
		out += "\n"
	}
	if err := os.WriteFile(path, []byte(out), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	r.logger.Debug("inserted text",
		zap.String("filename", filename),
		zap.Int("line", line),
		zap.Int("column", column))
	return nil
}

// resolve confines a path to the workspace root. Escaping paths are rejected,
// never narrowed.
func (r *Registry) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: path is required", ErrInvalidArgument)
	}
	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(r.workspace, candidate)
	}
	candidate = filepath.Clean(candidate)
	if candidate != r.workspace && !strings.HasPrefix(candidate, r.workspace+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrAccessDenied, path)
	}
	return candidate, nil
}

func stringArg(args map[string]any, key string, required bool) (string, error) {
	raw, ok := args[key]
	if !ok {
		if required {
			return "", fmt.Errorf("%w: %s is required", ErrInvalidArgument, key)
		}
		return "", nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidArgument, key)
	}
	return value, nil
}

func boolArg(args map[string]any, key string) (bool, error) {
	raw, ok := args[key]
	if !ok {
		return false, nil
	}
	value, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidArgument, key)
	}
	return value, nil
}

// intArg accepts float64 because tool arguments arrive via encoding/json.
func intArg(args map[string]any, key string) (int, bool, error) {
	raw, ok := args[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if math.Trunc(v) != v {
			return 0, true, fmt.Errorf("%w: %s must be an integer", ErrInvalidArgument, key)
		}
		return int(v), true, nil
	case int:
		return v, true, nil
	default:
		return 0, true, fmt.Errorf("%w: %s must be an integer", ErrInvalidArgument, key)
	}
}
