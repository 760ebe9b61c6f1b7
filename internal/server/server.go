// Package server exposes the highlight subsystem over HTTP and serves the
// tracked directory's Markdown files as rendered pages.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"mdhl/internal/hl"
)

// Server renders Markdown pages and handles the highlight API.
type Server struct {
	root    string
	ignore  map[string]bool
	service *hl.Service
	logger  hl.Logger
	md      goldmark.Markdown
	tmpl    *template.Template
}

// New creates a Server serving Markdown files under rootDir. theme names the
// chroma style used for fenced code blocks; ignore lists directory names
// excluded from the sidebar tree.
func New(rootDir, theme string, ignore []string, service *hl.Service, logger hl.Logger) (*Server, error) {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolving root directory: %w", err)
	}

	ignoreSet := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		ignoreSet[name] = true
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle(theme),
				highlighting.WithFormatOptions(chromahtml.WithClasses(false)),
			),
		),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe()),
	)

	tmpl, err := template.New("page").Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing page template: %w", err)
	}

	return &Server{
		root:    root,
		ignore:  ignoreSet,
		service: service,
		logger:  logger,
		md:      md,
		tmpl:    tmpl,
	}, nil
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /view/{path...}", s.handleView)

	mux.HandleFunc("POST /api/highlights", s.handleCreateHighlight)
	mux.HandleFunc("GET /api/highlights", s.handleListHighlights)
	mux.HandleFunc("GET /api/highlights/dir", s.handleListDirectory)
	mux.HandleFunc("DELETE /api/highlights/{id}", s.handleDeleteHighlight)
	mux.HandleFunc("POST /api/restore", s.handleRestore)
	mux.HandleFunc("POST /api/export", s.handleExport)
	mux.HandleFunc("GET /api/backups", s.handleListBackups)
	mux.HandleFunc("DELETE /api/backups", s.handleClearBackups)

	return mux
}

// resolve maps a root-relative request path onto an absolute path, rejecting
// anything that escapes the served root.
func (s *Server) resolve(rel string) (string, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(rel))
	abs = filepath.Clean(abs)
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes served root: %s", rel)
	}
	return abs, nil
}

// Page handlers

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	tree, err := s.fileTree()
	if err != nil {
		s.logger.Error("building file tree", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.renderPage(w, &pageData{Title: filepath.Base(s.root), Tree: tree})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	rel := r.PathValue("path")
	abs, err := s.resolve(rel)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	var rendered bytes.Buffer
	if err := s.md.Convert(raw, &rendered); err != nil {
		s.logger.Error("rendering markdown", "path", abs, "error", err)
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}

	// Reconciliation runs as part of the page view so the reader always sees
	// validated offsets. Failure here must not fail the render.
	highlights, err := s.service.ListByResource(abs)
	if err != nil {
		s.logger.Warn("listing highlights for page", "path", abs, "error", err)
		highlights = nil
	}

	tree, err := s.fileTree()
	if err != nil {
		s.logger.Error("building file tree", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.renderPage(w, &pageData{
		Title:      filepath.Base(abs),
		Path:       rel,
		Content:    template.HTML(rendered.String()),
		Tree:       tree,
		Highlights: highlights,
	})
}

func (s *Server) renderPage(w http.ResponseWriter, data *pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, data); err != nil {
		s.logger.Error("executing template", "error", err)
	}
}

// API handlers

type createHighlightRequest struct {
	Path       string `json:"path"` // root-relative
	Text       string `json:"text"`
	Occurrence int    `json:"occurrence"`
	Notes      string `json:"notes"`
}

func (s *Server) handleCreateHighlight(w http.ResponseWriter, r *http.Request) {
	var req createHighlightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" || req.Text == "" {
		http.Error(w, "path and text are required", http.StatusBadRequest)
		return
	}

	abs, err := s.resolve(req.Path)
	if err != nil {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	h, err := s.service.CreateHighlight(abs, req.Text, req.Occurrence, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"id":      h.ID,
		"isStale": h.IsStale,
		"start":   h.StartOffset,
		"end":     h.EndOffset,
	})
}

func (s *Server) handleListHighlights(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")
	if rel == "" {
		http.Error(w, "path query parameter is required", http.StatusBadRequest)
		return
	}
	abs, err := s.resolve(rel)
	if err != nil {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	highlights, err := s.service.ListByResource(abs)
	if err != nil {
		// Read path degrades to an empty list rather than failing the caller.
		s.logger.Warn("listing highlights", "path", abs, "error", err)
		highlights = nil
	}
	if highlights == nil {
		highlights = []*hl.Highlight{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"highlights": highlights})
}

func (s *Server) handleListDirectory(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("prefix")
	abs, err := s.resolve(rel)
	if err != nil {
		http.Error(w, "invalid prefix", http.StatusBadRequest)
		return
	}

	rows, err := s.service.ListByDirectory(abs)
	if err != nil {
		s.logger.Warn("listing directory highlights", "prefix", abs, "error", err)
		rows = nil
	}
	if rows == nil {
		rows = []*hl.HighlightWithResource{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"highlights": rows})
}

func (s *Server) handleDeleteHighlight(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteHighlight(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type restoreRequest struct {
	Path        string `json:"path"`
	Timestamped bool   `json:"timestamped"`
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	abs, err := s.resolve(req.Path)
	if err != nil {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	restoredPath, err := s.service.RestoreResource(abs, req.Timestamped)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"restoredPath": restoredPath})
}

type exportRequest struct {
	Prefix string `json:"prefix"`
	Label  string `json:"label"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	abs, err := s.resolve(req.Prefix)
	if err != nil {
		http.Error(w, "invalid prefix", http.StatusBadRequest)
		return
	}
	label := req.Label
	if label == "" {
		label = filepath.Base(abs)
	}

	result, err := s.service.Export(abs, label)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"filePath": result.Path,
		"filename": result.Filename,
		"count":    result.Count,
	})
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	infos, err := s.service.ListBackups()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if infos == nil {
		infos = []*hl.BackupInfo{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"backups": infos})
}

func (s *Server) handleClearBackups(w http.ResponseWriter, r *http.Request) {
	count, bytes, err := s.service.ClearBackups()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"count": count, "bytesFreed": bytes})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

// writeError maps write-path errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, hl.ErrNotFound), errors.Is(err, hl.ErrNoBackup), errors.Is(err, hl.ErrBackupMissing):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		s.logger.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
