package server

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tandemcode/tandem/internal/find"
)

const defaultSearchLimit = 100

// TextSearchResponse carries content search hits. Truncated reports
// that the result limit was reached.
type TextSearchResponse struct {
	Matches   []find.Match `json:"matches"`
	Truncated bool         `json:"truncated"`
}

// relativize rewrites match paths relative to the workspace root, so
// clients see the same path shape from every search endpoint.
func (s *Server) relativize(matches []find.Match) []find.Match {
	for i := range matches {
		if rel, err := filepath.Rel(s.app.WorkDir, matches[i].File); err == nil && !strings.HasPrefix(rel, "..") {
			matches[i].File = rel
		}
	}
	return matches
}

func searchLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return defaultSearchLimit
}

// findText handles GET /find?pattern=.
func (s *Server) findText(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "pattern is required")
		return
	}
	include := r.URL.Query().Get("include")

	matches, truncated, err := find.Text(r.Context(), s.app.WorkDir, pattern, include, searchLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if matches == nil {
		matches = []find.Match{}
	}
	writeJSON(w, http.StatusOK, TextSearchResponse{Matches: s.relativize(matches), Truncated: truncated})
}

// findFiles handles GET /find/file?query=.
func (s *Server) findFiles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "query is required")
		return
	}

	files, err := find.FuzzyFiles(r.Context(), s.app.WorkDir, query, searchLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, files)
}

// findSymbols handles GET /find/symbol?query=.
func (s *Server) findSymbols(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "query is required")
		return
	}

	symbols, err := find.Symbols(r.Context(), s.app.WorkDir, query, searchLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if symbols == nil {
		symbols = []find.Match{}
	}
	writeJSON(w, http.StatusOK, s.relativize(symbols))
}
