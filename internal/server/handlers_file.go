package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/tandemcode/tandem/internal/vcs"
)

// FileContent is the body of GET /file. Type is "raw" for plain file
// content and "patch" when the file has uncommitted changes, in which
// case Content is the unified diff against HEAD.
type FileContent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// resolvePath turns a request path into an absolute path inside the
// workspace. Escapes of the workspace root are rejected.
func (s *Server) resolvePath(raw string) (string, bool) {
	p := raw
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.app.WorkDir, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(s.app.WorkDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return p, true
}

// readFile handles GET /file?path=.
func (s *Server) readFile(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "path is required")
		return
	}
	path, ok := s.resolvePath(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "path is outside the workspace")
		return
	}

	// A modified tracked file is framed as its diff against HEAD.
	if vcs.IsRepo(s.app.WorkDir) {
		rel, err := filepath.Rel(s.app.WorkDir, path)
		if err == nil {
			if diff, err := vcs.Diff(r.Context(), s.app.WorkDir, rel); err == nil && diff != "" {
				writeJSON(w, http.StatusOK, FileContent{Type: "patch", Content: diff})
				return
			}
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "file not found: "+raw)
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FileContent{Type: "raw", Content: string(content)})
}

// fileStatus handles GET /file/status.
func (s *Server) fileStatus(w http.ResponseWriter, r *http.Request) {
	if !vcs.IsRepo(s.app.WorkDir) {
		writeJSON(w, http.StatusOK, []vcs.FileStatus{})
		return
	}
	files, err := vcs.Status(r.Context(), s.app.WorkDir)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if files == nil {
		files = []vcs.FileStatus{}
	}
	writeJSON(w, http.StatusOK, files)
}
