package server

import (
	"net/http"
	"os"

	"github.com/tandemcode/tandem/internal/vcs"
)

// AppInfo describes the running instance.
type AppInfo struct {
	Version string `json:"version"`
	Cwd     string `json:"cwd"`
	Root    string `json:"root"`
	Git     bool   `json:"git"`
	Branch  string `json:"branch,omitempty"`
}

// getApp handles GET /app.
func (s *Server) getApp(w http.ResponseWriter, r *http.Request) {
	cwd, _ := os.Getwd()

	info := AppInfo{
		Version: Version,
		Cwd:     cwd,
		Root:    s.app.WorkDir,
	}
	if vcs.IsRepo(s.app.WorkDir) {
		info.Git = true
		info.Branch = vcs.Branch(s.app.WorkDir)
	}

	writeJSON(w, http.StatusOK, info)
}
