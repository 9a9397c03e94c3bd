package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tandemcode/tandem/internal/session"
	"github.com/tandemcode/tandem/pkg/types"
)

// CreateSessionRequest is the body of POST /session. Both fields are
// optional; the directory defaults to the server workspace.
type CreateSessionRequest struct {
	Directory string `json:"directory,omitempty"`
	Title     string `json:"title,omitempty"`
}

// ChatBody is the body of POST /session/{id}/message.
type ChatBody struct {
	ProviderID string      `json:"providerID,omitempty"`
	ModelID    string      `json:"modelID,omitempty"`
	Mode       string      `json:"mode,omitempty"`
	Parts      types.Parts `json:"parts"`
}

// listSessions handles GET /session. IDs descend, so the listing is
// newest first.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.app.Store.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*types.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// createSession handles POST /session. An empty body is accepted.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	sess, err := s.app.Store.Create(r.Context(), req.Directory)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if req.Title != "" {
		sess, err = s.app.Store.Update(r.Context(), sess.ID, func(sess *types.Session) {
			sess.Title = req.Title
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
	}

	if s.app.Config != nil && s.app.Config.Share == "auto" {
		if _, err := s.app.Store.Share(r.Context(), sess.ID); err != nil {
			writeServiceError(w, err)
			return
		}
		sess, err = s.app.Store.Get(r.Context(), sess.ID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, sess)
}

// getSession handles GET /session/{sessionID}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.app.Store.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// deleteSession handles DELETE /session/{sessionID}.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	// A live turn holds the session; stop it before removal.
	s.app.Engine.Abort(sessionID)

	if err := s.app.Store.Remove(r.Context(), sessionID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

// abortSession handles POST /session/{sessionID}/abort. Returns true
// when a turn was actually canceled.
func (s *Server) abortSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Engine.Abort(chi.URLParam(r, "sessionID")))
}

// shareSession handles POST /session/{sessionID}/share.
func (s *Server) shareSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := s.app.Store.Share(r.Context(), sessionID); err != nil {
		writeServiceError(w, err)
		return
	}
	sess, err := s.app.Store.Get(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// unshareSession handles DELETE /session/{sessionID}/share.
func (s *Server) unshareSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.app.Store.Unshare(r.Context(), sessionID); err != nil {
		writeServiceError(w, err)
		return
	}
	sess, err := s.app.Store.Get(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// listMessages handles GET /session/{sessionID}/message.
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := s.app.Store.Get(r.Context(), sessionID); err != nil {
		writeServiceError(w, err)
		return
	}
	messages, err := s.app.Store.Messages(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if messages == nil {
		messages = []*types.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// sendMessage handles POST /session/{sessionID}/message. It runs the
// whole turn and responds with the final assistant message; streaming
// consumers watch /event instead.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var body ChatBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if len(body.Parts) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "parts is required")
		return
	}

	assistant, err := s.app.Engine.Chat(r.Context(), &session.ChatRequest{
		SessionID:  chi.URLParam(r, "sessionID"),
		ProviderID: body.ProviderID,
		ModelID:    body.ModelID,
		Mode:       body.Mode,
		Parts:      body.Parts,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assistant)
}

// respondPermission handles POST /permission/{permissionID}.
func (s *Server) respondPermission(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reply string `json:"reply"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	switch body.Reply {
	case "once", "always", "reject":
	default:
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "reply must be once, always or reject")
		return
	}

	s.app.Gate.Respond(chi.URLParam(r, "permissionID"), body.Reply)
	writeJSON(w, http.StatusOK, true)
}
