// Package permission gates mutating tool calls behind client
// approval, delivered over the event bus.
package permission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tandemcode/tandem/internal/bus"
	"github.com/tandemcode/tandem/internal/id"
)

// Replies a client may send to a pending request.
const (
	ReplyOnce   = "once"
	ReplyAlways = "always"
	ReplyReject = "reject"
)

// Request describes one gated action.
type Request struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID"`
	Tool      string         `json:"tool"`
	Action    string         `json:"action"` // "edit" | "bash" | "webfetch" | ...
	Patterns  []string       `json:"patterns,omitempty"`
	Title     string         `json:"title"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// DeniedError is returned when a request is rejected.
type DeniedError struct {
	SessionID string
	Tool      string
	Message   string
}

func (e *DeniedError) Error() string { return e.Message }

// IsDenied reports whether err is a permission rejection.
func IsDenied(err error) bool {
	var de *DeniedError
	return errors.As(err, &de)
}

// approval records one "always" grant: tool + action + path prefix.
type approval struct {
	tool   string
	action string
	prefix string
}

// Gate tracks per-session approvals and pending requests. Require
// blocks the calling turn until the client replies or the turn is
// canceled.
type Gate struct {
	bus *bus.Bus

	mu          sync.Mutex
	autoApprove map[string]bool
	approvals   map[string][]approval
	pending     map[string]chan string
}

// NewGate creates a gate publishing on b.
func NewGate(b *bus.Bus) *Gate {
	return &Gate{
		bus:         b,
		autoApprove: make(map[string]bool),
		approvals:   make(map[string][]approval),
		pending:     make(map[string]chan string),
	}
}

// SetAutoApprove toggles auto-approval for a session. While set,
// Require returns immediately.
func (g *Gate) SetAutoApprove(sessionID string, on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if on {
		g.autoApprove[sessionID] = true
	} else {
		delete(g.autoApprove, sessionID)
	}
}

// Require returns once the request is approved. It consults
// auto-approve and prior "always" grants first; otherwise it publishes
// permission.requested and waits for the client's reply or ctx
// cancellation.
func (g *Gate) Require(ctx context.Context, req Request) error {
	g.mu.Lock()
	if g.autoApprove[req.SessionID] || g.covered(req) {
		g.mu.Unlock()
		return nil
	}
	if req.ID == "" {
		req.ID = id.New(id.Permission)
	}
	ch := make(chan string, 1)
	g.pending[req.ID] = ch
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.pending, req.ID)
		g.mu.Unlock()
	}()

	g.bus.Publish(bus.Event{
		Type: bus.PermissionRequested,
		Data: bus.PermissionRequestedData{
			ID:        req.ID,
			SessionID: req.SessionID,
			Tool:      req.Tool,
			Action:    req.Action,
			Patterns:  req.Patterns,
			Title:     req.Title,
		},
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case reply := <-ch:
		switch reply {
		case ReplyAlways:
			g.remember(req)
			return nil
		case ReplyOnce:
			return nil
		default:
			return &DeniedError{
				SessionID: req.SessionID,
				Tool:      req.Tool,
				Message:   fmt.Sprintf("permission to run %s was rejected", req.Tool),
			}
		}
	}
}

// Respond resolves a pending request. Unknown IDs are ignored, so a
// client replying to an already-canceled turn is harmless.
func (g *Gate) Respond(requestID, reply string) {
	g.mu.Lock()
	ch, ok := g.pending[requestID]
	g.mu.Unlock()
	if !ok {
		return
	}

	select {
	case ch <- reply:
	default:
	}

	typ := bus.PermissionGranted
	if reply == ReplyReject {
		typ = bus.PermissionDenied
	}
	g.bus.Publish(bus.Event{
		Type: typ,
		Data: bus.PermissionRepliedData{ID: requestID, Reply: reply},
	})
}

// Pending lists the IDs of requests still awaiting a reply.
func (g *Gate) Pending() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.pending))
	for reqID := range g.pending {
		ids = append(ids, reqID)
	}
	return ids
}

// ClearSession drops every grant and auto-approve flag for a session.
func (g *Gate) ClearSession(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.autoApprove, sessionID)
	delete(g.approvals, sessionID)
}

// covered reports whether a prior "always" grant matches the request:
// same tool and action, and every requested pattern under an approved
// prefix. Caller holds g.mu.
func (g *Gate) covered(req Request) bool {
	grants := g.approvals[req.SessionID]
	if len(grants) == 0 {
		return false
	}
	if len(req.Patterns) == 0 {
		for _, a := range grants {
			if a.tool == req.Tool && a.action == req.Action && a.prefix == "" {
				return true
			}
		}
		return false
	}
	for _, pattern := range req.Patterns {
		matched := false
		for _, a := range grants {
			if a.tool == req.Tool && a.action == req.Action && strings.HasPrefix(pattern, a.prefix) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func (g *Gate) remember(req Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(req.Patterns) == 0 {
		g.approvals[req.SessionID] = append(g.approvals[req.SessionID], approval{tool: req.Tool, action: req.Action})
		return
	}
	for _, p := range req.Patterns {
		g.approvals[req.SessionID] = append(g.approvals[req.SessionID], approval{tool: req.Tool, action: req.Action, prefix: p})
	}
}
