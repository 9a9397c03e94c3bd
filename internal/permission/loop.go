package permission

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// LoopThreshold is how many identical consecutive tool calls count as
// a runaway loop.
const LoopThreshold = 3

const loopHistorySize = 10

// LoopDetector flags a model that keeps issuing the same tool call
// with the same arguments, so the engine can interpose a permission
// request instead of burning tokens forever.
type LoopDetector struct {
	mu      sync.Mutex
	history map[string][]string
}

// NewLoopDetector creates an empty detector.
func NewLoopDetector() *LoopDetector {
	return &LoopDetector{history: make(map[string][]string)}
}

// Observe records a tool call and reports whether it completes a run
// of LoopThreshold identical calls.
func (d *LoopDetector) Observe(sessionID, toolName string, args any) bool {
	hash := hashCall(toolName, args)

	d.mu.Lock()
	defer d.mu.Unlock()

	history := append(d.history[sessionID], hash)
	if len(history) > loopHistorySize {
		history = history[len(history)-loopHistorySize:]
	}
	d.history[sessionID] = history

	if len(history) < LoopThreshold {
		return false
	}
	for _, h := range history[len(history)-LoopThreshold:] {
		if h != hash {
			return false
		}
	}
	return true
}

// Clear drops the call history for a session.
func (d *LoopDetector) Clear(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, sessionID)
}

func hashCall(toolName string, args any) string {
	data, _ := json.Marshal(map[string]any{"tool": toolName, "args": args})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
