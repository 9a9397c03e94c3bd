package provider

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/tandemcode/tandem/pkg/types"
)

// Mock is the test backend. Without a script its "echo" model
// upper-cases the last user message; a script replaces that with fixed
// delta sequences, one per Stream call, which is how tool-loop and
// cancellation tests drive the engine.
type Mock struct {
	mu       sync.Mutex
	turns    [][]Delta
	next     int
	failures int
	failErr  error

	// Delay spaces out emitted deltas so tests can cancel mid-stream.
	Delay time.Duration

	// Requests records every Stream call for assertions.
	Requests []*Request
}

// NewMock creates the echo mock.
func NewMock() *Mock { return &Mock{} }

// NewScriptedMock creates a mock that plays back one delta sequence
// per Stream call, then falls back to echo.
func NewScriptedMock(turns ...[]Delta) *Mock {
	return &Mock{turns: turns}
}

// Rescript replaces the remaining script and resets playback.
func (m *Mock) Rescript(turns ...[]Delta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = turns
	m.next = 0
}

// FailFirst makes the next n Stream calls return err before any turn
// plays.
func (m *Mock) FailFirst(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	m.failErr = err
}

func (m *Mock) ID() string   { return "mock" }
func (m *Mock) Name() string { return "Mock" }

func (m *Mock) Models() []types.Model {
	return []types.Model{
		{
			ID:              "echo",
			Name:            "Echo",
			ProviderID:      "mock",
			ContextLength:   100000,
			MaxOutputTokens: 4096,
			SupportsTools:   true,
		},
	}
}

func (m *Mock) Stream(ctx context.Context, req *Request) (<-chan Delta, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	if m.failures > 0 {
		m.failures--
		err := m.failErr
		m.mu.Unlock()
		return nil, err
	}
	var deltas []Delta
	if m.next < len(m.turns) {
		deltas = m.turns[m.next]
		m.next++
	} else {
		deltas = echoDeltas(req)
	}
	delay := m.Delay
	m.mu.Unlock()

	ch := make(chan Delta)
	go func() {
		defer close(ch)
		for _, d := range deltas {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// echoDeltas renders the echo completion: the last user text,
// upper-cased, streamed as a single text delta.
func echoDeltas(req *Request) []Delta {
	text := ""
	for _, msg := range req.Messages {
		if msg.Role == schema.User {
			text = msg.Content
		}
	}
	text = strings.ToUpper(text)

	usage := &types.TokenUsage{Input: len(req.Messages), Output: len(text) / 4}
	return []Delta{
		{Kind: DeltaStart},
		{Kind: DeltaStepStart},
		{Kind: DeltaText, Text: text},
		{Kind: DeltaStepFinish, Usage: usage, Reason: types.FinishEndTurn},
		{Kind: DeltaFinish, Usage: usage, Reason: types.FinishEndTurn},
	}
}
