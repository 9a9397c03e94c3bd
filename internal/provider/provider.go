// Package provider adapts LLM backends to a uniform typed delta
// stream. Adapters sit on eino chat models; the session engine
// consumes deltas without knowing which backend produced them.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/tandemcode/tandem/pkg/types"
)

// DeltaKind names one streaming event.
type DeltaKind string

const (
	DeltaStart         DeltaKind = "start"
	DeltaStepStart     DeltaKind = "step-start"
	DeltaText          DeltaKind = "text-delta"
	DeltaReasoning     DeltaKind = "reasoning-delta"
	DeltaToolCall      DeltaKind = "tool-call"
	DeltaToolCallDelta DeltaKind = "tool-call-delta"
	DeltaToolCallEnd   DeltaKind = "tool-call-end"
	DeltaToolResult    DeltaKind = "tool-result"
	DeltaStepFinish    DeltaKind = "step-finish"
	DeltaFinish        DeltaKind = "finish"
	DeltaError         DeltaKind = "error"
)

// Delta is one event of a streamed completion. Fields beyond Kind are
// populated per kind: Text for text/reasoning deltas, the tool-call
// fields for tool deltas, Usage and Reason for step-finish and finish.
type Delta struct {
	Kind DeltaKind

	Text string

	CallID   string
	ToolName string
	ArgsText string          // incremental argument JSON
	Args     json.RawMessage // complete arguments, tool-call-end only
	Result   string          // tool-result only

	Usage  *types.TokenUsage
	Reason types.FinishReason
	Err    error
}

// Request is one streamed completion request.
type Request struct {
	Model       string
	Messages    []*schema.Message
	Tools       []*schema.ToolInfo
	MaxTokens   int
	Temperature float64
}

// Provider is one LLM backend.
type Provider interface {
	// ID returns the provider identifier used in "provider/model"
	// selections.
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Models returns the provider's model catalog.
	Models() []types.Model

	// Stream starts a completion and returns its delta channel. The
	// channel closes after a finish or error delta.
	Stream(ctx context.Context, req *Request) (<-chan Delta, error)
}

// einoStream binds tools, opens the eino stream and pumps its chunks
// into deltas on a fresh channel.
func einoStream(ctx context.Context, cm model.ToolCallingChatModel, req *Request) (<-chan Delta, error) {
	if len(req.Tools) > 0 {
		bound, err := cm.WithTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
		cm = bound
	}

	opts := []model.Option{model.WithTemperature(float32(req.Temperature))}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}

	reader, err := cm.Stream(ctx, req.Messages, opts...)
	if err != nil {
		return nil, err
	}

	ch := make(chan Delta)
	go pump(ctx, reader, ch)
	return ch, nil
}

// pump translates eino stream chunks into deltas. Chunks carry
// incremental content; tool-call argument fragments are accumulated
// and emitted whole at tool-call-end.
func pump(ctx context.Context, reader *schema.StreamReader[*schema.Message], ch chan<- Delta) {
	defer close(ch)
	defer reader.Close()

	send := func(d Delta) bool {
		select {
		case ch <- d:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(Delta{Kind: DeltaStart}) || !send(Delta{Kind: DeltaStepStart}) {
		return
	}

	type callState struct {
		id   string
		name string
		args string
	}
	var calls []*callState
	byKey := make(map[string]*callState)

	var usage *types.TokenUsage
	finishReason := ""

	for {
		msg, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			send(Delta{Kind: DeltaError, Err: err})
			return
		}

		if msg.Content != "" {
			if !send(Delta{Kind: DeltaText, Text: msg.Content}) {
				return
			}
		}
		if msg.ReasoningContent != "" {
			if !send(Delta{Kind: DeltaReasoning, Text: msg.ReasoningContent}) {
				return
			}
		}

		for _, tc := range msg.ToolCalls {
			key := tc.ID
			if key == "" && tc.Index != nil {
				key = "#" + strconv.Itoa(*tc.Index)
			}
			cs, ok := byKey[key]
			if !ok && tc.ID != "" && tc.Index != nil {
				// Later chunks of the same call may carry only the index.
				if prev, found := byKey["#"+strconv.Itoa(*tc.Index)]; found {
					cs, ok = prev, true
				}
			}
			if !ok {
				cs = &callState{id: tc.ID, name: tc.Function.Name}
				calls = append(calls, cs)
				byKey[key] = cs
				if tc.Index != nil {
					byKey["#"+strconv.Itoa(*tc.Index)] = cs
				}
				if !send(Delta{Kind: DeltaToolCall, CallID: cs.id, ToolName: cs.name}) {
					return
				}
			}
			if cs.id == "" && tc.ID != "" {
				cs.id = tc.ID
			}
			if cs.name == "" && tc.Function.Name != "" {
				cs.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				cs.args += tc.Function.Arguments
				if !send(Delta{Kind: DeltaToolCallDelta, CallID: cs.id, ToolName: cs.name, ArgsText: tc.Function.Arguments}) {
					return
				}
			}
		}

		if msg.ResponseMeta != nil {
			if u := msg.ResponseMeta.Usage; u != nil {
				usage = &types.TokenUsage{Input: u.PromptTokens, Output: u.CompletionTokens}
			}
			if msg.ResponseMeta.FinishReason != "" {
				finishReason = msg.ResponseMeta.FinishReason
			}
		}
	}

	for _, cs := range calls {
		args := cs.args
		if args == "" {
			args = "{}"
		}
		if !send(Delta{Kind: DeltaToolCallEnd, CallID: cs.id, ToolName: cs.name, Args: json.RawMessage(args)}) {
			return
		}
	}

	reason := mapFinishReason(finishReason, len(calls) > 0)
	if !send(Delta{Kind: DeltaStepFinish, Usage: usage, Reason: reason}) {
		return
	}
	send(Delta{Kind: DeltaFinish, Usage: usage, Reason: reason})
}

// mapFinishReason folds backend-specific finish strings into the
// message model's reasons.
func mapFinishReason(s string, sawToolCalls bool) types.FinishReason {
	switch s {
	case "stop", "end_turn", "endTurn":
		if sawToolCalls {
			return types.FinishToolUse
		}
		return types.FinishEndTurn
	case "tool_calls", "tool_use", "toolUse":
		return types.FinishToolUse
	case "length", "max_tokens", "maxTokens":
		return types.FinishMaxTokens
	case "":
		if sawToolCalls {
			return types.FinishToolUse
		}
		return types.FinishEndTurn
	default:
		return types.FinishEndTurn
	}
}
