package types

import "strings"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FinishReason records why an assistant turn ended.
type FinishReason string

const (
	FinishEndTurn          FinishReason = "endTurn"
	FinishMaxTokens        FinishReason = "maxTokens"
	FinishToolUse          FinishReason = "toolUse"
	FinishCanceled         FinishReason = "canceled"
	FinishError            FinishReason = "error"
	FinishPermissionDenied FinishReason = "permissionDenied"
)

// Message is one conversation entry. IDs ascend, so messages of a
// session sort in turn order.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID"`
	Role      Role           `json:"role"`
	Parts     Parts          `json:"parts"`
	Time      MessageTime    `json:"time"`
	Assistant *AssistantMeta `json:"assistant,omitempty"`
}

// MessageTime carries message timestamps in unix milliseconds. A
// message without Completed was interrupted mid-turn.
type MessageTime struct {
	Created   int64  `json:"created"`
	Completed *int64 `json:"completed,omitempty"`
}

// AssistantMeta holds per-turn accounting for assistant messages.
// Tool keys metadata records by toolCallID.
type AssistantMeta struct {
	ProviderID   string                    `json:"providerID"`
	ModelID      string                    `json:"modelID"`
	Tokens       TokenUsage                `json:"tokens"`
	Cost         float64                   `json:"cost"`
	FinishReason FinishReason              `json:"finishReason,omitempty"`
	Error        *MessageError             `json:"error,omitempty"`
	Tool         map[string]map[string]any `json:"tool,omitempty"`
}

// TokenUsage counts tokens for one assistant turn.
type TokenUsage struct {
	Input     int `json:"input"`
	Output    int `json:"output"`
	Reasoning int `json:"reasoning"`
	Cached    int `json:"cached"`
}

// Add accumulates usage across provider steps.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Input += other.Input
	u.Output += other.Output
	u.Reasoning += other.Reasoning
	u.Cached += other.Cached
}

// MessageError is a structured turn error.
type MessageError struct {
	Name       string `json:"name"`
	Message    string `json:"message"`
	ProviderID string `json:"providerID,omitempty"`
}

// NewUnknownError wraps an unclassified failure.
func NewUnknownError(message string) *MessageError {
	return &MessageError{Name: "UnknownError", Message: message}
}

// NewProviderAuthError marks a failed provider authentication.
func NewProviderAuthError(providerID, message string) *MessageError {
	return &MessageError{Name: "ProviderAuthError", Message: message, ProviderID: providerID}
}

// NewOutputLengthError marks a turn that hit the output token limit.
func NewOutputLengthError() *MessageError {
	return &MessageError{Name: "MessageOutputLengthError", Message: "model output exceeded the maximum length"}
}

// AppendText coalesces a streaming delta into the trailing text part,
// starting a new part when the sequence ends in anything else (a step
// boundary, a tool call).
func (m *Message) AppendText(delta string) {
	if delta == "" {
		return
	}
	if n := len(m.Parts); n > 0 {
		if tp, ok := m.Parts[n-1].(*TextPart); ok {
			tp.Text += delta
			return
		}
	}
	m.Parts = append(m.Parts, &TextPart{Text: delta})
}

// AppendReasoning coalesces a reasoning delta the same way AppendText
// coalesces text.
func (m *Message) AppendReasoning(delta string) {
	if delta == "" {
		return
	}
	if n := len(m.Parts); n > 0 {
		if rp, ok := m.Parts[n-1].(*ReasoningPart); ok {
			rp.Text += delta
			return
		}
	}
	m.Parts = append(m.Parts, &ReasoningPart{Text: delta})
}

// StartStep appends a step boundary, forcing the next delta into a
// fresh part.
func (m *Message) StartStep() {
	m.Parts = append(m.Parts, &StepStartPart{})
}

// FinishStep appends a step-finish marker.
func (m *Message) FinishStep(reason string, usage *TokenUsage) {
	m.Parts = append(m.Parts, &StepFinishPart{Reason: reason, Usage: usage})
}

// AddToolCall appends a tool-invocation part in the call state.
func (m *Message) AddToolCall(toolCallID, toolName string, args map[string]any) *ToolPart {
	p := &ToolPart{ToolCallID: toolCallID, ToolName: toolName, Args: args, State: ToolStateCall}
	m.Parts = append(m.Parts, p)
	return p
}

// AttachToolResult locates the pending call with the given ID and
// flips it into the result state. It reports whether a matching call
// was found.
func (m *Message) AttachToolResult(toolCallID, result string) bool {
	if tp := m.findCall(toolCallID); tp != nil {
		tp.State = ToolStateResult
		tp.Result = &result
		return true
	}
	return false
}

// AttachToolError resolves the pending call with an error instead of a
// result.
func (m *Message) AttachToolError(toolCallID, errMsg string) bool {
	if tp := m.findCall(toolCallID); tp != nil {
		tp.State = ToolStateResult
		tp.Error = &errMsg
		return true
	}
	return false
}

func (m *Message) findCall(toolCallID string) *ToolPart {
	for _, p := range m.Parts {
		if tp, ok := p.(*ToolPart); ok && tp.ToolCallID == toolCallID && tp.State == ToolStateCall {
			return tp
		}
	}
	return nil
}

// Finalize stamps the completion time and finish reason. For
// non-assistant messages only the timestamp is set.
func (m *Message) Finalize(reason FinishReason, now int64) {
	m.Time.Completed = &now
	if m.Role != RoleAssistant {
		return
	}
	if m.Assistant == nil {
		m.Assistant = &AssistantMeta{}
	}
	m.Assistant.FinishReason = reason
}

// Completed reports whether the message was finalized.
func (m *Message) Completed() bool {
	return m.Time.Completed != nil
}

// TextContent concatenates the message's text parts.
func (m *Message) TextContent() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if tp, ok := p.(*TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// ToolMetadata records tool execution metadata under the call's ID.
func (m *Message) ToolMetadata(toolCallID string, meta map[string]any) {
	if len(meta) == 0 {
		return
	}
	if m.Assistant == nil {
		m.Assistant = &AssistantMeta{}
	}
	if m.Assistant.Tool == nil {
		m.Assistant.Tool = make(map[string]map[string]any)
	}
	existing := m.Assistant.Tool[toolCallID]
	if existing == nil {
		existing = make(map[string]any, len(meta))
		m.Assistant.Tool[toolCallID] = existing
	}
	for k, v := range meta {
		existing[k] = v
	}
}
