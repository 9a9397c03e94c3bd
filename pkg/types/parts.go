package types

import (
	"encoding/json"
	"fmt"
)

// Part kind tags as they appear on the wire and on disk.
const (
	PartText       = "text"
	PartReasoning  = "reasoning"
	PartStepStart  = "step-start"
	PartStepFinish = "step-finish"
	PartTool       = "tool-invocation"
	PartFile       = "file-attachment"
)

// Tool invocation states.
const (
	ToolStateCall   = "call"
	ToolStateResult = "result"
)

// Part is one unit of message content. Parts serialize as a
// {type, data} envelope; kinds this build does not know survive a
// round trip as OpaquePart.
type Part interface {
	Kind() string
}

// TextPart holds visible assistant or user text. Streaming deltas are
// coalesced into the active text part until a step boundary starts a
// new one.
type TextPart struct {
	Text string `json:"text"`
}

func (p *TextPart) Kind() string { return PartText }

// ReasoningPart holds extended-thinking text.
type ReasoningPart struct {
	Text string `json:"text"`
}

func (p *ReasoningPart) Kind() string { return PartReasoning }

// StepStartPart marks the beginning of one provider step.
type StepStartPart struct{}

func (p *StepStartPart) Kind() string { return PartStepStart }

// StepFinishPart marks the end of one provider step.
type StepFinishPart struct {
	Reason string      `json:"reason,omitempty"`
	Usage  *TokenUsage `json:"usage,omitempty"`
}

func (p *StepFinishPart) Kind() string { return PartStepFinish }

// ToolPart records a tool call and, once attached, its result. A part
// in state "result" always carries the toolCallID of the originating
// call.
type ToolPart struct {
	ToolCallID string         `json:"toolCallID"`
	ToolName   string         `json:"toolName"`
	Args       map[string]any `json:"args,omitempty"`
	State      string         `json:"state"`
	Result     *string        `json:"result,omitempty"`
	Error      *string        `json:"error,omitempty"`
}

func (p *ToolPart) Kind() string { return PartTool }

// FilePart is a file attachment, either inline or by URL.
type FilePart struct {
	Path string `json:"path"`
	Mime string `json:"mime"`
	URL  string `json:"url,omitempty"`
	Data []byte `json:"data,omitempty"`
}

func (p *FilePart) Kind() string { return PartFile }

// OpaquePart preserves a part whose kind this build does not
// recognize. The raw payload is written back untouched.
type OpaquePart struct {
	Type string
	Raw  json.RawMessage
}

func (p *OpaquePart) Kind() string { return p.Type }

// partEnvelope is the on-disk and on-wire shape of every part.
type partEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalPart wraps a part in its {type, data} envelope.
func MarshalPart(p Part) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if op, ok := p.(*OpaquePart); ok {
		data = op.Raw
	} else {
		data, err = json.Marshal(p)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(partEnvelope{Type: p.Kind(), Data: data})
}

// UnmarshalPart decodes one {type, data} envelope. Unknown kinds come
// back as *OpaquePart.
func UnmarshalPart(b []byte) (Part, error) {
	var env partEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode part envelope: %w", err)
	}

	var p Part
	switch env.Type {
	case PartText:
		p = &TextPart{}
	case PartReasoning:
		p = &ReasoningPart{}
	case PartStepStart:
		p = &StepStartPart{}
	case PartStepFinish:
		p = &StepFinishPart{}
	case PartTool:
		p = &ToolPart{}
	case PartFile:
		p = &FilePart{}
	default:
		return &OpaquePart{Type: env.Type, Raw: env.Data}, nil
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, p); err != nil {
			return nil, fmt.Errorf("decode %s part: %w", env.Type, err)
		}
	}
	return p, nil
}

// Parts is an ordered part sequence. It serializes as an array of
// envelopes.
type Parts []Part

func (ps Parts) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, len(ps))
	for i, p := range ps {
		b, err := MarshalPart(p)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return json.Marshal(out)
}

func (ps *Parts) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parts := make(Parts, 0, len(raw))
	for _, r := range raw {
		p, err := UnmarshalPart(r)
		if err != nil {
			return err
		}
		parts = append(parts, p)
	}
	*ps = parts
	return nil
}
