package provider

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"

	"github.com/tandemcode/tandem/pkg/types"
)

// ToEinoMessages renders conversation history for a backend. Assistant
// tool calls become schema tool calls; each resolved tool part also
// yields a separate tool-role message carrying its result.
func ToEinoMessages(messages []*types.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		converted, toolResults := convertMessage(msg)
		if converted != nil {
			out = append(out, converted)
		}
		out = append(out, toolResults...)
	}
	return out
}

func convertMessage(msg *types.Message) (*schema.Message, []*schema.Message) {
	role := schema.Assistant
	switch msg.Role {
	case types.RoleUser:
		role = schema.User
	case types.RoleSystem:
		role = schema.System
	case types.RoleTool:
		role = schema.Tool
	}

	var content string
	var toolCalls []schema.ToolCall
	var toolResults []*schema.Message

	for _, part := range msg.Parts {
		switch p := part.(type) {
		case *types.TextPart:
			content += p.Text
		case *types.FilePart:
			if p.Path != "" {
				content += "\n[attached file: " + p.Path + "]"
			}
		case *types.ToolPart:
			if msg.Role != types.RoleAssistant {
				continue
			}
			args, _ := json.Marshal(p.Args)
			toolCalls = append(toolCalls, schema.ToolCall{
				ID: p.ToolCallID,
				Function: schema.FunctionCall{
					Name:      p.ToolName,
					Arguments: string(args),
				},
			})
			if p.State == types.ToolStateResult {
				result := ""
				switch {
				case p.Error != nil:
					result = "Error: " + *p.Error
				case p.Result != nil:
					result = *p.Result
				}
				toolResults = append(toolResults, &schema.Message{
					Role:       schema.Tool,
					Content:    result,
					ToolCallID: p.ToolCallID,
				})
			}
		}
	}

	if content == "" && len(toolCalls) == 0 {
		return nil, toolResults
	}
	return &schema.Message{
		Role:      role,
		Content:   content,
		ToolCalls: toolCalls,
	}, toolResults
}
