// Package tool provides the framework the session engine dispatches
// model tool calls through, plus the built-in tool set.
package tool

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/eino/schema"

	"github.com/tandemcode/tandem/internal/bus"
	"github.com/tandemcode/tandem/internal/filetime"
	"github.com/tandemcode/tandem/internal/permission"
)

// Tool is one callable tool.
type Tool interface {
	// ID returns the stable tool name the model calls.
	ID() string

	// Description returns the prompt-facing description.
	Description() string

	// Parameters returns the JSON Schema for the tool's arguments.
	Parameters() json.RawMessage

	// Execute runs the tool. input is the validated argument object.
	Execute(ctx context.Context, input json.RawMessage, tc *Context) (*Result, error)
}

// Context carries per-call state into a tool execution.
type Context struct {
	SessionID string
	MessageID string
	CallID    string
	Mode      string
	WorkDir   string

	// Abort is closed when the turn is canceled. Long-running tools
	// poll it between units of work; ctx cancellation covers the rest.
	Abort <-chan struct{}

	// Files is the read-before-write guard shared with the engine.
	Files *filetime.Tracker

	// Gate approves mutating operations before side effects.
	Gate *permission.Gate

	// Bus, when set, receives file.edited announcements.
	Bus *bus.Bus

	// OnMetadata streams execution metadata toward the assistant
	// message while the tool runs.
	OnMetadata func(meta map[string]any)
}

// Meta pushes metadata to the sink, if one is attached.
func (c *Context) Meta(meta map[string]any) {
	if c != nil && c.OnMetadata != nil {
		c.OnMetadata(meta)
	}
}

// Aborted reports whether the turn has been canceled.
func (c *Context) Aborted() bool {
	if c == nil || c.Abort == nil {
		return false
	}
	select {
	case <-c.Abort:
		return true
	default:
		return false
	}
}

// Dir returns the effective working directory for the call.
func (c *Context) Dir(fallback string) string {
	if c != nil && c.WorkDir != "" {
		return c.WorkDir
	}
	return fallback
}

func (c *Context) fileEdited(path string) {
	if c == nil || c.Bus == nil {
		return
	}
	c.Bus.Publish(bus.Event{Type: bus.FileEdited, Data: bus.FileEditedData{File: path}})
}

// Result is a successful tool execution.
type Result struct {
	Title       string         `json:"title"`
	Output      string         `json:"output"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
}

// Attachment is a file the tool hands back alongside its text output.
type Attachment struct {
	Filename  string `json:"filename"`
	MediaType string `json:"mediaType"`
	URL       string `json:"url"`
}

// Info renders a tool as the schema the provider layer feeds to the
// model.
func Info(t Tool) *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        t.ID(),
		Desc:        t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(schemaToParams(t.Parameters())),
	}
}

// schemaToParams converts a JSON Schema object into eino parameter
// infos. Nested schemas flatten to their top-level type.
func schemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var parsed struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schemaJSON, &parsed); err != nil {
		return nil
	}

	required := make(map[string]bool, len(parsed.Required))
	for _, r := range parsed.Required {
		required[r] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(parsed.Properties))
	for name, prop := range parsed.Properties {
		typ := schema.String
		switch prop.Type {
		case "integer":
			typ = schema.Integer
		case "number":
			typ = schema.Number
		case "boolean":
			typ = schema.Boolean
		case "array":
			typ = schema.Array
		case "object":
			typ = schema.Object
		}
		params[name] = &schema.ParameterInfo{Type: typ, Desc: prop.Description, Required: required[name]}
	}
	return params
}
