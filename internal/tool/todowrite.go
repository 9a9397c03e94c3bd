package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tandemcode/tandem/internal/bus"
	"github.com/tandemcode/tandem/internal/storage"
	"github.com/tandemcode/tandem/pkg/types"
)

const todowriteDescription = `Use this tool to create and manage a structured task list for your current coding session.

## When to Use This Tool
1. Complex multi-step tasks - When a task requires 3 or more distinct steps
2. Non-trivial tasks that require careful planning
3. User explicitly requests a todo list
4. User provides multiple tasks (numbered or comma-separated)
5. After receiving new instructions - capture requirements as todos
6. When you start working on a task - mark it in_progress BEFORE beginning
7. After completing a task - mark it completed immediately

## When NOT to Use This Tool
1. There is only a single, straightforward task
2. The task is trivial and tracking it provides no benefit
3. The task is purely conversational or informational

## Task States
- pending: not yet started
- in_progress: currently working on (limit to ONE at a time)
- completed: finished successfully

Each write replaces the whole list; remove entries that are no longer relevant.`

// TodoWriteTool replaces the session's task list.
type TodoWriteTool struct {
	storage *storage.Storage
}

// TodoWriteInput is the todowrite tool's argument object.
type TodoWriteInput struct {
	Todos []types.TodoInfo `json:"todos"`
}

// NewTodoWriteTool creates the todowrite tool.
func NewTodoWriteTool(store *storage.Storage) *TodoWriteTool {
	return &TodoWriteTool{storage: store}
}

func (t *TodoWriteTool) ID() string          { return "todowrite" }
func (t *TodoWriteTool) Description() string { return todowriteDescription }

func (t *TodoWriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"todos": {
				"type": "array",
				"description": "The updated todo list",
				"items": {
					"type": "object",
					"properties": {
						"id": {
							"type": "string",
							"description": "Unique identifier for the todo item"
						},
						"content": {
							"type": "string",
							"description": "Brief description of the task"
						},
						"status": {
							"type": "string",
							"description": "Current status of the task: pending, in_progress, completed"
						},
						"priority": {
							"type": "string",
							"description": "Priority level of the task: high, medium, low"
						}
					},
					"required": ["id", "content", "status", "priority"]
				}
			}
		},
		"required": ["todos"]
	}`)
}

func (t *TodoWriteTool) Execute(ctx context.Context, input json.RawMessage, tc *Context) (*Result, error) {
	var params TodoWriteInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, Userf("invalid input: %v", err)
	}

	if err := t.storage.Put(ctx, []string{"todo", tc.SessionID}, params.Todos); err != nil {
		return nil, Transient(fmt.Errorf("update todos: %w", err))
	}

	if tc.Bus != nil {
		tc.Bus.Publish(bus.Event{
			Type: bus.TodoUpdated,
			Data: bus.TodoUpdatedData{SessionID: tc.SessionID, Todos: params.Todos},
		})
	}

	remaining := 0
	for _, todo := range params.Todos {
		if todo.Status != types.TodoCompleted {
			remaining++
		}
	}

	output, _ := json.MarshalIndent(params.Todos, "", "  ")
	return &Result{
		Title:  fmt.Sprintf("%d todos", remaining),
		Output: string(output),
		Metadata: map[string]any{
			"todos": params.Todos,
		},
	}, nil
}
