package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tandemcode/tandem/internal/storage"
	"github.com/tandemcode/tandem/pkg/types"
)

const todoreadDescription = `Use this tool to read your todo list`

// TodoReadTool reads the session's task list.
type TodoReadTool struct {
	storage *storage.Storage
}

// NewTodoReadTool creates the todoread tool.
func NewTodoReadTool(store *storage.Storage) *TodoReadTool {
	return &TodoReadTool{storage: store}
}

func (t *TodoReadTool) ID() string          { return "todoread" }
func (t *TodoReadTool) Description() string { return todoreadDescription }

func (t *TodoReadTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {}
	}`)
}

func (t *TodoReadTool) Execute(ctx context.Context, input json.RawMessage, tc *Context) (*Result, error) {
	var todos []types.TodoInfo
	err := t.storage.Get(ctx, []string{"todo", tc.SessionID}, &todos)
	if errors.Is(err, storage.ErrNotFound) {
		todos = []types.TodoInfo{}
	} else if err != nil {
		return nil, Transient(fmt.Errorf("get todos: %w", err))
	}

	remaining := 0
	for _, todo := range todos {
		if todo.Status != types.TodoCompleted {
			remaining++
		}
	}

	output, _ := json.MarshalIndent(todos, "", "  ")
	return &Result{
		Title:  fmt.Sprintf("%d todos", remaining),
		Output: string(output),
		Metadata: map[string]any{
			"todos": todos,
		},
	}, nil
}
