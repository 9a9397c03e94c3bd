package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	einoschema "github.com/cloudwego/eino/schema"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/internal/storage"
)

// Registry holds the tools available to a turn and validates calls
// against each tool's schema before execution.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	workDir string
	storage *storage.Storage
}

// NewRegistry creates an empty registry rooted at workDir.
func NewRegistry(workDir string, store *storage.Storage) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
		workDir: workDir,
		storage: store,
	}
}

// Default builds the registry with every built-in tool.
func Default(workDir string, store *storage.Storage) *Registry {
	r := NewRegistry(workDir, store)
	for _, t := range []Tool{
		NewReadTool(workDir),
		NewWriteTool(workDir),
		NewEditTool(workDir),
		NewBashTool(workDir),
		NewGlobTool(workDir),
		NewGrepTool(workDir),
		NewListTool(workDir),
		NewWebFetchTool(),
		NewTodoWriteTool(store),
		NewTodoReadTool(store),
	} {
		if err := r.Register(t); err != nil {
			logging.Error().Err(err).Str("tool", t.ID()).Msg("tool registration failed")
		}
	}
	return r
}

// Register adds a tool, compiling its parameter schema.
func (r *Registry) Register(t Tool) error {
	compiler := jsonschema.NewCompiler()
	url := "tandem://tool/" + t.ID()
	if err := compiler.AddResource(url, bytes.NewReader(t.Parameters())); err != nil {
		return fmt.Errorf("load schema for %s: %w", t.ID(), err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", t.ID(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.ID()] = t
	r.schemas[t.ID()] = compiled
	return nil
}

// Get retrieves a tool by ID.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// IDs returns the registered tool names in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// View returns a registry restricted to the enabled set. A tool
// missing from the map keeps its default of enabled; an explicit false
// removes it.
func (r *Registry) View(enabled map[string]bool) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	view := &Registry{
		tools:   make(map[string]Tool, len(r.tools)),
		schemas: make(map[string]*jsonschema.Schema, len(r.schemas)),
		workDir: r.workDir,
		storage: r.storage,
	}
	for id, t := range r.tools {
		if on, ok := enabled[id]; ok && !on {
			continue
		}
		view.tools[id] = t
		view.schemas[id] = r.schemas[id]
	}
	return view
}

// Validate checks raw arguments against the tool's schema and returns
// the canonical argument object.
func (r *Registry) Validate(name string, raw json.RawMessage) (map[string]any, error) {
	r.mu.RLock()
	compiled, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &SchemaError{Tool: name, Detail: "unknown tool"}
	}

	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, &SchemaError{Tool: name, Detail: err.Error()}
	}
	if err := compiled.Validate(value); err != nil {
		return nil, &SchemaError{Tool: name, Detail: err.Error()}
	}

	args, ok := value.(map[string]any)
	if !ok {
		return nil, &SchemaError{Tool: name, Detail: "arguments must be an object"}
	}
	return args, nil
}

// Invoke executes a tool with already-validated arguments. Errors come
// back classified; cancellation is passed through untouched.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any, tc *Context) (*Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, Userf("unknown tool %q", name)
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return nil, Fatal(fmt.Errorf("encode arguments for %s: %w", name, err))
	}

	result, err := t.Execute(ctx, raw, tc)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return result, nil
}

// Infos renders every registered tool for the provider layer, sorted
// by name for a stable prompt.
func (r *Registry) Infos() []*einoschema.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	infos := make([]*einoschema.ToolInfo, 0, len(ids))
	for _, id := range ids {
		infos = append(infos, Info(r.tools[id]))
	}
	return infos
}
