// Package tools is the catalog of capabilities the model may request.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/chris/whispr/internal/llm"
)

// Handler performs a tool. args have already been validated against the
// tool's schema. The returned string is shown to the model as-is.
type Handler func(ctx context.Context, args map[string]any) (string, error)

type Definition struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Handler     Handler
}

type entry struct {
	def      Definition
	resolved *jsonschema.Resolved
	params   map[string]any
}

// Registry is safe for concurrent use. Registration order is kept so the
// model always sees tools in the same order.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a tool. Names must be unique and schemas must resolve.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", def.Name)
	}
	if def.Schema == nil {
		def.Schema = obj(nil)
	}
	resolved, err := def.Schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("tool %s: resolving schema: %w", def.Name, err)
	}
	params, err := schemaMap(def.Schema)
	if err != nil {
		return fmt.Errorf("tool %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[def.Name]; ok {
		return fmt.Errorf("tool %s is already registered", def.Name)
	}
	r.entries[def.Name] = &entry{def: def, resolved: resolved, params: params}
	r.order = append(r.order, def.Name)
	return nil
}

// MustRegister is Register for static tool sets.
func (r *Registry) MustRegister(defs ...Definition) *Registry {
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) Resolve(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return e.def, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Schemas returns the tool list in the shape the model gateway sends.
func (r *Registry) Schemas() []llm.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.Tool, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		out = append(out, llm.Tool{
			Name:        name,
			Description: e.def.Description,
			Parameters:  e.params,
		})
	}
	return out
}

// Invoke validates args and runs the handler. It returns ErrUnknownTool,
// a *ValidationError or an *ExecutionError; a panicking handler is
// reported as an *ExecutionError. Invoke returns when ctx is done even if
// the handler ignores it.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := e.resolved.Validate(args); err != nil {
		return "", &ValidationError{Tool: name, Cause: err}
	}

	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		out, err := e.def.Handler(ctx, args)
		done <- outcome{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", &ExecutionError{Tool: name, Cause: res.err}
		}
		return res.out, nil
	case <-ctx.Done():
		return "", &ExecutionError{Tool: name, Cause: ctx.Err()}
	}
}

func schemaMap(s *jsonschema.Schema) (map[string]any, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}
	return m, nil
}

// Helpers for building JSON Schema objects.

func prop(typ, desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: typ, Description: desc}
}

func obj(properties map[string]*jsonschema.Schema) *jsonschema.Schema {
	if properties == nil {
		properties = map[string]*jsonschema.Schema{}
	}
	return &jsonschema.Schema{Type: "object", Properties: properties}
}

func objReq(properties map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	s := obj(properties)
	s.Required = required
	return s
}
