package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Descriptor is a tool's catalog entry: its name, description, and
// parameter schema, as presented to the decision engine.
type Descriptor struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Registry holds registered tools. It is instance-based (not global) for
// better testability.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry. It returns ErrEmptyToolName or
// ErrDuplicateTool on invalid registrations.
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return ErrEmptyToolName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get returns the tool with the given name, or ErrToolNotFound.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns all registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Descriptors returns catalog entries in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, Descriptor{
			Name:        name,
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	return out
}

// Catalog renders the registered tools as a numbered text block for the
// decision prompt: name, description, and indented parameter schema.
func (r *Registry) Catalog() string {
	descriptors := r.Descriptors()
	if len(descriptors) == 0 {
		return "No tools available."
	}

	var b strings.Builder
	b.WriteString("Available Tools:")
	for i, d := range descriptors {
		schema := renderSchema(d.Schema)
		fmt.Fprintf(&b, "\n%d. Name: %s\n   Description: %s\n   Input Schema: %s",
			i+1, d.Name, d.Description, schema)
	}
	return b.String()
}

func renderSchema(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "   ", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}
