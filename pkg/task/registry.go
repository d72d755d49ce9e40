// Package task registers pipeline tasks by name and runs them.
package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sandflysecurity/sandfly-entropyworker/pkg/pipeline"
)

var (
	// ErrUnknownTask is returned when dispatching a name nothing was registered under.
	ErrUnknownTask = errors.New("unknown task")
	// ErrDuplicateTask is returned when a name is registered twice.
	ErrDuplicateTask = errors.New("task already registered")
)

// ConfigOption declares a user supplied option a task understands.
type ConfigOption struct {
	Name        string `json:"name" yaml:"name"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description" yaml:"description"`
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required" yaml:"required"`
}

// Metadata describes a task to the pipeline.
type Metadata struct {
	DisplayName string         `json:"display_name" yaml:"display_name"`
	Description string         `json:"description" yaml:"description"`
	TaskConfig  []ConfigOption `json:"task_config" yaml:"task_config"`
}

// Request carries the arguments of one task invocation.
type Request struct {
	PipeResult string               `json:"pipe_result,omitempty" yaml:"pipe_result,omitempty"`
	InputFiles []pipeline.InputFile `json:"input_files,omitempty" yaml:"input_files,omitempty"`
	OutputPath string               `json:"output_path" yaml:"output_path"`
	WorkflowID string               `json:"workflow_id" yaml:"workflow_id"`
	TaskConfig map[string]any       `json:"task_config,omitempty" yaml:"task_config,omitempty"`
}

// Handler runs one invocation and returns the encoded task result.
type Handler func(ctx context.Context, req Request) (string, error)

// Entry is a registered task.
type Entry struct {
	Name     string   `json:"name"`
	Metadata Metadata `json:"metadata"`
	handler  Handler
}

// Registry maps task names to handlers.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Entry)}
}

// Register adds a task under name.
func (r *Registry) Register(name string, meta Metadata, h Handler) error {
	if name == "" || h == nil {
		return fmt.Errorf("task registration needs a name and a handler (name: %q)", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, name)
	}
	r.tasks[name] = Entry{Name: name, Metadata: meta, handler: h}
	return nil
}

// Lookup returns the task registered under name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tasks[name]
	return e, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the task registered under name.
func (r *Registry) Dispatch(ctx context.Context, name string, req Request) (string, error) {
	e, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return e.handler(ctx, req)
}
