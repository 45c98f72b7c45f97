// Package toolsupervisor implements the Tool Run Supervisor: a pluggable
// Adapter registry, the async QUEUED->RUNNING->(SUCCEEDED|FAILED) subprocess
// lifecycle, artifact capture, marker extraction, and completion callbacks.
// Grounded on the teacher's internal/infra/coding Adapter/AdapterRegistry
// shape and internal/devops/process.Manager's process-group discipline.
package toolsupervisor

import (
	"context"
	"fmt"
	"sort"
)

// Command is what an Adapter resolves a tool-run's input into: either an
// argv to execute, or a startup rejection. The two are mutually exclusive,
// per spec.md §9's "tagged result type" design note.
type Command struct {
	Argv         []string
	Env          []string
	StartupError string
}

// Adapter translates a tool-run's JSON input into a Command, or rejects the
// input with an error. On the async path the run is already registered
// when Resolve is called, so a Resolve error becomes that run's startup
// error; on the sync path RunSync returns it to the caller.
type Adapter interface {
	// Name is the tool_name this adapter answers to.
	Name() string
	// Version reports the adapter's (or underlying tool's) version string.
	// The supervisor does not call it or record it on a run.
	Version() string
	// Resolve validates input and returns the Command to execute, or an
	// error for malformed input.
	Resolve(ctx context.Context, input map[string]any) (Command, error)
	// PostProcess inspects a completed run's captured stdout and returns
	// any extracted markers (e.g. branch/commit_hash for git-autocommit).
	// Adapters with no markers return a nil map.
	PostProcess(stdout string, exitCode int) map[string]string
}

// Registry maps tool_name to its Adapter.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a Registry from a fixed adapter set.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Resolve returns the adapter for toolName, or a BadRequest-shaped error
// listing the allowed names (scenario 6: unknown tool).
func (r *Registry) Resolve(toolName string) (Adapter, error) {
	a, ok := r.adapters[toolName]
	if !ok {
		return nil, fmt.Errorf("tool %q not allowed, allowed tools: %v", toolName, r.Names())
	}
	return a, nil
}

// Names returns every registered tool_name, stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
