// Package workflow provides the built-in in-process execution engine: a
// registry of step handlers and a runner that drives a job's pipeline
// through them sequentially. The runner implements exec.Engine, so
// deployments can swap it for an adapter to an external orchestrator
// without touching the submission or retry layers.
package workflow

import (
	"context"
	"sync"

	"github.com/mwerk/intake/exec"
	"github.com/mwerk/intake/pipeline"
)

// Handler executes the logic of one pipeline step.
type Handler func(ctx context.Context, in exec.Input) error

// Registry maps pipeline steps to their handlers.
// Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[pipeline.Step]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[pipeline.Step]Handler)}
}

// Register binds a handler to a step, replacing any previous binding.
func (r *Registry) Register(step pipeline.Step, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[step] = h
}

// Handler returns the handler bound to a step.
func (r *Registry) Handler(step pipeline.Step) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[step]
	return h, ok
}
