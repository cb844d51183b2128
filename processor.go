package exq

import (
	"context"
	"fmt"
	"sync"
)

// Processor invokes a job's handler for a registered class.
type Processor func(ctx context.Context, args []interface{}) error

// registry is the external handler-registry collaborator (spec.md §6):
// a lookup from class name to an invocable.
type registry struct {
	mu sync.RWMutex
	m  map[string]Processor
}

func newRegistry() *registry {
	return &registry{m: make(map[string]Processor)}
}

// register adds a processor for class. It is an error to register the
// same class twice.
func (r *registry) register(class string, p Processor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.m[class]; found {
		return fmt.Errorf("exq: class %s already registered", class)
	}
	r.m[class] = p
	return nil
}

// lookup resolves class to a Processor, or reports not found.
func (r *registry) lookup(class string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, found := r.m[class]
	return p, found
}
