// Package constraint wraps an injected expression engine for evaluating
// FHIRInvariant-style constraint expressions (C8). The default engine is
// backed by github.com/gofhir/fhirpath; when none is configured, evaluation
// is skipped and a single ConstraintsSkipped issue is emitted per run.
package constraint

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofhir/fhirpath"
)

// Engine evaluates one boolean expression against a JSON value. Truthy
// coercion follows FHIRPath's three-valued logic: an empty collection is
// false for constraint purposes.
type Engine interface {
	Evaluate(ctx context.Context, expression string, value []byte) (bool, error)
}

// FHIRPathEngine adapts github.com/gofhir/fhirpath, caching compiled
// expressions since the same constraint key is evaluated once per element
// occurrence across many validated instances.
type FHIRPathEngine struct {
	mu    sync.RWMutex
	cache map[string]*fhirpath.Expression
}

// NewFHIRPathEngine constructs the default engine.
func NewFHIRPathEngine() *FHIRPathEngine {
	return &FHIRPathEngine{cache: make(map[string]*fhirpath.Expression)}
}

// Evaluate compiles (or reuses) expression and runs it against value.
func (e *FHIRPathEngine) Evaluate(_ context.Context, expression string, value []byte) (bool, error) {
	compiled, err := e.compiled(expression)
	if err != nil {
		return false, fmt.Errorf("constraint: compile %q: %w", expression, err)
	}
	result, err := compiled.Evaluate(value)
	if err != nil {
		return false, fmt.Errorf("constraint: evaluate %q: %w", expression, err)
	}
	return truthy(result), nil
}

func (e *FHIRPathEngine) compiled(expression string) (*fhirpath.Expression, error) {
	e.mu.RLock()
	c, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return c, nil
	}
	c, err := fhirpath.Compile(expression)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache[expression] = c
	e.mu.Unlock()
	return c, nil
}

func truthy(result fhirpath.Collection) bool {
	if result.Empty() {
		return false
	}
	b, err := result.ToBoolean()
	if err != nil {
		return true
	}
	return b
}

// NoEngine is used when no expression engine was configured; every call
// reports itself unevaluated via the sentinel error ErrNoEngine, which
// callers translate into a single ConstraintsSkipped warning (§4.8).
type NoEngine struct{}

// ErrNoEngine is returned by NoEngine.Evaluate.
var ErrNoEngine = fmt.Errorf("constraint: no expression engine configured")

// Evaluate always fails with ErrNoEngine.
func (NoEngine) Evaluate(context.Context, string, []byte) (bool, error) {
	return false, ErrNoEngine
}
