// Package sandbox executes tool bodies. A Registry runs native Go
// implementations looked up by function name; a Process hands the catalog
// code to an external interpreter.
package sandbox

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
)

// Func is a native tool implementation.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Registry provides a thread-safe registry of native tool implementations.
type Registry struct {
	funcs map[string]Func
	mu    sync.RWMutex
}

var _ core.Sandbox = (*Registry)(nil)

// NewRegistry creates a new Registry
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]Func),
	}
}

// Register adds fn under the given function name.
func (r *Registry) Register(name string, fn Func) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
	return r
}

// Get retrieves a function by name
func (r *Registry) Get(name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, exists := r.funcs[name]
	if !exists {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "function not found in registry"),
			errors.Fields{"name": name},
		)
	}
	return fn, nil
}

// List returns all registered function names
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered functions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.funcs)
}

// Unregister removes a function from the registry
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.funcs, name)
}

// Run calls the function registered as entry. code is ignored.
func (r *Registry) Run(ctx context.Context, code, entry string, args map[string]any) (result any, err error) {
	fn, err := r.Get(entry)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			err = errors.WithFields(
				errors.New(errors.ExecutionFailed, fmt.Sprintf("tool panicked: %v", p)),
				errors.Fields{"entry": entry})
		}
	}()
	return fn(ctx, args)
}

// Fallback runs entries the primary sandbox does not know on the secondary.
func Fallback(primary, secondary core.Sandbox) core.Sandbox {
	return core.SandboxFunc(func(ctx context.Context, code, entry string, args map[string]any) (any, error) {
		result, err := primary.Run(ctx, code, entry, args)
		if errors.CodeOf(err) == errors.ResourceNotFound {
			return secondary.Run(ctx, code, entry, args)
		}
		return result, err
	})
}

// Float reads a numeric argument. Numeric strings are accepted.
func Float(args map[string]any, name string) (float64, error) {
	v, ok := args[name]
	if !ok {
		return 0, errors.WithFields(
			errors.New(errors.InvalidInput, "missing argument"),
			errors.Fields{"argument": name})
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, errors.WithFields(
		errors.New(errors.InvalidInput, "argument is not a number"),
		errors.Fields{"argument": name, "value": v})
}

// String reads a string argument.
func String(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", errors.WithFields(
			errors.New(errors.InvalidInput, "missing argument"),
			errors.Fields{"argument": name})
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.WithFields(
			errors.New(errors.InvalidInput, "argument is not a string"),
			errors.Fields{"argument": name, "value": v})
	}
	return s, nil
}

// Bool reads a boolean argument.
func Bool(args map[string]any, name string) (bool, error) {
	v, ok := args[name]
	if !ok {
		return false, errors.WithFields(
			errors.New(errors.InvalidInput, "missing argument"),
			errors.Fields{"argument": name})
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed, nil
		}
	}
	return false, errors.WithFields(
		errors.New(errors.InvalidInput, "argument is not a boolean"),
		errors.Fields{"argument": name, "value": v})
}
