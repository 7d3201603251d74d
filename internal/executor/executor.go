// Package executor resolves a task's entry point against the registered
// callables and invokes it. Submitted program bytes are opaque to the
// fabric: they participate in the cache fingerprint but carry no execution
// semantics of their own.
package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
)

// Func is one registered callable.
type Func func(ctx context.Context, args []any) (any, error)

// Registry maps entry-point names to callables.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
	runs  atomic.Uint64
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register installs fn under name, replacing any previous callable.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Execute runs the task's entry point with its arguments.
func (r *Registry) Execute(ctx context.Context, task *types.Task) (any, error) {
	r.mu.RLock()
	fn, ok := r.funcs[task.Function]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("function %q not found", task.Function)
	}
	r.runs.Add(1)
	return fn(ctx, task.Args)
}

// Stats is the executor snapshot for the status endpoint.
type Stats struct {
	ExecutionCount uint64 `json:"execution_count"`
	Functions      int    `json:"functions"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{ExecutionCount: r.runs.Load(), Functions: len(r.funcs)}
}

// number coerces a JSON-decoded argument to float64.
func number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

// RegisterBuiltins installs the small arithmetic demo set the CLI exercises.
func RegisterBuiltins(r *Registry) {
	r.Register("echo", func(_ context.Context, args []any) (any, error) {
		if len(args) == 1 {
			return args[0], nil
		}
		return args, nil
	})
	r.Register("square", func(_ context.Context, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("square takes 1 argument, got %d", len(args))
		}
		x, err := number(args[0])
		if err != nil {
			return nil, err
		}
		return x * x, nil
	})
	r.Register("increment", func(_ context.Context, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("increment takes 1 argument, got %d", len(args))
		}
		x, err := number(args[0])
		if err != nil {
			return nil, err
		}
		return x + 1, nil
	})
	r.Register("sum", func(_ context.Context, args []any) (any, error) {
		var total float64
		for _, a := range args {
			x, err := number(a)
			if err != nil {
				return nil, err
			}
			total += x
		}
		return total, nil
	})
}
