package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/miniclaw/core"
	"github.com/hupe1980/miniclaw/logging"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger logging.Logger
}

// Registry maps tool names to implementations. Registration order is kept so
// that Schemas is deterministic. A Registry is safe for concurrent use;
// registration is expected to happen before runs start.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	logger logging.Logger
}

// NewRegistry creates an empty registry, optionally pre-populated with tools.
func NewRegistry(tools []Tool, optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	r := &Registry{
		tools:  make(map[string]Tool, len(tools)),
		logger: opts.Logger,
	}

	for _, t := range tools {
		r.Register(t)
	}

	return r
}

// Register adds t keyed by its name. Registering an existing name replaces the
// previous tool in place (last write wins, original position kept).
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}

	r.tools[name] = t
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]

	return t, ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)

	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// Schemas returns the descriptors of all tools in registration order. An
// empty registry yields an empty, non-nil slice.
func (r *Registry) Schemas() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, Describe(r.tools[name]))
	}

	return out
}

// Dispatch executes the named tool with raw JSON arguments. It never panics
// and never returns an error: unknown names, undecodable arguments, tool
// errors and tool panics all come back as a failed Result.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) Result {
	impl, ok := r.Get(name)
	if !ok {
		r.logger.Warn("tool.dispatch.unknown", "tool", name)
		return Failure(fmt.Sprintf("%v: %s", ErrUnknownTool, name))
	}

	argMap, err := core.ToolCall{Name: name, Arguments: args}.ArgumentMap()
	if err != nil {
		r.logger.Warn("tool.dispatch.invalid_arguments", "tool", name, "error", err.Error())
		return Failure(fmt.Sprintf("%v: %v", ErrInvalidArguments, err))
	}

	start := time.Now()
	res, err := r.call(ctx, impl, argMap)

	switch {
	case err != nil:
		res = Failure(errorText(err))
	case !res.Success && res.Error == "":
		res.Error = "tool reported failure"
	}

	r.logger.Debug(
		"tool.dispatch.done",
		"tool", name,
		"success", res.Success,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return res
}

// call invokes the tool with panic safety.
func (r *Registry) call(ctx context.Context, impl Tool, args map[string]any) (res Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool.dispatch.panic", "tool", impl.Name(), "recover", rec, "stack", string(debug.Stack()))
			err = &ToolError{Tool: impl.Name(), Message: fmt.Sprintf("panic: %v", rec), Code: CodePanic}
		}
	}()

	return impl.Call(ctx, args)
}

// errorText prefers the bare message of a ToolError so the model sees the
// cause rather than the wrapper.
func errorText(err error) string {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Message
	}
	return err.Error()
}
