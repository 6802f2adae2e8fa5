package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/miniclaw/tool"
)

// RecordingTool is a scriptable tool that records every invocation.
type RecordingTool struct {
	name string

	mu      sync.Mutex
	calls   []map[string]any
	results []tool.Result
	handler func(ctx context.Context, args map[string]any) (tool.Result, error)
	delay   time.Duration
}

// NewRecordingTool returns a tool that succeeds with output "ok" unless
// configured otherwise.
func NewRecordingTool(name string) *RecordingTool {
	return &RecordingTool{name: name}
}

// AlwaysFail makes every invocation return a failed Result with msg.
func (r *RecordingTool) AlwaysFail(msg string) *RecordingTool {
	return r.Handle(func(context.Context, map[string]any) (tool.Result, error) {
		return tool.Failure(msg), nil
	})
}

// Results scripts per-call results; once consumed, the handler (or the
// default success) answers.
func (r *RecordingTool) Results(results ...tool.Result) *RecordingTool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results = append(r.results, results...)

	return r
}

// Handle installs a custom implementation.
func (r *RecordingTool) Handle(fn func(ctx context.Context, args map[string]any) (tool.Result, error)) *RecordingTool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handler = fn

	return r
}

// Delay makes each invocation sleep for d (or until ctx is done).
func (r *RecordingTool) Delay(d time.Duration) *RecordingTool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.delay = d

	return r
}

// Name implements tool.Tool.
func (r *RecordingTool) Name() string { return r.name }

// Description implements tool.Tool.
func (r *RecordingTool) Description() string { return "recording tool " + r.name }

// Parameters implements tool.Tool.
func (r *RecordingTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// Call implements tool.Tool.
func (r *RecordingTool) Call(ctx context.Context, args map[string]any) (tool.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, args)

	var scripted *tool.Result
	if len(r.results) > 0 {
		res := r.results[0]
		r.results = r.results[1:]
		scripted = &res
	}

	handler, delay := r.handler, r.delay
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return tool.Result{}, ctx.Err()
		}
	}

	if scripted != nil {
		return *scripted, nil
	}

	if handler != nil {
		return handler(ctx, args)
	}

	return tool.Success("ok"), nil
}

// Count returns the number of invocations.
func (r *RecordingTool) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.calls)
}

// Args returns the arguments of every invocation in call order.
func (r *RecordingTool) Args() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]map[string]any, len(r.calls))
	copy(out, r.calls)

	return out
}
