package agent

import (
	"context"
	"time"

	"github.com/hupe1980/miniclaw/core"
	"github.com/hupe1980/miniclaw/logging"
	"github.com/hupe1980/miniclaw/tool"
	"golang.org/x/sync/errgroup"
)

// callOutcome is the result of dispatching one tool call.
type callOutcome struct {
	result   tool.Result
	duration time.Duration
}

// batchExecutor dispatches the tool calls of one model turn. Outcomes are
// always handed to fold in the original call order; fold returning false
// stops the batch. In sequential mode later calls are then never
// dispatched; in parallel mode their outcomes are discarded.
type batchExecutor struct {
	registry    *tool.Registry
	maxParallel int
	logger      logging.Logger
}

func (e *batchExecutor) run(ctx context.Context, calls []core.ToolCall, fold func(i int, out callOutcome) bool) {
	n := len(calls)
	if n == 0 {
		return
	}

	if e.maxParallel <= 1 || n == 1 {
		for i, c := range calls {
			if !fold(i, e.dispatch(ctx, c)) {
				return
			}
		}
		return
	}

	limit := e.maxParallel
	if limit > n {
		limit = n
	}

	results := make([]callOutcome, n)
	batchStart := time.Now()

	var g errgroup.Group
	g.SetLimit(limit)

	for i, c := range calls {
		i, c := i, c
		g.Go(func() error {
			results[i] = e.dispatch(ctx, c)
			return nil
		})
	}

	_ = g.Wait()

	e.logger.Debug(
		"agent.tools.batch.complete",
		"count", n,
		"parallelism", limit,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	for i := range calls {
		if !fold(i, results[i]) {
			return
		}
	}
}

func (e *batchExecutor) dispatch(ctx context.Context, c core.ToolCall) callOutcome {
	start := time.Now()
	res := e.registry.Dispatch(ctx, c.Name, c.Arguments)
	dur := time.Since(start)

	e.logger.Info(
		"agent.tool.executed",
		"tool", c.Name,
		"tool_call_id", c.ID,
		"success", res.Success,
		"duration_ms", dur.Milliseconds(),
	)

	return callOutcome{result: res, duration: dur}
}
