package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hupe1980/miniclaw/core"
	"github.com/hupe1980/miniclaw/logging"
	"github.com/hupe1980/miniclaw/model"
	"github.com/hupe1980/miniclaw/tool"
)

// Options configures a Loop.
type Options struct {
	Config      Config
	Instruction Instruction
	Logger      logging.Logger
}

// Loop drives the conversation between a model and a tool registry. The
// configuration is fixed at construction; every Run owns its own state, so a
// Loop may serve concurrent runs.
type Loop struct {
	model       model.Model
	registry    *tool.Registry
	cfg         Config
	instruction Instruction
	logger      logging.Logger
	executor    *batchExecutor
}

// New creates a Loop. A nil registry behaves like an empty one.
func New(m model.Model, registry *tool.Registry, optFns ...func(o *Options)) (*Loop, error) {
	opts := Options{
		Config:      DefaultConfig,
		Instruction: DefaultInstruction(),
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if m == nil {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}

	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	if registry == nil {
		registry = tool.NewRegistry(nil)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Loop{
		model:       m,
		registry:    registry,
		cfg:         opts.Config,
		instruction: opts.Instruction,
		logger:      opts.Logger,
		executor: &batchExecutor{
			registry:    registry,
			maxParallel: opts.Config.MaxParallelTools,
			logger:      opts.Logger,
		},
	}, nil
}

// Config returns the loop policy.
func (l *Loop) Config() Config { return l.cfg }

// Registry returns the tool registry used for dispatch.
func (l *Loop) Registry() *tool.Registry { return l.registry }

// RunOptions carries per-run inputs.
type RunOptions struct {
	// SessionID tags logs and the Result; it has no effect on the loop.
	SessionID string
	// History seeds prior conversation turns between the system prompt and
	// the new user message. System messages in History are ignored.
	History []core.Message
}

// WithSessionID tags the run with a caller supplied session id.
func WithSessionID(id string) func(o *RunOptions) {
	return func(o *RunOptions) { o.SessionID = id }
}

// WithHistory seeds the run with earlier messages.
func WithHistory(msgs []core.Message) func(o *RunOptions) {
	return func(o *RunOptions) { o.History = msgs }
}

// Run processes one user message until the model stops requesting tools or a
// stop condition triggers. Policy stops are reported through
// Result.StopReason; only model faults, instruction failures and context
// cancellation return an error.
func (l *Loop) Run(ctx context.Context, message string, optFns ...func(o *RunOptions)) (*Result, error) {
	var opts RunOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	runID := uuid.NewString()

	logger := logging.With(l.logger, "run_id", runID)
	if opts.SessionID != "" {
		logger = logging.With(logger, "session_id", opts.SessionID)
	}

	descriptors := l.registry.Schemas()

	system, err := l.instruction.Resolve(ctx, descriptors)
	if err != nil {
		return nil, fmt.Errorf("resolve instruction: %w", err)
	}

	st := newRunState(runID, opts.SessionID, system, opts.History, message)
	tools := toolDefinitions(descriptors)

	logger.Info("agent.run.start", "model", l.model.Info().Name, "tools", len(tools), "max_turns", l.cfg.MaxTurns)

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("agent run cancelled after %d turns: %w", st.turn, err)
		}

		st.turn++
		logger.Debug("agent.turn.start", "turn", st.turn)

		reply, err := l.model.Complete(ctx, model.Request{
			Messages: st.history,
			Tools:    tools,
			Settings: l.cfg.Model,
		})
		if err != nil {
			logger.Error("agent.model.error", "turn", st.turn, "error", err)
			return nil, fmt.Errorf("%w (turn %d): %w", ErrModel, st.turn, err)
		}

		st.appendReply(reply.Message())

		logger.Debug(
			"agent.model.reply",
			"turn", st.turn,
			"tool_calls", len(reply.ToolCalls),
			"finish_reason", reply.FinishReason,
			"total_tokens", totalTokens(reply.Usage),
		)

		if !reply.HasToolCalls() {
			return l.stop(logger, st, StopComplete, reply.Text), nil
		}

		if reason, stopped := l.processBatch(ctx, logger, st, reply.ToolCalls); stopped {
			return l.stop(logger, st, reason, st.lastText), nil
		}

		if st.turn >= l.cfg.MaxTurns {
			return l.stop(logger, st, StopMaxTurns, st.lastText), nil
		}
	}
}

// processBatch runs the tool calls of one turn in model order. Repetition is
// checked before a call is dispatched, the error streak after it completes.
func (l *Loop) processBatch(
	ctx context.Context,
	logger logging.Logger,
	st *runState,
	calls []core.ToolCall,
) (StopReason, bool) {
	cut := len(calls)

	for i, c := range calls {
		if st.seen.observe(c) >= l.cfg.MaxRepeatedCalls {
			logger.Warn("agent.tool.repeated", "turn", st.turn, "tool", c.Name, "tool_call_id", c.ID)
			cut = i
			break
		}
	}

	var (
		reason  StopReason
		stopped bool
		handled int
	)

	l.executor.run(ctx, calls[:cut], func(i int, out callOutcome) bool {
		c := calls[i]
		handled = i + 1

		st.history = append(st.history, core.ToolMessage(c, tool.Format(c.Name, out.result), !out.result.Success))
		st.records = append(st.records, ToolCallRecord{
			Turn:     st.turn,
			Call:     c,
			Result:   out.result,
			Duration: out.duration,
		})

		if out.result.Success {
			st.consecutiveErrors = 0
			return true
		}

		st.consecutiveErrors++
		if st.consecutiveErrors >= l.cfg.MaxConsecutiveErrors {
			reason, stopped = StopConsecutiveErrors, true
			return false
		}

		return true
	})

	if !stopped && cut < len(calls) {
		reason, stopped = StopRepeatedCall, true
	}

	if stopped {
		// Every requested call gets an answer so the transcript stays
		// acceptable to provider APIs when it is reused as history.
		for _, c := range calls[handled:] {
			st.history = append(st.history, core.ToolMessage(
				c,
				tool.Format(c.Name, tool.Failuref("skipped: run stopped (%s)", reason)),
				true,
			))
		}
	}

	return reason, stopped
}

func (l *Loop) stop(logger logging.Logger, st *runState, reason StopReason, response string) *Result {
	level := logger.Info
	if reason != StopComplete {
		level = logger.Warn
	}

	level("agent.run.stop", "reason", reason.String(), "turns", st.turn, "tool_calls", len(st.records))

	return st.result(reason, response)
}

func toolDefinitions(descriptors []tool.Descriptor) []model.ToolDefinition {
	if len(descriptors) == 0 {
		return nil
	}

	defs := make([]model.ToolDefinition, len(descriptors))
	for i, d := range descriptors {
		defs[i] = model.NewFunctionDefinition(d.Name, d.Description, d.Parameters)
	}

	return defs
}

func totalTokens(u *model.TokenUsage) int {
	if u == nil {
		return 0
	}
	return u.TotalTokens
}
