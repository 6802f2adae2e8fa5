package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/miniclaw/core"
	"github.com/hupe1980/miniclaw/internal/testutil"
	"github.com/hupe1980/miniclaw/model"
	"github.com/hupe1980/miniclaw/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoop(t *testing.T, m model.Model, tools []tool.Tool, optFns ...func(o *Options)) *Loop {
	t.Helper()

	loop, err := New(m, tool.NewRegistry(tools), optFns...)
	require.NoError(t, err)

	return loop
}

func withConfig(fn func(c *Config)) func(o *Options) {
	return func(o *Options) { fn(&o.Config) }
}

func TestLoop_TextReplyCompletes(t *testing.T) {
	mock := testutil.NewRecordingTool("mock")
	m := model.NewMockModel("mock", "test").AddReply(testutil.TextReply("Hello, I'm MiniClaw!"))

	res, err := newLoop(t, m, []tool.Tool{mock}).Run(context.Background(), "Hi")
	require.NoError(t, err)

	assert.Equal(t, "Hello, I'm MiniClaw!", res.Response)
	assert.Equal(t, StopComplete, res.StopReason)
	assert.Equal(t, 1, res.Turns)
	assert.Empty(t, res.ToolCalls)
	assert.NotNil(t, res.ToolCalls)
	assert.False(t, res.Partial())
	assert.Equal(t, 0, mock.Count())
	assert.NotEmpty(t, res.RunID)

	req := m.Requests()[0]
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "mock", req.Tools[0].Function.Name)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, core.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "- mock: recording tool mock")
	assert.Equal(t, core.UserMessage("Hi"), req.Messages[1])
}

func TestLoop_ToolCallThenText(t *testing.T) {
	mock := testutil.NewRecordingTool("mock").Results(tool.Success("Mock output"))
	m := model.NewMockModel("mock", "test").AddReply(
		testutil.ToolReply(testutil.Call("1", "mock", `{"path":"."}`)),
		testutil.TextReply("Done!"),
	)

	res, err := newLoop(t, m, []tool.Tool{mock}).Run(context.Background(), "Do something")
	require.NoError(t, err)

	assert.Equal(t, "Done!", res.Response)
	assert.Equal(t, StopComplete, res.StopReason)
	assert.Equal(t, 2, res.Turns)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "mock", res.ToolCalls[0].Call.Name)
	assert.Equal(t, 1, res.ToolCalls[0].Turn)
	assert.True(t, res.ToolCalls[0].Result.Success)
	assert.Equal(t, []map[string]any{{"path": "."}}, mock.Args())

	// The second request carries the assistant call and the formatted tool result.
	second := m.Requests()[1].Messages
	require.Len(t, second, 4)
	assert.Equal(t, core.RoleAssistant, second[2].Role)
	assert.Equal(t, core.RoleTool, second[3].Role)
	assert.Equal(t, "1", second[3].ToolCallID)
	assert.Equal(t, "[mock] Success:\nMock output", second[3].Content)
	assert.False(t, second[3].IsError)

	// Full transcript: system, user, assistant(call), tool, assistant(text).
	assert.Len(t, res.Messages, 5)
}

func TestLoop_MaxTurns(t *testing.T) {
	mock := testutil.NewRecordingTool("mock")
	m := model.NewMockModel("mock", "test").SetFallback(testutil.UniqueCalls("mock"))

	loop := newLoop(t, m, []tool.Tool{mock}, withConfig(func(c *Config) {
		c.MaxTurns = 3
		c.MaxRepeatedCalls = 10
	}))

	res, err := loop.Run(context.Background(), "Loop forever")
	require.NoError(t, err)

	assert.Equal(t, StopMaxTurns, res.StopReason)
	assert.Equal(t, 3, res.Turns)
	assert.Equal(t, 3, m.Calls())
	assert.Len(t, res.ToolCalls, 3)
	assert.Equal(t, 3, mock.Count())
	assert.True(t, res.Partial())
}

func TestLoop_MaxTurnsOne(t *testing.T) {
	m := model.NewMockModel("mock", "test").
		AddReply(model.Reply{Text: "working on it", ToolCalls: []core.ToolCall{testutil.Call("1", "mock", `{}`)}})

	loop := newLoop(t, m, []tool.Tool{testutil.NewRecordingTool("mock")}, withConfig(func(c *Config) { c.MaxTurns = 1 }))

	res, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, StopMaxTurns, res.StopReason)
	assert.Equal(t, 1, res.Turns)
	assert.Equal(t, "working on it", res.Response)
	assert.Len(t, res.ToolCalls, 1)
}

func TestLoop_ConsecutiveErrors(t *testing.T) {
	mock := testutil.NewRecordingTool("mock").AlwaysFail("Mock error")
	m := model.NewMockModel("mock", "test").SetFallback(testutil.UniqueCalls("mock"))

	loop := newLoop(t, m, []tool.Tool{mock}, withConfig(func(c *Config) {
		c.MaxConsecutiveErrors = 2
		c.MaxRepeatedCalls = 10
	}))

	res, err := loop.Run(context.Background(), "Fail")
	require.NoError(t, err)

	assert.Equal(t, StopConsecutiveErrors, res.StopReason)
	assert.Equal(t, 2, res.Turns)
	require.Len(t, res.ToolCalls, 2)
	assert.False(t, res.ToolCalls[1].Result.Success)
	assert.Equal(t, "Mock error", res.ToolCalls[1].Result.Error)

	last := res.Messages[len(res.Messages)-1]
	assert.Equal(t, "[mock] Error: Mock error", last.Content)
	assert.True(t, last.IsError)
}

func TestLoop_SuccessResetsErrorStreak(t *testing.T) {
	mock := testutil.NewRecordingTool("mock").Results(
		tool.Failure("e1"),
		tool.Success("fine"),
		tool.Failure("e2"),
		tool.Failure("e3"),
	)
	m := model.NewMockModel("mock", "test").SetFallback(testutil.UniqueCalls("mock"))

	loop := newLoop(t, m, []tool.Tool{mock}, withConfig(func(c *Config) {
		c.MaxConsecutiveErrors = 2
		c.MaxRepeatedCalls = 10
	}))

	res, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, StopConsecutiveErrors, res.StopReason)
	assert.Equal(t, 4, res.Turns)
	assert.Len(t, res.ToolCalls, 4)
}

func TestLoop_ConsecutiveErrorsStopsBatch(t *testing.T) {
	bad := testutil.NewRecordingTool("bad").AlwaysFail("nope")
	after := testutil.NewRecordingTool("after")
	m := model.NewMockModel("mock", "test").AddReply(testutil.ToolReply(
		testutil.Call("1", "bad", `{"n":1}`),
		testutil.Call("2", "bad", `{"n":2}`),
		testutil.Call("3", "after", `{}`),
	))

	loop := newLoop(t, m, []tool.Tool{bad, after}, withConfig(func(c *Config) { c.MaxConsecutiveErrors = 2 }))

	res, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, StopConsecutiveErrors, res.StopReason)
	assert.Equal(t, 1, res.Turns)
	assert.Len(t, res.ToolCalls, 2)
	assert.Equal(t, 0, after.Count())

	// The skipped call is still answered in the transcript.
	last := res.Messages[len(res.Messages)-1]
	assert.Equal(t, "3", last.ToolCallID)
	assert.Contains(t, last.Content, "skipped")
}

func TestLoop_RepeatedCall(t *testing.T) {
	mock := testutil.NewRecordingTool("mock")
	m := model.NewMockModel("mock", "test").SetFallback(testutil.SameCall("mock", `{"cmd":"ls"}`))

	loop := newLoop(t, m, []tool.Tool{mock}, withConfig(func(c *Config) { c.MaxRepeatedCalls = 2 }))

	res, err := loop.Run(context.Background(), "Repeat")
	require.NoError(t, err)

	assert.Equal(t, StopRepeatedCall, res.StopReason)
	assert.Equal(t, 2, res.Turns)
	assert.Len(t, res.ToolCalls, 1)
	assert.Equal(t, 1, mock.Count())
}

func TestLoop_RepeatedCallIsStructural(t *testing.T) {
	mock := testutil.NewRecordingTool("mock")
	m := model.NewMockModel("mock", "test").AddReply(
		testutil.ToolReply(testutil.Call("1", "mock", `{"a":1,"b":[1,2]}`)),
		testutil.TextReply("between"),
	)

	loop := newLoop(t, m, []tool.Tool{mock}, withConfig(func(c *Config) { c.MaxRepeatedCalls = 2 }))
	res, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, StopComplete, res.StopReason)

	// Same arguments in a different key order within one batch.
	m = model.NewMockModel("mock", "test").AddReply(testutil.ToolReply(
		testutil.Call("1", "mock", `{"a":1,"b":[1,2]}`),
		testutil.Call("2", "mock", `{"b":[1,2], "a":1.0}`),
		testutil.Call("3", "mock", `{"other":true}`),
	))

	mock = testutil.NewRecordingTool("mock")
	loop = newLoop(t, m, []tool.Tool{mock}, withConfig(func(c *Config) { c.MaxRepeatedCalls = 2 }))

	res, err = loop.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, StopRepeatedCall, res.StopReason)
	assert.Equal(t, 1, res.Turns)
	assert.Len(t, res.ToolCalls, 1)
	assert.Equal(t, 1, mock.Count())
}

func TestLoop_RepeatedCallNonConsecutive(t *testing.T) {
	mock := testutil.NewRecordingTool("mock")
	m := model.NewMockModel("mock", "test").AddReply(
		testutil.ToolReply(testutil.Call("1", "mock", `{"x":1}`)),
		testutil.ToolReply(testutil.Call("2", "mock", `{"x":2}`)),
		testutil.TextReply("a text-only reply never resets counters"),
	)

	loop := newLoop(t, m, []tool.Tool{mock}, withConfig(func(c *Config) { c.MaxRepeatedCalls = 2 }))
	res, err := loop.Run(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, StopComplete, res.StopReason)

	m = model.NewMockModel("mock", "test").AddReply(
		testutil.ToolReply(testutil.Call("1", "mock", `{"x":1}`)),
		testutil.ToolReply(testutil.Call("2", "mock", `{"x":2}`)),
		testutil.ToolReply(testutil.Call("3", "mock", `{"x":1}`)),
	)

	loop = newLoop(t, m, []tool.Tool{testutil.NewRecordingTool("mock")}, withConfig(func(c *Config) { c.MaxRepeatedCalls = 2 }))
	res, err = loop.Run(context.Background(), "second")
	require.NoError(t, err)

	assert.Equal(t, StopRepeatedCall, res.StopReason)
	assert.Equal(t, 3, res.Turns)
	assert.Len(t, res.ToolCalls, 2)
}

func TestLoop_RepeatedCallCheckedBeforeErrorStreak(t *testing.T) {
	bad := testutil.NewRecordingTool("bad").AlwaysFail("nope")
	m := model.NewMockModel("mock", "test").AddReply(testutil.ToolReply(
		testutil.Call("1", "bad", `{}`),
		testutil.Call("2", "bad", `{}`),
	))

	loop := newLoop(t, m, []tool.Tool{bad}, withConfig(func(c *Config) {
		c.MaxRepeatedCalls = 2
		c.MaxConsecutiveErrors = 2
	}))

	res, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, StopRepeatedCall, res.StopReason)
	assert.Equal(t, 1, bad.Count())
}

func TestLoop_UnknownToolCountsAsError(t *testing.T) {
	m := model.NewMockModel("mock", "test").SetFallback(testutil.UniqueCalls("does_not_exist"))

	loop := newLoop(t, m, nil, withConfig(func(c *Config) { c.MaxConsecutiveErrors = 2 }))

	res, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, StopConsecutiveErrors, res.StopReason)
	require.Len(t, res.ToolCalls, 2)
	assert.Contains(t, res.ToolCalls[0].Result.Error, "does_not_exist")
}

func TestLoop_EmptyRegistry(t *testing.T) {
	m := model.NewMockModel("mock", "test").AddReply(testutil.TextReply("text only"))

	loop, err := New(m, nil)
	require.NoError(t, err)

	res, err := loop.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "text only", res.Response)
	assert.Nil(t, m.Requests()[0].Tools)
	assert.Contains(t, m.Requests()[0].Messages[0].Content, "No tools available.")
}

func TestLoop_EmptyReplyCompletes(t *testing.T) {
	m := model.NewMockModel("mock", "test").AddReply(model.Reply{})

	res, err := newLoop(t, m, nil).Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, StopComplete, res.StopReason)
	assert.Equal(t, "", res.Response)
	assert.Equal(t, 1, res.Turns)
}

func TestLoop_ResponseIsLastAssistantText(t *testing.T) {
	m := model.NewMockModel("mock", "test").
		AddReply(model.Reply{Text: "let me look", ToolCalls: []core.ToolCall{testutil.Call("1", "mock", `{"n":1}`)}}).
		SetFallback(testutil.UniqueCalls("mock"))

	loop := newLoop(t, m, []tool.Tool{testutil.NewRecordingTool("mock")}, withConfig(func(c *Config) { c.MaxTurns = 3 }))

	res, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, StopMaxTurns, res.StopReason)
	assert.Equal(t, "let me look", res.Response)
}

func TestLoop_ModelErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	m := model.NewMockModel("mock", "test").
		AddReply(testutil.ToolReply(testutil.Call("1", "mock", `{}`))).
		AddError(boom)

	res, err := newLoop(t, m, []tool.Tool{testutil.NewRecordingTool("mock")}).Run(context.Background(), "go")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrModel)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "turn 2")
	assert.Equal(t, 2, m.Calls())
}

func TestLoop_ToolPanicDoesNotCrash(t *testing.T) {
	panicky := testutil.NewRecordingTool("panicky").Handle(func(context.Context, map[string]any) (tool.Result, error) {
		panic("boom")
	})
	m := model.NewMockModel("mock", "test").AddReply(
		testutil.ToolReply(testutil.Call("1", "panicky", `{}`)),
		testutil.TextReply("recovered"),
	)

	res, err := newLoop(t, m, []tool.Tool{panicky}).Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Response)
	require.Len(t, res.ToolCalls, 1)
	assert.False(t, res.ToolCalls[0].Result.Success)
	assert.Contains(t, res.ToolCalls[0].Result.Error, "boom")
}

func TestLoop_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cancelling := testutil.NewRecordingTool("cancel").Handle(func(context.Context, map[string]any) (tool.Result, error) {
		cancel()
		return tool.Success("cancelled"), nil
	})
	m := model.NewMockModel("mock", "test").SetFallback(testutil.UniqueCalls("cancel"))

	res, err := newLoop(t, m, []tool.Tool{cancelling}).Run(ctx, "go")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, m.Calls())
}

func TestLoop_HistoryAndSession(t *testing.T) {
	m := model.NewMockModel("mock", "test").AddReply(testutil.TextReply("again"))

	prior := []core.Message{
		core.SystemMessage("old system prompt"),
		core.UserMessage("earlier"),
		core.AssistantMessage("earlier answer"),
	}

	res, err := newLoop(t, m, nil).Run(context.Background(), "now", WithSessionID("cli-1234abcd"), WithHistory(prior))
	require.NoError(t, err)
	assert.Equal(t, "cli-1234abcd", res.SessionID)

	msgs := m.Requests()[0].Messages
	require.Len(t, msgs, 4)
	assert.NotEqual(t, "old system prompt", msgs[0].Content)
	assert.Equal(t, "earlier", msgs[1].Content)
	assert.Equal(t, "earlier answer", msgs[2].Content)
	assert.Equal(t, "now", msgs[3].Content)
}

func TestLoop_CustomInstructionAndSettings(t *testing.T) {
	temp := 0.2
	m := model.NewMockModel("mock", "test").AddReply(testutil.TextReply("ok"))

	loop := newLoop(t, m, nil, func(o *Options) {
		o.Instruction = NewInstructionFromText("be brief")
		o.Config.Model = model.Settings{Model: "llama", Temperature: &temp}
	})

	_, err := loop.Run(context.Background(), "hi")
	require.NoError(t, err)

	req := m.Requests()[0]
	assert.Equal(t, "be brief", req.Messages[0].Content)
	assert.Equal(t, "llama", req.Settings.Model)
}

func TestLoop_InstructionError(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	loop := newLoop(t, m, nil, func(o *Options) {
		o.Instruction = NewInstructionFromProvider(mockProvider{err: errors.New("no prompt")})
	})

	_, err := loop.Run(context.Background(), "hi")
	assert.ErrorContains(t, err, "no prompt")
	assert.Equal(t, 0, m.Calls())
}

func TestLoop_ParallelPreservesOrder(t *testing.T) {
	var inFlight, peak atomic.Int32

	slow := testutil.NewRecordingTool("slow").Handle(func(_ context.Context, args map[string]any) (tool.Result, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		// Earlier calls take longer so completion order is reversed.
		time.Sleep(time.Duration(40-10*int(args["n"].(float64))) * time.Millisecond)
		inFlight.Add(-1)
		return tool.Success("done"), nil
	})

	m := model.NewMockModel("mock", "test").AddReply(
		testutil.ToolReply(
			testutil.Call("c0", "slow", `{"n":0}`),
			testutil.Call("c1", "slow", `{"n":1}`),
			testutil.Call("c2", "slow", `{"n":2}`),
		),
		testutil.TextReply("all done"),
	)

	loop := newLoop(t, m, []tool.Tool{slow}, withConfig(func(c *Config) { c.MaxParallelTools = 2 }))

	res, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, StopComplete, res.StopReason)

	require.Len(t, res.ToolCalls, 3)
	for i, rec := range res.ToolCalls {
		assert.Equal(t, []string{"c0", "c1", "c2"}[i], rec.Call.ID)
	}

	toolMsgs := m.Requests()[1].Messages[3:]
	require.Len(t, toolMsgs, 3)
	assert.Equal(t, "c0", toolMsgs[0].ToolCallID)
	assert.Equal(t, "c2", toolMsgs[2].ToolCallID)

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestLoop_ParallelRepeatedCallNeverDispatched(t *testing.T) {
	mock := testutil.NewRecordingTool("mock")
	m := model.NewMockModel("mock", "test").AddReply(testutil.ToolReply(
		testutil.Call("1", "mock", `{"a":1}`),
		testutil.Call("2", "mock", `{"a":1}`),
		testutil.Call("3", "mock", `{"a":2}`),
	))

	loop := newLoop(t, m, []tool.Tool{mock}, withConfig(func(c *Config) {
		c.MaxParallelTools = 4
		c.MaxRepeatedCalls = 2
	}))

	res, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, StopRepeatedCall, res.StopReason)
	assert.Equal(t, 1, mock.Count())
	assert.Len(t, res.ToolCalls, 1)
}

func TestLoop_ParallelErrorStopDiscardsLaterResults(t *testing.T) {
	flaky := testutil.NewRecordingTool("flaky").Handle(func(_ context.Context, args map[string]any) (tool.Result, error) {
		if args["n"].(float64) < 2 {
			return tool.Failure("bad"), nil
		}
		return tool.Success("good"), nil
	})

	m := model.NewMockModel("mock", "test").AddReply(testutil.ToolReply(
		testutil.Call("1", "flaky", `{"n":0}`),
		testutil.Call("2", "flaky", `{"n":1}`),
		testutil.Call("3", "flaky", `{"n":2}`),
	))

	loop := newLoop(t, m, []tool.Tool{flaky}, withConfig(func(c *Config) {
		c.MaxParallelTools = 3
		c.MaxConsecutiveErrors = 2
	}))

	res, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, StopConsecutiveErrors, res.StopReason)
	assert.Len(t, res.ToolCalls, 2)
}

func TestLoop_ConcurrentRunsAreIsolated(t *testing.T) {
	m := model.NewMockModel("mock", "test").SetFallback(func(req model.Request) (model.Reply, error) {
		if req.Messages[len(req.Messages)-1].Role == core.RoleTool {
			return testutil.TextReply("done"), nil
		}
		return testutil.ToolReply(testutil.Call("1", "mock", `{}`)), nil
	})

	loop := newLoop(t, m, []tool.Tool{testutil.NewRecordingTool("mock")}, withConfig(func(c *Config) { c.MaxRepeatedCalls = 2 }))

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			res, err := loop.Run(context.Background(), "go")
			if err == nil && res.StopReason != StopComplete {
				err = errors.New(string(res.StopReason))
			}
			errs <- err
		}()
	}

	for i := 0; i < 8; i++ {
		assert.NoError(t, <-errs)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	m := model.NewMockModel("mock", "test")
	for _, fn := range []func(c *Config){
		func(c *Config) { c.MaxTurns = 0 },
		func(c *Config) { c.MaxConsecutiveErrors = 0 },
		func(c *Config) { c.MaxRepeatedCalls = -1 },
		func(c *Config) { c.MaxParallelTools = -1 },
	} {
		_, err := New(m, nil, withConfig(fn))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	}

	loop, err := New(m, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig, loop.Config())
	assert.Equal(t, 0, loop.Registry().Len())
}
