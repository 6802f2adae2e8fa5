// Package miniclaw provides a high-level facade over the agent turn loop and
// the session store. Most applications interact with this package by:
//  1. Creating an Agent via New() with a model and a tool list
//  2. Calling Chat with a session id to continue a conversation, or Run for a
//     one-off message without history
//
// The facade delegates the reasoning loop to agent.Loop and only adds
// transcript bookkeeping and admission control on top of it.
package miniclaw

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/miniclaw/agent"
	"github.com/hupe1980/miniclaw/core"
	"github.com/hupe1980/miniclaw/logging"
	"github.com/hupe1980/miniclaw/model"
	"github.com/hupe1980/miniclaw/session"
	"github.com/hupe1980/miniclaw/tool"
	"golang.org/x/sync/semaphore"
)

// Options configures the Agent.
type Options struct {
	// Tools are registered in order; a later tool with the same name replaces
	// an earlier one.
	Tools []tool.Tool

	// Config is the loop policy (turn budget, error and repetition limits).
	Config agent.Config

	// Instruction overrides the default system prompt.
	Instruction agent.Instruction

	// MaxConcurrentRuns limits the number of runs that can execute
	// simultaneously across all sessions. Set to 0 for unlimited.
	MaxConcurrentRuns int

	// SessionStore keeps transcripts between Chat calls (defaults to an
	// in-memory store).
	SessionStore session.Store

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Agent bundles a Loop with a transcript store.
type Agent struct {
	loop     *agent.Loop
	sessions session.Store
	sem      *semaphore.Weighted
	logger   logging.Logger

	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

// sessionLock serializes runs on one session. Entries live only while some
// caller holds or waits for them.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// New creates an Agent. Unset options fall back to in-memory and default
// implementations.
func New(m model.Model, optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{
		Config:       agent.DefaultConfig,
		Instruction:  agent.DefaultInstruction(),
		SessionStore: session.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	registry := tool.NewRegistry(opts.Tools, func(o *tool.RegistryOptions) {
		o.Logger = opts.Logger
	})

	loop, err := agent.New(m, registry, func(o *agent.Options) {
		o.Config = opts.Config
		o.Instruction = opts.Instruction
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	a := &Agent{
		loop:     loop,
		sessions: opts.SessionStore,
		logger:   opts.Logger,
		locks:    make(map[string]*sessionLock),
	}

	if opts.MaxConcurrentRuns > 0 {
		a.sem = semaphore.NewWeighted(int64(opts.MaxConcurrentRuns))
	}

	return a, nil
}

// Loop exposes the underlying turn loop.
func (a *Agent) Loop() *agent.Loop { return a.loop }

// Sessions exposes the transcript store.
func (a *Agent) Sessions() session.Store { return a.sessions }

// Run processes a single message without any stored history.
func (a *Agent) Run(ctx context.Context, message string) (*agent.Result, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()

	return a.loop.Run(ctx, message)
}

// Chat processes a message within the session, seeding the run with the
// stored transcript and persisting the new messages afterwards. Chats on the
// same session are serialized. Failed runs leave the transcript untouched.
func (a *Agent) Chat(ctx context.Context, sessionID, message string) (*agent.Result, error) {
	unlock := a.lockSession(sessionID)
	defer unlock()

	sess, err := a.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()

	res, err := a.loop.Run(ctx, message, agent.WithSessionID(sessionID), agent.WithHistory(sess.Messages))
	if err != nil {
		return nil, err
	}

	added := newMessages(res.Messages, len(sess.Messages))
	if err := a.sessions.Append(sessionID, added...); err != nil {
		return res, fmt.Errorf("save session: %w", err)
	}

	a.logger.Debug("miniclaw.session.saved", "session_id", sessionID, "appended", len(added))

	return res, nil
}

// Reset drops the stored transcript of the session. It waits for a Chat in
// progress on the same session.
func (a *Agent) Reset(sessionID string) error {
	unlock := a.lockSession(sessionID)
	defer unlock()

	return a.sessions.Reset(sessionID)
}

func (a *Agent) acquire(ctx context.Context) error {
	if a.sem == nil {
		return nil
	}

	return a.sem.Acquire(ctx, 1)
}

func (a *Agent) release() {
	if a.sem != nil {
		a.sem.Release(1)
	}
}

func (a *Agent) lockSession(id string) func() {
	a.locksMu.Lock()
	l, ok := a.locks[id]
	if !ok {
		l = &sessionLock{}
		a.locks[id] = l
	}
	l.refs++
	a.locksMu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		a.locksMu.Lock()
		defer a.locksMu.Unlock()

		l.refs--
		if l.refs == 0 {
			delete(a.locks, id)
		}
	}
}

// newMessages strips the system prompt and the replayed history from a run
// transcript.
func newMessages(msgs []core.Message, prior int) []core.Message {
	start := prior
	if len(msgs) > 0 && msgs[0].Role == core.RoleSystem {
		start++
	}

	if start >= len(msgs) {
		return nil
	}

	return msgs[start:]
}
