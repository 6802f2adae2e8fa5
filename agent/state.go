package agent

import (
	"github.com/hupe1980/miniclaw/core"
)

// runState holds everything mutable about one run. It is created by Run and
// never shared between runs.
type runState struct {
	runID     string
	sessionID string

	history []core.Message
	records []ToolCallRecord

	turn              int
	consecutiveErrors int
	seen              callCounter

	lastText string // last non-empty assistant text
}

func newRunState(runID, sessionID, system string, prior []core.Message, message string) *runState {
	history := make([]core.Message, 0, len(prior)+2)
	if system != "" {
		history = append(history, core.SystemMessage(system))
	}

	for _, m := range prior {
		if m.Role == core.RoleSystem {
			continue
		}
		history = append(history, m.Clone())
	}

	history = append(history, core.UserMessage(message))

	return &runState{
		runID:     runID,
		sessionID: sessionID,
		history:   history,
		seen:      callCounter{},
	}
}

func (s *runState) appendReply(m core.Message) {
	s.history = append(s.history, m)
	if m.Content != "" {
		s.lastText = m.Content
	}
}

func (s *runState) result(reason StopReason, response string) *Result {
	records := s.records
	if records == nil {
		records = []ToolCallRecord{}
	}

	return &Result{
		Response:   response,
		StopReason: reason,
		Turns:      s.turn,
		ToolCalls:  records,
		Messages:   s.history,
		SessionID:  s.sessionID,
		RunID:      s.runID,
	}
}
