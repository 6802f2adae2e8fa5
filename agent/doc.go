// Package agent implements the turn loop that alternates between a model and
// a tool registry until the model answers in plain text or a stop policy
// triggers.
//
// A Loop is built once with New and is safe for concurrent Run calls. Each
// run starts from the resolved system prompt, optional prior history and the
// new user message. Per turn the model is asked for a reply; tool calls in the
// reply are executed in the order the model emitted them and their formatted
// results are appended to the history before the next turn.
//
// Runs end with one of four stop reasons:
//
//   - COMPLETE: the model replied without tool calls
//   - MAX_TURNS: the turn budget was used up
//   - CONSECUTIVE_ERRORS: too many tool calls failed in a row
//   - REPEATED_CALL: an identical (name, arguments) call was requested too often
//
// Policy stops are not errors. Run only returns an error for model faults,
// instruction failures and context cancellation.
package agent
