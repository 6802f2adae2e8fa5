// Package session keeps conversation transcripts between agent runs.
//
// The turn loop itself is stateless across runs; callers that want a chat to
// continue feed the stored messages back through agent.WithHistory and append
// the new messages returned in agent.Result. Only a volatile in-memory
// backend is provided. Other backends implement Store.
package session
