// Package logging provides a minimal logging interface and adapters for miniclaw.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the turn loop, the registry and the CLI use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - New building json, text or pretty (tint) handlers from a Config
//   - With for binding fields such as session_id or run_id
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.New(logging.Config{Level: logging.LogLevelDebug, Format: "pretty"})
//	loop, err := agent.New(m, registry, func(o *agent.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
