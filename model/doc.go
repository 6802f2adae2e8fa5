// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with language models inside miniclaw.
//
// Core goals:
//   - A single request/response operation (Complete) per turn
//   - Normalize tool / function call representation (ToolDefinition, core.ToolCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Request pacing (WithRateLimit) is a decorator around a Model. Transport
// retries are configured on the provider clients (Options.MaxRetries). The
// turn loop itself never retries a failed request.
//
// Providers (e.g. OpenAI, Groq, Anthropic) implement the Model interface from
// this package so higher layers remain decoupled from vendor SDKs.
package model
