// Package testutil contains helper builders used across tests to reduce
// boilerplate when scripting model replies and tool behavior. They are not
// intended for production usage.
package testutil
