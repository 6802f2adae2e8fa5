// Package console implements the interactive chat front end of the miniclaw
// binary: a line based REPL with slash commands and a one-shot mode.
package console
