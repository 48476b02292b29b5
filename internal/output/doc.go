// Package output implements the verbosity-gated message channel shared by all
// ego modules. It separates user-facing messages from structured diagnostics:
// debug, log, and echo messages reach standard output, warnings and errors are
// colorized, and Fatal centralizes the print-and-exit path so no caller
// duplicates exit-code handling.
package output
