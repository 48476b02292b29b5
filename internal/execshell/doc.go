// Package execshell provides structured helpers for invoking the external
// version-control tool.
//
// It wraps os/exec behind a CommandRunner abstraction, exposes ShellExecutor
// for logged and observable execution, and surfaces failures as typed errors
// carrying the tool's exit status and captured output so callers can decide
// how to react without parsing sentinel strings.
package execshell
