// Package ui renders command lifecycle events for interactive invocations.
//
// It bridges execshell observer notifications onto the verbosity-gated output
// channel so users running at elevated verbosity can watch each external
// command begin and finish.
package ui
