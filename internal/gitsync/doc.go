// Package gitsync drives a fixed vocabulary of whole-repository operations
// against one local working copy.
//
// Operations are either read-only queries or mutations. Every mutation
// re-checks an empirical read-only probe before touching the working copy and
// aborts fatally when the probe trips, so a partially writable repository is
// never corrupted midway. External tool failures surface as boolean results;
// nothing is retried here, retry policy belongs to the caller.
package gitsync
