// Package dispatch turns a module name plus a raw argument list into a fully
// configured module invocation.
//
// The dispatcher loads the module from the registry, seeds an isolated flag
// set with the common verbosity and version flags, merges the module's own
// flags, resolves the effective verbosity, and invokes the module handler with
// exactly the module-declared options.
package dispatch
