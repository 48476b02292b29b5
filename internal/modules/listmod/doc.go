// Package listmod implements the built-in modules command module, which lists
// the command modules available in an installation.
package listmod
