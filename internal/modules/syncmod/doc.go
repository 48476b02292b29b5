// Package syncmod implements the built-in sync command module, which clones or
// updates a configured upstream repository into a local working copy.
package syncmod
