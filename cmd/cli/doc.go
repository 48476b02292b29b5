// Package cli constructs the ego command-line interface, wiring the Cobra
// root command, configuration loader, module registry, and structured logging
// primitives. It exposes helpers to build reusable application instances and
// to execute the default module set as a reusable library.
package cli
