package modreg

import (
	"context"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ego-devkit/ego/internal/output"
)

// ModuleDescriptor captures the metadata published alongside a module.
type ModuleDescriptor struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Author      string `mapstructure:"author"`
	Description string `mapstructure:"description"`
}

// Invocation carries the per-call collaborators and resolved options handed to
// a module handler. It is created fresh for every dispatch and owned
// exclusively by that call.
type Invocation struct {
	InstallPath string
	Output      *output.Channel
	Logger      *zap.Logger
	// Options holds exactly the module-declared option values keyed by flag
	// name. The dispatcher's reserved verbosity and version keys never appear.
	Options map[string]any
}

// Module is the capability interface every ego command module implements.
type Module interface {
	// Version reports the module's declared version, or an empty string when
	// the module does not declare one.
	Version() string
	// RegisterFlags adds the module's own flags to the shared per-invocation
	// flag set. Names must not collide with the dispatcher's reserved flags.
	RegisterFlags(flagSet *pflag.FlagSet)
	// Handle executes the module with the resolved invocation.
	Handle(executionContext context.Context, invocation *Invocation) error
}

// Factory constructs a module instance for one invocation. It receives the
// module name, the resolved install path, and the module's configuration
// settings.
type Factory func(moduleName string, installPath string, settings map[string]any) (Module, error)
