package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ego-devkit/ego/internal/modreg"
	"github.com/ego-devkit/ego/internal/output"
)

const (
	programNameConstant                    = "ego"
	parserNameTemplateConstant             = "%s %s"
	moduleNotFoundTemplateConstant         = "Error: %s module \"%s\" not found."
	versionBannerTemplateConstant          = "%s %s / %s %s (by %s)"
	usageHeaderTemplateConstant            = "Usage: %s [options]\n"
	usageDescriptionTemplateConstant       = "\n%s\n"
	usageOptionsHeaderConstant             = "\nOptions:\n"
	verbosityFlagNameConstant              = "verbosity"
	verbosityFlagUsageConstant             = "Set verbosity level"
	increaseVerbosityFlagNameConstant      = "verbose"
	increaseVerbosityFlagShorthandConstant = "v"
	increaseVerbosityFlagUsageConstant     = "Increase verbosity level by 1 per occurrence"
	decreaseVerbosityFlagNameConstant      = "quiet"
	decreaseVerbosityFlagShorthandConstant = "q"
	decreaseVerbosityFlagUsageConstant     = "Decrease verbosity level by 1 per occurrence"
	versionFlagNameConstant                = "version"
	versionFlagUsageConstant               = "Show version information"
	registryNotConfiguredMessageConstant   = "module registry not configured"
	usageErrorTemplateConstant             = "%s: %w"
	unknownAuthorLabelConstant             = "unknown"
	flagTypeIntConstant                    = "int"
	flagTypeBoolConstant                   = "bool"
	flagTypeCountConstant                  = "count"
	flagTypeStringConstant                 = "string"
	flagTypeStringSliceConstant            = "stringSlice"
)

// reservedFlagNames are managed by the dispatcher and never reach module handlers.
var reservedFlagNames = map[string]struct{}{
	verbosityFlagNameConstant:         {},
	increaseVerbosityFlagNameConstant: {},
	decreaseVerbosityFlagNameConstant: {},
	versionFlagNameConstant:           {},
}

// ErrRegistryNotConfigured indicates the dispatcher was built without a registry.
var ErrRegistryNotConfigured = errors.New(registryNotConfiguredMessageConstant)

// Options configures a Dispatcher instance.
type Options struct {
	Registry       *modreg.Registry
	ProgramVersion string
	Logger         *zap.Logger
	StandardOutput io.Writer
	StandardError  io.Writer
	DisableColor   bool
	Exit           output.ExitFunc
}

// Dispatcher resolves module invocations against a registry and runs them.
type Dispatcher struct {
	registry       *modreg.Registry
	programVersion string
	logger         *zap.Logger
	standardOutput io.Writer
	standardError  io.Writer
	disableColor   bool
	exitFunc       output.ExitFunc
}

// NewDispatcher validates dependencies and constructs a Dispatcher.
func NewDispatcher(options Options) (*Dispatcher, error) {
	if options.Registry == nil {
		return nil, ErrRegistryNotConfigured
	}

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	standardOutput := options.StandardOutput
	if standardOutput == nil {
		standardOutput = os.Stdout
	}
	standardError := options.StandardError
	if standardError == nil {
		standardError = os.Stderr
	}
	exitFunc := options.Exit
	if exitFunc == nil {
		exitFunc = os.Exit
	}

	return &Dispatcher{
		registry:       options.Registry,
		programVersion: options.ProgramVersion,
		logger:         logger,
		standardOutput: standardOutput,
		standardError:  standardError,
		disableColor:   options.DisableColor,
		exitFunc:       exitFunc,
	}, nil
}

// Run loads the named module, parses the argument list on an isolated flag
// set seeded with the common flags, and invokes the module handler.
func (dispatcher *Dispatcher) Run(executionContext context.Context, installRoot string, moduleName string, moduleSettings map[string]any, arguments []string) error {
	module, loadError := dispatcher.registry.Load(installRoot, moduleName, moduleSettings)
	if loadError != nil {
		if errors.Is(loadError, modreg.ErrModuleNotFound) {
			dispatcher.newChannel(baseVerbosityConstant).Error(fmt.Sprintf(moduleNotFoundTemplateConstant, programNameConstant, moduleName))
		}
		return loadError
	}

	metadata, metadataError := dispatcher.registry.Metadata(installRoot, moduleName)
	if metadataError != nil {
		dispatcher.logger.Warn(metadataError.Error())
	}

	parserName := fmt.Sprintf(parserNameTemplateConstant, programNameConstant, moduleName)
	flagSet := pflag.NewFlagSet(parserName, pflag.ContinueOnError)
	flagSet.SetOutput(dispatcher.standardError)
	flagSet.Usage = func() {
		fmt.Fprintf(dispatcher.standardError, usageHeaderTemplateConstant, parserName)
		if len(metadata.Description) > 0 {
			fmt.Fprintf(dispatcher.standardError, usageDescriptionTemplateConstant, metadata.Description)
		}
		fmt.Fprint(dispatcher.standardError, usageOptionsHeaderConstant)
		fmt.Fprint(dispatcher.standardError, flagSet.FlagUsages())
	}

	explicitVerbosity := flagSet.Int(verbosityFlagNameConstant, baseVerbosityConstant, verbosityFlagUsageConstant)
	increaseCount := flagSet.CountP(increaseVerbosityFlagNameConstant, increaseVerbosityFlagShorthandConstant, increaseVerbosityFlagUsageConstant)
	decreaseCount := flagSet.CountP(decreaseVerbosityFlagNameConstant, decreaseVerbosityFlagShorthandConstant, decreaseVerbosityFlagUsageConstant)

	var versionRequested *bool
	if len(module.Version()) > 0 {
		versionRequested = flagSet.Bool(versionFlagNameConstant, false, versionFlagUsageConstant)
	}

	module.RegisterFlags(flagSet)

	if parseError := flagSet.Parse(arguments); parseError != nil {
		return fmt.Errorf(usageErrorTemplateConstant, parserName, parseError)
	}

	if versionRequested != nil && *versionRequested {
		fmt.Fprintln(dispatcher.standardOutput, dispatcher.renderVersionBanner(moduleName, module, metadata))
		return nil
	}

	verbositySettings := VerbositySettings{
		Explicit:    *explicitVerbosity,
		ExplicitSet: flagSet.Changed(verbosityFlagNameConstant),
		Increase:    *increaseCount,
		Decrease:    *decreaseCount,
	}
	resolvedVerbosity, verbosityError := verbositySettings.Resolve()
	if verbosityError != nil {
		return fmt.Errorf(usageErrorTemplateConstant, parserName, verbosityError)
	}

	invocation := &modreg.Invocation{
		InstallPath: installRoot,
		Output:      dispatcher.newChannel(resolvedVerbosity),
		Logger:      dispatcher.logger,
		Options:     collectModuleOptions(flagSet),
	}

	return module.Handle(executionContext, invocation)
}

// renderVersionBanner embeds the overall program version, module name, module
// version, and module author.
func (dispatcher *Dispatcher) renderVersionBanner(moduleName string, module modreg.Module, metadata modreg.ModuleDescriptor) string {
	moduleVersion := metadata.Version
	if len(moduleVersion) == 0 {
		moduleVersion = module.Version()
	}
	moduleAuthor := metadata.Author
	if len(moduleAuthor) == 0 {
		moduleAuthor = unknownAuthorLabelConstant
	}
	return fmt.Sprintf(versionBannerTemplateConstant, programNameConstant, dispatcher.programVersion, moduleName, moduleVersion, moduleAuthor)
}

func (dispatcher *Dispatcher) newChannel(verbosity int) *output.Channel {
	return output.NewChannel(output.Options{
		Verbosity:      verbosity,
		StandardOutput: dispatcher.standardOutput,
		StandardError:  dispatcher.standardError,
		DisableColor:   dispatcher.disableColor,
		Exit:           dispatcher.exitFunc,
	})
}

// collectModuleOptions gathers the module-declared option values, excluding
// the dispatcher's reserved flags, so handlers receive exactly what they
// registered.
func collectModuleOptions(flagSet *pflag.FlagSet) map[string]any {
	options := map[string]any{}
	flagSet.VisitAll(func(flag *pflag.Flag) {
		if _, reserved := reservedFlagNames[flag.Name]; reserved {
			return
		}
		options[flag.Name] = typedFlagValue(flagSet, flag)
	})
	return options
}

func typedFlagValue(flagSet *pflag.FlagSet, flag *pflag.Flag) any {
	switch flag.Value.Type() {
	case flagTypeIntConstant:
		if value, valueError := flagSet.GetInt(flag.Name); valueError == nil {
			return value
		}
	case flagTypeBoolConstant:
		if value, valueError := flagSet.GetBool(flag.Name); valueError == nil {
			return value
		}
	case flagTypeCountConstant:
		if value, valueError := flagSet.GetCount(flag.Name); valueError == nil {
			return value
		}
	case flagTypeStringConstant:
		if value, valueError := flagSet.GetString(flag.Name); valueError == nil {
			return value
		}
	case flagTypeStringSliceConstant:
		if value, valueError := flagSet.GetStringSlice(flag.Name); valueError == nil {
			return value
		}
	}
	return flag.Value.String()
}
