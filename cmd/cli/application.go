package cli

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ego-devkit/ego/internal/dispatch"
	"github.com/ego-devkit/ego/internal/modreg"
	"github.com/ego-devkit/ego/internal/modules/listmod"
	"github.com/ego-devkit/ego/internal/modules/syncmod"
	"github.com/ego-devkit/ego/internal/utils"
	pathutils "github.com/ego-devkit/ego/internal/utils/path"
)

const (
	applicationNameConstant             = "ego"
	applicationVersionConstant          = "1.0.0"
	applicationShortDescriptionConstant = "Dispatcher for independently versioned command modules"
	applicationLongDescriptionConstant  = "ego resolves a command module by name, hands it the remaining arguments, and runs it with per-invocation output verbosity."
	applicationUsageTemplateConstant    = applicationNameConstant + " <module> [options]"

	configFileFlagNameConstant   = "config"
	configFileFlagUsageConstant  = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant     = "log-level"
	logLevelFlagUsageConstant    = "Override the configured log level."
	logFormatFlagNameConstant    = "log-format"
	logFormatFlagUsageConstant   = "Override the configured log format (structured or console)."
	installPathFlagNameConstant  = "install-path"
	installPathFlagUsageConstant = "Override the configured module installation root."

	commonConfigurationKeyConstant   = "common"
	commonLogLevelConfigKeyConstant  = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant = commonConfigurationKeyConstant + ".log_format"
	installPathConfigKeyConstant     = "install_path"

	environmentPrefixConstant               = "EGO"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	defaultConfigurationSearchPathConstant  = "/etc/ego"
	fallbackConfigurationSearchPathConstant = "."
	defaultInstallPathConstant              = "/usr/share/ego"

	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationInstallPathFieldConstant   = "install_path"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	moduleRegistrationErrorTemplateConstant = "unable to register module %q: %w"
	dispatcherCreationErrorTemplateConstant = "unable to create dispatcher: %w"

	moduleDispatchedMessageConstant = "module dispatched"
	logFieldModuleNameConstant      = "module_name"
	logFieldArgumentCountConstant   = "argument_count"

	reportedFailureMessageConstant = "failure already reported"
)

// ErrReportedFailure marks failures the dispatcher has already rendered for
// the user. Callers exit non-zero without printing the error a second time.
var ErrReportedFailure = errors.New(reportedFailureMessageConstant)

// ApplicationConfiguration describes the persisted configuration for the CLI
// entrypoint: shared logging settings, the module installation root, and one
// free-form settings block per module.
type ApplicationConfiguration struct {
	Common      ApplicationCommonConfiguration `mapstructure:"common"`
	InstallPath string                         `mapstructure:"install_path"`
	Modules     map[string]map[string]any      `mapstructure:"modules"`
}

// ApplicationCommonConfiguration stores logging configuration shared across modules.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Application wires the Cobra root command, configuration loader, module
// registry, and structured logger.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	loggerFactory          *utils.LoggerFactory
	logger                 *zap.Logger
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	configurationFilePath  string
	logLevelFlagValue      string
	logFormatFlagValue     string
	installPathFlagValue   string
	commandContextAccessor utils.CommandContextAccessor
	homeExpander           *pathutils.HomeExpander
	registry               *modreg.Registry
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() (*Application, error) {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		[]string{defaultConfigurationSearchPathConstant, fallbackConfigurationSearchPathConstant},
	)
	embeddedConfiguration, embeddedConfigurationType := EmbeddedDefaultConfiguration()
	configurationLoader.SetEmbeddedConfiguration(embeddedConfiguration, embeddedConfigurationType)

	application := &Application{
		configurationLoader:    configurationLoader,
		loggerFactory:          utils.NewLoggerFactory(),
		logger:                 zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
		homeExpander:           pathutils.NewHomeExpander(),
		registry:               modreg.NewRegistry(),
	}

	if registrationError := application.registerBuiltinModules(); registrationError != nil {
		return nil, registrationError
	}

	cobraCommand := &cobra.Command{
		Use:           applicationUsageTemplateConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		Version:       applicationVersionConstant,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}

	cobraCommand.SetContext(context.Background())
	// Module flags such as "sync --dest" belong to the module parser, not this
	// command, so flag parsing must stop at the module name.
	cobraCommand.Flags().SetInterspersed(false)
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.installPathFlagValue, installPathFlagNameConstant, "", installPathFlagUsageConstant)

	application.rootCommand = cobraCommand

	return application, nil
}

// Execute runs the configured Cobra command hierarchy and ensures logger flushing.
func (application *Application) Execute() error {
	executionError := application.rootCommand.Execute()
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	application, creationError := NewApplication()
	if creationError != nil {
		return creationError
	}
	return application.Execute()
}

func (application *Application) registerBuiltinModules() error {
	if registrationError := application.registry.Register(syncmod.ModuleName, syncmod.NewFactory()); registrationError != nil {
		return fmt.Errorf(moduleRegistrationErrorTemplateConstant, syncmod.ModuleName, registrationError)
	}
	if registrationError := application.registry.Register(listmod.ModuleName, listmod.NewFactory(application.registry)); registrationError != nil {
		return fmt.Errorf(moduleRegistrationErrorTemplateConstant, listmod.ModuleName, registrationError)
	}
	return nil
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:  string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant: string(utils.LogFormatStructured),
		installPathConfigKeyConstant:     defaultInstallPathConstant,
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}
	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}
	if application.persistentFlagChanged(command, installPathFlagNameConstant) {
		application.configuration.InstallPath = application.installPathFlagValue
	}
	application.configuration.InstallPath = application.homeExpander.Expand(application.configuration.InstallPath)

	logger, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = logger

	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationInstallPathFieldConstant, application.configuration.InstallPath),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)

	if command != nil {
		updatedContext := application.commandContextAccessor.WithConfigurationFilePath(
			command.Context(),
			application.configurationMetadata.ConfigFileUsed,
		)
		updatedContext = application.commandContextAccessor.WithInstallPath(
			updatedContext,
			application.configuration.InstallPath,
		)
		command.SetContext(updatedContext)
		if rootCommand := command.Root(); rootCommand != nil {
			rootCommand.SetContext(updatedContext)
		}
	}

	return nil
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	moduleName := listmod.ModuleName
	moduleArguments := []string{}
	if len(arguments) > 0 {
		moduleName = arguments[0]
		moduleArguments = arguments[1:]
	}

	installPath, installPathStored := application.commandContextAccessor.InstallPath(command.Context())
	if !installPathStored {
		installPath = application.configuration.InstallPath
	}
	activeConfigurationFile, _ := application.commandContextAccessor.ConfigurationFilePath(command.Context())

	application.logger.Debug(
		moduleDispatchedMessageConstant,
		zap.String(logFieldModuleNameConstant, moduleName),
		zap.Int(logFieldArgumentCountConstant, len(moduleArguments)),
		zap.String(configurationFileFieldConstant, activeConfigurationFile),
		zap.String(configurationInstallPathFieldConstant, installPath),
	)

	dispatcher, dispatcherCreationError := dispatch.NewDispatcher(dispatch.Options{
		Registry:       application.registry,
		ProgramVersion: applicationVersionConstant,
		Logger:         application.logger,
		StandardOutput: command.OutOrStdout(),
		StandardError:  command.ErrOrStderr(),
	})
	if dispatcherCreationError != nil {
		return fmt.Errorf(dispatcherCreationErrorTemplateConstant, dispatcherCreationError)
	}

	runError := dispatcher.Run(
		command.Context(),
		installPath,
		moduleName,
		application.configuration.Modules[moduleName],
		moduleArguments,
	)
	if errors.Is(runError, modreg.ErrModuleNotFound) {
		// The dispatcher already printed the uniform not-found line.
		return fmt.Errorf("%w: %w", ErrReportedFailure, runError)
	}
	return runError
}

func (application *Application) flushLogger() error {
	return application.syncLoggerInstance(application.logger)
}

func (application *Application) syncLoggerInstance(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}

	syncError := logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}
