package syncmod

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/ego-devkit/ego/internal/execshell"
	"github.com/ego-devkit/ego/internal/gitsync"
	"github.com/ego-devkit/ego/internal/modreg"
	"github.com/ego-devkit/ego/internal/ui"
)

const (
	// ModuleName is the registered command name for this module.
	ModuleName = "sync"

	moduleVersionConstant = "1.0.0"

	destinationFlagNameConstant   = "dest"
	repositoryURLFlagNameConstant = "url"
	branchFlagNameConstant        = "branch"
	depthFlagNameConstant         = "depth"

	destinationFlagUsageConstant   = "local working copy path"
	repositoryURLFlagUsageConstant = "upstream repository URL"
	branchFlagUsageConstant        = "branch to synchronize"
	depthFlagUsageConstant         = "history depth for the initial clone"

	defaultBranchNameConstant = "master"
	defaultCloneDepthConstant = 1

	quietVerbosityThresholdConstant = 1

	destinationNotConfiguredMessageConstant   = "sync destination not configured"
	repositoryURLNotConfiguredMessageConstant = "sync repository URL not configured"
	synchronizationFailedMessageConstant      = "repository synchronization failed"

	cloningMessageTemplateConstant  = "Cloning %s (branch %s) into %s."
	updatingMessageTemplateConstant = "Updating repository at %s."
	revisionMessageTemplateConstant = "Now at commit %s."
	lastSyncMessageTemplateConstant = "Last sync: %s."
	neverSyncedMessageConstant      = "Last sync: never."

	lastSyncTimeLayoutConstant = time.RFC1123
)

// ErrDestinationNotConfigured indicates no destination path was supplied by
// flag or configuration.
var ErrDestinationNotConfigured = errors.New(destinationNotConfiguredMessageConstant)

// ErrRepositoryURLNotConfigured indicates no upstream URL was supplied by flag
// or configuration.
var ErrRepositoryURLNotConfigured = errors.New(repositoryURLNotConfiguredMessageConstant)

// ErrSynchronizationFailed indicates the underlying repository operation
// reported failure.
var ErrSynchronizationFailed = errors.New(synchronizationFailedMessageConstant)

// Module synchronizes one upstream repository into a local working copy. A
// fresh instance is constructed per invocation by its Factory.
type Module struct {
	settings map[string]any
	runner   execshell.CommandRunner

	destinationFlag   *string
	repositoryURLFlag *string
	branchFlag        *string
	depthFlag         *int
}

// NewFactory returns a module factory backed by the operating system command
// runner.
func NewFactory() modreg.Factory {
	return NewFactoryWithRunner(execshell.NewOSCommandRunner())
}

// NewFactoryWithRunner returns a module factory that executes repository
// operations through the supplied runner.
func NewFactoryWithRunner(runner execshell.CommandRunner) modreg.Factory {
	return func(_ string, _ string, settings map[string]any) (modreg.Module, error) {
		return &Module{settings: settings, runner: runner}, nil
	}
}

// Version reports the module version used by the dispatcher's version banner.
func (module *Module) Version() string {
	return moduleVersionConstant
}

// RegisterFlags declares the module flags, seeding their defaults from the
// module's configuration settings.
func (module *Module) RegisterFlags(flagSet *pflag.FlagSet) {
	module.destinationFlag = flagSet.String(destinationFlagNameConstant, stringSetting(module.settings, destinationFlagNameConstant, ""), destinationFlagUsageConstant)
	module.repositoryURLFlag = flagSet.String(repositoryURLFlagNameConstant, stringSetting(module.settings, repositoryURLFlagNameConstant, ""), repositoryURLFlagUsageConstant)
	module.branchFlag = flagSet.String(branchFlagNameConstant, stringSetting(module.settings, branchFlagNameConstant, defaultBranchNameConstant), branchFlagUsageConstant)
	module.depthFlag = flagSet.Int(depthFlagNameConstant, intSetting(module.settings, depthFlagNameConstant, defaultCloneDepthConstant), depthFlagUsageConstant)
}

// Handle clones the upstream when no working copy exists yet, and otherwise
// fetches and checks out the configured branch. It reports the resulting
// commit and last-sync time through the invocation's output channel.
func (module *Module) Handle(executionContext context.Context, invocation *modreg.Invocation) error {
	destination := module.resolvedDestination()
	if len(destination) == 0 {
		return ErrDestinationNotConfigured
	}
	repositoryURL := module.resolvedRepositoryURL()
	branchName := module.resolvedBranch()

	executor, executorError := execshell.NewShellExecutor(invocation.Logger, module.runner)
	if executorError != nil {
		return executorError
	}
	executor.SetEventObserver(ui.NewCommandEventPrinter(invocation.Output))

	repository, repositoryError := gitsync.NewRepository(gitsync.Options{
		LocalPath: destination,
		Quiet:     invocation.Output.Verbosity() < quietVerbosityThresholdConstant,
		Executor:  executor,
		Reporter:  invocation.Output,
	})
	if repositoryError != nil {
		return repositoryError
	}

	if repository.IsGitRepo() {
		invocation.Output.Log(fmt.Sprintf(updatingMessageTemplateConstant, destination))
		if synchronizationError := module.update(executionContext, repository, branchName); synchronizationError != nil {
			return synchronizationError
		}
	} else {
		if len(repositoryURL) == 0 {
			return ErrRepositoryURLNotConfigured
		}
		invocation.Output.Log(fmt.Sprintf(cloningMessageTemplateConstant, repositoryURL, branchName, destination))
		cloneSucceeded, cloneError := repository.ShallowClone(executionContext, repositoryURL, branchName, module.resolvedDepth())
		if cloneError != nil {
			return cloneError
		}
		if !cloneSucceeded {
			return ErrSynchronizationFailed
		}
	}

	module.reportState(executionContext, repository, invocation)
	return nil
}

func (module *Module) update(executionContext context.Context, repository *gitsync.Repository, branchName string) error {
	fetchSucceeded, fetchError := repository.FetchRemote(executionContext, branchName, "")
	if fetchError != nil {
		return fetchError
	}
	if !fetchSucceeded {
		return ErrSynchronizationFailed
	}

	checkoutSucceeded, checkoutError := repository.Checkout(executionContext, branchName, "")
	if checkoutError != nil {
		return checkoutError
	}
	if !checkoutSucceeded {
		return ErrSynchronizationFailed
	}
	return nil
}

// reportState surfaces the post-sync commit and fetch marker. Absence of
// either is informational, not a failure.
func (module *Module) reportState(executionContext context.Context, repository *gitsync.Repository, invocation *modreg.Invocation) {
	revision, revisionError := repository.CommitID(executionContext)
	if revisionError == nil {
		invocation.Output.Log(fmt.Sprintf(revisionMessageTemplateConstant, revision))
	}

	lastSyncTime, lastSyncError := repository.LastSync()
	switch {
	case lastSyncError == nil:
		invocation.Output.Log(fmt.Sprintf(lastSyncMessageTemplateConstant, lastSyncTime.Format(lastSyncTimeLayoutConstant)))
	case errors.Is(lastSyncError, gitsync.ErrNeverSynced):
		invocation.Output.Log(neverSyncedMessageConstant)
	}
}

func (module *Module) resolvedDestination() string {
	if module.destinationFlag != nil {
		return *module.destinationFlag
	}
	return stringSetting(module.settings, destinationFlagNameConstant, "")
}

func (module *Module) resolvedRepositoryURL() string {
	if module.repositoryURLFlag != nil {
		return *module.repositoryURLFlag
	}
	return stringSetting(module.settings, repositoryURLFlagNameConstant, "")
}

func (module *Module) resolvedBranch() string {
	if module.branchFlag != nil {
		return *module.branchFlag
	}
	return stringSetting(module.settings, branchFlagNameConstant, defaultBranchNameConstant)
}

func (module *Module) resolvedDepth() int {
	if module.depthFlag != nil {
		return *module.depthFlag
	}
	return intSetting(module.settings, depthFlagNameConstant, defaultCloneDepthConstant)
}

// stringSetting reads a string-valued configuration setting with a fallback.
func stringSetting(settings map[string]any, settingName string, fallbackValue string) string {
	if rawValue, found := settings[settingName]; found {
		if stringValue, isString := rawValue.(string); isString {
			return stringValue
		}
	}
	return fallbackValue
}

// intSetting reads an integer-valued configuration setting with a fallback.
// JSON and YAML decoders disagree on numeric types, so several are accepted.
func intSetting(settings map[string]any, settingName string, fallbackValue int) int {
	rawValue, found := settings[settingName]
	if !found {
		return fallbackValue
	}
	switch typedValue := rawValue.(type) {
	case int:
		return typedValue
	case int64:
		return int(typedValue)
	case float64:
		return int(typedValue)
	default:
		return fallbackValue
	}
}
