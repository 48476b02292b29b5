package gitsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ego-devkit/ego/internal/execshell"
)

const (
	gitMetadataDirectoryNameConstant     = ".git"
	fetchMarkerFileNameConstant          = "FETCH_HEAD"
	defaultRemoteNameConstant            = "origin"
	defaultBranchNameConstant            = "master"
	defaultCloneDepthConstant            = 1
	localPathRequiredMessageConstant     = "local path must be provided"
	executorNotConfiguredMessageConstant = "git executor not configured"
	reporterNotConfiguredMessageConstant = "fatal reporter not configured"
	revisionUnavailableMessageConstant   = "no revision could be resolved"
	neverSynchronizedMessageConstant     = "repository has never been synchronized"
	readOnlyFatalTemplateConstant        = "Repository at %s is read-only. Cannot update."
	gitForEachRefSubcommandConstant      = "for-each-ref"
	gitForEachRefFormatFlagConstant      = "--format=%(refname)"
	gitLocalBranchNamespaceConstant      = "refs/heads"
	gitShowRefSubcommandConstant         = "show-ref"
	gitVerifyFlagConstant                = "--verify"
	gitQuietFlagConstant                 = "--quiet"
	gitCloneSubcommandConstant           = "clone"
	gitBranchFlagConstant                = "-b"
	gitCloneDepthFlagTemplateConstant    = "--depth=%d"
	gitSingleBranchFlagConstant          = "--single-branch"
	gitRemoteSubcommandConstant          = "remote"
	gitSetBranchesSubcommandConstant     = "set-branches"
	gitAddFlagConstant                   = "--add"
	gitFetchSubcommandConstant           = "fetch"
	gitFetchRefspecTemplateConstant      = "refs/heads/%s:refs/remotes/%s/%s"
	gitPullSubcommandConstant            = "pull"
	gitResetSubcommandConstant           = "reset"
	gitCleanSubcommandConstant           = "clean"
	gitCheckoutSubcommandConstant        = "checkout"
	gitRevParseSubcommandConstant        = "rev-parse"
	gitHeadReferenceConstant             = "HEAD"
	localBranchReferenceTemplateConstant = "refs/heads/%s"
	referencePathSeparatorConstant       = "/"
)

// ErrLocalPathRequired indicates the repository was constructed without a path.
var ErrLocalPathRequired = errors.New(localPathRequiredMessageConstant)

// ErrExecutorNotConfigured indicates the git executor dependency was missing.
var ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)

// ErrReporterNotConfigured indicates the fatal reporter dependency was missing.
var ErrReporterNotConfigured = errors.New(reporterNotConfiguredMessageConstant)

// ErrRevisionUnavailable signals that the current revision could not be
// resolved, for example in an empty repository.
var ErrRevisionUnavailable = errors.New(revisionUnavailableMessageConstant)

// ErrNeverSynced signals that no fetch marker exists because no fetch has
// ever completed for the working copy.
var ErrNeverSynced = errors.New(neverSynchronizedMessageConstant)

// GitExecutor exposes the subset of shell execution used by repository operations.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// FatalReporter escalates unrecoverable user-facing failures. The output
// channel satisfies this interface.
type FatalReporter interface {
	Fatal(message string)
}

// Options configures a Repository handle.
type Options struct {
	LocalPath string
	// Quiet suppresses the external tool's own console output. It never
	// suppresses the repository's error signaling.
	Quiet    bool
	Executor GitExecutor
	Reporter FatalReporter
	// Probe overrides the default marker-file writability probe.
	Probe WritabilityProbe
}

// Repository wraps whole-repository operations against one local working
// copy. It carries no mutable state beyond its configuration; every query
// re-derives its answer from the on-disk state.
type Repository struct {
	localPath string
	quiet     bool
	executor  GitExecutor
	reporter  FatalReporter
	probe     WritabilityProbe
}

// NewRepository validates dependencies and constructs a Repository handle.
func NewRepository(options Options) (*Repository, error) {
	trimmedLocalPath := strings.TrimSpace(options.LocalPath)
	if len(trimmedLocalPath) == 0 {
		return nil, ErrLocalPathRequired
	}
	if options.Executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	if options.Reporter == nil {
		return nil, ErrReporterNotConfigured
	}

	probe := options.Probe
	if probe == nil {
		probe = NewMarkerFileProbe()
	}

	return &Repository{
		localPath: trimmedLocalPath,
		quiet:     options.Quiet,
		executor:  options.Executor,
		reporter:  options.Reporter,
		probe:     probe,
	}, nil
}

// LocalPath reports the working copy location.
func (repository *Repository) LocalPath() string {
	return repository.localPath
}

// Exists reports whether the local path is present on disk.
func (repository *Repository) Exists() bool {
	_, statError := os.Stat(repository.localPath)
	return statError == nil
}

// IsGitRepo reports whether the local path contains the repository metadata
// directory.
func (repository *Repository) IsGitRepo() bool {
	_, statError := os.Stat(filepath.Join(repository.localPath, gitMetadataDirectoryNameConstant))
	return statError == nil
}

// IsReadOnly runs the writability probe against the working copy.
func (repository *Repository) IsReadOnly() bool {
	return repository.probe.IsReadOnly(repository.localPath)
}

// LocalBranches lists the local branch names. The result is re-derived from
// the on-disk state on every call; a missing path or failing tool yields an
// empty list.
func (repository *Repository) LocalBranches(executionContext context.Context) ([]string, error) {
	if !repository.Exists() {
		return nil, nil
	}

	executionResult, executionError := repository.executor.ExecuteGit(executionContext, repository.queryDetails(
		gitForEachRefSubcommandConstant, gitForEachRefFormatFlagConstant, gitLocalBranchNamespaceConstant,
	))
	if executionError != nil {
		if isCommandFailure(executionError) {
			return nil, nil
		}
		return nil, executionError
	}

	var branchNames []string
	for _, referenceName := range strings.Fields(executionResult.StandardOutput) {
		referenceSegments := strings.Split(referenceName, referencePathSeparatorConstant)
		branchNames = append(branchNames, referenceSegments[len(referenceSegments)-1])
	}
	return branchNames, nil
}

// LocalBranchExists verifies that a local branch reference exists.
func (repository *Repository) LocalBranchExists(executionContext context.Context, branchName string) bool {
	_, executionError := repository.executor.ExecuteGit(executionContext, repository.queryDetails(
		gitShowRefSubcommandConstant, gitVerifyFlagConstant, gitQuietFlagConstant,
		fmt.Sprintf(localBranchReferenceTemplateConstant, branchName),
	))
	return executionError == nil
}

// ShallowClone clones a single branch at bounded history depth into the local
// path. The clone runs without a working directory because the path does not
// exist yet.
func (repository *Repository) ShallowClone(executionContext context.Context, repositoryURL string, branchName string, depth int) (bool, error) {
	if depth <= 0 {
		depth = defaultCloneDepthConstant
	}

	_, executionError := repository.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments: []string{
			gitCloneSubcommandConstant,
			gitBranchFlagConstant, branchName,
			fmt.Sprintf(gitCloneDepthFlagTemplateConstant, depth),
			gitSingleBranchFlagConstant,
			repositoryURL,
			repository.localPath,
		},
		StreamOutput: !repository.quiet,
	})
	return classifyMutationResult(executionError)
}

// FetchRemote registers the branch for sparse fetching and fetches it into
// the matching remote-tracking reference.
func (repository *Repository) FetchRemote(executionContext context.Context, branchName string, remoteName string) (bool, error) {
	if len(remoteName) == 0 {
		remoteName = defaultRemoteNameConstant
	}
	if !repository.ensureWritable() {
		return false, nil
	}

	// The sparse-fetch registration is advisory; the fetch below decides success.
	_, _ = repository.executor.ExecuteGit(executionContext, repository.mutationDetails(
		gitRemoteSubcommandConstant, gitSetBranchesSubcommandConstant, gitAddFlagConstant, remoteName, branchName,
	))

	_, executionError := repository.executor.ExecuteGit(executionContext, repository.mutationDetails(
		gitFetchSubcommandConstant, remoteName,
		fmt.Sprintf(gitFetchRefspecTemplateConstant, branchName, remoteName, branchName),
	))
	return classifyMutationResult(executionError)
}

// Pull forwards the free-form option tokens to a whole-repository pull.
func (repository *Repository) Pull(executionContext context.Context, options []string) (bool, error) {
	return repository.guardedMutation(executionContext, gitPullSubcommandConstant, options)
}

// Reset forwards the free-form option tokens to a whole-repository reset.
func (repository *Repository) Reset(executionContext context.Context, options []string) (bool, error) {
	return repository.guardedMutation(executionContext, gitResetSubcommandConstant, options)
}

// Clean forwards the free-form option tokens to a whole-repository clean.
func (repository *Repository) Clean(executionContext context.Context, options []string) (bool, error) {
	return repository.guardedMutation(executionContext, gitCleanSubcommandConstant, options)
}

// Checkout checks out the branch, optionally qualified by an origin. Checkout
// deliberately skips the read-only guard that the other mutations perform.
func (repository *Repository) Checkout(executionContext context.Context, branchName string, originName string) (bool, error) {
	if len(branchName) == 0 {
		branchName = defaultBranchNameConstant
	}

	checkoutArguments := []string{gitCheckoutSubcommandConstant}
	if len(originName) > 0 {
		checkoutArguments = append(checkoutArguments, originName)
	}
	checkoutArguments = append(checkoutArguments, branchName)

	_, executionError := repository.executor.ExecuteGit(executionContext, repository.mutationDetails(checkoutArguments...))
	return classifyMutationResult(executionError)
}

// CommitID resolves the current revision. Resolution failure surfaces as
// ErrRevisionUnavailable rather than a fabricated value.
func (repository *Repository) CommitID(executionContext context.Context) (string, error) {
	executionResult, executionError := repository.executor.ExecuteGit(executionContext, repository.queryDetails(
		gitRevParseSubcommandConstant, gitHeadReferenceConstant,
	))
	if executionError != nil {
		if isCommandFailure(executionError) {
			return "", ErrRevisionUnavailable
		}
		return "", executionError
	}

	revisionLines := strings.Split(strings.TrimSpace(executionResult.StandardOutput), "\n")
	revision := strings.TrimSpace(revisionLines[0])
	if len(revision) == 0 {
		return "", ErrRevisionUnavailable
	}
	return revision, nil
}

// LastSync reads the fetch marker's modification time. ErrNeverSynced is
// returned when no fetch has ever completed.
func (repository *Repository) LastSync() (time.Time, error) {
	markerInfo, statError := os.Stat(filepath.Join(repository.localPath, gitMetadataDirectoryNameConstant, fetchMarkerFileNameConstant))
	if statError != nil {
		if os.IsNotExist(statError) {
			return time.Time{}, ErrNeverSynced
		}
		return time.Time{}, statError
	}
	return markerInfo.ModTime(), nil
}

// ensureWritable runs the read-only guard and escalates a fatal error naming
// the path when it trips. Mutations must stop when it reports false.
func (repository *Repository) ensureWritable() bool {
	if repository.IsReadOnly() {
		repository.reporter.Fatal(fmt.Sprintf(readOnlyFatalTemplateConstant, repository.localPath))
		return false
	}
	return true
}

func (repository *Repository) guardedMutation(executionContext context.Context, subcommand string, options []string) (bool, error) {
	if !repository.ensureWritable() {
		return false, nil
	}

	mutationArguments := append([]string{subcommand}, options...)
	_, executionError := repository.executor.ExecuteGit(executionContext, repository.mutationDetails(mutationArguments...))
	return classifyMutationResult(executionError)
}

// queryDetails builds capture-only invocation details for read-only operations.
func (repository *Repository) queryDetails(arguments ...string) execshell.CommandDetails {
	return execshell.CommandDetails{Arguments: arguments, WorkingDirectory: repository.localPath}
}

// mutationDetails builds invocation details that stream the tool's own output
// unless the handle was configured quiet.
func (repository *Repository) mutationDetails(arguments ...string) execshell.CommandDetails {
	return execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: repository.localPath,
		StreamOutput:     !repository.quiet,
	}
}

// classifyMutationResult maps a non-zero tool exit onto a false result while
// letting execution-level failures propagate as errors.
func classifyMutationResult(executionError error) (bool, error) {
	if executionError == nil {
		return true, nil
	}
	if isCommandFailure(executionError) {
		return false, nil
	}
	return false, executionError
}

func isCommandFailure(executionError error) bool {
	commandFailure := execshell.CommandFailedError{}
	return errors.As(executionError, &commandFailure)
}
