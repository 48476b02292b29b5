package execshell

import (
	"fmt"
	"strings"
)

const (
	gitToolNameConstant                    = "git"
	commandArgumentsJoinSeparatorConstant  = " "
	workingDirectorySuffixTemplateConstant = " (in %s)"
	commandFailedTemplateConstant          = "%s failed with exit code %d%s"
	commandExecutionFailedTemplateConstant = "%s failed: %s"
	standardErrorSuffixTemplateConstant    = ": %s"
	unknownFailureMessageConstant          = "unknown error"
)

// CommandName identifies a supported external executable.
type CommandName string

// CommandGit names the external version-control tool.
const CommandGit CommandName = CommandName(gitToolNameConstant)

// CommandDetails describes a single tool invocation.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
	// StreamOutput forwards the tool's own console output to the process
	// streams in addition to capturing it. Quiet callers leave it unset.
	StreamOutput bool
}

// ShellCommand pairs an executable name with its invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable outcome of a completed command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// Label renders a human-readable identifier for the command.
func (command ShellCommand) Label() string {
	commandParts := []string{string(command.Name)}
	if len(command.Details.Arguments) > 0 {
		commandParts = append(commandParts, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	label := strings.Join(commandParts, commandArgumentsJoinSeparatorConstant)

	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return label
	}
	return label + fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

// CommandFailedError reports a command that completed with a non-zero exit code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error implements the error interface for CommandFailedError.
func (failure CommandFailedError) Error() string {
	standardErrorSuffix := ""
	trimmedStandardError := strings.TrimSpace(failure.Result.StandardError)
	if len(trimmedStandardError) > 0 {
		standardErrorSuffix = fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
	}
	return fmt.Sprintf(commandFailedTemplateConstant, failure.Command.Label(), failure.Result.ExitCode, standardErrorSuffix)
}

// CommandExecutionError reports a command that could not be executed at all.
type CommandExecutionError struct {
	Command ShellCommand
	Failure error
}

// Error implements the error interface for CommandExecutionError.
func (failure CommandExecutionError) Error() string {
	failureMessage := unknownFailureMessageConstant
	if failure.Failure != nil {
		failureMessage = failure.Failure.Error()
	}
	return fmt.Sprintf(commandExecutionFailedTemplateConstant, failure.Command.Label(), failureMessage)
}

// Unwrap exposes the underlying failure for errors.Is and errors.As.
func (failure CommandExecutionError) Unwrap() error {
	return failure.Failure
}
