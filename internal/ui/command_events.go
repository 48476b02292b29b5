package ui

import (
	"fmt"

	"github.com/ego-devkit/ego/internal/execshell"
	"github.com/ego-devkit/ego/internal/output"
)

const (
	commandStartedMessageTemplateConstant          = "Running %s"
	commandCompletedMessageTemplateConstant        = "Completed %s"
	commandFailedExitCodeMessageTemplateConstant   = "%s failed with exit code %d"
	commandExecutionFailureMessageTemplateConstant = "%s failed: %s"
	unknownFailureMessageConstant                  = "unknown error"
)

// CommandEventPrinter reports command lifecycle events through the output
// channel. Start and success notifications are debug-gated; failures surface
// as warnings so they remain visible at the default verbosity.
type CommandEventPrinter struct {
	channel *output.Channel
}

// NewCommandEventPrinter constructs a printer backed by the provided channel.
func NewCommandEventPrinter(channel *output.Channel) *CommandEventPrinter {
	return &CommandEventPrinter{channel: channel}
}

// CommandStarted implements execshell.CommandEventObserver.
func (printer *CommandEventPrinter) CommandStarted(command execshell.ShellCommand) {
	if printer == nil || printer.channel == nil {
		return
	}
	printer.channel.Debug(fmt.Sprintf(commandStartedMessageTemplateConstant, command.Label()))
}

// CommandCompleted implements execshell.CommandEventObserver.
func (printer *CommandEventPrinter) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	if printer == nil || printer.channel == nil {
		return
	}
	if result.ExitCode == 0 {
		printer.channel.Debug(fmt.Sprintf(commandCompletedMessageTemplateConstant, command.Label()))
		return
	}
	printer.channel.Warning(fmt.Sprintf(commandFailedExitCodeMessageTemplateConstant, command.Label(), result.ExitCode))
}

// CommandExecutionFailed implements execshell.CommandEventObserver.
func (printer *CommandEventPrinter) CommandExecutionFailed(command execshell.ShellCommand, failure error) {
	if printer == nil || printer.channel == nil {
		return
	}
	failureMessage := unknownFailureMessageConstant
	if failure != nil {
		failureMessage = failure.Error()
	}
	printer.channel.Warning(fmt.Sprintf(commandExecutionFailureMessageTemplateConstant, command.Label(), failureMessage))
}
