package execshell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

const (
	environmentAssignmentSeparatorConstant = "="
	environmentAssignmentTemplateConstant  = "%s%s%s"
)

// OSCommandRunner executes commands using the operating system facilities.
type OSCommandRunner struct {
	consoleOutput io.Writer
	consoleError  io.Writer
}

// NewOSCommandRunner constructs a runner backed by os/exec that streams
// non-quiet command output to the process streams.
func NewOSCommandRunner() *OSCommandRunner {
	return &OSCommandRunner{consoleOutput: os.Stdout, consoleError: os.Stderr}
}

// NewOSCommandRunnerWithConsole constructs a runner streaming non-quiet
// command output to the provided writers.
func NewOSCommandRunnerWithConsole(consoleOutput io.Writer, consoleError io.Writer) *OSCommandRunner {
	runner := NewOSCommandRunner()
	if consoleOutput != nil {
		runner.consoleOutput = consoleOutput
	}
	if consoleError != nil {
		runner.consoleError = consoleError
	}
	return runner
}

// Run executes the supplied command using os/exec.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	commandArguments := append([]string{}, command.Details.Arguments...)
	executable := exec.CommandContext(executionContext, string(command.Name), commandArguments...)

	if len(command.Details.WorkingDirectory) > 0 {
		executable.Dir = command.Details.WorkingDirectory
	}

	if len(command.Details.EnvironmentVariables) > 0 {
		mergedEnvironment := append([]string{}, os.Environ()...)
		for environmentKey, environmentValue := range command.Details.EnvironmentVariables {
			mergedEnvironment = append(mergedEnvironment, fmt.Sprintf(environmentAssignmentTemplateConstant, environmentKey, environmentAssignmentSeparatorConstant, environmentValue))
		}
		executable.Env = mergedEnvironment
	}

	var standardOutputBuffer bytes.Buffer
	var standardErrorBuffer bytes.Buffer
	executable.Stdout = runner.captureWriter(&standardOutputBuffer, runner.consoleOutput, command.Details.StreamOutput)
	executable.Stderr = runner.captureWriter(&standardErrorBuffer, runner.consoleError, command.Details.StreamOutput)

	if len(command.Details.StandardInput) > 0 {
		executable.Stdin = bytes.NewReader(command.Details.StandardInput)
	}

	runError := executable.Run()
	if runError != nil {
		exitError := &exec.ExitError{}
		if errors.As(runError, &exitError) {
			return ExecutionResult{
				StandardOutput: standardOutputBuffer.String(),
				StandardError:  standardErrorBuffer.String(),
				ExitCode:       exitError.ExitCode(),
			}, nil
		}
		return ExecutionResult{}, runError
	}

	return ExecutionResult{
		StandardOutput: standardOutputBuffer.String(),
		StandardError:  standardErrorBuffer.String(),
		ExitCode:       0,
	}, nil
}

func (runner *OSCommandRunner) captureWriter(captureBuffer *bytes.Buffer, consoleWriter io.Writer, streamOutput bool) io.Writer {
	if streamOutput && consoleWriter != nil {
		return io.MultiWriter(captureBuffer, consoleWriter)
	}
	return captureBuffer
}
