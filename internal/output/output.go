package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ego-devkit/ego/internal/utils"
)

const (
	debugVerbosityThresholdConstant   = 1
	logVerbosityThresholdConstant     = 0
	warningVerbosityThresholdConstant = -1
	trailingNewlineConstant           = "\n"
	defaultVerbosityConstant          = 1
	// DefaultFatalExitCode is used by Fatal when no explicit code is supplied.
	DefaultFatalExitCode = 1
)

var (
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// ExitFunc terminates the current invocation with the supplied code.
type ExitFunc func(exitCode int)

// Options configures a Channel instance.
type Options struct {
	Verbosity      int
	StandardOutput io.Writer
	StandardError  io.Writer
	DisableColor   bool
	Exit           ExitFunc
}

// Channel gates human-readable messages by severity against a fixed verbosity
// level. The level is resolved once per invocation by the dispatcher and the
// instance is treated as immutable afterwards.
type Channel struct {
	verbosity      int
	standardOutput io.Writer
	standardError  io.Writer
	disableColor   bool
	exitFunc       ExitFunc
}

// NewChannel constructs a Channel from the supplied options, substituting the
// process streams and os.Exit when the corresponding fields are unset.
func NewChannel(options Options) *Channel {
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

	return &Channel{
		verbosity:      options.Verbosity,
		standardOutput: utils.NewFlushingWriter(standardOutput),
		standardError:  utils.NewFlushingWriter(standardError),
		disableColor:   options.DisableColor,
		exitFunc:       exitFunc,
	}
}

// NewDefaultChannel constructs a Channel at the default verbosity level.
func NewDefaultChannel() *Channel {
	return NewChannel(Options{Verbosity: defaultVerbosityConstant})
}

// Verbosity reports the resolved verbosity level for this invocation.
func (channel *Channel) Verbosity() int {
	return channel.verbosity
}

// Debug emits the message to standard output when verbosity exceeds one.
func (channel *Channel) Debug(message string) {
	if channel.verbosity > debugVerbosityThresholdConstant {
		channel.write(channel.standardOutput, ensureTrailingNewline(message))
	}
}

// Log emits the message to standard output when verbosity exceeds zero.
func (channel *Channel) Log(message string) {
	if channel.verbosity > logVerbosityThresholdConstant {
		channel.write(channel.standardOutput, ensureTrailingNewline(message))
	}
}

// Echo writes the message to standard output verbatim, without a forced
// trailing newline, when verbosity exceeds zero.
func (channel *Channel) Echo(message string) {
	if channel.verbosity > logVerbosityThresholdConstant {
		channel.write(channel.standardOutput, message)
	}
}

// Warning emits a colorized message to standard output when verbosity exceeds
// negative one.
func (channel *Channel) Warning(message string) {
	if channel.verbosity > warningVerbosityThresholdConstant {
		channel.write(channel.standardOutput, ensureTrailingNewline(channel.colorize(warningStyle, message)))
	}
}

// Error emits a colorized message to standard error when verbosity exceeds
// negative one.
func (channel *Channel) Error(message string) {
	if channel.verbosity > warningVerbosityThresholdConstant {
		channel.write(channel.standardError, ensureTrailingNewline(channel.colorize(errorStyle, message)))
	}
}

// Fatal emits the message through Error and terminates the invocation with
// DefaultFatalExitCode. It never returns under the default exit function.
func (channel *Channel) Fatal(message string) {
	channel.FatalWithCode(message, DefaultFatalExitCode)
}

// FatalWithCode emits the message through Error and terminates the invocation
// with the supplied exit code.
func (channel *Channel) FatalWithCode(message string, exitCode int) {
	channel.Error(message)
	channel.exitFunc(exitCode)
}

func (channel *Channel) colorize(style lipgloss.Style, message string) string {
	if channel.disableColor {
		return message
	}
	return style.Render(message)
}

func (channel *Channel) write(writer io.Writer, message string) {
	fmt.Fprint(writer, message)
}

// ensureTrailingNewline appends exactly one newline when the message does not
// already end with one.
func ensureTrailingNewline(message string) string {
	if strings.HasSuffix(message, trailingNewlineConstant) {
		return message
	}
	return message + trailingNewlineConstant
}
