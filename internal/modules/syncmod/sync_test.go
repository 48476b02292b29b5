package syncmod_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ego-devkit/ego/internal/execshell"
	"github.com/ego-devkit/ego/internal/modreg"
	"github.com/ego-devkit/ego/internal/modules/syncmod"
	"github.com/ego-devkit/ego/internal/output"
)

const (
	testInstallPathConstant   = "/usr/share/ego"
	testRepositoryURLConstant = "https://github.com/funtoo/meta-repo"
	testRevisionConstant      = "9a2f6c1d8e0b7a5c4d3e"
)

type scriptedRunner struct {
	commands []execshell.ShellCommand
	respond  func(command execshell.ShellCommand) (execshell.ExecutionResult, error)
}

func (runner *scriptedRunner) Run(_ context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	runner.commands = append(runner.commands, command)
	if runner.respond == nil {
		return execshell.ExecutionResult{}, nil
	}
	return runner.respond(command)
}

func (runner *scriptedRunner) subcommands() []string {
	var names []string
	for _, command := range runner.commands {
		if len(command.Details.Arguments) > 0 {
			names = append(names, command.Details.Arguments[0])
		}
	}
	return names
}

func revisionRespond(command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	if len(command.Details.Arguments) > 0 && command.Details.Arguments[0] == "rev-parse" {
		return execshell.ExecutionResult{StandardOutput: testRevisionConstant + "\n"}, nil
	}
	return execshell.ExecutionResult{}, nil
}

type moduleFixture struct {
	module         modreg.Module
	runner         *scriptedRunner
	flagSet        *pflag.FlagSet
	standardOutput *bytes.Buffer
	standardError  *bytes.Buffer
	verbosity      int
}

func newModuleFixture(t *testing.T, settings map[string]any) *moduleFixture {
	t.Helper()

	fixture := &moduleFixture{
		runner:         &scriptedRunner{},
		flagSet:        pflag.NewFlagSet(syncmod.ModuleName, pflag.ContinueOnError),
		standardOutput: &bytes.Buffer{},
		standardError:  &bytes.Buffer{},
		verbosity:      1,
	}

	factory := syncmod.NewFactoryWithRunner(fixture.runner)
	module, constructionError := factory(syncmod.ModuleName, testInstallPathConstant, settings)
	require.NoError(t, constructionError)
	fixture.module = module
	module.RegisterFlags(fixture.flagSet)
	return fixture
}

func (fixture *moduleFixture) handle(t *testing.T, commandArguments ...string) error {
	t.Helper()

	require.NoError(t, fixture.flagSet.Parse(commandArguments))
	invocation := &modreg.Invocation{
		InstallPath: testInstallPathConstant,
		Output: output.NewChannel(output.Options{
			Verbosity:      fixture.verbosity,
			StandardOutput: fixture.standardOutput,
			StandardError:  fixture.standardError,
			DisableColor:   true,
			Exit:           func(int) {},
		}),
		Logger: zap.NewNop(),
	}
	return fixture.module.Handle(context.Background(), invocation)
}

func TestSyncModuleDeclaresVersion(t *testing.T) {
	fixture := newModuleFixture(t, nil)
	require.NotEmpty(t, fixture.module.Version())
}

func TestSyncModuleRequiresDestination(t *testing.T) {
	fixture := newModuleFixture(t, nil)
	handleError := fixture.handle(t)
	require.ErrorIs(t, handleError, syncmod.ErrDestinationNotConfigured)
	require.Empty(t, fixture.runner.commands)
}

func TestSyncModuleRequiresURLForInitialClone(t *testing.T) {
	fixture := newModuleFixture(t, nil)
	handleError := fixture.handle(t, "--dest", filepath.Join(t.TempDir(), "working-copy"))
	require.ErrorIs(t, handleError, syncmod.ErrRepositoryURLNotConfigured)
	require.Empty(t, fixture.runner.commands)
}

func TestSyncModuleClonesWhenNoWorkingCopyExists(t *testing.T) {
	fixture := newModuleFixture(t, nil)
	fixture.runner.respond = revisionRespond
	destination := filepath.Join(t.TempDir(), "working-copy")

	handleError := fixture.handle(t,
		"--dest", destination,
		"--url", testRepositoryURLConstant,
		"--branch", "main",
		"--depth", "3",
	)
	require.NoError(t, handleError)

	require.Equal(t, []string{"clone", "rev-parse"}, fixture.runner.subcommands())
	require.Equal(t, []string{
		"clone", "-b", "main", "--depth=3", "--single-branch",
		testRepositoryURLConstant, destination,
	}, fixture.runner.commands[0].Details.Arguments)

	renderedOutput := fixture.standardOutput.String()
	require.Contains(t, renderedOutput, "Cloning "+testRepositoryURLConstant)
	require.Contains(t, renderedOutput, "Now at commit "+testRevisionConstant)
	require.Contains(t, renderedOutput, "Last sync: never.")
}

func TestSyncModuleUpdatesExistingWorkingCopy(t *testing.T) {
	fixture := newModuleFixture(t, nil)
	fixture.runner.respond = revisionRespond
	destination := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(destination, ".git"), 0o755))

	handleError := fixture.handle(t, "--dest", destination, "--branch", "main")
	require.NoError(t, handleError)

	require.Equal(t, []string{"remote", "fetch", "checkout", "rev-parse"}, fixture.runner.subcommands())
	require.Equal(t,
		[]string{"fetch", "origin", "refs/heads/main:refs/remotes/origin/main"},
		fixture.runner.commands[1].Details.Arguments,
	)
	require.Equal(t, []string{"checkout", "main"}, fixture.runner.commands[2].Details.Arguments)
	require.Contains(t, fixture.standardOutput.String(), "Updating repository at "+destination)
}

func TestSyncModuleReportsFetchFailure(t *testing.T) {
	fixture := newModuleFixture(t, nil)
	fixture.runner.respond = func(command execshell.ShellCommand) (execshell.ExecutionResult, error) {
		if command.Details.Arguments[0] == "fetch" {
			return execshell.ExecutionResult{ExitCode: 1}, nil
		}
		return execshell.ExecutionResult{}, nil
	}
	destination := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(destination, ".git"), 0o755))

	handleError := fixture.handle(t, "--dest", destination)
	require.ErrorIs(t, handleError, syncmod.ErrSynchronizationFailed)
	require.Equal(t, []string{"remote", "fetch"}, fixture.runner.subcommands())
}

func TestSyncModuleSeedsFlagDefaultsFromSettings(t *testing.T) {
	destination := filepath.Join(t.TempDir(), "working-copy")
	fixture := newModuleFixture(t, map[string]any{
		"dest":   destination,
		"url":    testRepositoryURLConstant,
		"branch": "stable",
		"depth":  float64(2),
	})
	fixture.runner.respond = revisionRespond

	handleError := fixture.handle(t)
	require.NoError(t, handleError)
	require.Equal(t, []string{
		"clone", "-b", "stable", "--depth=2", "--single-branch",
		testRepositoryURLConstant, destination,
	}, fixture.runner.commands[0].Details.Arguments)
}

func TestSyncModuleQuietInvocationSuppressesToolStreaming(t *testing.T) {
	testCases := []struct {
		name           string
		verbosity      int
		expectedStream bool
	}{
		{name: "QuietInvocation", verbosity: 0, expectedStream: false},
		{name: "DefaultInvocation", verbosity: 1, expectedStream: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			fixture := newModuleFixture(t, nil)
			fixture.verbosity = testCase.verbosity
			destination := filepath.Join(t.TempDir(), "working-copy")

			handleError := fixture.handle(t, "--dest", destination, "--url", testRepositoryURLConstant)
			require.NoError(t, handleError)
			require.Equal(t, testCase.expectedStream, fixture.runner.commands[0].Details.StreamOutput)
		})
	}
}
