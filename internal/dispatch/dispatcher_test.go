package dispatch_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/ego-devkit/ego/internal/dispatch"
	"github.com/ego-devkit/ego/internal/modreg"
	"github.com/ego-devkit/ego/internal/output"
)

const (
	testModuleNameConstant       = "sync"
	testProgramVersionConstant   = "2.8.0"
	testModuleVersionConstant    = "1.2.0"
	testModuleAuthorConstant     = "Daniel"
	testModuleFlagNameConstant   = "dest"
	testModuleFlagValueConstant  = "/var/git/meta-repo"
	testDepthFlagNameConstant    = "depth"
	testAbsentModuleNameConstant = "missing"
)

type recordingModule struct {
	version             string
	destinationFlag     string
	depthFlag           int
	handledInvocations  []*modreg.Invocation
	observedVerbosities []int
}

func (module *recordingModule) Version() string {
	return module.version
}

func (module *recordingModule) RegisterFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&module.destinationFlag, testModuleFlagNameConstant, "", "Destination directory")
	flagSet.IntVar(&module.depthFlag, testDepthFlagNameConstant, 1, "History depth")
}

func (module *recordingModule) Handle(_ context.Context, invocation *modreg.Invocation) error {
	module.handledInvocations = append(module.handledInvocations, invocation)
	module.observedVerbosities = append(module.observedVerbosities, invocation.Output.Verbosity())
	return nil
}

type dispatcherFixture struct {
	dispatcher     *dispatch.Dispatcher
	module         *recordingModule
	standardOutput *bytes.Buffer
	standardError  *bytes.Buffer
	exitCodes      []int
	installRoot    string
}

func newDispatcherFixture(t *testing.T, moduleVersion string) *dispatcherFixture {
	t.Helper()

	fixture := &dispatcherFixture{
		module:         &recordingModule{version: moduleVersion},
		standardOutput: &bytes.Buffer{},
		standardError:  &bytes.Buffer{},
		installRoot:    t.TempDir(),
	}

	registry := modreg.NewRegistry()
	require.NoError(t, registry.Register(testModuleNameConstant, func(string, string, map[string]any) (modreg.Module, error) {
		return fixture.module, nil
	}))

	dispatcher, creationError := dispatch.NewDispatcher(dispatch.Options{
		Registry:       registry,
		ProgramVersion: testProgramVersionConstant,
		StandardOutput: fixture.standardOutput,
		StandardError:  fixture.standardError,
		DisableColor:   true,
		Exit: func(exitCode int) {
			fixture.exitCodes = append(fixture.exitCodes, exitCode)
		},
	})
	require.NoError(t, creationError)
	fixture.dispatcher = dispatcher
	return fixture
}

func (fixture *dispatcherFixture) run(t *testing.T, arguments []string) error {
	t.Helper()
	return fixture.dispatcher.Run(context.Background(), fixture.installRoot, testModuleNameConstant, nil, arguments)
}

func TestNewDispatcherRequiresRegistry(t *testing.T) {
	dispatcher, creationError := dispatch.NewDispatcher(dispatch.Options{})
	require.ErrorIs(t, creationError, dispatch.ErrRegistryNotConfigured)
	require.Nil(t, dispatcher)
}

func TestVerbosityResolution(t *testing.T) {
	testCases := []struct {
		name              string
		arguments         []string
		expectedVerbosity int
		expectUsageError  bool
	}{
		{name: "DefaultVerbosity", arguments: nil, expectedVerbosity: 1},
		{name: "CountersCombineWithBase", arguments: []string{"-v", "-v", "-q"}, expectedVerbosity: 2},
		{name: "ExplicitVerbosity", arguments: []string{"--verbosity", "5"}, expectedVerbosity: 5},
		{name: "ConflictingModes", arguments: []string{"--verbosity", "5", "-v"}, expectUsageError: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			fixture := newDispatcherFixture(t, "")
			runError := fixture.run(t, testCase.arguments)

			if testCase.expectUsageError {
				require.ErrorIs(t, runError, dispatch.ErrConflictingVerbosityFlags)
				require.Empty(t, fixture.module.handledInvocations)
				return
			}

			require.NoError(t, runError)
			require.Equal(t, []int{testCase.expectedVerbosity}, fixture.module.observedVerbosities)
		})
	}
}

func TestHandlerReceivesOnlyModuleDeclaredOptions(t *testing.T) {
	fixture := newDispatcherFixture(t, "")
	runError := fixture.run(t, []string{"--dest", testModuleFlagValueConstant, "-v"})
	require.NoError(t, runError)
	require.Len(t, fixture.module.handledInvocations, 1)

	options := fixture.module.handledInvocations[0].Options
	require.Equal(t, map[string]any{
		testModuleFlagNameConstant: testModuleFlagValueConstant,
		testDepthFlagNameConstant:  1,
	}, options)
}

func TestUnknownModuleProducesUniformErrorWithoutHandlerCall(t *testing.T) {
	fixture := newDispatcherFixture(t, "")
	runError := fixture.dispatcher.Run(context.Background(), fixture.installRoot, testAbsentModuleNameConstant, nil, nil)
	require.ErrorIs(t, runError, modreg.ErrModuleNotFound)
	require.Contains(t, fixture.standardError.String(), "Error: ego module \"missing\" not found.")
	require.Empty(t, fixture.module.handledInvocations)
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	fixture := newDispatcherFixture(t, "")
	runError := fixture.run(t, []string{"--no-such-flag"})
	require.Error(t, runError)
	require.Empty(t, fixture.module.handledInvocations)
}

func TestVersionFlagRendersBannerWithAllFields(t *testing.T) {
	fixture := newDispatcherFixture(t, testModuleVersionConstant)
	writeMetadataFixture(t, fixture.installRoot)

	runError := fixture.run(t, []string{"--version"})
	require.NoError(t, runError)
	require.Empty(t, fixture.module.handledInvocations)

	banner := fixture.standardOutput.String()
	require.Contains(t, banner, testProgramVersionConstant)
	require.Contains(t, banner, testModuleNameConstant)
	require.Contains(t, banner, testModuleVersionConstant)
	require.Contains(t, banner, testModuleAuthorConstant)
}

func TestVersionFlagAbsentWhenModuleDeclaresNoVersion(t *testing.T) {
	fixture := newDispatcherFixture(t, "")
	runError := fixture.run(t, []string{"--version"})
	require.Error(t, runError)
	require.Empty(t, fixture.module.handledInvocations)
}

func writeMetadataFixture(t *testing.T, installRoot string) {
	t.Helper()

	metadataDirectory := filepath.Join(installRoot, "modules-info")
	require.NoError(t, os.MkdirAll(metadataDirectory, 0o755))
	metadataDocument := `{"description": "Synchronize the meta-repository", "version": "` + testModuleVersionConstant + `", "author": "` + testModuleAuthorConstant + `"}`
	require.NoError(t, os.WriteFile(filepath.Join(metadataDirectory, testModuleNameConstant+".json"), []byte(metadataDocument), 0o644))
}

func TestOutputChannelFatalUsesInjectedExit(t *testing.T) {
	fixture := newDispatcherFixture(t, "")
	registry := modreg.NewRegistry()
	fatalModule := &fatalHandlingModule{}
	require.NoError(t, registry.Register(testModuleNameConstant, func(string, string, map[string]any) (modreg.Module, error) {
		return fatalModule, nil
	}))

	dispatcher, creationError := dispatch.NewDispatcher(dispatch.Options{
		Registry:       registry,
		StandardOutput: fixture.standardOutput,
		StandardError:  fixture.standardError,
		DisableColor:   true,
		Exit: func(exitCode int) {
			fixture.exitCodes = append(fixture.exitCodes, exitCode)
		},
	})
	require.NoError(t, creationError)

	runError := dispatcher.Run(context.Background(), fixture.installRoot, testModuleNameConstant, nil, nil)
	require.NoError(t, runError)
	require.Equal(t, []int{output.DefaultFatalExitCode}, fixture.exitCodes)
}

type fatalHandlingModule struct{}

func (fatalHandlingModule) Version() string              { return "" }
func (fatalHandlingModule) RegisterFlags(*pflag.FlagSet) {}
func (fatalHandlingModule) Handle(_ context.Context, invocation *modreg.Invocation) error {
	invocation.Output.Fatal("unrecoverable")
	return nil
}
