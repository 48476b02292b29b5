package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ego-devkit/ego/internal/modreg"
)

const (
	unknownModuleNameConstant      = "missing"
	listingHeaderFragmentConstant  = "Available ego modules:"
	moduleNotFoundFragmentConstant = `Error: ego module "missing" not found.`
	versionBannerFragmentConstant  = "ego " + applicationVersionConstant + " / sync"
)

func executeApplication(t *testing.T, arguments ...string) (string, string, error) {
	t.Helper()

	application, creationError := NewApplication()
	require.NoError(t, creationError)

	standardOutput := &bytes.Buffer{}
	standardError := &bytes.Buffer{}
	application.rootCommand.SetOut(standardOutput)
	application.rootCommand.SetErr(standardError)
	application.rootCommand.SetArgs(arguments)

	executionError := application.Execute()
	return standardOutput.String(), standardError.String(), executionError
}

func writeConfigurationFixture(t *testing.T, configurationDocument map[string]any) string {
	t.Helper()

	configurationContent, marshalError := yaml.Marshal(configurationDocument)
	require.NoError(t, marshalError)

	configurationPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configurationPath, configurationContent, 0o644))
	return configurationPath
}

func TestApplicationListsModulesWhenNoModuleNamed(t *testing.T) {
	standardOutput, _, executionError := executeApplication(t)
	require.NoError(t, executionError)
	require.Contains(t, standardOutput, listingHeaderFragmentConstant)
	require.Contains(t, standardOutput, "sync")
	require.Contains(t, standardOutput, "modules")
}

func TestApplicationReportsUnknownModuleExactlyOnce(t *testing.T) {
	_, standardError, executionError := executeApplication(t, unknownModuleNameConstant)
	require.ErrorIs(t, executionError, modreg.ErrModuleNotFound)
	require.ErrorIs(t, executionError, ErrReportedFailure)
	require.Equal(t, 1, strings.Count(standardError, moduleNotFoundFragmentConstant))
}

func TestApplicationRendersModuleVersionBanner(t *testing.T) {
	standardOutput, _, executionError := executeApplication(t, "sync", "--version")
	require.NoError(t, executionError)
	require.Contains(t, standardOutput, versionBannerFragmentConstant)
}

func TestApplicationHonorsConfiguredInstallPath(t *testing.T) {
	installPath := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(installPath, "modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(installPath, "modules", "news.ego"), nil, 0o644))
	configurationPath := writeConfigurationFixture(t, map[string]any{"install_path": installPath})

	standardOutput, _, executionError := executeApplication(t, "--config", configurationPath, "modules")
	require.NoError(t, executionError)
	require.Contains(t, standardOutput, "news")
}

func TestApplicationInstallPathFlagOverridesConfiguration(t *testing.T) {
	configuredInstallPath := t.TempDir()
	overrideInstallPath := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(overrideInstallPath, "modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(overrideInstallPath, "modules", "profile.ego"), nil, 0o644))
	configurationPath := writeConfigurationFixture(t, map[string]any{"install_path": configuredInstallPath})

	standardOutput, _, executionError := executeApplication(t,
		"--config", configurationPath,
		"--install-path", overrideInstallPath,
		"modules",
	)
	require.NoError(t, executionError)
	require.Contains(t, standardOutput, "profile")
}

func TestInitializeConfigurationStoresResolvedPathsOnContext(t *testing.T) {
	installPath := t.TempDir()
	configurationPath := writeConfigurationFixture(t, map[string]any{"install_path": installPath})

	application, creationError := NewApplication()
	require.NoError(t, creationError)
	application.configurationFilePath = configurationPath
	require.NoError(t, application.initializeConfiguration(application.rootCommand))

	commandContext := application.rootCommand.Context()
	storedInstallPath, installPathStored := application.commandContextAccessor.InstallPath(commandContext)
	require.True(t, installPathStored)
	require.Equal(t, installPath, storedInstallPath)

	storedConfigurationPath, configurationPathStored := application.commandContextAccessor.ConfigurationFilePath(commandContext)
	require.True(t, configurationPathStored)
	require.Equal(t, configurationPath, storedConfigurationPath)
}

func TestApplicationRejectsUnsupportedLogLevel(t *testing.T) {
	_, _, executionError := executeApplication(t, "--log-level", "noisy", "modules")
	require.Error(t, executionError)
	require.Contains(t, executionError.Error(), "unable to create logger")
}

func TestApplicationModuleSettingsFlowFromConfiguration(t *testing.T) {
	configurationPath := writeConfigurationFixture(t, map[string]any{
		"modules": map[string]any{
			"sync": map[string]any{"branch": "stable"},
		},
	})

	application, creationError := NewApplication()
	require.NoError(t, creationError)
	application.configurationFilePath = configurationPath
	require.NoError(t, application.initializeConfiguration(application.rootCommand))

	require.Equal(t, "stable", application.configuration.Modules["sync"]["branch"])
	require.Equal(t, defaultInstallPathConstant, application.configuration.InstallPath)
}
