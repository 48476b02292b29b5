package utils

import "context"

const (
	configurationFilePathContextKeyConstant = commandContextKey("configurationFilePath")
	installPathContextKeyConstant           = commandContextKey("installPath")
)

type commandContextKey string

// CommandContextAccessor manages the resolved configuration values stored in
// command execution contexts so module dispatch reads them from one place.
type CommandContextAccessor struct{}

// NewCommandContextAccessor constructs a CommandContextAccessor instance.
func NewCommandContextAccessor() CommandContextAccessor {
	return CommandContextAccessor{}
}

// WithConfigurationFilePath attaches the configuration file path to the provided context.
func (accessor CommandContextAccessor) WithConfigurationFilePath(parentContext context.Context, configurationFilePath string) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	return context.WithValue(parentContext, configurationFilePathContextKeyConstant, configurationFilePath)
}

// ConfigurationFilePath extracts the configuration file path from the provided context.
func (accessor CommandContextAccessor) ConfigurationFilePath(executionContext context.Context) (string, bool) {
	return accessor.stringValue(executionContext, configurationFilePathContextKeyConstant)
}

// WithInstallPath attaches the resolved module installation root to the provided context.
func (accessor CommandContextAccessor) WithInstallPath(parentContext context.Context, installPath string) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	return context.WithValue(parentContext, installPathContextKeyConstant, installPath)
}

// InstallPath extracts the resolved module installation root from the provided context.
func (accessor CommandContextAccessor) InstallPath(executionContext context.Context) (string, bool) {
	return accessor.stringValue(executionContext, installPathContextKeyConstant)
}

func (accessor CommandContextAccessor) stringValue(executionContext context.Context, contextKey commandContextKey) (string, bool) {
	if executionContext == nil {
		return "", false
	}
	storedValue, valueAvailable := executionContext.Value(contextKey).(string)
	if !valueAvailable {
		return "", false
	}
	return storedValue, true
}
