package listmod

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/ego-devkit/ego/internal/modreg"
)

const (
	// ModuleName is the registered command name for this module.
	ModuleName = "modules"

	registryNotConfiguredMessageConstant = "module registry not configured"

	listingHeaderMessageConstant       = "Available ego modules:"
	listingEntryTemplateConstant       = "  %-12s %s"
	versionedEntryNameTemplateConstant = "%s (%s)"
	noModulesAvailableMessageConstant  = "No ego modules available."
)

// ErrRegistryNotConfigured indicates the listing module was constructed
// without a registry to enumerate.
var ErrRegistryNotConfigured = errors.New(registryNotConfiguredMessageConstant)

// Module lists the command modules available in the installation together with
// their published metadata.
type Module struct {
	registry *modreg.Registry
}

// NewFactory returns a module factory enumerating the supplied registry.
func NewFactory(registry *modreg.Registry) modreg.Factory {
	return func(string, string, map[string]any) (modreg.Module, error) {
		if registry == nil {
			return nil, ErrRegistryNotConfigured
		}
		return &Module{registry: registry}, nil
	}
}

// Version reports no version; the listing carries the installation's metadata
// rather than its own.
func (module *Module) Version() string {
	return ""
}

// RegisterFlags declares no module flags.
func (module *Module) RegisterFlags(*pflag.FlagSet) {}

// Handle prints one line per available module. Metadata problems degrade a
// single entry to a warning instead of aborting the listing.
func (module *Module) Handle(_ context.Context, invocation *modreg.Invocation) error {
	moduleNames := module.registry.Discover(invocation.InstallPath)
	if len(moduleNames) == 0 {
		invocation.Output.Log(noModulesAvailableMessageConstant)
		return nil
	}

	invocation.Output.Log(listingHeaderMessageConstant)
	for _, moduleName := range moduleNames {
		descriptor, metadataError := module.registry.Metadata(invocation.InstallPath, moduleName)
		if metadataError != nil {
			invocation.Output.Warning(metadataError.Error())
		}

		entryName := descriptor.Name
		if len(descriptor.Version) > 0 {
			entryName = fmt.Sprintf(versionedEntryNameTemplateConstant, descriptor.Name, descriptor.Version)
		}
		invocation.Output.Log(fmt.Sprintf(listingEntryTemplateConstant, entryName, descriptor.Description))
	}
	return nil
}
