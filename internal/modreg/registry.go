package modreg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	modulesDirectoryNameConstant        = "modules"
	modulesInfoDirectoryNameConstant    = "modules-info"
	moduleFileExtensionConstant         = ".ego"
	metadataFileExtensionConstant       = ".json"
	metadataConfigurationTypeConstant   = "json"
	moduleNotFoundMessageConstant       = "module not found"
	moduleNameRequiredMessageConstant   = "module name must be provided"
	moduleNameInvalidTemplateConstant   = "invalid module name %q"
	duplicateModuleTemplateConstant     = "module %q already registered"
	factoryRequiredTemplateConstant     = "module %q requires a factory"
	metadataReadErrorTemplateConstant   = "failed to read metadata for module %q: %w"
	metadataDecodeErrorTemplateConstant = "failed to parse metadata for module %q: %w"
	moduleConstructionTemplateConstant  = "failed to construct module %q: %w"
	pathSeparatorCharactersConstant     = `/\`
)

// ErrModuleNotFound signals that no module is registered under the requested
// name. Callers translate it into the uniform user-facing error.
var ErrModuleNotFound = errors.New(moduleNotFoundMessageConstant)

// ErrModuleNameRequired indicates an empty module name was supplied.
var ErrModuleNameRequired = errors.New(moduleNameRequiredMessageConstant)

// Registry maps validated module names to module factories and resolves
// per-module metadata under an install root.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry constructs an empty module registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register binds a factory to a module name. Registration fails for empty or
// path-like names and for names already present.
func (registry *Registry) Register(moduleName string, factory Factory) error {
	trimmedName := strings.TrimSpace(moduleName)
	if len(trimmedName) == 0 {
		return ErrModuleNameRequired
	}
	if strings.ContainsAny(trimmedName, pathSeparatorCharactersConstant) {
		return fmt.Errorf(moduleNameInvalidTemplateConstant, moduleName)
	}
	if factory == nil {
		return fmt.Errorf(factoryRequiredTemplateConstant, trimmedName)
	}
	if _, alreadyRegistered := registry.factories[trimmedName]; alreadyRegistered {
		return fmt.Errorf(duplicateModuleTemplateConstant, trimmedName)
	}

	registry.factories[trimmedName] = factory
	return nil
}

// Discover returns the sorted set of module names available under the install
// root: every registered module plus every module payload file found in the
// modules directory. The result is deterministic for an unchanged filesystem.
func (registry *Registry) Discover(installRoot string) []string {
	discovered := map[string]struct{}{}
	for registeredName := range registry.factories {
		discovered[registeredName] = struct{}{}
	}

	modulesDirectory := filepath.Join(installRoot, modulesDirectoryNameConstant)
	directoryEntries, readError := os.ReadDir(modulesDirectory)
	if readError == nil {
		for _, directoryEntry := range directoryEntries {
			if directoryEntry.IsDir() {
				continue
			}
			entryName := directoryEntry.Name()
			if !strings.HasSuffix(entryName, moduleFileExtensionConstant) {
				continue
			}
			discovered[strings.TrimSuffix(entryName, moduleFileExtensionConstant)] = struct{}{}
		}
	}

	moduleNames := make([]string, 0, len(discovered))
	for moduleName := range discovered {
		moduleNames = append(moduleNames, moduleName)
	}
	sort.Strings(moduleNames)
	return moduleNames
}

// Metadata loads the module's descriptor from the modules-info directory. A
// missing metadata document yields a descriptor carrying only the module name.
func (registry *Registry) Metadata(installRoot string, moduleName string) (ModuleDescriptor, error) {
	descriptor := ModuleDescriptor{Name: moduleName}

	metadataPath := filepath.Join(installRoot, modulesInfoDirectoryNameConstant, moduleName+metadataFileExtensionConstant)
	if _, statError := os.Stat(metadataPath); statError != nil {
		return descriptor, nil
	}

	viperInstance := viper.New()
	viperInstance.SetConfigFile(metadataPath)
	viperInstance.SetConfigType(metadataConfigurationTypeConstant)

	if readError := viperInstance.ReadInConfig(); readError != nil {
		return descriptor, fmt.Errorf(metadataReadErrorTemplateConstant, moduleName, readError)
	}
	// Metadata documents in the wild carry bare numeric versions; decode them
	// as strings rather than rejecting the document.
	weaklyTypedDecoding := func(decoderConfiguration *mapstructure.DecoderConfig) {
		decoderConfiguration.WeaklyTypedInput = true
	}
	if unmarshalError := viperInstance.Unmarshal(&descriptor, weaklyTypedDecoding); unmarshalError != nil {
		return descriptor, fmt.Errorf(metadataDecodeErrorTemplateConstant, moduleName, unmarshalError)
	}

	descriptor.Name = moduleName
	return descriptor, nil
}

// Load resolves the factory registered under the module name and constructs a
// module instance for one invocation. Unknown names yield ErrModuleNotFound
// rather than an escaping failure.
func (registry *Registry) Load(installRoot string, moduleName string, settings map[string]any) (Module, error) {
	trimmedName := strings.TrimSpace(moduleName)
	if len(trimmedName) == 0 {
		return nil, ErrModuleNameRequired
	}

	factory, factoryRegistered := registry.factories[trimmedName]
	if !factoryRegistered {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, trimmedName)
	}

	module, constructionError := factory(trimmedName, installRoot, settings)
	if constructionError != nil {
		return nil, fmt.Errorf(moduleConstructionTemplateConstant, trimmedName, constructionError)
	}
	return module, nil
}
