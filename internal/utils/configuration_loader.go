package utils

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	environmentKeySeparatorConstant            = "."
	environmentKeyReplacementConstant          = "_"
	embeddedConfigurationMergeTemplateConstant = "unable to merge embedded configuration: %w"
	configurationFileReadTemplateConstant      = "unable to read configuration file %s: %w"
	configurationDecodeTemplateConstant        = "unable to decode configuration: %w"
	configurationTargetMissingMessageConstant  = "configuration target not provided"
)

// ErrConfigurationTargetMissing indicates LoadConfiguration was called without a decode target.
var ErrConfigurationTargetMissing = errors.New(configurationTargetMissingMessageConstant)

// LoadedConfiguration describes where the effective configuration came from.
type LoadedConfiguration struct {
	ConfigFileUsed string
}

// ConfigurationLoader layers defaults, embedded configuration, a configuration file, and
// environment variables (highest precedence) through viper.
type ConfigurationLoader struct {
	configurationName     string
	configurationType     string
	environmentPrefix     string
	searchPaths           []string
	embeddedConfiguration []byte
	embeddedType          string
}

// NewConfigurationLoader constructs a loader for files named <name>.<type> within the search paths.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	copiedSearchPaths := make([]string, 0, len(searchPaths))
	for _, searchPath := range searchPaths {
		trimmed := strings.TrimSpace(searchPath)
		if len(trimmed) == 0 {
			continue
		}
		copiedSearchPaths = append(copiedSearchPaths, trimmed)
	}
	return &ConfigurationLoader{
		configurationName: configurationName,
		configurationType: configurationType,
		environmentPrefix: environmentPrefix,
		searchPaths:       copiedSearchPaths,
	}
}

// SetEmbeddedConfiguration registers configuration content merged above the defaults.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(content []byte, contentType string) {
	loader.embeddedConfiguration = content
	loader.embeddedType = contentType
}

// LoadConfiguration decodes the layered configuration into target. An explicit configuration
// file path takes precedence over the search paths; the first search path holding a file wins.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, target any) (LoadedConfiguration, error) {
	if target == nil {
		return LoadedConfiguration{}, ErrConfigurationTargetMissing
	}

	configurationStore := viper.New()
	for key, value := range defaultValues {
		configurationStore.SetDefault(key, value)
	}

	if len(loader.embeddedConfiguration) > 0 {
		configurationStore.SetConfigType(loader.embeddedType)
		if mergeError := configurationStore.MergeConfig(bytes.NewReader(loader.embeddedConfiguration)); mergeError != nil {
			return LoadedConfiguration{}, fmt.Errorf(embeddedConfigurationMergeTemplateConstant, mergeError)
		}
	}

	configurationFileUsed := strings.TrimSpace(configurationFilePath)
	if len(configurationFileUsed) == 0 {
		configurationFileUsed = loader.findConfigurationFile()
	}

	if len(configurationFileUsed) > 0 {
		configurationStore.SetConfigFile(configurationFileUsed)
		if extension := strings.TrimPrefix(filepath.Ext(configurationFileUsed), "."); len(extension) > 0 {
			configurationStore.SetConfigType(extension)
		}
		if mergeError := configurationStore.MergeInConfig(); mergeError != nil {
			return LoadedConfiguration{}, fmt.Errorf(configurationFileReadTemplateConstant, configurationFileUsed, mergeError)
		}
	}

	configurationStore.SetEnvPrefix(loader.environmentPrefix)
	configurationStore.SetEnvKeyReplacer(strings.NewReplacer(environmentKeySeparatorConstant, environmentKeyReplacementConstant))
	configurationStore.AutomaticEnv()

	if decodeError := configurationStore.Unmarshal(target); decodeError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationDecodeTemplateConstant, decodeError)
	}

	return LoadedConfiguration{ConfigFileUsed: configurationFileUsed}, nil
}

func (loader *ConfigurationLoader) findConfigurationFile() string {
	fileName := loader.configurationName + "." + loader.configurationType
	for _, searchPath := range loader.searchPaths {
		candidatePath := filepath.Join(searchPath, fileName)
		fileInfo, statError := os.Stat(candidatePath)
		if statError != nil || fileInfo.IsDir() {
			continue
		}
		return candidatePath
	}
	return ""
}
