package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"funcanalyzer/internal/utils"
)

// LoadOptions controls how settings files are discovered.
type LoadOptions struct {
	WorkingDirectory string
	ExplicitFilePath string
}

// FileSettings is the on-disk settings document: global defaults plus an
// optional list of per-workspace overrides.
type FileSettings struct {
	Global     GlobalSettings      `mapstructure:"global"`
	Workspaces []WorkspaceSettings `mapstructure:"workspaces"`
}

// LoadFileSettings loads settings from the global file under the user's home
// directory and the local file in the working directory, local values
// overriding global ones. Missing files are not an error.
func LoadFileSettings(options LoadOptions) (FileSettings, error) {
	workingDirectory := options.WorkingDirectory
	if workingDirectory == "" {
		currentDirectory, workingDirectoryError := os.Getwd()
		if workingDirectoryError != nil {
			return FileSettings{}, fmt.Errorf("determine working directory: %w", workingDirectoryError)
		}
		workingDirectory = currentDirectory
	}

	var merged FileSettings

	if homeDirectory, homeError := os.UserHomeDir(); homeError == nil && homeDirectory != "" {
		globalPath := filepath.Join(homeDirectory, utils.GlobalConfigDirectoryName, utils.ConfigFileName)
		globalSettings, loadError := loadSettingsFromPath(globalPath)
		if loadError != nil {
			return FileSettings{}, loadError
		}
		merged = merged.merge(globalSettings)
	}

	localPath, resolveError := resolveLocalSettingsPath(workingDirectory, options.ExplicitFilePath)
	if resolveError != nil {
		return FileSettings{}, resolveError
	}
	if localPath != "" {
		localSettings, loadError := loadSettingsFromPath(localPath)
		if loadError != nil {
			return FileSettings{}, loadError
		}
		merged = merged.merge(localSettings)
	}

	merged.Global = merged.Global.withDefaults()
	return merged, nil
}

func resolveLocalSettingsPath(workingDirectory string, explicitPath string) (string, error) {
	if explicitPath != "" {
		if filepath.IsAbs(explicitPath) {
			return explicitPath, nil
		}
		return filepath.Join(workingDirectory, explicitPath), nil
	}
	return filepath.Join(workingDirectory, utils.ConfigFileName), nil
}

func loadSettingsFromPath(path string) (FileSettings, error) {
	if path == "" {
		return FileSettings{}, nil
	}
	pathInformation, statError := os.Stat(path)
	if statError != nil {
		if os.IsNotExist(statError) {
			return FileSettings{}, nil
		}
		return FileSettings{}, fmt.Errorf("stat settings %s: %w", path, statError)
	}
	if pathInformation.IsDir() {
		return FileSettings{}, fmt.Errorf("settings path %s is a directory", path)
	}

	reader := viper.New()
	reader.SetConfigFile(path)
	if readError := reader.ReadInConfig(); readError != nil {
		return FileSettings{}, fmt.Errorf("read settings from %s: %w", path, readError)
	}
	var loaded FileSettings
	if decodeError := reader.Unmarshal(&loaded); decodeError != nil {
		return FileSettings{}, fmt.Errorf("decode settings from %s: %w", path, decodeError)
	}
	return loaded, nil
}

func (fileSettings FileSettings) merge(override FileSettings) FileSettings {
	result := fileSettings
	result.Global = result.Global.mergeOverride(override.Global)
	if len(override.Workspaces) > 0 {
		result.Workspaces = append([]WorkspaceSettings(nil), override.Workspaces...)
	}
	return result
}

func (global GlobalSettings) mergeOverride(override GlobalSettings) GlobalSettings {
	result := global
	if len(override.Path) > 0 {
		result.Path = append([]string(nil), override.Path...)
	}
	if len(override.Interpreter) > 0 {
		result.Interpreter = append([]string(nil), override.Interpreter...)
	}
	if len(override.Args) > 0 {
		result.Args = append([]string(nil), override.Args...)
	}
	if override.ImportStrategy != "" {
		result.ImportStrategy = override.ImportStrategy
	}
	if override.ShowNotifications != "" {
		result.ShowNotifications = override.ShowNotifications
	}
	return result
}
