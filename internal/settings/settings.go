// Package settings merges global defaults with per-workspace overrides into
// immutable configuration snapshots.
package settings

import (
	"os"
	"sort"
	"strings"
	"sync"

	"funcanalyzer/internal/utils"
)

// Default values applied when neither the client nor a settings file provides
// an override.
const (
	DefaultImportStrategy    = "useBundled"
	DefaultNotificationLevel = "off"
)

// GlobalSettings are the process-wide defaults applied when no
// workspace-specific override exists. Set once at initialization.
type GlobalSettings struct {
	Path              []string `json:"path" mapstructure:"path"`
	Interpreter       []string `json:"interpreter" mapstructure:"interpreter"`
	Args              []string `json:"args" mapstructure:"args"`
	ImportStrategy    string   `json:"importStrategy" mapstructure:"import_strategy"`
	ShowNotifications string   `json:"showNotifications" mapstructure:"show_notifications"`
}

func (global GlobalSettings) withDefaults() GlobalSettings {
	result := global
	if result.ImportStrategy == "" {
		result.ImportStrategy = DefaultImportStrategy
	}
	if result.ShowNotifications == "" {
		result.ShowNotifications = DefaultNotificationLevel
	}
	return result
}

// WorkspaceSettings is one workspace's configuration snapshot. Instances
// returned by the Resolver are independent copies; mutating them never
// affects stored state.
type WorkspaceSettings struct {
	Workspace         string   `json:"workspace" mapstructure:"workspace"`
	WorkingDirectory  string   `json:"cwd" mapstructure:"cwd"`
	Interpreter       []string `json:"interpreter" mapstructure:"interpreter"`
	Args              []string `json:"args" mapstructure:"args"`
	ImportStrategy    string   `json:"importStrategy" mapstructure:"import_strategy"`
	ShowNotifications string   `json:"showNotifications" mapstructure:"show_notifications"`
}

func (workspace WorkspaceSettings) clone() WorkspaceSettings {
	cloned := workspace
	cloned.Interpreter = append([]string(nil), workspace.Interpreter...)
	cloned.Args = append([]string(nil), workspace.Args...)
	return cloned
}

// Resolver holds the process-wide settings state keyed by workspace path.
type Resolver struct {
	stateLock                sync.RWMutex
	global                   GlobalSettings
	workspaces               map[string]WorkspaceSettings
	fallbackWorkingDirectory string
}

// NewResolver constructs a Resolver. The current working directory keys
// synthesized workspace entries when the client never pushed any.
func NewResolver() *Resolver {
	workingDirectory, workingDirectoryError := os.Getwd()
	if workingDirectoryError != nil {
		workingDirectory = "."
	}
	return &Resolver{
		global:                   GlobalSettings{}.withDefaults(),
		workspaces:               map[string]WorkspaceSettings{},
		fallbackWorkingDirectory: workingDirectory,
	}
}

// SetGlobal replaces the global defaults. Called once at initialization.
func (resolver *Resolver) SetGlobal(global GlobalSettings) {
	resolver.stateLock.Lock()
	defer resolver.stateLock.Unlock()
	resolver.global = global.withDefaults()
}

// Global returns an independent copy of the global defaults.
func (resolver *Resolver) Global() GlobalSettings {
	resolver.stateLock.RLock()
	defer resolver.stateLock.RUnlock()
	copied := resolver.global
	copied.Path = append([]string(nil), resolver.global.Path...)
	copied.Interpreter = append([]string(nil), resolver.global.Interpreter...)
	copied.Args = append([]string(nil), resolver.global.Args...)
	return copied
}

// Update replaces or inserts workspace entries keyed by workspace path,
// last-write-wins per key. An empty list synthesizes a single entry from the
// global defaults keyed by the process working directory.
func (resolver *Resolver) Update(rawSettings []WorkspaceSettings) {
	resolver.stateLock.Lock()
	defer resolver.stateLock.Unlock()

	if len(rawSettings) == 0 {
		key := resolver.fallbackWorkingDirectory
		resolver.workspaces[key] = resolver.synthesizeLocked(key)
		return
	}

	for _, entry := range rawSettings {
		key := entry.Workspace
		if key == "" {
			key = resolver.fallbackWorkingDirectory
		}
		stored := entry.clone()
		stored.Workspace = key
		if stored.WorkingDirectory == "" {
			stored.WorkingDirectory = key
		}
		if stored.Interpreter == nil {
			stored.Interpreter = append([]string(nil), resolver.global.Interpreter...)
		}
		if stored.Args == nil {
			stored.Args = append([]string(nil), resolver.global.Args...)
		}
		if stored.ImportStrategy == "" {
			stored.ImportStrategy = resolver.global.ImportStrategy
		}
		if stored.ShowNotifications == "" {
			stored.ShowNotifications = resolver.global.ShowNotifications
		}
		resolver.workspaces[key] = stored
	}
}

// Resolve returns the settings snapshot governing the given document path.
//
// Lookup order: exact workspace-key match, then the longest workspace key
// containing the document, then the deterministic fallback: the
// lexicographically smallest workspace key. Map iteration order would make
// the fallback flap between calls, so the keys are sorted. Every call
// returns a deep, independent copy.
func (resolver *Resolver) Resolve(documentPath string) WorkspaceSettings {
	resolver.stateLock.Lock()
	defer resolver.stateLock.Unlock()

	if len(resolver.workspaces) == 0 {
		key := resolver.fallbackWorkingDirectory
		resolver.workspaces[key] = resolver.synthesizeLocked(key)
	}

	if documentPath != "" {
		normalizedDocument := utils.NormalizePath(documentPath)
		if exact, found := resolver.workspaces[documentPath]; found {
			return exact.clone()
		}
		longestKey := ""
		for key := range resolver.workspaces {
			normalizedKey := utils.NormalizePath(key)
			if normalizedKey == normalizedDocument || strings.HasPrefix(normalizedDocument, normalizedKey+string(os.PathSeparator)) {
				if len(key) > len(longestKey) {
					longestKey = key
				}
			}
		}
		if longestKey != "" {
			return resolver.workspaces[longestKey].clone()
		}
	}

	keys := make([]string, 0, len(resolver.workspaces))
	for key := range resolver.workspaces {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return resolver.workspaces[keys[0]].clone()
}

func (resolver *Resolver) synthesizeLocked(key string) WorkspaceSettings {
	return WorkspaceSettings{
		Workspace:         key,
		WorkingDirectory:  key,
		Interpreter:       append([]string(nil), resolver.global.Interpreter...),
		Args:              append([]string(nil), resolver.global.Args...),
		ImportStrategy:    resolver.global.ImportStrategy,
		ShowNotifications: resolver.global.ShowNotifications,
	}
}
