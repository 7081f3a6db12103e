// Package utils contains general helper functions used across funcanalyzer.
package utils

import (
	"path/filepath"
	"runtime"
	"strings"
)

// RelativePathOrSelf calculates the relative path from root to fullPath.
// Returns the cleaned fullPath if relative calculation fails.
// Returns "." if fullPath and root resolve to the same directory.
func RelativePathOrSelf(fullPath string, root string) string {
	cleanPath := filepath.Clean(fullPath)
	absoluteRoot, absoluteError := filepath.Abs(root)
	if absoluteError != nil {
		return cleanPath
	}
	cleanAbsoluteRoot := filepath.Clean(absoluteRoot)

	if cleanPath == cleanAbsoluteRoot {
		return "."
	}

	relativePath, relativeError := filepath.Rel(cleanAbsoluteRoot, cleanPath)
	if relativeError != nil {
		return cleanPath
	}
	return filepath.ToSlash(relativePath)
}

// NormalizePath cleans a path for comparison, lowercasing it on
// case-insensitive filesystems.
func NormalizePath(path string) string {
	normalized := filepath.Clean(path)
	if runtime.GOOS == "windows" {
		normalized = strings.ToLower(normalized)
	}
	return normalized
}

// IsSamePath reports whether two paths refer to the same location after
// normalization.
func IsSamePath(firstPath string, secondPath string) bool {
	return NormalizePath(firstPath) == NormalizePath(secondPath)
}
