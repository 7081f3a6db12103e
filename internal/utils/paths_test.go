package utils

import (
	"path/filepath"
	"testing"
)

func TestRelativePathOrSelf(t *testing.T) {
	rootDirectory := t.TempDir()

	testCases := []struct {
		name     string
		fullPath string
		expect   string
	}{
		{
			name:     "direct_child",
			fullPath: filepath.Join(rootDirectory, "a.py"),
			expect:   "a.py",
		},
		{
			name:     "nested_child_uses_forward_slashes",
			fullPath: filepath.Join(rootDirectory, "pkg", "b.py"),
			expect:   "pkg/b.py",
		},
		{
			name:     "root_itself",
			fullPath: rootDirectory,
			expect:   ".",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			result := RelativePathOrSelf(testCase.fullPath, rootDirectory)
			if result != testCase.expect {
				t.Errorf("expected %q, got %q", testCase.expect, result)
			}
		})
	}
}

func TestIsSamePath(t *testing.T) {
	if !IsSamePath("/tmp/workspace", "/tmp/workspace/") {
		t.Error("trailing separators must not matter")
	}
	if !IsSamePath("/tmp/workspace/./sub/..", "/tmp/workspace") {
		t.Error("dot segments must be cleaned before comparison")
	}
	if IsSamePath("/tmp/workspace", "/tmp/other") {
		t.Error("distinct paths must not compare equal")
	}
}
