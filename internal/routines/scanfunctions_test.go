package routines

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"funcanalyzer/internal/engine"
	"funcanalyzer/internal/harness"
	"funcanalyzer/internal/scanner"
)

func newRoutineHarness(t *testing.T) *harness.Harness {
	t.Helper()
	executionHarness, constructionError := harness.NewHarness(zap.NewNop())
	if constructionError != nil {
		t.Fatalf("construct harness: %v", constructionError)
	}
	analysisEngine := engine.NewEngine()
	RegisterBundled(executionHarness, analysisEngine, scanner.NewScanner(analysisEngine))
	return executionHarness
}

func TestScanFunctionsCountsFromStdin(t *testing.T) {
	executionHarness := newRoutineHarness(t)
	result, runError := executionHarness.RunInProcess(
		ScanFunctionsRoutineName,
		[]string{ScanFunctionsRoutineName},
		true,
		"",
		"def a(): pass\n\ndef b(): pass\n",
	)
	if runError != nil {
		t.Fatalf("unexpected error: %v", runError)
	}
	if strings.TrimSpace(result.Stdout) != "2" {
		t.Errorf("expected count 2, got %q", result.Stdout)
	}
}

func TestScanFunctionsCountsSingleFile(t *testing.T) {
	workingDirectory := t.TempDir()
	sourcePath := filepath.Join(workingDirectory, "module.py")
	if writeError := os.WriteFile(sourcePath, []byte("def solo(): pass\n"), 0o600); writeError != nil {
		t.Fatalf("write source: %v", writeError)
	}

	executionHarness := newRoutineHarness(t)
	result, runError := executionHarness.RunInProcess(
		ScanFunctionsRoutineName,
		[]string{ScanFunctionsRoutineName, "module.py"},
		false,
		workingDirectory,
		"",
	)
	if runError != nil {
		t.Fatalf("unexpected error: %v", runError)
	}
	if strings.TrimSpace(result.Stdout) != "1" {
		t.Errorf("expected count 1, got %q", result.Stdout)
	}
}

func TestScanFunctionsScansDirectoryAsJSON(t *testing.T) {
	workingDirectory := t.TempDir()
	if writeError := os.WriteFile(filepath.Join(workingDirectory, "good.py"), []byte("def one(): pass\n\ndef two(): pass\n"), 0o600); writeError != nil {
		t.Fatalf("write source: %v", writeError)
	}
	if writeError := os.WriteFile(filepath.Join(workingDirectory, "bad.py"), []byte("def broken(:\n"), 0o600); writeError != nil {
		t.Fatalf("write source: %v", writeError)
	}

	executionHarness := newRoutineHarness(t)
	result, runError := executionHarness.RunInProcess(
		ScanFunctionsRoutineName,
		[]string{ScanFunctionsRoutineName, "."},
		false,
		workingDirectory,
		"",
	)
	if runError != nil {
		t.Fatalf("unexpected error: %v", runError)
	}

	var payload map[string]any
	if decodeError := json.Unmarshal([]byte(result.Stdout), &payload); decodeError != nil {
		t.Fatalf("decode output %q: %v", result.Stdout, decodeError)
	}
	if count, isNumber := payload["good.py"].(float64); !isNumber || count != 2 {
		t.Errorf("expected good.py count 2, got %v", payload["good.py"])
	}
	if message, isString := payload["bad.py"].(string); !isString || !strings.HasPrefix(message, "Error: ") {
		t.Errorf("expected error string for bad.py, got %v", payload["bad.py"])
	}
}

func TestScanFunctionsReportsUsageErrorViaEarlyExit(t *testing.T) {
	executionHarness := newRoutineHarness(t)
	result, runError := executionHarness.RunInProcess(
		ScanFunctionsRoutineName,
		[]string{ScanFunctionsRoutineName, "one", "two"},
		false,
		"",
		"",
	)
	if runError != nil {
		t.Fatalf("usage exit must be swallowed by the harness, got %v", runError)
	}
	if !strings.Contains(result.Stdout, "usage:") {
		t.Errorf("expected usage message, got %q", result.Stdout)
	}
}

func TestScanFunctionsReportsMissingPath(t *testing.T) {
	executionHarness := newRoutineHarness(t)
	result, runError := executionHarness.RunInProcess(
		ScanFunctionsRoutineName,
		[]string{ScanFunctionsRoutineName, filepath.Join(t.TempDir(), "absent")},
		false,
		"",
		"",
	)
	if runError != nil {
		t.Fatalf("missing path exit must be swallowed by the harness, got %v", runError)
	}
	var payload map[string]string
	if decodeError := json.Unmarshal([]byte(result.Stdout), &payload); decodeError != nil {
		t.Fatalf("decode output %q: %v", result.Stdout, decodeError)
	}
	if payload["error"] == "" {
		t.Errorf("expected error payload, got %q", result.Stdout)
	}
}
