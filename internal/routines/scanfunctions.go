// Package routines bundles the analysis tools that the execution harness can
// run in process. Each routine behaves like a small command-line program:
// arguments come in through argv, results leave through stdout.
package routines

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"funcanalyzer/internal/engine"
	"funcanalyzer/internal/harness"
	"funcanalyzer/internal/scanner"
)

// ScanFunctionsRoutineName is the registry name of the bundled analysis tool.
const ScanFunctionsRoutineName = "scanfunctions"

const scanFunctionsUsage = "usage: scanfunctions <path>"

// NewScanFunctionsRoutine builds the bundled analysis routine.
//
// Invocation forms:
//   - no path argument: read Python source from stdin, print the top-level
//     function count;
//   - file path: print the top-level function count of that file;
//   - directory path: print a JSON object mapping each relative .py path to
//     its count, with per-file failures rendered as "Error: ..." strings.
//
// Paths resolve against the routine's working directory, which the harness
// substitutes per invocation.
func NewScanFunctionsRoutine(analysisEngine *engine.Engine, directoryScanner *scanner.Scanner) harness.Routine {
	return func(argv []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
		if len(argv) > 2 {
			writeJSON(stdout, map[string]string{"error": scanFunctionsUsage})
			return &harness.ExitError{Code: 1}
		}
		if len(argv) < 2 {
			return countFromStream(analysisEngine, stdin, stdout)
		}
		return analyzePath(analysisEngine, directoryScanner, argv[1], stdout)
	}
}

// RegisterBundled registers every bundled routine into the harness.
func RegisterBundled(executionHarness *harness.Harness, analysisEngine *engine.Engine, directoryScanner *scanner.Scanner) {
	executionHarness.Register(ScanFunctionsRoutineName, NewScanFunctionsRoutine(analysisEngine, directoryScanner))
}

func countFromStream(analysisEngine *engine.Engine, stdin io.Reader, stdout io.Writer) error {
	source, readError := io.ReadAll(stdin)
	if readError != nil {
		writeJSON(stdout, map[string]string{"error": fmt.Sprintf("read stdin: %v", readError)})
		return &harness.ExitError{Code: 1}
	}
	count, countError := analysisEngine.Count(source)
	if countError != nil {
		fmt.Fprintf(stdout, "Error: %v\n", countError)
		return nil
	}
	fmt.Fprintf(stdout, "%d\n", count)
	return nil
}

func analyzePath(analysisEngine *engine.Engine, directoryScanner *scanner.Scanner, targetPath string, stdout io.Writer) error {
	pathInformation, statError := os.Stat(targetPath)
	if statError != nil {
		writeJSON(stdout, map[string]string{"error": fmt.Sprintf("path %s: %v", targetPath, statError)})
		return &harness.ExitError{Code: 1}
	}

	if !pathInformation.IsDir() {
		content, readError := os.ReadFile(targetPath)
		if readError != nil {
			writeJSON(stdout, map[string]string{"error": fmt.Sprintf("read %s: %v", targetPath, readError)})
			return &harness.ExitError{Code: 1}
		}
		count, countError := analysisEngine.Count(content)
		if countError != nil {
			fmt.Fprintf(stdout, "Error: %v\n", countError)
			return nil
		}
		fmt.Fprintf(stdout, "%d\n", count)
		return nil
	}

	countResult, scanError := directoryScanner.ScanCounts(targetPath)
	if scanError != nil {
		writeJSON(stdout, map[string]string{"error": scanError.Error()})
		return &harness.ExitError{Code: 1}
	}
	payload := map[string]any{}
	for relativePath, entry := range countResult {
		if entry.Failure != nil {
			payload[relativePath] = "Error: " + entry.Failure.Message
			continue
		}
		payload[relativePath] = entry.Count
	}
	writeJSON(stdout, payload)
	return nil
}

func writeJSON(stdout io.Writer, payload any) {
	encoder := json.NewEncoder(stdout)
	_ = encoder.Encode(payload)
}
