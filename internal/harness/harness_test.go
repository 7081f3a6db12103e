package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"funcanalyzer/internal/utils"
)

func newTestHarness(t *testing.T) *Harness {
	t.Helper()
	executionHarness, constructionError := NewHarness(zap.NewNop())
	if constructionError != nil {
		t.Fatalf("construct harness: %v", constructionError)
	}
	return executionHarness
}

func TestRunInProcessCapturesStreamsAndArguments(t *testing.T) {
	executionHarness := newTestHarness(t)
	executionHarness.Register("echoargs", func(argv []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
		fmt.Fprint(stdout, strings.Join(argv, " "))
		fmt.Fprint(stderr, "diagnostic")
		return nil
	})

	result, runError := executionHarness.RunInProcess("echoargs", []string{"echoargs", "--flag", "value"}, false, "", "")
	if runError != nil {
		t.Fatalf("unexpected error: %v", runError)
	}
	if result.Stdout != "echoargs --flag value" {
		t.Errorf("unexpected stdout: %q", result.Stdout)
	}
	if result.Stderr != "diagnostic" {
		t.Errorf("unexpected stderr: %q", result.Stderr)
	}
}

func TestRunInProcessFeedsSourceThroughStdin(t *testing.T) {
	executionHarness := newTestHarness(t)
	executionHarness.Register("cat", func(argv []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
		content, readError := io.ReadAll(stdin)
		if readError != nil {
			return readError
		}
		_, writeError := stdout.Write(content)
		return writeError
	})

	result, runError := executionHarness.RunInProcess("cat", []string{"cat"}, true, "", "def foo(): pass\n")
	if runError != nil {
		t.Fatalf("unexpected error: %v", runError)
	}
	if result.Stdout != "def foo(): pass\n" {
		t.Errorf("unexpected stdout: %q", result.Stdout)
	}
}

func TestRunInProcessSwallowsEarlyExit(t *testing.T) {
	testCases := []struct {
		name         string
		routineError error
	}{
		{name: "sentinel", routineError: ErrEarlyExit},
		{name: "exit_code", routineError: &ExitError{Code: 1}},
		{name: "wrapped_sentinel", routineError: fmt.Errorf("usage: %w", ErrEarlyExit)},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			executionHarness := newTestHarness(t)
			executionHarness.Register("exiting", func(argv []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
				fmt.Fprint(stdout, "partial output")
				return testCase.routineError
			})

			result, runError := executionHarness.RunInProcess("exiting", []string{"exiting"}, false, "", "")
			if runError != nil {
				t.Fatalf("early exit must not surface as an error, got %v", runError)
			}
			if result.Stdout != "partial output" {
				t.Errorf("captured output must survive early exit, got %q", result.Stdout)
			}
		})
	}
}

func TestRunInProcessSwitchesAndRestoresWorkingDirectory(t *testing.T) {
	executionHarness := newTestHarness(t)
	targetDirectory, getwdStartError := os.Getwd()
	if getwdStartError != nil {
		t.Fatalf("determine working directory: %v", getwdStartError)
	}
	requestedDirectory := t.TempDir()

	var observedDirectory string
	executionHarness.Register("whereami", func(argv []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
		currentDirectory, getwdError := os.Getwd()
		if getwdError != nil {
			return getwdError
		}
		observedDirectory = currentDirectory
		return nil
	})

	if _, runError := executionHarness.RunInProcess("whereami", []string{"whereami"}, false, requestedDirectory, ""); runError != nil {
		t.Fatalf("unexpected error: %v", runError)
	}
	if !utils.IsSamePath(observedDirectory, requestedDirectory) {
		t.Errorf("routine observed %q, expected %q", observedDirectory, requestedDirectory)
	}

	restoredDirectory, getwdError := os.Getwd()
	if getwdError != nil {
		t.Fatalf("determine working directory after run: %v", getwdError)
	}
	if !utils.IsSamePath(restoredDirectory, targetDirectory) {
		t.Errorf("working directory not restored: got %q, expected %q", restoredDirectory, targetDirectory)
	}
}

func TestRunInProcessRestoresWorkingDirectoryOnFailure(t *testing.T) {
	executionHarness := newTestHarness(t)
	originalDirectory, getwdError := os.Getwd()
	if getwdError != nil {
		t.Fatalf("determine working directory: %v", getwdError)
	}

	executionHarness.Register("failing", func(argv []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
		return errors.New("routine blew up")
	})

	_, runError := executionHarness.RunInProcess("failing", []string{"failing"}, false, t.TempDir(), "")
	if runError == nil {
		t.Fatal("expected routine failure to propagate")
	}

	restoredDirectory, restoredError := os.Getwd()
	if restoredError != nil {
		t.Fatalf("determine working directory after run: %v", restoredError)
	}
	if !utils.IsSamePath(restoredDirectory, originalDirectory) {
		t.Errorf("working directory not restored after failure: got %q, expected %q", restoredDirectory, originalDirectory)
	}
}

func TestRunInProcessFailsForUnknownRoutine(t *testing.T) {
	executionHarness := newTestHarness(t)
	_, runError := executionHarness.RunInProcess("missing", []string{"missing"}, false, "", "")
	if !errors.Is(runError, ErrUnknownRoutine) {
		t.Fatalf("expected ErrUnknownRoutine, got %v", runError)
	}
}

func TestConcurrentRunsDoNotObserveEachOther(t *testing.T) {
	executionHarness := newTestHarness(t)
	executionHarness.Register("slowecho", func(argv []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
		startDirectory, startError := os.Getwd()
		if startError != nil {
			return startError
		}
		time.Sleep(5 * time.Millisecond)
		endDirectory, endError := os.Getwd()
		if endError != nil {
			return endError
		}
		if !utils.IsSamePath(startDirectory, endDirectory) {
			return fmt.Errorf("working directory changed mid-run: %s -> %s", startDirectory, endDirectory)
		}
		fmt.Fprintf(stdout, "marker=%s cwd=%s", argv[1], endDirectory)
		return nil
	})

	const callerCount = 8
	results := make([]RunResult, callerCount)
	runErrors := make([]error, callerCount)
	directories := make([]string, callerCount)
	var callers sync.WaitGroup
	for index := 0; index < callerCount; index++ {
		directories[index] = t.TempDir()
		callers.Add(1)
		go func(callerIndex int) {
			defer callers.Done()
			marker := fmt.Sprintf("caller-%d", callerIndex)
			results[callerIndex], runErrors[callerIndex] = executionHarness.RunInProcess(
				"slowecho",
				[]string{"slowecho", marker},
				false,
				directories[callerIndex],
				"",
			)
		}(index)
	}
	callers.Wait()

	for index := 0; index < callerCount; index++ {
		if runErrors[index] != nil {
			t.Fatalf("caller %d failed: %v", index, runErrors[index])
		}
		expectedMarker := fmt.Sprintf("marker=caller-%d", index)
		if !strings.HasPrefix(results[index].Stdout, expectedMarker) {
			t.Errorf("caller %d captured foreign output: %q", index, results[index].Stdout)
		}
		if !strings.Contains(results[index].Stdout, directories[index]) {
			t.Errorf("caller %d did not run in its own directory: %q", index, results[index].Stdout)
		}
	}
}

func TestRunSubprocessCapturesOutputAndIgnoresExitCode(t *testing.T) {
	executionHarness := newTestHarness(t)
	result, runError := executionHarness.RunSubprocess(
		context.Background(),
		[]string{"sh", "-c", "echo out; echo err >&2; exit 3"},
		false,
		t.TempDir(),
		"",
	)
	if runError != nil {
		t.Fatalf("non-zero exit must not be an error, got %v", runError)
	}
	if result.Stdout != "out\n" {
		t.Errorf("unexpected stdout: %q", result.Stdout)
	}
	if result.Stderr != "err\n" {
		t.Errorf("unexpected stderr: %q", result.Stderr)
	}
}

func TestRunSubprocessFeedsStdinAndRunsInWorkingDirectory(t *testing.T) {
	executionHarness := newTestHarness(t)
	workingDirectory := t.TempDir()
	result, runError := executionHarness.RunSubprocess(
		context.Background(),
		[]string{"sh", "-c", "cat; pwd"},
		true,
		workingDirectory,
		"piped input\n",
	)
	if runError != nil {
		t.Fatalf("unexpected error: %v", runError)
	}
	if !strings.HasPrefix(result.Stdout, "piped input\n") {
		t.Errorf("stdin content missing from output: %q", result.Stdout)
	}
	if !strings.Contains(result.Stdout, workingDirectory) {
		t.Errorf("subprocess did not run in %q: %q", workingDirectory, result.Stdout)
	}
}

func TestRunSubprocessPropagatesSpawnFailure(t *testing.T) {
	executionHarness := newTestHarness(t)
	_, runError := executionHarness.RunSubprocess(
		context.Background(),
		[]string{"definitely-not-an-executable-on-this-host"},
		false,
		"",
		"",
	)
	if runError == nil {
		t.Fatal("expected a spawn failure")
	}
}
