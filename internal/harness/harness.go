// Package harness executes analysis routines with substituted command-line
// arguments, standard streams, and working directory, capturing their output.
//
// The process working directory and the captured stream pair are process-wide
// resources. Every in-process execution therefore serializes through a single
// lock held for the full duration of the substituted call, and the server
// working directory is restored on every exit path.
package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"funcanalyzer/internal/utils"
)

// RunResult holds the captured output of one routine execution. Both
// execution paths produce the same shape, so callers stay agnostic to which
// path ran.
type RunResult struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// Routine is an analysis routine invoked as if from a command line. argv[0]
// carries the routine name; the streams stand in for the process streams for
// the duration of the call.
type Routine func(argv []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error

// ErrEarlyExit signals that a routine terminated early on purpose, the way a
// command-line tool exits. The harness swallows it and still returns the
// captured output.
var ErrEarlyExit = errors.New("routine requested early exit")

// ErrUnknownRoutine reports an in-process execution request for a routine
// name that was never registered.
var ErrUnknownRoutine = errors.New("unknown routine")

// ExitError carries an explicit exit code out of a routine. The harness
// treats any code as normal termination, matching the subprocess contract
// where exit status is not part of the result.
type ExitError struct {
	Code int
}

// Error reports the requested exit code.
func (exitError *ExitError) Error() string {
	return fmt.Sprintf("routine exited with code %d", exitError.Code)
}

// Harness owns the process-wide execution state. One Harness instance exists
// per server process.
type Harness struct {
	logger                 *zap.Logger
	serverWorkingDirectory string
	executionLock          sync.Mutex
	routinesLock           sync.RWMutex
	routines               map[string]Routine
}

// NewHarness constructs a Harness. The working directory at construction time
// becomes the restoration target for every in-process execution.
func NewHarness(logger *zap.Logger) (*Harness, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	serverWorkingDirectory, workingDirectoryError := os.Getwd()
	if workingDirectoryError != nil {
		return nil, fmt.Errorf("determine server working directory: %w", workingDirectoryError)
	}
	return &Harness{
		logger:                 logger,
		serverWorkingDirectory: serverWorkingDirectory,
		routines:               map[string]Routine{},
	}, nil
}

// Register makes a routine available for in-process execution under the given
// name. Registering an existing name replaces the routine.
func (executionHarness *Harness) Register(routineName string, routine Routine) {
	executionHarness.routinesLock.Lock()
	defer executionHarness.routinesLock.Unlock()
	executionHarness.routines[routineName] = routine
}

// RunInProcess executes a registered routine with substituted argv, streams,
// and working directory, returning its captured output.
//
// All in-process executions are serialized: callers targeting a different
// working directory switch into it for the duration of the call, callers
// targeting the current one skip the switch, and both hold the same lock so
// stream substitution stays exclusive. The server working directory is
// restored on every exit path, including routine failure and early exit.
func (executionHarness *Harness) RunInProcess(routineName string, argv []string, useStdin bool, workingDirectory string, source string) (RunResult, error) {
	executionHarness.routinesLock.RLock()
	routine, routineFound := executionHarness.routines[routineName]
	executionHarness.routinesLock.RUnlock()
	if !routineFound {
		return RunResult{}, fmt.Errorf("%w: %s", ErrUnknownRoutine, routineName)
	}

	executionHarness.executionLock.Lock()
	defer executionHarness.executionLock.Unlock()

	runIdentifier := uuid.NewString()
	executionHarness.logger.Debug("running routine in process",
		zap.String("run_id", runIdentifier),
		zap.String("routine", routineName),
		zap.Strings("argv", argv),
		zap.String("cwd", workingDirectory),
	)

	if workingDirectory != "" && !utils.IsSamePath(executionHarness.serverWorkingDirectory, workingDirectory) {
		if changeError := os.Chdir(workingDirectory); changeError != nil {
			return RunResult{}, fmt.Errorf("enter working directory %s: %w", workingDirectory, changeError)
		}
		defer func() {
			if restoreError := os.Chdir(executionHarness.serverWorkingDirectory); restoreError != nil {
				executionHarness.logger.Error("failed to restore server working directory",
					zap.String("run_id", runIdentifier),
					zap.String("cwd", executionHarness.serverWorkingDirectory),
					zap.Error(restoreError),
				)
			}
		}()
	}

	var capturedStdout bytes.Buffer
	var capturedStderr bytes.Buffer
	var substitutedStdin io.Reader = strings.NewReader("")
	if useStdin {
		substitutedStdin = strings.NewReader(source)
	}

	routineError := routine(argv, substitutedStdin, &capturedStdout, &capturedStderr)
	result := RunResult{Stdout: capturedStdout.String(), Stderr: capturedStderr.String()}
	if routineError != nil && !isEarlyExit(routineError) {
		return result, fmt.Errorf("routine %s: %w", routineName, routineError)
	}
	return result, nil
}

// RunSubprocess spawns argv as an independent process in the given working
// directory and captures its output as text. A non-zero exit code is not an
// error; only spawn failures propagate.
func (executionHarness *Harness) RunSubprocess(ctx context.Context, argv []string, useStdin bool, workingDirectory string, source string) (RunResult, error) {
	if len(argv) == 0 {
		return RunResult{}, fmt.Errorf("subprocess execution requires a non-empty argument vector")
	}

	runIdentifier := uuid.NewString()
	executionHarness.logger.Debug("running subprocess",
		zap.String("run_id", runIdentifier),
		zap.Strings("argv", argv),
		zap.String("cwd", workingDirectory),
	)

	// #nosec G204
	command := exec.CommandContext(ctx, argv[0], argv[1:]...)
	command.Dir = workingDirectory
	var capturedStdout bytes.Buffer
	var capturedStderr bytes.Buffer
	command.Stdout = &capturedStdout
	command.Stderr = &capturedStderr
	if useStdin {
		command.Stdin = strings.NewReader(source)
	}

	runError := command.Run()
	if runError != nil {
		var processExitError *exec.ExitError
		if !errors.As(runError, &processExitError) {
			return RunResult{}, fmt.Errorf("spawn %s: %w", argv[0], runError)
		}
		executionHarness.logger.Debug("subprocess exited non-zero",
			zap.String("run_id", runIdentifier),
			zap.Int("code", processExitError.ExitCode()),
		)
	}
	return RunResult{Stdout: capturedStdout.String(), Stderr: capturedStderr.String()}, nil
}

func isEarlyExit(routineError error) bool {
	if errors.Is(routineError, ErrEarlyExit) {
		return true
	}
	var exitError *ExitError
	return errors.As(routineError, &exitError)
}
