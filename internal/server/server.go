// Package server implements the command server: a JSON-RPC 2.0 serving loop
// with an initialize/shutdown lifecycle, settings resolution, and the two
// analysis commands.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"funcanalyzer/internal/engine"
	"funcanalyzer/internal/harness"
	"funcanalyzer/internal/routines"
	"funcanalyzer/internal/scanner"
	"funcanalyzer/internal/settings"
	"funcanalyzer/internal/types"
	"funcanalyzer/internal/utils"
)

const maxLineSize = 4 * 1024 * 1024

const serverName = "funcanalyzer"

// Import strategies selecting the execution path for single-file analysis.
const (
	importStrategyBundled     = "useBundled"
	importStrategyEnvironment = "fromEnvironment"
)

type serverState int

// Lifecycle states. Commands are accepted only in stateReady.
const (
	stateUninitialized serverState = iota
	stateReady
	stateShuttingDown
	stateStopped
)

func (state serverState) String() string {
	switch state {
	case stateUninitialized:
		return "uninitialized"
	case stateReady:
		return "ready"
	case stateShuttingDown:
		return "shutting down"
	case stateStopped:
		return "stopped"
	}
	return "unknown"
}

// Config defines the collaborators of a Server. Zero-value fields receive
// defaults: process streams, a no-op logger, and freshly constructed
// analysis components.
type Config struct {
	Reader   io.Reader
	Writer   io.Writer
	Logger   *zap.Logger
	Engine   *engine.Engine
	Scanner  *scanner.Scanner
	Harness  *harness.Harness
	Resolver *settings.Resolver
}

// commandHandler executes one named command against decoded arguments.
type commandHandler func(ctx context.Context, arguments []json.RawMessage) (any, error)

// Server is the command server. One instance serves one client connection.
type Server struct {
	config          Config
	commandHandlers map[string]commandHandler
	stateLock       sync.Mutex
	state           serverState
	writeLock       sync.Mutex
}

// NewServer creates a Server with defaults applied and the bundled analysis
// routine registered. The command dispatch table is closed at construction:
// unknown command names hit a single well-defined branch.
func NewServer(config Config) (*Server, error) {
	normalized := config
	if normalized.Reader == nil {
		normalized.Reader = os.Stdin
	}
	if normalized.Writer == nil {
		normalized.Writer = os.Stdout
	}
	if normalized.Logger == nil {
		normalized.Logger = zap.NewNop()
	}
	if normalized.Engine == nil {
		normalized.Engine = engine.NewEngine()
	}
	if normalized.Scanner == nil {
		normalized.Scanner = scanner.NewScanner(normalized.Engine)
	}
	if normalized.Harness == nil {
		executionHarness, harnessError := harness.NewHarness(normalized.Logger)
		if harnessError != nil {
			return nil, harnessError
		}
		normalized.Harness = executionHarness
	}
	if normalized.Resolver == nil {
		normalized.Resolver = settings.NewResolver()
	}
	routines.RegisterBundled(normalized.Harness, normalized.Engine, normalized.Scanner)

	commandServer := &Server{config: normalized, state: stateUninitialized}
	commandServer.commandHandlers = map[string]commandHandler{
		types.CommandCountFunctions: commandServer.executeCountFunctions,
		types.CommandScanFunctions:  commandServer.executeScanFunctions,
	}
	return commandServer, nil
}

// Run serves line-delimited JSON-RPC messages until the client disconnects,
// the context is canceled, or an exit message arrives.
func (commandServer *Server) Run(ctx context.Context) error {
	lineScanner := bufio.NewScanner(commandServer.config.Reader)
	buffer := make([]byte, maxLineSize)
	lineScanner.Buffer(buffer, maxLineSize)

	for lineScanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(lineScanner.Text())
		if line == "" {
			continue
		}
		stop := commandServer.handleMessage(ctx, []byte(line))
		if stop {
			return nil
		}
	}
	if scanError := lineScanner.Err(); scanError != nil {
		return fmt.Errorf("read protocol stream: %w", scanError)
	}
	return nil
}

// handleMessage processes one protocol message and reports whether the
// serving loop should stop. A failing command never tears the loop down.
func (commandServer *Server) handleMessage(ctx context.Context, payload []byte) bool {
	var incoming request
	if decodeError := json.Unmarshal(payload, &incoming); decodeError != nil {
		commandServer.writeMessage(newErrorResponse(nil, codeParseError, "parse error", decodeError.Error()))
		return false
	}
	if incoming.JSONRPC != jsonRPCVersion {
		commandServer.writeMessage(newErrorResponse(incoming.ID, codeInvalidRequest, "jsonrpc must be 2.0", nil))
		return false
	}
	if incoming.Method == "" {
		commandServer.writeMessage(newErrorResponse(incoming.ID, codeInvalidRequest, "method is required", nil))
		return false
	}

	switch incoming.Method {
	case methodInitialize:
		commandServer.respond(incoming.ID, commandServer.handleInitialize(incoming.Params))
	case methodInitialized:
		// Client acknowledgment, nothing to do.
	case methodShutdown:
		commandServer.respond(incoming.ID, commandServer.handleShutdown())
	case methodExit:
		commandServer.transitionTo(stateStopped)
		if incoming.ID != nil {
			commandServer.writeMessage(newResponse(incoming.ID, nil))
		}
		return true
	case methodExecuteCommand:
		commandServer.respond(incoming.ID, commandServer.handleExecuteCommand(ctx, incoming.Params))
	case methodDidChangeConfiguration:
		commandServer.handleDidChangeConfiguration(incoming.Params)
	default:
		commandServer.writeMessage(newErrorResponse(incoming.ID, codeMethodNotFound, "method not found", incoming.Method))
	}
	return false
}

type handlerOutcome struct {
	result any
	err    error
}

// respond writes either a success or an error response for the outcome,
// translating the error taxonomy into protocol codes.
func (commandServer *Server) respond(id any, outcome handlerOutcome) {
	if outcome.err == nil {
		commandServer.writeMessage(newResponse(id, outcome.result))
		return
	}
	commandServer.logError(outcome.err.Error())
	commandServer.writeMessage(commandServer.errorToResponse(id, outcome.err))
}

func (commandServer *Server) errorToResponse(id any, handlerError error) errorResponse {
	var notReadyError *types.NotReadyError
	if errors.As(handlerError, &notReadyError) {
		return newErrorResponse(id, codeNotReady, notReadyError.Error(), nil)
	}
	var argumentError *types.InvalidArgumentError
	if errors.As(handlerError, &argumentError) {
		return newErrorResponse(id, codeInvalidParams, argumentError.Error(), nil)
	}
	var commandError *types.UnknownCommandError
	if errors.As(handlerError, &commandError) {
		return newErrorResponse(id, codeUnknownCommand, commandError.Error(), commandError.Command)
	}
	var pathError *types.PathError
	if errors.As(handlerError, &pathError) {
		return newErrorResponse(id, codePathError, pathError.Error(), nil)
	}
	var parseError *types.ParseError
	if errors.As(handlerError, &parseError) {
		return newErrorResponse(id, codeAnalysisError, parseError.Error(), nil)
	}
	return newErrorResponse(id, codeInternalError, handlerError.Error(), nil)
}

func (commandServer *Server) handleInitialize(params json.RawMessage) handlerOutcome {
	commandServer.stateLock.Lock()
	if commandServer.state != stateUninitialized {
		currentState := commandServer.state
		commandServer.stateLock.Unlock()
		return handlerOutcome{err: fmt.Errorf("initialize received in state %s", currentState)}
	}
	commandServer.stateLock.Unlock()

	var decoded initializeParams
	if len(params) > 0 {
		if decodeError := json.Unmarshal(params, &decoded); decodeError != nil {
			return handlerOutcome{err: &types.InvalidArgumentError{Message: fmt.Sprintf("decode initialize params: %v", decodeError)}}
		}
	}

	options := decoded.InitializationOptions
	commandServer.config.Resolver.SetGlobal(settings.GlobalSettings{
		Path:              options.GlobalSettings.Path,
		Interpreter:       options.GlobalSettings.Interpreter,
		Args:              options.GlobalSettings.Args,
		ImportStrategy:    options.GlobalSettings.ImportStrategy,
		ShowNotifications: options.GlobalSettings.ShowNotifications,
	})
	commandServer.config.Resolver.Update(workspaceSettingsFromPayload(options.Settings))

	commandServer.transitionTo(stateReady)
	commandServer.logInfo("server initialized")

	return handlerOutcome{result: initializeResult{
		Capabilities: serverCapabilities{
			ExecuteCommandProvider: executeCommandProvider{
				Commands: []string{types.CommandCountFunctions, types.CommandScanFunctions},
			},
		},
		ServerInfo: serverInfo{Name: serverName, Version: utils.GetApplicationVersion()},
	}}
}

func (commandServer *Server) handleShutdown() handlerOutcome {
	commandServer.stateLock.Lock()
	defer commandServer.stateLock.Unlock()
	if commandServer.state != stateReady {
		return handlerOutcome{err: &types.NotReadyError{State: commandServer.state.String()}}
	}
	commandServer.state = stateShuttingDown
	return handlerOutcome{result: nil}
}

func (commandServer *Server) handleDidChangeConfiguration(params json.RawMessage) {
	if !commandServer.isReady() {
		commandServer.logWarning("configuration change ignored: server not ready")
		return
	}
	var decoded didChangeConfigurationParams
	if len(params) > 0 {
		if decodeError := json.Unmarshal(params, &decoded); decodeError != nil {
			commandServer.logError(fmt.Sprintf("decode configuration change: %v", decodeError))
			return
		}
	}
	commandServer.config.Resolver.Update(workspaceSettingsFromPayload(decoded.Settings))
	commandServer.logInfo("workspace settings updated")
}

func (commandServer *Server) handleExecuteCommand(ctx context.Context, params json.RawMessage) handlerOutcome {
	if !commandServer.isReady() {
		commandServer.stateLock.Lock()
		currentState := commandServer.state.String()
		commandServer.stateLock.Unlock()
		return handlerOutcome{err: &types.NotReadyError{State: currentState}}
	}

	var decoded executeCommandParams
	if len(params) == 0 {
		return handlerOutcome{err: &types.InvalidArgumentError{Message: "executeCommand requires params"}}
	}
	if decodeError := json.Unmarshal(params, &decoded); decodeError != nil {
		return handlerOutcome{err: &types.InvalidArgumentError{Message: fmt.Sprintf("decode executeCommand params: %v", decodeError)}}
	}

	handler, handlerFound := commandServer.commandHandlers[decoded.Command]
	if !handlerFound {
		return handlerOutcome{err: &types.UnknownCommandError{Command: decoded.Command}}
	}

	result, commandError := handler(ctx, decoded.Arguments)
	return handlerOutcome{result: result, err: commandError}
}

// executeCountFunctions counts top-level functions: a single count for a file
// argument, a per-file count map for a directory argument.
func (commandServer *Server) executeCountFunctions(ctx context.Context, arguments []json.RawMessage) (any, error) {
	targetPath, argumentError := pathArgument(arguments)
	if argumentError != nil {
		return nil, argumentError
	}
	pathInformation, statError := os.Stat(targetPath)
	if statError != nil {
		return nil, &types.PathError{Path: targetPath, Message: "does not exist"}
	}
	if pathInformation.IsDir() {
		return commandServer.config.Scanner.ScanCounts(targetPath)
	}
	return commandServer.countSingleFile(ctx, targetPath)
}

// executeScanFunctions lists top-level functions per file. A file argument
// yields a single-entry result keyed by the file's base name.
func (commandServer *Server) executeScanFunctions(_ context.Context, arguments []json.RawMessage) (any, error) {
	targetPath, argumentError := pathArgument(arguments)
	if argumentError != nil {
		return nil, argumentError
	}
	pathInformation, statError := os.Stat(targetPath)
	if statError != nil {
		return nil, &types.PathError{Path: targetPath, Message: "does not exist"}
	}
	if pathInformation.IsDir() {
		return commandServer.config.Scanner.Scan(targetPath)
	}

	content, readError := os.ReadFile(targetPath)
	entryKey := filepath.Base(targetPath)
	if readError != nil {
		return types.ScanResult{entryKey: {Failure: &types.FileFailure{Kind: types.FailureKindIO, Message: readError.Error()}}}, nil
	}
	records, analysisError := commandServer.config.Engine.Functions(content)
	if analysisError != nil {
		var parseError *types.ParseError
		if errors.As(analysisError, &parseError) {
			return types.ScanResult{entryKey: {Failure: &types.FileFailure{Kind: types.FailureKindParse, Message: parseError.Error()}}}, nil
		}
		return nil, analysisError
	}
	return types.ScanResult{entryKey: {Functions: records}}, nil
}

// countSingleFile runs the analysis tool through the execution harness with
// the workspace's settings, either in process (bundled) or as a subprocess
// under the configured interpreter.
func (commandServer *Server) countSingleFile(ctx context.Context, targetPath string) (any, error) {
	absolutePath, absoluteError := filepath.Abs(targetPath)
	if absoluteError != nil {
		absolutePath = targetPath
	}
	workspaceSettings := commandServer.config.Resolver.Resolve(absolutePath)

	var runResult harness.RunResult
	var runError error
	if workspaceSettings.ImportStrategy == importStrategyEnvironment && len(workspaceSettings.Interpreter) > 0 {
		argv := append(append([]string(nil), workspaceSettings.Interpreter...), workspaceSettings.Args...)
		argv = append(argv, absolutePath)
		runResult, runError = commandServer.config.Harness.RunSubprocess(ctx, argv, false, workspaceSettings.WorkingDirectory, "")
	} else {
		argv := append([]string{routines.ScanFunctionsRoutineName}, workspaceSettings.Args...)
		argv = append(argv, absolutePath)
		runResult, runError = commandServer.config.Harness.RunInProcess(routines.ScanFunctionsRoutineName, argv, false, workspaceSettings.WorkingDirectory, "")
	}
	if runError != nil {
		return nil, runError
	}
	if runResult.Stderr != "" {
		commandServer.logWarning(runResult.Stderr)
	}

	output := strings.TrimSpace(runResult.Stdout)
	count, parseError := strconv.Atoi(output)
	if parseError != nil {
		return nil, &types.ParseError{Line: 1, Column: 1, Message: output}
	}
	return count, nil
}

func pathArgument(arguments []json.RawMessage) (string, error) {
	if len(arguments) == 0 {
		return "", &types.InvalidArgumentError{Message: "missing path argument"}
	}
	var targetPath string
	if decodeError := json.Unmarshal(arguments[0], &targetPath); decodeError != nil {
		return "", &types.InvalidArgumentError{Message: "path argument must be a string"}
	}
	if strings.TrimSpace(targetPath) == "" {
		return "", &types.InvalidArgumentError{Message: "path argument must not be empty"}
	}
	return targetPath, nil
}

func workspaceSettingsFromPayload(payloads []workspaceSettingsPayload) []settings.WorkspaceSettings {
	converted := make([]settings.WorkspaceSettings, 0, len(payloads))
	for _, payload := range payloads {
		converted = append(converted, settings.WorkspaceSettings{
			Workspace:         payload.Workspace,
			WorkingDirectory:  payload.WorkingDirectory,
			Interpreter:       payload.Interpreter,
			Args:              payload.Args,
			ImportStrategy:    payload.ImportStrategy,
			ShowNotifications: payload.ShowNotifications,
		})
	}
	return converted
}

func (commandServer *Server) isReady() bool {
	commandServer.stateLock.Lock()
	defer commandServer.stateLock.Unlock()
	return commandServer.state == stateReady
}

func (commandServer *Server) transitionTo(state serverState) {
	commandServer.stateLock.Lock()
	defer commandServer.stateLock.Unlock()
	commandServer.state = state
}

// writeMessage serializes one protocol message as a single line. Responses
// and notifications share the writer, so writes are serialized.
func (commandServer *Server) writeMessage(message any) {
	payload, encodeError := json.Marshal(message)
	if encodeError != nil {
		commandServer.config.Logger.Error("encode protocol message", zap.Error(encodeError))
		return
	}
	commandServer.writeLock.Lock()
	defer commandServer.writeLock.Unlock()
	if _, writeError := commandServer.config.Writer.Write(append(payload, '\n')); writeError != nil {
		commandServer.config.Logger.Error("write protocol message", zap.Error(writeError))
	}
}

func (commandServer *Server) logInfo(message string) {
	commandServer.config.Logger.Info(message)
	commandServer.writeMessage(newNotification(methodLogMessage, logMessageParams{Type: messageTypeInfo, Message: message}))
}

func (commandServer *Server) logWarning(message string) {
	commandServer.config.Logger.Warn(message)
	commandServer.writeMessage(newNotification(methodLogMessage, logMessageParams{Type: messageTypeWarning, Message: message}))
}

// logError writes the diagnostic to the log channel and raises a visible
// client message, mirroring the notification policy of the warning level.
func (commandServer *Server) logError(message string) {
	commandServer.config.Logger.Error(message)
	commandServer.writeMessage(newNotification(methodLogMessage, logMessageParams{Type: messageTypeError, Message: message}))
	commandServer.writeMessage(newNotification(methodShowMessage, logMessageParams{Type: messageTypeError, Message: message}))
}
