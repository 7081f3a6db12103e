package server

import "encoding/json"

const jsonRPCVersion = "2.0"

// Protocol method names accepted by the serving loop.
const (
	methodInitialize             = "initialize"
	methodInitialized            = "initialized"
	methodShutdown               = "shutdown"
	methodExit                   = "exit"
	methodExecuteCommand         = "workspace/executeCommand"
	methodDidChangeConfiguration = "workspace/didChangeConfiguration"
	methodLogMessage             = "window/logMessage"
	methodShowMessage            = "window/showMessage"
)

// JSON-RPC 2.0 standard error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Server-reserved error codes (-32000 to -32099).
const (
	codeUnknownCommand = -32001
	codeNotReady       = -32002
	codePathError      = -32003
	codeAnalysisError  = -32004
)

// Message severities for window/logMessage and window/showMessage.
const (
	messageTypeError   = 1
	messageTypeWarning = 2
	messageTypeInfo    = 3
	messageTypeLog     = 4
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result"`
}

type errorResponse struct {
	JSONRPC string   `json:"jsonrpc"`
	ID      any      `json:"id"`
	Error   rpcError `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type logMessageParams struct {
	Type    int    `json:"type"`
	Message string `json:"message"`
}

type initializeParams struct {
	InitializationOptions initializationOptions `json:"initializationOptions"`
}

type initializationOptions struct {
	GlobalSettings globalSettingsPayload      `json:"globalSettings"`
	Settings       []workspaceSettingsPayload `json:"settings"`
}

type globalSettingsPayload struct {
	Path              []string `json:"path"`
	Interpreter       []string `json:"interpreter"`
	Args              []string `json:"args"`
	ImportStrategy    string   `json:"importStrategy"`
	ShowNotifications string   `json:"showNotifications"`
}

type workspaceSettingsPayload struct {
	Workspace         string   `json:"workspace"`
	WorkingDirectory  string   `json:"cwd"`
	Interpreter       []string `json:"interpreter"`
	Args              []string `json:"args"`
	ImportStrategy    string   `json:"importStrategy"`
	ShowNotifications string   `json:"showNotifications"`
}

type didChangeConfigurationParams struct {
	Settings []workspaceSettingsPayload `json:"settings"`
}

type executeCommandParams struct {
	Command   string            `json:"command"`
	Arguments []json.RawMessage `json:"arguments"`
}

type initializeResult struct {
	Capabilities serverCapabilities `json:"capabilities"`
	ServerInfo   serverInfo         `json:"serverInfo"`
}

type serverCapabilities struct {
	ExecuteCommandProvider executeCommandProvider `json:"executeCommandProvider"`
}

type executeCommandProvider struct {
	Commands []string `json:"commands"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func newResponse(id any, result any) response {
	return response{JSONRPC: jsonRPCVersion, ID: id, Result: result}
}

func newErrorResponse(id any, code int, message string, data any) errorResponse {
	return errorResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcError{Code: code, Message: message, Data: data}}
}

func newNotification(method string, params any) notification {
	return notification{JSONRPC: jsonRPCVersion, Method: method, Params: params}
}
