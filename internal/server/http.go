package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"funcanalyzer/internal/types"
)

const (
	defaultListenAddress    = "127.0.0.1:0"
	defaultShutdownDuration = 5 * time.Second
	headerContentType       = "Content-Type"
	mimeTypeJSON            = "application/json"
	capabilitiesPath        = "/capabilities"
	rootPath                = "/"
	commandsPrefix          = "/commands/"
	errorFieldName          = "error"
	errorCommandNotFound    = "command not found"
)

// Capability describes a command exposed over the HTTP transport.
type Capability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// commandRequestPayload is the body accepted by POST /commands/<name>.
type commandRequestPayload struct {
	Arguments []json.RawMessage `json:"arguments"`
}

// HTTPConfig defines runtime options for the HTTP transport.
type HTTPConfig struct {
	Address         string
	ShutdownTimeout time.Duration
}

// HTTPServer exposes the command server's analysis commands over HTTP. It
// bypasses the initialize lifecycle: every command is available immediately.
type HTTPServer struct {
	config        HTTPConfig
	commandServer *Server
	capabilities  []Capability
}

// NewHTTPServer creates an HTTPServer with defaults applied.
func NewHTTPServer(config HTTPConfig, commandServer *Server) *HTTPServer {
	normalized := config
	if normalized.Address == "" {
		normalized.Address = defaultListenAddress
	}
	if normalized.ShutdownTimeout <= 0 {
		normalized.ShutdownTimeout = defaultShutdownDuration
	}
	return &HTTPServer{
		config:        normalized,
		commandServer: commandServer,
		capabilities: []Capability{
			{Name: types.CommandCountFunctions, Description: "Count top-level functions in a source file or directory"},
			{Name: types.CommandScanFunctions, Description: "List top-level functions per source file"},
		},
	}
}

// Run starts the HTTP transport and blocks until the provided context is
// canceled. The notify callback receives the bound address once the listener
// is active.
func (transport *HTTPServer) Run(ctx context.Context, notify func(string)) error {
	listener, listenErr := net.Listen("tcp", transport.config.Address)
	if listenErr != nil {
		return fmt.Errorf("listen on %s: %w", transport.config.Address, listenErr)
	}
	actualAddress := listener.Addr().String()

	router := http.NewServeMux()
	router.HandleFunc(capabilitiesPath, transport.handleCapabilities)
	router.HandleFunc(rootPath, transport.handleRoot)
	router.HandleFunc(commandsPrefix, transport.handleCommand)

	httpServer := &http.Server{Handler: router}
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		serveErr := httpServer.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serve http transport: %w", serveErr)
		}
		return nil
	})

	if notify != nil {
		notify(actualAddress)
	}

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), transport.config.ShutdownTimeout)
		defer cancel()
		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if shutdownErr != nil && !errors.Is(shutdownErr, context.Canceled) && !errors.Is(shutdownErr, http.ErrServerClosed) {
			return fmt.Errorf("shutdown http transport: %w", shutdownErr)
		}
		return nil
	})

	return group.Wait()
}

func (transport *HTTPServer) handleCapabilities(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	payload := struct {
		Capabilities []Capability `json:"capabilities"`
	}{Capabilities: transport.capabilities}
	transport.writeJSON(writer, http.StatusOK, payload)
}

func (transport *HTTPServer) handleRoot(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writer.WriteHeader(http.StatusOK)
}

func (transport *HTTPServer) handleCommand(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	commandName := strings.TrimPrefix(request.URL.Path, commandsPrefix)
	if commandName == "" || strings.Contains(commandName, "/") {
		transport.writeJSON(writer, http.StatusNotFound, map[string]string{errorFieldName: errorCommandNotFound})
		return
	}
	handler, found := transport.commandServer.commandHandlers[commandName]
	if !found {
		transport.writeJSON(writer, http.StatusNotFound, map[string]string{errorFieldName: errorCommandNotFound})
		return
	}
	body, readErr := io.ReadAll(request.Body)
	if readErr != nil {
		transport.writeJSON(writer, http.StatusBadRequest, map[string]string{errorFieldName: fmt.Sprintf("read request body: %v", readErr)})
		return
	}
	var payload commandRequestPayload
	if len(body) > 0 {
		if decodeErr := json.Unmarshal(body, &payload); decodeErr != nil {
			transport.writeJSON(writer, http.StatusBadRequest, map[string]string{errorFieldName: fmt.Sprintf("decode request body: %v", decodeErr)})
			return
		}
	}
	result, executeErr := handler(request.Context(), payload.Arguments)
	if executeErr != nil {
		transport.writeJSON(writer, statusCodeFromError(executeErr), map[string]string{errorFieldName: executeErr.Error()})
		return
	}
	transport.writeJSON(writer, http.StatusOK, map[string]any{"result": result})
}

func (transport *HTTPServer) writeJSON(writer http.ResponseWriter, statusCode int, payload any) {
	var buffer bytes.Buffer
	if encodeErr := json.NewEncoder(&buffer).Encode(payload); encodeErr != nil {
		fallback := map[string]string{errorFieldName: fmt.Sprintf("encode response: %v", encodeErr)}
		writer.Header().Set(headerContentType, mimeTypeJSON)
		writer.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(writer).Encode(fallback)
		return
	}
	writer.Header().Set(headerContentType, mimeTypeJSON)
	writer.WriteHeader(statusCode)
	_, _ = writer.Write(buffer.Bytes())
}

func statusCodeFromError(executeErr error) int {
	var argumentError *types.InvalidArgumentError
	if errors.As(executeErr, &argumentError) {
		return http.StatusBadRequest
	}
	var pathError *types.PathError
	if errors.As(executeErr, &pathError) {
		return http.StatusNotFound
	}
	var parseError *types.ParseError
	if errors.As(executeErr, &parseError) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
