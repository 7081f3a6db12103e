// Package cli provides the command line interface.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"funcanalyzer/internal/engine"
	"funcanalyzer/internal/scanner"
	"funcanalyzer/internal/server"
	"funcanalyzer/internal/services/clipboard"
	"funcanalyzer/internal/settings"
	"funcanalyzer/internal/types"
	"funcanalyzer/internal/utils"
)

const (
	versionFlagName      = "version"
	configFlagName       = "config"
	httpFlagName         = "http"
	versionTemplate      = "funcanalyzer version: %s\n"
	rootUse              = "funcanalyzer"
	rootShortDescription = "funcanalyzer command line interface"
	rootLongDescription  = `funcanalyzer analyzes Python source files for top-level function definitions.
It counts and lists functions for single files or whole directory trees, and
runs as a command server speaking line-delimited JSON-RPC over stdio or HTTP.
Use --config to point at an explicit settings file, and --version to print the application version.`
	versionFlagDescription = "display application version"
	configFlagDescription  = "path to a settings file"
	httpFlagDescription    = "serve over HTTP on the given address instead of stdio"

	serveUse              = "serve"
	countUse              = "count <path>"
	scanUse               = "scan <path>"
	countAlias            = "c"
	scanAlias             = "s"
	serveShortDescription = "run the command server"
	countShortDescription = "count top-level functions (" + countAlias + ")"
	scanShortDescription  = "list top-level functions (" + scanAlias + ")"

	// serveLongDescription provides detailed help for the serve command.
	serveLongDescription = `Run the command server.
By default the server reads line-delimited JSON-RPC requests from stdin and
writes responses to stdout. With --http the commands are exposed over HTTP
instead.`
	// serveUsageExample demonstrates serve command usage.
	serveUsageExample = `  # Serve over stdio
  funcanalyzer serve

  # Serve over HTTP on a fixed port
  funcanalyzer serve --http 127.0.0.1:8931`

	// countLongDescription provides detailed help for the count command.
	countLongDescription = `Count top-level function definitions.
A file argument prints a single count; a directory argument prints a JSON
object mapping each source file to its count or to an error entry.`
	// countUsageExample demonstrates count command usage.
	countUsageExample = `  # Count functions in a single file
  funcanalyzer count app.py

  # Count functions across a project and copy the result
  funcanalyzer count --copy ./src`

	// scanLongDescription provides detailed help for the scan command.
	scanLongDescription = `List top-level function definitions with their line numbers.
The output is a JSON object mapping each source file to its functions or to an
error entry.`
	// scanUsageExample demonstrates scan command usage.
	scanUsageExample = `  # List functions in a directory tree
  funcanalyzer scan ./src`

	serverAddressFormat           = "serving on %s\n"
	clipboardServiceMissingError  = "clipboard service is unavailable"
	clipboardCopyErrorFormat      = "copy to clipboard: %w"
	workingDirectoryErrorFormat   = "unable to determine working directory: %w"
	jsonIndentation               = "  "
	pathArgumentRequiredMessage   = "a path argument is required"
	sourceFileReadErrorFormat     = "read %s: %w"
	resultEncodingFailureMessage  = "encode analysis result"
	settingsLoadingFailureMessage = "load settings"
)

// Execute runs the funcanalyzer application.
func Execute() error {
	rootCommand := createRootCommand()
	rootCommand.SetArgs(normalizeCopyFlagArguments(os.Args[1:]))
	return rootCommand.Execute()
}

// createRootCommand builds the root Cobra command.
func createRootCommand() *cobra.Command {
	var showVersion bool
	var configFilePath string

	rootCommand := &cobra.Command{
		Use:          rootUse,
		Short:        rootShortDescription,
		Long:         rootLongDescription,
		SilenceUsage: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
		PersistentPreRun: func(command *cobra.Command, arguments []string) {
			if showVersion {
				fmt.Printf(versionTemplate, utils.GetApplicationVersion())
				os.Exit(0)
			}
		},
	}
	rootCommand.PersistentFlags().BoolVar(&showVersion, versionFlagName, false, versionFlagDescription)
	rootCommand.PersistentFlags().StringVar(&configFilePath, configFlagName, "", configFlagDescription)
	rootCommand.AddCommand(
		createServeCommand(&configFilePath),
		createCountCommand(),
		createScanCommand(),
	)
	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	return rootCommand
}

// createServeCommand returns the serve subcommand.
func createServeCommand(configFilePath *string) *cobra.Command {
	var httpAddress string

	serveCommand := &cobra.Command{
		Use:     serveUse,
		Short:   serveShortDescription,
		Long:    serveLongDescription,
		Example: serveUsageExample,
		Args:    cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			return runServe(*configFilePath, httpAddress)
		},
	}

	serveCommand.Flags().StringVar(&httpAddress, httpFlagName, "", httpFlagDescription)
	return serveCommand
}

// runServe wires the command server together and blocks until the client
// disconnects or the process receives an interrupt.
func runServe(configFilePath string, httpAddress string) error {
	loggerInstance, loggerError := utils.NewApplicationLogger()
	if loggerError != nil {
		return loggerError
	}
	defer loggerInstance.Sync()

	workingDirectory, workingDirectoryError := os.Getwd()
	if workingDirectoryError != nil {
		return fmt.Errorf(workingDirectoryErrorFormat, workingDirectoryError)
	}

	fileSettings, settingsError := settings.LoadFileSettings(settings.LoadOptions{
		WorkingDirectory: workingDirectory,
		ExplicitFilePath: configFilePath,
	})
	if settingsError != nil {
		return fmt.Errorf("%s: %w", settingsLoadingFailureMessage, settingsError)
	}
	resolver := settings.NewResolver()
	resolver.SetGlobal(fileSettings.Global)
	if len(fileSettings.Workspaces) > 0 {
		resolver.Update(fileSettings.Workspaces)
	}

	commandServer, serverError := server.NewServer(server.Config{
		Logger:   loggerInstance,
		Resolver: resolver,
	})
	if serverError != nil {
		return serverError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if httpAddress != "" {
		transport := server.NewHTTPServer(server.HTTPConfig{Address: httpAddress}, commandServer)
		return transport.Run(ctx, func(boundAddress string) {
			fmt.Fprintf(os.Stderr, serverAddressFormat, boundAddress)
		})
	}
	return commandServer.Run(ctx)
}

// createCountCommand returns the count subcommand.
func createCountCommand() *cobra.Command {
	var copyToClipboard bool

	countCommand := &cobra.Command{
		Use:     countUse,
		Aliases: []string{countAlias},
		Short:   countShortDescription,
		Long:    countLongDescription,
		Example: countUsageExample,
		Args:    cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			return runAnalysisCommand(analysisCommandOptions{
				Command:         types.CommandCountFunctions,
				Path:            arguments[0],
				CopyToClipboard: copyToClipboard,
				Clipboard:       clipboard.NewService(),
				Writer:          command.OutOrStdout(),
			})
		},
	}

	registerCopyFlag(countCommand.Flags(), &copyToClipboard)
	return countCommand
}

// createScanCommand returns the scan subcommand.
func createScanCommand() *cobra.Command {
	var copyToClipboard bool

	scanCommand := &cobra.Command{
		Use:     scanUse,
		Aliases: []string{scanAlias},
		Short:   scanShortDescription,
		Long:    scanLongDescription,
		Example: scanUsageExample,
		Args:    cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			return runAnalysisCommand(analysisCommandOptions{
				Command:         types.CommandScanFunctions,
				Path:            arguments[0],
				CopyToClipboard: copyToClipboard,
				Clipboard:       clipboard.NewService(),
				Writer:          command.OutOrStdout(),
			})
		},
	}

	registerCopyFlag(scanCommand.Flags(), &copyToClipboard)
	return scanCommand
}

// analysisCommandOptions configures a direct count or scan invocation.
type analysisCommandOptions struct {
	Command         string
	Path            string
	CopyToClipboard bool
	Clipboard       clipboard.Copier
	Writer          io.Writer
}

// runAnalysisCommand analyzes the path and renders the result as JSON.
func runAnalysisCommand(options analysisCommandOptions) error {
	if options.Path == "" {
		return errors.New(pathArgumentRequiredMessage)
	}
	outputWriter := options.Writer
	if outputWriter == nil {
		outputWriter = os.Stdout
	}

	analysisEngine := engine.NewEngine()
	directoryScanner := scanner.NewScanner(analysisEngine)

	result, analysisError := analyzePath(options.Command, options.Path, analysisEngine, directoryScanner)
	if analysisError != nil {
		return analysisError
	}

	rendered, encodeError := json.MarshalIndent(result, "", jsonIndentation)
	if encodeError != nil {
		return fmt.Errorf("%s: %w", resultEncodingFailureMessage, encodeError)
	}

	var clipboardBuffer *bytes.Buffer
	if options.CopyToClipboard {
		if options.Clipboard == nil {
			return errors.New(clipboardServiceMissingError)
		}
		clipboardBuffer = &bytes.Buffer{}
		outputWriter = io.MultiWriter(outputWriter, clipboardBuffer)
	}

	if _, writeError := fmt.Fprintln(outputWriter, string(rendered)); writeError != nil {
		return writeError
	}
	if options.CopyToClipboard && clipboardBuffer != nil {
		if copyError := options.Clipboard.Copy(clipboardBuffer.String()); copyError != nil {
			return fmt.Errorf(clipboardCopyErrorFormat, copyError)
		}
	}
	return nil
}

// analyzePath produces the command's result value for a file or directory.
func analyzePath(commandName string, targetPath string, analysisEngine *engine.Engine, directoryScanner *scanner.Scanner) (any, error) {
	pathInformation, statError := os.Stat(targetPath)
	if statError != nil {
		return nil, &types.PathError{Path: targetPath, Message: "does not exist"}
	}

	if pathInformation.IsDir() {
		if commandName == types.CommandScanFunctions {
			return directoryScanner.Scan(targetPath)
		}
		return directoryScanner.ScanCounts(targetPath)
	}

	content, readError := os.ReadFile(targetPath)
	if readError != nil {
		return nil, fmt.Errorf(sourceFileReadErrorFormat, targetPath, readError)
	}
	if commandName == types.CommandScanFunctions {
		records, scanError := analysisEngine.Functions(content)
		if scanError != nil {
			return nil, scanError
		}
		return records, nil
	}
	count, countError := analysisEngine.Count(content)
	if countError != nil {
		return nil, countError
	}
	return count, nil
}
