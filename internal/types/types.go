// Package types defines every cross-package data structure used by funcanalyzer.
package types

import (
	"encoding/json"
	"fmt"
)

const (
	// CommandCountFunctions counts top-level functions in a file or directory.
	CommandCountFunctions = "functionAnalyzer.countFunctions"
	// CommandScanFunctions lists top-level functions per file under a path.
	CommandScanFunctions = "functionAnalyzer.scanFunctions"

	// SourceFileExtension selects the files visited by directory scans.
	SourceFileExtension = ".py"
)

// Failure kinds recorded in per-file error entries.
const (
	FailureKindParse = "parse"
	FailureKindIO    = "io"
)

// FunctionRecord describes one top-level function definition in source order.
type FunctionRecord struct {
	Name string `json:"name"`
	Line int    `json:"lineno"`
}

// FileFailure is a typed per-file error entry inside a scan result.
type FileFailure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ScanEntry is the outcome for a single scanned file: either the ordered list
// of top-level functions or a typed failure. Exactly one branch is set.
type ScanEntry struct {
	Functions []FunctionRecord
	Failure   *FileFailure
}

// MarshalJSON renders the populated branch: a function list on success, an
// error object on failure.
func (entry ScanEntry) MarshalJSON() ([]byte, error) {
	if entry.Failure != nil {
		return json.Marshal(entry.Failure)
	}
	if entry.Functions == nil {
		return json.Marshal([]FunctionRecord{})
	}
	return json.Marshal(entry.Functions)
}

// CountEntry is the outcome for a single counted file: a count or a typed
// failure. Exactly one branch is set.
type CountEntry struct {
	Count   int
	Failure *FileFailure
}

// MarshalJSON renders the populated branch: an integer on success, an error
// object on failure.
func (entry CountEntry) MarshalJSON() ([]byte, error) {
	if entry.Failure != nil {
		return json.Marshal(entry.Failure)
	}
	return json.Marshal(entry.Count)
}

// ScanResult maps root-relative file paths to per-file scan outcomes.
type ScanResult map[string]ScanEntry

// CountResult maps root-relative file paths to per-file count outcomes.
type CountResult map[string]CountEntry

// ParseError reports syntactically invalid source. It stays file-local:
// directory scans convert it into a per-file failure entry instead of
// propagating it.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

// Error returns the parser diagnostic with its 1-based position.
func (parseError *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", parseError.Line, parseError.Column, parseError.Message)
}

// PathError reports a scan root that does not exist or is not a directory.
type PathError struct {
	Path    string
	Message string
}

// Error describes the offending path.
func (pathError *PathError) Error() string {
	return fmt.Sprintf("path %s: %s", pathError.Path, pathError.Message)
}

// InvalidArgumentError reports a missing or wrongly typed command argument.
type InvalidArgumentError struct {
	Message string
}

// Error returns the validation message.
func (argumentError *InvalidArgumentError) Error() string {
	return argumentError.Message
}

// UnknownCommandError reports a command name outside the dispatch table.
type UnknownCommandError struct {
	Command string
}

// Error names the unrecognized command.
func (commandError *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command: %s", commandError.Command)
}

// NotReadyError reports a command received before initialization completed.
type NotReadyError struct {
	State string
}

// Error names the server state that rejected the command.
func (notReadyError *NotReadyError) Error() string {
	return fmt.Sprintf("server not ready: state %s", notReadyError.State)
}
