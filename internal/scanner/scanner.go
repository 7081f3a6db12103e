// Package scanner walks directory trees and aggregates per-file analysis results.
package scanner

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"funcanalyzer/internal/engine"
	"funcanalyzer/internal/types"
	"funcanalyzer/internal/utils"
)

const defaultWorkerCount = 4

// Scanner applies the analysis engine to every Python file under a root
// directory. Failures stay file-local: one unreadable or unparsable file never
// aborts the scan of its siblings.
type Scanner struct {
	analysisEngine *engine.Engine
	workerCount    int
}

// NewScanner constructs a Scanner with the default worker pool size.
func NewScanner(analysisEngine *engine.Engine) *Scanner {
	return &Scanner{analysisEngine: analysisEngine, workerCount: defaultWorkerCount}
}

// Scan analyzes every Python file under rootPath and returns one entry per
// visited file, keyed by root-relative path. It fails with *types.PathError
// only when rootPath itself does not exist or is not a directory.
func (scanner *Scanner) Scan(rootPath string) (types.ScanResult, error) {
	absoluteRoot, filePaths, rootError := scanner.collectSourceFiles(rootPath)
	if rootError != nil {
		return nil, rootError
	}
	result := types.ScanResult{}
	for relativePath, entry := range scanner.analyzeFiles(absoluteRoot, filePaths) {
		result[relativePath] = entry
	}
	return result, nil
}

// ScanCounts analyzes every Python file under rootPath and returns one count
// or failure entry per visited file, keyed by root-relative path.
func (scanner *Scanner) ScanCounts(rootPath string) (types.CountResult, error) {
	scanResult, scanError := scanner.Scan(rootPath)
	if scanError != nil {
		return nil, scanError
	}
	countResult := types.CountResult{}
	for relativePath, entry := range scanResult {
		if entry.Failure != nil {
			countResult[relativePath] = types.CountEntry{Failure: entry.Failure}
			continue
		}
		countResult[relativePath] = types.CountEntry{Count: len(entry.Functions)}
	}
	return countResult, nil
}

// collectSourceFiles validates the root and gathers every matching file path.
// Unreadable subdirectories are skipped rather than failing the walk.
func (scanner *Scanner) collectSourceFiles(rootPath string) (string, []string, error) {
	rootInformation, statError := os.Stat(rootPath)
	if statError != nil {
		return "", nil, &types.PathError{Path: rootPath, Message: "does not exist"}
	}
	if !rootInformation.IsDir() {
		return "", nil, &types.PathError{Path: rootPath, Message: "is not a directory"}
	}
	absoluteRoot, absoluteError := filepath.Abs(rootPath)
	if absoluteError != nil {
		return "", nil, &types.PathError{Path: rootPath, Message: absoluteError.Error()}
	}

	var filePaths []string
	walkError := filepath.WalkDir(absoluteRoot, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == absoluteRoot {
				return walkErr
			}
			return nil
		}
		if entry.IsDir() {
			if path != absoluteRoot && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != types.SourceFileExtension {
			return nil
		}
		filePaths = append(filePaths, path)
		return nil
	})
	if walkError != nil {
		return "", nil, &types.PathError{Path: rootPath, Message: walkError.Error()}
	}
	return absoluteRoot, filePaths, nil
}

type fileOutcome struct {
	relativePath string
	entry        types.ScanEntry
}

// analyzeFiles fans file analysis out over a bounded worker pool and collects
// exactly one outcome per file.
func (scanner *Scanner) analyzeFiles(rootPath string, filePaths []string) map[string]types.ScanEntry {
	workerCount := scanner.workerCount
	if workerCount > len(filePaths) {
		workerCount = len(filePaths)
		if workerCount == 0 {
			workerCount = 1
		}
	}
	jobs := make(chan string)
	outcomes := make(chan fileOutcome)

	var workers sync.WaitGroup
	for index := 0; index < workerCount; index++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for filePath := range jobs {
				outcomes <- scanner.analyzeFile(rootPath, filePath)
			}
		}()
	}

	go func() {
		for _, filePath := range filePaths {
			jobs <- filePath
		}
		close(jobs)
		workers.Wait()
		close(outcomes)
	}()

	entries := map[string]types.ScanEntry{}
	for outcome := range outcomes {
		entries[outcome.relativePath] = outcome.entry
	}
	return entries
}

func (scanner *Scanner) analyzeFile(rootPath string, filePath string) fileOutcome {
	relativePath := utils.RelativePathOrSelf(filePath, rootPath)
	content, readError := os.ReadFile(filePath)
	if readError != nil {
		return fileOutcome{
			relativePath: relativePath,
			entry:        types.ScanEntry{Failure: &types.FileFailure{Kind: types.FailureKindIO, Message: readError.Error()}},
		}
	}
	records, analysisError := scanner.analysisEngine.Functions(content)
	if analysisError != nil {
		var parseError *types.ParseError
		if errors.As(analysisError, &parseError) {
			return fileOutcome{
				relativePath: relativePath,
				entry:        types.ScanEntry{Failure: &types.FileFailure{Kind: types.FailureKindParse, Message: parseError.Error()}},
			}
		}
		return fileOutcome{
			relativePath: relativePath,
			entry:        types.ScanEntry{Failure: &types.FileFailure{Kind: types.FailureKindIO, Message: analysisError.Error()}},
		}
	}
	return fileOutcome{relativePath: relativePath, entry: types.ScanEntry{Functions: records}}
}
