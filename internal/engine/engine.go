// Package engine extracts structural facts about Python source text.
package engine

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	python "github.com/smacker/go-tree-sitter/python"

	"funcanalyzer/internal/types"
)

const (
	pythonFunctionNodeType  = "function_definition"
	pythonDecoratedNodeType = "decorated_definition"
	pythonErrorNodeType     = "ERROR"
	pythonNameField         = "name"
	pythonDefinitionField   = "definition"
	parseFailureMessage     = "invalid syntax"
)

// Engine analyzes Python source text. It holds no mutable state and is safe
// for concurrent use; a fresh parser is created per call.
type Engine struct{}

// NewEngine constructs an Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Functions returns the top-level function definitions of the source in
// declaration order. Functions nested inside classes or other functions are
// excluded. A *types.ParseError is returned when the source is not
// syntactically valid Python.
func (engine *Engine) Functions(source []byte) ([]types.FunctionRecord, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree := parser.Parse(nil, source)
	if tree == nil {
		return nil, &types.ParseError{Line: 1, Column: 1, Message: parseFailureMessage}
	}
	rootNode := tree.RootNode()
	if rootNode.HasError() {
		return nil, firstSyntaxError(rootNode)
	}

	var records []types.FunctionRecord
	for index := 0; index < int(rootNode.NamedChildCount()); index++ {
		definitionNode := topLevelFunctionNode(rootNode.NamedChild(index))
		if definitionNode == nil {
			continue
		}
		nameNode := definitionNode.ChildByFieldName(pythonNameField)
		if nameNode == nil {
			continue
		}
		functionName := strings.TrimSpace(string(source[nameNode.StartByte():nameNode.EndByte()]))
		records = append(records, types.FunctionRecord{
			Name: functionName,
			Line: int(definitionNode.StartPoint().Row) + 1,
		})
	}
	return records, nil
}

// Count returns the number of top-level function definitions in the source.
func (engine *Engine) Count(source []byte) (int, error) {
	records, analysisError := engine.Functions(source)
	if analysisError != nil {
		return 0, analysisError
	}
	return len(records), nil
}

// topLevelFunctionNode resolves a direct child of the module body to the
// function definition it declares, unwrapping decorators. Python attributes a
// decorated function to the module body, so `@app.route` plus `def handler`
// still counts as one top-level function.
func topLevelFunctionNode(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	switch node.Type() {
	case pythonFunctionNodeType:
		return node
	case pythonDecoratedNodeType:
		definitionNode := node.ChildByFieldName(pythonDefinitionField)
		if definitionNode != nil && definitionNode.Type() == pythonFunctionNodeType {
			return definitionNode
		}
	}
	return nil
}

// firstSyntaxError locates the first ERROR or missing node in the tree and
// converts it into a *types.ParseError with a 1-based position.
func firstSyntaxError(rootNode *sitter.Node) error {
	errorNode := findErrorNode(rootNode)
	if errorNode == nil {
		errorNode = rootNode
	}
	return &types.ParseError{
		Line:    int(errorNode.StartPoint().Row) + 1,
		Column:  int(errorNode.StartPoint().Column) + 1,
		Message: parseFailureMessage,
	}
}

func findErrorNode(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.Type() == pythonErrorNodeType || node.IsMissing() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for index := 0; index < int(node.ChildCount()); index++ {
		if found := findErrorNode(node.Child(index)); found != nil {
			return found
		}
	}
	return node
}
