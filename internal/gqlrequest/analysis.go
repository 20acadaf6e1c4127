package gqlrequest

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

const anonymousOperation = "<anonymous>"

// Analysis is what the server knows about a request before executing it.
// Err is set when the payload could not be decoded or parsed, or when no
// single operation could be selected; the GraphQL handler then reports the
// problem itself, so middleware only uses Err to skip work.
type Analysis struct {
	Envelope Envelope

	Operation     *ast.OperationDefinition
	OperationName string
	OperationType string
	// RootFields are the distinct top-level fields selected, sorted. For a
	// model query these are the connection fields (positionModels, ...).
	RootFields    []string
	FieldCount    int
	Depth         int
	VariableCount int
	Hash          string

	Err error
}

// Limits bounds the shape of an operation. Zero disables a bound.
type Limits struct {
	MaxDepth  int
	MaxFields int
}

// LimitError reports an operation rejected by Limits.
type LimitError struct {
	Limit string
	Max   int
	Got   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("operation %s %d exceeds the limit of %d", e.Limit, e.Got, e.Max)
}

// Check applies limits to an analyzed operation.
func (a *Analysis) Check(limits Limits) error {
	if a == nil || a.Operation == nil {
		return nil
	}
	if limits.MaxDepth > 0 && a.Depth > limits.MaxDepth {
		return &LimitError{Limit: "depth", Max: limits.MaxDepth, Got: a.Depth}
	}
	if limits.MaxFields > 0 && a.FieldCount > limits.MaxFields {
		return &LimitError{Limit: "field count", Max: limits.MaxFields, Got: a.FieldCount}
	}
	return nil
}

// AnalyzeRequest decodes and analyzes the GraphQL payload of r.
func AnalyzeRequest(r *http.Request) *Analysis {
	env, err := DecodeEnvelope(r)
	if err != nil {
		return &Analysis{Envelope: env, Err: err}
	}
	return Analyze(env)
}

// Analyze parses the envelope's document and measures the selected operation.
func Analyze(env Envelope) *Analysis {
	a := &Analysis{Envelope: env}
	if strings.TrimSpace(env.Query) == "" {
		return a
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(env.Query), Name: "graphql"}),
	})
	if err != nil {
		a.Err = err
		return a
	}

	fragments := make(map[string]*ast.FragmentDefinition)
	var operations []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.FragmentDefinition:
			if d.Name != nil && d.Name.Value != "" {
				fragments[d.Name.Value] = d
			}
		case *ast.OperationDefinition:
			operations = append(operations, d)
		}
	}

	op, err := pickOperation(operations, env.OperationName)
	if err != nil {
		a.Err = err
		return a
	}

	a.Operation = op
	a.OperationName = operationName(op)
	a.OperationType = string(op.Operation)
	a.VariableCount = len(op.VariableDefinitions)

	w := &walker{fragments: fragments, expanded: map[string]bool{}, roots: map[string]struct{}{}}
	a.FieldCount, a.Depth = w.walk(op.SelectionSet, 1)
	for name := range w.roots {
		a.RootFields = append(a.RootFields, name)
	}
	sort.Strings(a.RootFields)

	hash, err := operationHash(op, fragments)
	if err != nil {
		a.Err = err
		return a
	}
	a.Hash = hash
	return a
}

func pickOperation(operations []*ast.OperationDefinition, name string) (*ast.OperationDefinition, error) {
	if name != "" {
		for _, op := range operations {
			if op.Name != nil && op.Name.Value == name {
				return op, nil
			}
		}
		return nil, fmt.Errorf("unknown operation named %q", name)
	}
	switch len(operations) {
	case 0:
		return nil, fmt.Errorf("request does not include an operation")
	case 1:
		return operations[0], nil
	default:
		return nil, fmt.Errorf("operationName is required when request has multiple operations")
	}
}

func operationName(op *ast.OperationDefinition) string {
	if op == nil || op.Name == nil || op.Name.Value == "" {
		return anonymousOperation
	}
	return op.Name.Value
}

// walker counts fields and nesting depth. Each fragment is expanded once per
// operation, which also breaks spread cycles.
type walker struct {
	fragments map[string]*ast.FragmentDefinition
	expanded  map[string]bool
	roots     map[string]struct{}
}

func (w *walker) walk(set *ast.SelectionSet, depth int) (fields, maxDepth int) {
	if set == nil {
		return 0, depth - 1
	}
	maxDepth = depth
	merge := func(f, d int) {
		fields += f
		if d > maxDepth {
			maxDepth = d
		}
	}

	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			fields++
			if depth == 1 && sel.Name != nil {
				w.roots[sel.Name.Value] = struct{}{}
			}
			if sel.SelectionSet != nil {
				merge(w.walk(sel.SelectionSet, depth+1))
			}
		case *ast.InlineFragment:
			merge(w.walk(sel.SelectionSet, depth))
		case *ast.FragmentSpread:
			if sel.Name == nil || w.expanded[sel.Name.Value] {
				continue
			}
			w.expanded[sel.Name.Value] = true
			if fragment, ok := w.fragments[sel.Name.Value]; ok {
				merge(w.walk(fragment.SelectionSet, depth))
			}
		}
	}
	return fields, maxDepth
}
