package gqlrequest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/printer"
)

// operationHash identifies an operation independent of formatting and
// comments: the operation and the fragments it reaches are printed in
// canonical form, fragments sorted by name.
func operationHash(op *ast.OperationDefinition, fragments map[string]*ast.FragmentDefinition) (string, error) {
	reached := map[string]bool{}
	collectFragments(op.SelectionSet, fragments, reached)
	names := make([]string, 0, len(reached))
	for name := range reached {
		names = append(names, name)
	}
	sort.Strings(names)

	definitions := []ast.Node{op}
	for _, name := range names {
		fragment, ok := fragments[name]
		if !ok {
			return "", fmt.Errorf("fragment %q not found", name)
		}
		definitions = append(definitions, fragment)
	}

	printed, ok := printer.Print(ast.NewDocument(&ast.Document{Definitions: definitions})).(string)
	if !ok {
		return "", fmt.Errorf("unexpected printer output")
	}
	return framedSHA256(printed, operationName(op)), nil
}

func collectFragments(set *ast.SelectionSet, fragments map[string]*ast.FragmentDefinition, reached map[string]bool) {
	if set == nil {
		return
	}
	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			collectFragments(sel.SelectionSet, fragments, reached)
		case *ast.InlineFragment:
			collectFragments(sel.SelectionSet, fragments, reached)
		case *ast.FragmentSpread:
			if sel.Name == nil || reached[sel.Name.Value] {
				continue
			}
			reached[sel.Name.Value] = true
			if fragment, ok := fragments[sel.Name.Value]; ok {
				collectFragments(fragment.SelectionSet, fragments, reached)
			}
		}
	}
}

// framedSHA256 hashes length-prefixed parts so ("ab","c") and ("a","bc") differ.
func framedSHA256(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		_, _ = fmt.Fprintf(h, "%d:%s|", len(part), part)
	}
	return hex.EncodeToString(h.Sum(nil))
}
