package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

type graphQLRequest struct {
	Query         string `json:"query"`
	OperationName string `json:"operationName"`
}

// graphQLDocument is what the middlewares learn about a request before the
// executor sees it.
type graphQLDocument struct {
	query          string
	operationName  string
	operationType  string
	rootFields     []string
	fieldCount     int
	selectionDepth int
	variableCount  int
	introspection  bool
}

type documentKey struct{}

type inspectedDocument struct {
	doc *graphQLDocument
	err error
}

// inspectRequest parses the document of r once per request. The result is
// cached on the returned request so later middlewares reuse it. A nil document
// with a nil error means there is nothing to inspect.
func inspectRequest(r *http.Request) (*graphQLDocument, *http.Request, error) {
	if cached, ok := r.Context().Value(documentKey{}).(inspectedDocument); ok {
		return cached.doc, r, cached.err
	}
	query, operationName := extractGraphQLRequest(r)
	doc, err := parseDocument(query, operationName)
	ctx := context.WithValue(r.Context(), documentKey{}, inspectedDocument{doc: doc, err: err})
	return doc, r.WithContext(ctx), err
}

// extractGraphQLRequest reads the query and operation name from a GET query
// string, an application/graphql body or a JSON body. POST bodies are restored
// for the next handler.
func extractGraphQLRequest(r *http.Request) (string, string) {
	switch r.Method {
	case http.MethodGet:
		return r.URL.Query().Get("query"), r.URL.Query().Get("operationName")
	case http.MethodPost:
	default:
		return "", ""
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", ""
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if strings.Contains(r.Header.Get("Content-Type"), "application/graphql") {
		return string(body), ""
	}
	var payload graphQLRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	return payload.Query, payload.OperationName
}

func parseDocument(query, operationName string) (*graphQLDocument, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	parsed, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(query), Name: "graphql"}),
	})
	if err != nil {
		return nil, err
	}

	fragments := make(map[string]*ast.FragmentDefinition)
	var op, first *ast.OperationDefinition
	for _, def := range parsed.Definitions {
		switch d := def.(type) {
		case *ast.FragmentDefinition:
			fragments[d.Name.Value] = d
		case *ast.OperationDefinition:
			if first == nil {
				first = d
			}
			if op == nil && operationName != "" && d.Name != nil && d.Name.Value == operationName {
				op = d
			}
		}
	}
	// Without a name the first operation runs; an unknown name runs nothing.
	if op == nil && operationName == "" {
		op = first
	}
	if op == nil {
		return nil, nil
	}

	doc := &graphQLDocument{
		query:         query,
		operationName: operationName,
		operationType: string(op.Operation),
		variableCount: len(op.VariableDefinitions),
	}
	w := &documentWalker{fragments: fragments, inFlight: map[string]bool{}}
	doc.rootFields = w.rootFields(op.SelectionSet)
	doc.fieldCount, doc.selectionDepth = w.walk(op.SelectionSet, 1)
	for _, name := range doc.rootFields {
		if strings.HasPrefix(name, "__") {
			doc.introspection = true
		}
	}
	return doc, nil
}

// documentWalker expands fragments in place. A fragment spread at two depths
// is measured at both; only cyclic spreads are cut.
type documentWalker struct {
	fragments map[string]*ast.FragmentDefinition
	inFlight  map[string]bool
}

func (w *documentWalker) walk(set *ast.SelectionSet, depth int) (fields, maxDepth int) {
	if set == nil {
		return 0, depth - 1
	}
	maxDepth = depth
	visit := func(nested *ast.SelectionSet, at int) {
		n, d := w.walk(nested, at)
		fields += n
		maxDepth = max(maxDepth, d)
	}
	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			fields++
			if sel.SelectionSet != nil {
				visit(sel.SelectionSet, depth+1)
			}
		case *ast.InlineFragment:
			visit(sel.SelectionSet, depth)
		case *ast.FragmentSpread:
			name := sel.Name.Value
			frag, ok := w.fragments[name]
			if !ok || w.inFlight[name] {
				continue
			}
			w.inFlight[name] = true
			visit(frag.SelectionSet, depth)
			delete(w.inFlight, name)
		}
	}
	return fields, maxDepth
}

// rootFields lists the distinct top-level field names, which for this server
// are the content queries and mutations a request touches.
func (w *documentWalker) rootFields(set *ast.SelectionSet) []string {
	var out []string
	seen := map[string]bool{}
	var collect func(*ast.SelectionSet)
	collect = func(set *ast.SelectionSet) {
		if set == nil {
			return
		}
		for _, selection := range set.Selections {
			switch sel := selection.(type) {
			case *ast.Field:
				if !seen[sel.Name.Value] {
					seen[sel.Name.Value] = true
					out = append(out, sel.Name.Value)
				}
			case *ast.InlineFragment:
				collect(sel.SelectionSet)
			case *ast.FragmentSpread:
				name := sel.Name.Value
				if frag, ok := w.fragments[name]; ok && !w.inFlight[name] {
					w.inFlight[name] = true
					collect(frag.SelectionSet)
					delete(w.inFlight, name)
				}
			}
		}
	}
	collect(set)
	return out
}
