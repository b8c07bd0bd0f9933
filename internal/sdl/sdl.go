// Package sdl holds small helpers for assembling GraphQL SDL text: an ordered
// field set, description rendering and parsing of user-supplied field lines.
package sdl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// Field is one field definition: `name(args): Type`.
type Field struct {
	Name        string
	Args        string
	Type        string
	Description string
}

// Signature renders the field without its type: `articles(sort: String)`.
func (f Field) Signature() string {
	if f.Args == "" {
		return f.Name
	}
	return f.Name + "(" + f.Args + ")"
}

// String renders `signature: Type`.
func (f Field) String() string {
	return f.Signature() + ": " + f.Type
}

// Fields is a field set that keeps insertion order. Setting an existing name
// replaces the field in place.
type Fields struct {
	order  []string
	byName map[string]Field
}

// NewFields returns a field set holding the given fields in order.
func NewFields(fields ...Field) *Fields {
	fs := &Fields{byName: make(map[string]Field, len(fields))}
	for _, f := range fields {
		fs.Set(f)
	}
	return fs
}

// Set adds or replaces a field.
func (fs *Fields) Set(f Field) {
	if fs.byName == nil {
		fs.byName = make(map[string]Field)
	}
	if _, exists := fs.byName[f.Name]; !exists {
		fs.order = append(fs.order, f.Name)
	}
	fs.byName[f.Name] = f
}

// Get returns the named field.
func (fs *Fields) Get(name string) (Field, bool) {
	if fs == nil {
		return Field{}, false
	}
	f, ok := fs.byName[name]
	return f, ok
}

// Delete removes the named field.
func (fs *Fields) Delete(name string) {
	if fs == nil {
		return
	}
	if _, ok := fs.byName[name]; !ok {
		return
	}
	delete(fs.byName, name)
	for i, n := range fs.order {
		if n == name {
			fs.order = append(fs.order[:i], fs.order[i+1:]...)
			break
		}
	}
}

// Names returns field names in order.
func (fs *Fields) Names() []string {
	if fs == nil {
		return nil
	}
	return append([]string(nil), fs.order...)
}

// List returns the fields in order.
func (fs *Fields) List() []Field {
	if fs == nil {
		return nil
	}
	out := make([]Field, 0, len(fs.order))
	for _, name := range fs.order {
		out = append(out, fs.byName[name])
	}
	return out
}

// Len returns the number of fields.
func (fs *Fields) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.order)
}

// Merge sets every field of other onto fs, in other's order.
func (fs *Fields) Merge(other *Fields) {
	for _, f := range other.List() {
		fs.Set(f)
	}
}

// Clone returns an independent copy.
func (fs *Fields) Clone() *Fields {
	return NewFields(fs.List()...)
}

// Render writes the fields one per line with the given indent, each preceded by
// its description block when present.
func (fs *Fields) Render(indent string) string {
	var b strings.Builder
	for _, f := range fs.List() {
		b.WriteString(Description(f.Description, indent))
		b.WriteString(indent)
		b.WriteString(f.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Description renders a block-string description, or "" when desc is empty.
func Description(desc, indent string) string {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return ""
	}
	desc = strings.ReplaceAll(desc, `"""`, `\"""`)
	return indent + `"""` + "\n" + indent + strings.ReplaceAll(desc, "\n", "\n"+indent) + "\n" + indent + `"""` + "\n"
}

// Object renders `type Name { ... }` with an optional description.
func Object(kind, name, description string, fields *Fields) string {
	var b strings.Builder
	b.WriteString(Description(description, ""))
	fmt.Fprintf(&b, "%s %s {\n", kind, name)
	b.WriteString(fields.Render("  "))
	b.WriteString("}\n")
	return b.String()
}

// Enum renders `enum Name { A B }`.
func Enum(name string, values []string) string {
	return fmt.Sprintf("enum %s {\n  %s\n}\n", name, strings.Join(values, "\n  "))
}

// Union renders `union Name = A | B`.
func Union(name string, members []string) string {
	return fmt.Sprintf("union %s = %s\n", name, strings.Join(members, " | "))
}

// SplitSignature returns the field name of a signature such as
// `articles(sort: String): [Article]`.
func SplitSignature(signature string) string {
	name := signature
	if i := strings.IndexAny(name, "(:"); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

// BaseType strips list and non-null wrappers: `[Article!]!` -> `Article`.
func BaseType(typ string) string {
	return strings.Trim(strings.TrimSpace(typ), "[]!")
}

// IsList reports whether typ is a list type.
func IsList(typ string) bool {
	return strings.HasPrefix(strings.TrimSpace(typ), "[")
}

// ParseFieldLines parses a block of field definitions as found inside an
// object type body, e.g. a custom `query` extension. Descriptions are kept.
func ParseFieldLines(block string) (*Fields, error) {
	fields := NewFields()
	if strings.TrimSpace(block) == "" {
		return fields, nil
	}
	doc, err := parser.ParseSchema(&ast.Source{
		Name:  "fields",
		Input: "type Fields {\n" + block + "\n}\n",
	})
	if err != nil {
		return nil, fmt.Errorf("parse field definitions: %w", err)
	}
	if len(doc.Definitions) != 1 {
		return nil, fmt.Errorf("parse field definitions: unexpected %d definitions", len(doc.Definitions))
	}
	for _, def := range doc.Definitions[0].Fields {
		fields.Set(Field{
			Name:        def.Name,
			Args:        renderArguments(def.Arguments),
			Type:        def.Type.String(),
			Description: def.Description,
		})
	}
	return fields, nil
}

func renderArguments(args ast.ArgumentDefinitionList) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		part := arg.Name + ": " + arg.Type.String()
		if arg.DefaultValue != nil {
			part += " = " + arg.DefaultValue.String()
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
