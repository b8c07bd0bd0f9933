// Package schema compiles the content-model registry into GraphQL type
// definitions and a resolver map: per-model shadow CRUD fragments, plugin and
// user extensions, merged in an explicit order and validated before use.
package schema

import (
	"strings"

	"content-graphql/internal/resolver"
	"content-graphql/internal/sdl"
)

// Fragment is the unit of schema composition. Query and Mutation hold root
// fields keyed by name; the full signature lives in each sdl.Field.
type Fragment struct {
	Definition string
	Query      *sdl.Fields
	Mutation   *sdl.Fields
	Resolvers  resolver.Map
}

// NewFragment returns an empty fragment.
func NewFragment() *Fragment {
	return &Fragment{
		Query:     sdl.NewFields(),
		Mutation:  sdl.NewFields(),
		Resolvers: resolver.Map{},
	}
}

// AddDefinition appends SDL to the fragment definition.
func (f *Fragment) AddDefinition(def string) {
	def = strings.TrimSpace(def)
	if def == "" {
		return
	}
	if f.Definition != "" {
		f.Definition += "\n"
	}
	f.Definition += def + "\n"
}

// Merge folds fragments into root in argument order. Definitions are
// concatenated; root fields and resolvers are right-biased, with resolver
// configs merged field by field so a later partial override keeps the earlier
// resolver.
func Merge(root *Fragment, fragments ...*Fragment) *Fragment {
	if root == nil {
		root = NewFragment()
	}
	for _, f := range fragments {
		if f == nil {
			continue
		}
		root.AddDefinition(f.Definition)
		root.Query.Merge(f.Query)
		root.Mutation.Merge(f.Mutation)
		root.Resolvers.Merge(f.Resolvers)
	}
	return root
}

// Layer is a named group of fragments. Layers merge in slice order, so later
// layers win on collision.
type Layer struct {
	Name      string
	Fragments []*Fragment
}

// Layer names used by Build, in merge order.
const (
	LayerCore       = "core"
	LayerShadowCRUD = "shadow-crud"
	LayerPlugins    = "plugins"
	LayerUser       = "user"
)

// MergeLayers merges every layer into a new fragment.
func MergeLayers(layers ...Layer) *Fragment {
	root := NewFragment()
	for _, layer := range layers {
		Merge(root, layer.Fragments...)
	}
	return root
}
