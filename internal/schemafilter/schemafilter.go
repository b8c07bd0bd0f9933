// Package schemafilter applies allow/deny filters to the content-model registry
// before and during schema generation.
package schemafilter

import (
	"path"
	"slices"
	"strings"

	"content-graphql/internal/contentmodel"
)

// Config controls allow/deny filters for models and attributes. Model patterns
// match either the model name or its UID. Attribute maps are keyed by model name,
// with "*" applying to every model.
type Config struct {
	AllowModels []string `mapstructure:"allow_models"`
	DenyModels  []string `mapstructure:"deny_models"`
	// PrivateAttributes are hidden from every generated type and input.
	PrivateAttributes map[string][]string `mapstructure:"private_attributes"`
	// DenyMutationModels and DenyMutationAttributes apply additional restrictions to writes.
	// They do not affect query visibility.
	DenyMutationModels     []string            `mapstructure:"deny_mutation_models"`
	DenyMutationAttributes map[string][]string `mapstructure:"deny_mutation_attributes"`
}

// Apply returns the models that pass the allow/deny lists, in order. Components
// are never filtered since other models embed them.
// Missing allow lists default to allow-all; deny rules always win.
func Apply(models []*contentmodel.Model, cfg Config) []*contentmodel.Model {
	out := make([]*contentmodel.Model, 0, len(models))
	for _, m := range models {
		if m.Kind == contentmodel.KindComponent || ModelAllowed(m, cfg) {
			out = append(out, m)
		}
	}
	return out
}

// ModelAllowed reports whether a model is exposed.
func ModelAllowed(m *contentmodel.Model, cfg Config) bool {
	if modelMatches(m, cfg.DenyModels) {
		return false
	}
	if len(cfg.AllowModels) == 0 {
		return true
	}
	return modelMatches(m, cfg.AllowModels)
}

// AttributeAllowed reports whether an attribute is exposed by queries and inputs.
func AttributeAllowed(model, attribute string, cfg Config) bool {
	return !matchesAny(attribute, mergePatterns(cfg.PrivateAttributes, model))
}

// MutationModelAllowed reports whether a model is eligible for mutations.
// It only applies deny lists and keeps matching logic consistent with query filters.
func MutationModelAllowed(m *contentmodel.Model, cfg Config) bool {
	return !modelMatches(m, cfg.DenyMutationModels)
}

// MutationAttributeAllowed reports whether an attribute is eligible for mutation inputs.
func MutationAttributeAllowed(model, attribute string, cfg Config) bool {
	if !AttributeAllowed(model, attribute, cfg) {
		return false
	}
	return !matchesAny(attribute, mergePatterns(cfg.DenyMutationAttributes, model))
}

func modelMatches(m *contentmodel.Model, patterns []string) bool {
	return matchesAny(m.Name, patterns) || matchesAny(m.UID, patterns)
}

func mergePatterns(patterns map[string][]string, model string) []string {
	if patterns == nil {
		return nil
	}
	combined := append([]string{}, patterns["*"]...)
	combined = append(combined, patterns[model]...)
	return slices.Compact(combined)
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		// matching should be case-insensitive
		ok, err := path.Match(strings.ToLower(pattern), value)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
