// Package naming turns content-model names into GraphQL names: type and
// field casing, query inflection, reserved words and root field collisions.
package naming

import (
	"log/slog"
	"strings"
	"unicode"
)

// Namer holds the inflection overrides and the root fields claimed during
// one schema build.
type Namer struct {
	config Config
	logger *slog.Logger
	names  *registry
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config: cfg,
		logger: logger,
		names:  newRegistry(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset forgets every registered name so the namer can serve a new build.
func (n *Namer) Reset() {
	n.names = newRegistry(n.logger)
}

// ToGraphQLTypeName converts a model name to a GraphQL type (PascalCase)
// Example: "article-tag" -> "ArticleTag", "user_profile" -> "UserProfile"
func (n *Namer) ToGraphQLTypeName(modelName string) string {
	name := toPascalCase(modelName)
	return n.validateTypeAndSuffix(name)
}

// ToGraphQLFieldName converts an attribute or model name to a GraphQL field (camelCase)
// Example: "published_at" -> "publishedAt"
func (n *Namer) ToGraphQLFieldName(name string) string {
	return toCamelCase(name)
}

// SingularQueryName returns the singular root field name for a model global id.
// Example: "Article" -> "article", "ArticleTag" -> "articleTag"
func (n *Namer) SingularQueryName(globalID string) string {
	return LowerFirst(n.Singularize(globalID))
}

// PluralQueryName returns the plural root field name for a model global id.
// Example: "Article" -> "articles", "Person" -> "people"
func (n *Namer) PluralQueryName(globalID string) string {
	return n.Pluralize(n.SingularQueryName(globalID))
}

// RegisterQueryField claims a Query field for source and returns the name
// to use, suffixed when another model got there first.
func (n *Namer) RegisterQueryField(fieldName, source string) string {
	return n.names.claim(scopeQuery, n.validateFieldAndSuffix(fieldName), source)
}

// RegisterMutationField is RegisterQueryField for Mutation fields.
func (n *Namer) RegisterMutationField(fieldName, source string) string {
	return n.names.claim(scopeMutation, n.validateFieldAndSuffix(fieldName), source)
}

func (n *Namer) validateTypeAndSuffix(name string) string {
	return n.suffixReserved(name, isReservedTypeName)
}

func (n *Namer) validateFieldAndSuffix(name string) string {
	return n.suffixReserved(name, isReservedFieldName)
}

func (n *Namer) suffixReserved(name string, reserved func(string) bool) string {
	if !reserved(name) {
		return name
	}
	n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
		slog.String("original", name),
		slog.String("renamed", name+"_"),
	)
	return name + "_"
}

// UpperFirst upper-cases the first rune of s.
func UpperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// LowerFirst lower-cases the first rune of s.
func LowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// ConstantCase converts a name to SCREAMING_SNAKE_CASE.
// Example: "articleTag" -> "ARTICLE_TAG", "ArticleTag" -> "ARTICLE_TAG", "post-kind" -> "POST_KIND"
func ConstantCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '-' || r == '_' || r == ' ' || r == '.':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
		case unicode.IsUpper(r):
			if i > 0 && b.Len() > 0 && !strings.HasSuffix(b.String(), "_") &&
				(unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
					(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// toPascalCase converts snake_case or kebab-case to PascalCase
func toPascalCase(s string) string {
	parts := splitWords(s)
	for i, part := range parts {
		parts[i] = UpperFirst(part)
	}
	return strings.Join(parts, "")
}

// toCamelCase converts snake_case or kebab-case to camelCase
func toCamelCase(s string) string {
	parts := splitWords(s)
	for i := 1; i < len(parts); i++ {
		parts[i] = UpperFirst(parts[i])
	}
	return strings.Join(parts, "")
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
}
