package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Config customises how model names are inflected.
type Config struct {
	// PluralOverrides maps a singular word to its plural, e.g. person: people.
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`
	// SingularOverrides maps a plural word to its singular, e.g. data: datum.
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`
}

func DefaultConfig() Config {
	return Config{
		PluralOverrides:   map[string]string{},
		SingularOverrides: map[string]string{},
	}
}

// Pluralize inflects the last word of a camel or Pascal case name, so
// "blogPerson" becomes "blogPeople". Overrides match that word without
// regard to case and keep its leading capital.
func (n *Namer) Pluralize(word string) string {
	return inflectLastWord(word, n.config.PluralOverrides, inflection.Plural)
}

// Singularize is the inverse of Pluralize.
func (n *Namer) Singularize(word string) string {
	return inflectLastWord(word, n.config.SingularOverrides, inflection.Singular)
}

func inflectLastWord(word string, overrides map[string]string, inflect func(string) string) string {
	head, last := splitLastWord(word)
	if last == "" {
		return word
	}
	for from, to := range overrides {
		if strings.EqualFold(from, last) {
			if unicode.IsUpper([]rune(last)[0]) {
				to = UpperFirst(to)
			}
			return head + to
		}
	}
	return head + inflect(last)
}

// splitLastWord splits "articleTag" into "article" and "Tag". A name
// without an inner capital is a single word.
func splitLastWord(word string) (string, string) {
	runes := []rune(word)
	for i := len(runes) - 1; i > 0; i-- {
		if unicode.IsUpper(runes[i]) && !unicode.IsUpper(runes[i-1]) {
			return string(runes[:i]), string(runes[i:])
		}
	}
	return "", word
}
