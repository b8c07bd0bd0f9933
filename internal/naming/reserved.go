package naming

import "strings"

// reservedTypeNames holds, lower-cased, the GraphQL keywords, the built-in
// scalars and the shared types every generated content schema declares.
var reservedTypeNames = wordSet(`
	query mutation subscription schema type scalar enum input interface union
	fragment directive extend implements on
	int float string boolean id true false null
	json long date time datetime upload morph inputid
`)

func wordSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

func isReservedTypeName(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "__") {
		return true
	}
	_, ok := reservedTypeNames[lower]
	return ok
}

// isReservedFieldName rejects the introspection prefix only; fields may
// reuse keywords.
func isReservedFieldName(name string) bool {
	return strings.HasPrefix(name, "__")
}
