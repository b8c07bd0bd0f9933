package naming

import (
	"log/slog"
	"strconv"
)

// Scopes a generated root field can be registered in. Query and mutation
// names never collide with each other.
const (
	scopeQuery    = "Query"
	scopeMutation = "Mutation"
)

// registry remembers which content type claimed each generated name, per
// scope. A second claim on a taken name gets the first free numeric suffix.
type registry struct {
	owners map[string]map[string]string // scope -> name -> source
	logger *slog.Logger
}

func newRegistry(logger *slog.Logger) *registry {
	return &registry{owners: make(map[string]map[string]string), logger: logger}
}

func (r *registry) claim(scope, name, source string) string {
	taken := r.owners[scope]
	if taken == nil {
		taken = make(map[string]string)
		r.owners[scope] = taken
	}
	owner, clash := taken[name]
	if !clash {
		taken[name] = source
		return name
	}

	resolved := name
	for i := 2; clash; i++ {
		resolved = name + strconv.Itoa(i)
		_, clash = taken[resolved]
	}
	taken[resolved] = source
	r.logger.Warn("naming collision detected, applying suffix",
		slog.String("scope", scope),
		slog.String("name", name),
		slog.String("renamed", resolved),
		slog.String("existing_source", owner),
		slog.String("new_source", source),
	)
	return resolved
}
