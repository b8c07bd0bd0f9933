package resolver

import (
	"maps"
	"math"
)

// DefaultAmountLimit caps list sizes when no limit is configured.
const DefaultAmountLimit = 100

// Limits clamps the `limit` argument of every call.
type Limits struct {
	// AmountLimit is the largest accepted limit. Zero disables clamping.
	AmountLimit int
}

// Apply returns a copy of args with `limit` clamped: missing, -1 or above the
// amount limit becomes the amount limit; other negative values become 0.
func (l Limits) Apply(args map[string]any) map[string]any {
	out := maps.Clone(args)
	if out == nil {
		out = make(map[string]any)
	}
	if l.AmountLimit <= 0 {
		return out
	}

	limit, ok := toInt(out["limit"])
	switch {
	case !ok, limit == -1, limit > l.AmountLimit:
		out["limit"] = l.AmountLimit
	case limit < 0:
		out["limit"] = 0
	default:
		out["limit"] = limit
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n > math.MaxInt32 {
			return math.MaxInt32, true
		}
		return int(n), true
	}
	return 0, false
}

// ConvertToParams prefixes every key except `id` with an underscore:
// {limit: 10, id: 1} -> {_limit: 10, id: 1}.
func ConvertToParams(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for key, value := range args {
		if key == "id" {
			out[key] = value
			continue
		}
		out["_"+key] = value
	}
	return out
}

// ConvertToQuery flattens nested maps into dot-separated keys:
// {a: {b: 1}} -> {"a.b": 1}. Flat input is returned unchanged.
func ConvertToQuery(where any) map[string]any {
	out := make(map[string]any)
	nested, ok := where.(map[string]any)
	if !ok {
		return out
	}
	for key, value := range nested {
		if child, isMap := value.(map[string]any); isMap {
			for childKey, childValue := range ConvertToQuery(child) {
				out[key+"."+childKey] = childValue
			}
			continue
		}
		out[key] = value
	}
	return out
}

// QueryParams converts list arguments into backend params: every argument but
// `where` goes through ConvertToParams and `where` is flattened on top.
func QueryParams(opts map[string]any) map[string]any {
	out := ConvertToParams(without(opts, "where"))
	for key, value := range ConvertToQuery(opts["where"]) {
		out[key] = value
	}
	return out
}

func without(args map[string]any, keys ...string) map[string]any {
	out := maps.Clone(args)
	if out == nil {
		return make(map[string]any)
	}
	for _, key := range keys {
		delete(out, key)
	}
	return out
}

func mapArg(args map[string]any, key string) map[string]any {
	if v, ok := args[key].(map[string]any); ok {
		return v
	}
	return nil
}
