package backend

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Operator is a filter comparison.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpIn         Operator = "in"
	OpNin        Operator = "nin"
	OpContains   Operator = "contains"
	OpNContains  Operator = "ncontains"
	OpContainsi  Operator = "containsi"
	OpNContainsi Operator = "ncontainsi"
	OpNull       Operator = "null"
)

// operators is ordered longest suffix first so `_ncontainsi` wins over `_containsi`.
var operators = []Operator{
	OpNContainsi, OpContainsi, OpNContains, OpContains,
	OpLte, OpGte, OpNin, OpNull, OpEq, OpNe, OpLt, OpGt, OpIn,
}

// Condition is one filter.
type Condition struct {
	// Field is an attribute name or a dot path through relations (`author.name`).
	Field string
	Op    Operator
	Value any
}

// SortField orders results.
type SortField struct {
	Field string
	Desc  bool
}

// Criteria is the parsed form of Params.
type Criteria struct {
	Where []Condition
	Sort  []SortField
	// Limit is -1 when unset.
	Limit int
	Start int
}

// ParseParams splits params into filters, sort and paging. Unknown
// underscore-prefixed keys are ignored; `_where` maps are merged as filters.
func ParseParams(params Params) (Criteria, error) {
	c := Criteria{Limit: -1}
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := params[key]
		switch key {
		case "_sort":
			sortFields, err := parseSort(value)
			if err != nil {
				return Criteria{}, err
			}
			c.Sort = sortFields
		case "_limit":
			n, err := toInt(value)
			if err != nil {
				return Criteria{}, fmt.Errorf("_limit: %w", err)
			}
			c.Limit = n
		case "_start":
			n, err := toInt(value)
			if err != nil {
				return Criteria{}, fmt.Errorf("_start: %w", err)
			}
			if n < 0 {
				n = 0
			}
			c.Start = n
		case "_where":
			nested, ok := value.(map[string]any)
			if !ok {
				if p, isParams := value.(Params); isParams {
					nested = p
				}
			}
			c.Where = append(c.Where, flattenWhere("", nested)...)
		default:
			if strings.HasPrefix(key, "_") {
				continue
			}
			c.Where = append(c.Where, ParseCondition(key, value))
		}
	}
	return c, nil
}

// ParseCondition splits `field_op` into a condition. Keys without an operator
// suffix compare for equality.
func ParseCondition(key string, value any) Condition {
	for _, op := range operators {
		suffix := "_" + string(op)
		if strings.HasSuffix(key, suffix) && len(key) > len(suffix) {
			return Condition{Field: strings.TrimSuffix(key, suffix), Op: op, Value: value}
		}
	}
	return Condition{Field: key, Op: OpEq, Value: value}
}

func flattenWhere(prefix string, where map[string]any) []Condition {
	keys := make([]string, 0, len(where))
	for key := range where {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []Condition
	for _, key := range keys {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := where[key].(map[string]any); ok {
			out = append(out, flattenWhere(path, nested)...)
			continue
		}
		out = append(out, ParseCondition(path, where[key]))
	}
	return out
}

func parseSort(value any) ([]SortField, error) {
	raw, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("_sort must be a string, got %T", value)
	}
	var out []SortField
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, dir, _ := strings.Cut(part, ":")
		field = strings.TrimSpace(field)
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "", "asc":
			out = append(out, SortField{Field: field})
		case "desc":
			out = append(out, SortField{Field: field, Desc: true})
		default:
			return nil, fmt.Errorf("_sort: invalid direction %q for %q", dir, field)
		}
	}
	return out, nil
}

func toInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	}
	return 0, fmt.Errorf("expected a number, got %T", value)
}

// Values returns the value of an _in/_nin condition as a slice.
func (c Condition) Values() []any {
	switch v := c.Value.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case nil:
		return nil
	}
	return []any{c.Value}
}

// IsNullCheck reports whether a `_null` condition asks for null (true) or not null.
func (c Condition) IsNullCheck() bool {
	switch v := c.Value.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return c.Value != nil
}
