package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertToParams(t *testing.T) {
	got := ConvertToParams(map[string]any{"id": 1, "limit": 10, "sort": "title:asc"})
	assert.Equal(t, map[string]any{"id": 1, "_limit": 10, "_sort": "title:asc"}, got)
	assert.Empty(t, ConvertToParams(nil))
}

func TestConvertToQuery(t *testing.T) {
	nested := map[string]any{
		"a":     map[string]any{"b": 1},
		"title": "x",
		"deep":  map[string]any{"x": map[string]any{"y_gt": 2}},
		"empty": map[string]any{},
	}
	flat := ConvertToQuery(nested)
	assert.Equal(t, map[string]any{"a.b": 1, "title": "x", "deep.x.y_gt": 2}, flat)

	// already flat input is unchanged
	assert.Equal(t, flat, ConvertToQuery(flat))
	assert.Equal(t, map[string]any{"a.b": 1}, ConvertToQuery(map[string]any{"a": map[string]any{"b": 1}}))
	assert.Empty(t, ConvertToQuery(nil))
	assert.Empty(t, ConvertToQuery("not a map"))
}

func TestQueryParams(t *testing.T) {
	got := QueryParams(map[string]any{
		"sort":  "title:asc",
		"limit": 5,
		"where": map[string]any{"author": map[string]any{"name": "ada"}, "views_gt": 1},
	})
	assert.Equal(t, map[string]any{"_sort": "title:asc", "_limit": 5, "author.name": "ada", "views_gt": 1}, got)
}

func TestLimitsApply(t *testing.T) {
	limits := Limits{AmountLimit: 100}

	tests := []struct {
		name  string
		input any
		want  int
	}{
		{"absent", nil, 100},
		{"minus one", -1, 100},
		{"over max", 500, 100},
		{"negative", -5, 0},
		{"in range", 10, 10},
		{"zero", 0, 0},
		{"float", float64(20), 20},
		{"int64", int64(30), 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]any{"sort": "id"}
			if tt.input != nil {
				args["limit"] = tt.input
			}
			got := limits.Apply(args)
			assert.Equal(t, tt.want, got["limit"])
			assert.Equal(t, "id", got["sort"])
			if tt.input == nil {
				_, present := args["limit"]
				assert.False(t, present, "input must not be mutated")
			}
		})
	}

	unlimited := Limits{}.Apply(map[string]any{"limit": 5000})
	assert.Equal(t, 5000, unlimited["limit"])
	assert.NotNil(t, Limits{}.Apply(nil))
}
