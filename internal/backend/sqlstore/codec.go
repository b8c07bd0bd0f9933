package sqlstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"content-graphql/internal/backend"
	"content-graphql/internal/contentmodel"
)

// encode converts a record into column values. Unknown keys are dropped;
// JSON columns are marshalled and relation references reduced to their id.
func (t *table) encode(data backend.Record) (map[string]any, error) {
	out := make(map[string]any, len(data))
	for name, v := range data {
		c, ok := t.byName[name]
		if !ok {
			continue
		}
		switch c.kind {
		case kindJSON:
			if v == nil {
				out[name] = nil
				continue
			}
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", backend.ErrInvalid, t.model.UID, name, err)
			}
			out[name] = string(raw)
		case kindRef:
			out[name] = t.refValue(c, v)
		default:
			out[name] = scalarValue(v)
		}
	}
	return out, nil
}

func (t *table) refValue(c column, v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	pk := "id"
	if c.target != "" {
		if target, ok := t.store.registry.Lookup(c.target); ok {
			pk = target.PrimaryKey
		}
	}
	return m[pk]
}

func scalarValue(v any) any {
	switch x := v.(type) {
	case map[string]any, []any:
		raw, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		return string(raw)
	case time.Time:
		return x.UTC()
	}
	return v
}

func (t *table) decode(cols []string, values []any) backend.Record {
	r := make(backend.Record, len(cols))
	for i, name := range cols {
		c, ok := t.byName[name]
		if !ok {
			r[name] = plain(values[i])
			continue
		}
		r[name] = decodeValue(c, values[i])
	}
	return r
}

func decodeGeneric(cols []string, values []any) backend.Record {
	r := make(backend.Record, len(cols))
	for i, name := range cols {
		r[name] = plain(values[i])
	}
	return r
}

// decodeValue converts a driver value into the Go type of the column.
func decodeValue(c column, v any) any {
	if v == nil {
		return nil
	}
	switch c.kind {
	case kindJSON:
		var raw []byte
		switch x := v.(type) {
		case []byte:
			raw = x
		case string:
			raw = []byte(x)
		default:
			return v
		}
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return string(raw)
		}
		return out
	case kindRef:
		return plain(v)
	}

	switch c.attr {
	case contentmodel.TypeInteger, contentmodel.TypeBigInteger:
		if n, ok := toInt64(v); ok {
			return n
		}
	case contentmodel.TypeFloat, contentmodel.TypeDecimal:
		if f, ok := toFloat64(v); ok {
			return f
		}
	case contentmodel.TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x
		case int64:
			return x != 0
		case []byte:
			b, err := strconv.ParseBool(string(x))
			if err == nil {
				return b
			}
		}
	}
	return plain(v)
}

func plain(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case uint64:
		return int64(x), true
	case float64:
		return int64(x), true
	case []byte:
		n, err := strconv.ParseInt(string(x), 10, 64)
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case []byte:
		f, err := strconv.ParseFloat(string(x), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}
