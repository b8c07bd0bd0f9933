// Package scalars implements the custom scalars every generated schema declares.
package scalars

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05.000"
)

// ByName returns the scalar registered under name.
func ByName(name string) (*graphql.Scalar, bool) {
	switch name {
	case "JSON":
		return JSON(), true
	case "Long":
		return Long(), true
	case "Date":
		return Date(), true
	case "Time":
		return Time(), true
	case "DateTime":
		return DateTime(), true
	case "Upload":
		return Upload(), true
	}
	return nil, false
}

// JSON accepts any value: objects and lists pass through as Go maps and slices,
// and literals are converted recursively. It also backs scalars declared
// without a dedicated implementation, such as dynamic-zone inputs.
func JSON() *graphql.Scalar {
	return Opaque("JSON", "Arbitrary JSON value.")
}

// Opaque returns a JSON-like scalar under another name.
func Opaque(name, description string) *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        name,
		Description: description,
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case []byte:
				var decoded interface{}
				if err := json.Unmarshal(v, &decoded); err == nil {
					return decoded
				}
				return string(v)
			case json.RawMessage:
				var decoded interface{}
				if err := json.Unmarshal(v, &decoded); err == nil {
					return decoded
				}
				return nil
			}
			return value
		},
		ParseValue: func(value interface{}) interface{} {
			return value
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			return literal(valueAST)
		},
	})
}

func literal(valueAST ast.Value) interface{} {
	switch v := valueAST.(type) {
	case *ast.StringValue:
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.EnumValue:
		return v.Value
	case *ast.IntValue:
		if n, err := strconv.Atoi(v.Value); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return f
		}
		return nil
	case *ast.FloatValue:
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return f
		}
		return nil
	case *ast.ListValue:
		out := make([]interface{}, 0, len(v.Values))
		for _, item := range v.Values {
			out = append(out, literal(item))
		}
		return out
	case *ast.ObjectValue:
		out := make(map[string]interface{}, len(v.Fields))
		for _, field := range v.Fields {
			out[field.Name.Value] = literal(field.Value)
		}
		return out
	}
	return nil
}

// Long is a 64-bit integer. It serializes as a number when it fits a float64
// exactly and as a string otherwise.
func Long() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "Long",
		Description: "64-bit integer value.",
		Serialize: func(value interface{}) interface{} {
			n, ok := coerceInt64(value)
			if !ok {
				return nil
			}
			if n > 1<<53 || n < -(1<<53) {
				return strconv.FormatInt(n, 10)
			}
			return n
		},
		ParseValue: func(value interface{}) interface{} {
			if n, ok := coerceInt64(value); ok {
				return n
			}
			return nil
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			switch v := valueAST.(type) {
			case *ast.IntValue:
				if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
					return n
				}
			case *ast.StringValue:
				if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
					return n
				}
			}
			return nil
		},
	})
}

func coerceInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Date serializes as YYYY-MM-DD.
func Date() *graphql.Scalar {
	parse := func(s string) interface{} {
		if parsed, err := time.Parse(dateLayout, s); err == nil {
			return parsed
		}
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		}
		return nil
	}
	return timeScalar("Date", "Date value serialized as YYYY-MM-DD.", func(t time.Time) string {
		return t.UTC().Format(dateLayout)
	}, parse)
}

// Time serializes as HH:mm:ss.SSS. Stored strings pass through.
func Time() *graphql.Scalar {
	parse := func(s string) interface{} {
		for _, layout := range []string{timeLayout, "15:04:05", "15:04"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.Format(timeLayout)
			}
		}
		return nil
	}
	return timeScalar("Time", "Time of day serialized as HH:mm:ss.SSS.", func(t time.Time) string {
		return t.Format(timeLayout)
	}, parse)
}

// DateTime serializes as RFC 3339 in UTC.
func DateTime() *graphql.Scalar {
	parse := func(s string) interface{} {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", dateLayout} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC()
			}
		}
		return nil
	}
	return timeScalar("DateTime", "Timestamp serialized as RFC 3339.", func(t time.Time) string {
		return t.UTC().Format(time.RFC3339Nano)
	}, parse)
}

func timeScalar(name, description string, format func(time.Time) string, parse func(string) interface{}) *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        name,
		Description: description,
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case time.Time:
				return format(v)
			case *time.Time:
				if v == nil {
					return nil
				}
				return format(*v)
			case string:
				if parsed, ok := parse(v).(time.Time); ok {
					return format(parsed)
				}
				if normalized, ok := parse(v).(string); ok {
					return normalized
				}
				return nil
			case []byte:
				if parsed, ok := parse(string(v)).(time.Time); ok {
					return format(parsed)
				}
				return nil
			}
			return nil
		},
		ParseValue: func(value interface{}) interface{} {
			switch v := value.(type) {
			case time.Time:
				return v
			case string:
				return parse(v)
			}
			return nil
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			if sv, ok := valueAST.(*ast.StringValue); ok {
				return parse(sv.Value)
			}
			return nil
		},
	})
}

// Upload carries multipart file references. Values are handed to resolvers
// unchanged and never serialized back.
func Upload() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "Upload",
		Description: "A file part of a multipart request.",
		Serialize: func(value interface{}) interface{} {
			return nil
		},
		ParseValue: func(value interface{}) interface{} {
			return value
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			return nil
		},
	})
}
