package adapter

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tuckview/tuckview/pkg/errors"
)

// Coerce converts value to the column's declared type, failing with a
// validation error when the value cannot represent that type. A nil
// value passes only for nullable columns.
func Coerce(value interface{}, col ColumnDef) (interface{}, error) {
	if value == nil {
		if !col.Nullable {
			return nil, errors.Newf(errors.ErrorTypeValidation,
				"column %s is not nullable", col.Name)
		}
		return nil, nil
	}

	switch col.Type {
	case TypeInt:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v == math.Trunc(v) && !math.IsInf(v, 0) {
				return int64(v), nil
			}
		}
	case TypeFloat:
		switch v := value.(type) {
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case float64:
			return v, nil
		}
	case TypeBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case TypeString:
		if v, ok := value.(string); ok {
			return v, nil
		}
	}

	return nil, errors.Newf(errors.ErrorTypeValidation,
		"value %v does not coerce to %s column %s", value, col.Type, col.Name)
}

// typeRank orders value kinds for cross-type comparison:
// Null < Bool < numeric < String.
func typeRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int64, float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

// Compare imposes a deterministic total order over scalar values.
// Values of different kinds order by typeRank; within a kind, bools
// order false before true, numbers numerically (int and float compare
// as one numeric domain), and strings lexicographically.
func Compare(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}

	switch ra {
	case 0:
		return 0
	case 1:
		av, bv := a.(bool), b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case 2:
		// Integer pairs compare exactly; float64 cannot represent every
		// int64 above 2^53, so going through float would collapse
		// distinct huge ints.
		if ai, aok := asInt(a); aok {
			if bi, bok := asInt(b); bok {
				switch {
				case ai < bi:
					return -1
				case ai > bi:
					return 1
				default:
					return 0
				}
			}
		}
		av, bv := asFloat(a), asFloat(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case 3:
		return strings.Compare(a.(string), b.(string))
	default:
		// Unknown kinds should not reach the core; fall back to a
		// stable textual order so sorting stays deterministic.
		return strings.Compare(strconv.Quote(stringify(a)), strconv.Quote(stringify(b)))
	}
}

func asInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return FormatScalar(v)
}

// InferScalarType guesses a column type from one textual value.
// Empty strings carry no information and report TypeString.
func InferScalarType(value string) ColumnType {
	value = strings.TrimSpace(value)
	if value == "" {
		return TypeString
	}

	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return TypeInt
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return TypeFloat
	}
	if value == "true" || value == "false" || value == "TRUE" || value == "FALSE" {
		return TypeBool
	}

	return TypeString
}

// WidenType merges a previously inferred type with a new observation.
// Int widens to float when fractions appear; any other disagreement
// falls back to string.
func WidenType(prev, next ColumnType) ColumnType {
	if prev == next {
		return prev
	}
	if (prev == TypeInt && next == TypeFloat) || (prev == TypeFloat && next == TypeInt) {
		return TypeFloat
	}
	return TypeString
}

// ParseScalar converts one textual CSV value into the typed scalar the
// declared column type calls for. Empty text reads as null; text that
// fails to parse stays a string rather than failing the read.
func ParseScalar(value string, colType ColumnType) interface{} {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}

	switch colType {
	case TypeInt:
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return n
		}
	case TypeFloat:
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
	case TypeBool:
		if b, err := strconv.ParseBool(trimmed); err == nil {
			return b
		}
	}

	return value
}

// FormatScalar renders a scalar back to its textual CSV form.
// Null renders as the empty string.
func FormatScalar(v interface{}) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case bool:
		return strconv.FormatBool(n)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// ScalarTypeOf reports the column type a decoded JSON value suggests.
// Nil carries no information and reports ok=false.
func ScalarTypeOf(v interface{}) (ColumnType, bool) {
	switch v.(type) {
	case nil:
		return TypeString, false
	case bool:
		return TypeBool, true
	case int64:
		return TypeInt, true
	case float64:
		return TypeFloat, true
	case string:
		return TypeString, true
	default:
		return TypeString, true
	}
}
