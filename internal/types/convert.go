package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Unwrap returns the "value" member of a reference object ({"link","value"})
// and v unchanged otherwise.
func Unwrap(v interface{}) interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		if inner, exists := m["value"]; exists {
			return inner
		}
	}
	return v
}

// ToInt64 converts an interface{} to int64.
// Supports all integer kinds, float32/float64, numeric strings and reference
// objects wrapping one of those. Anything else converts to 0.
func ToInt64(v interface{}) int64 {
	switch i := Unwrap(v).(type) {
	case int64:
		return i
	case int:
		return int64(i)
	case int32:
		return int64(i)
	case int16:
		return int64(i)
	case int8:
		return int64(i)
	case uint:
		return int64(i)
	case uint64:
		return int64(i)
	case uint32:
		return int64(i)
	case uint16:
		return int64(i)
	case uint8:
		return int64(i)
	case float64:
		return int64(i)
	case float32:
		return int64(i)
	case string:
		s := strings.TrimSpace(i)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
		return 0
	default:
		return 0
	}
}

// ToBool converts upstream flag values. Strings "true", "1" and "yes" are true
// (case-insensitive); numbers are true when non-zero.
func ToBool(v interface{}) bool {
	switch b := Unwrap(v).(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes":
			return true
		}
		return false
	case nil:
		return false
	default:
		return ToInt64(b) != 0
	}
}

// ToString renders a scalar as a string. nil becomes "".
func ToString(v interface{}) string {
	switch s := Unwrap(v).(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(s)
	}
}
