// Package attrs reads values back out of slog-style key/value lists, so a
// single attribute list can feed both a log line and an audit record.
package attrs

import (
	"fmt"
	"log/slog"
)

// ExtractString returns the value stored under key in a list formatted as
// [key1, value1, key2, value2, ...] or holding slog.Attr entries. Strings
// and fmt.Stringers (ids, statuses) are returned as text; anything else,
// or a missing key, yields "".
func ExtractString(attrs []any, key string) string {
	for i := 0; i < len(attrs); i++ {
		switch k := attrs[i].(type) {
		case slog.Attr:
			if k.Key == key {
				return k.Value.String()
			}
		case string:
			if i+1 >= len(attrs) {
				return ""
			}
			if k == key {
				return asString(attrs[i+1])
			}
			i++
		}
	}
	return ""
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}
	return ""
}
