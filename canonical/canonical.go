// Package canonical produces a deterministic string representation of any
// JSON-like value, used as the dedup key component and for logging.
// Decoding of arbitrary wire payloads goes through goccy/go-json, a
// drop-in, faster encoding/json; the deterministic key-sorted walk itself
// is hand-written since no off-the-shelf library does canonical JSON
// serialization.
package canonical

import (
	"sort"
	"strconv"

	json "github.com/goccy/go-json"
)

// Undefined is the sentinel Serialize returns for UndefinedValue, the
// stand-in for JSON `undefined` (Serialize(nil) returns "null"). It is the
// bare word undefined, distinct from the canonical form of the string
// "undefined", which is quoted, and from "null".
const Undefined = "undefined"

// undefinedMarker lets callers pass an explicit "no input" distinct from a
// JSON null.
type undefinedMarker struct{}

// UndefinedValue is usable as the `input` to Serialize to get Undefined.
var UndefinedValue = undefinedMarker{}

// Serialize returns the canonical string form of v. Object keys are sorted
// lexicographically so structurally-equal values serialize identically
// regardless of construction order.
func Serialize(v any) string {
	if v == nil {
		return "null"
	}
	if _, ok := v.(undefinedMarker); ok {
		return Undefined
	}
	return serializeValue(normalize(v))
}

// normalize round-trips v through goccy/go-json so arbitrary Go structs,
// maps with non-string-keyed-looking values, etc. land on the same
// map[string]any / []any / primitive shape a JSON wire payload would.
func normalize(v any) any {
	switch v.(type) {
	case map[string]any, []any, string, float64, int, int64, bool, nil:
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func serializeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		b, _ := json.Marshal(val)
		return string(b)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case []any:
		out := "["
		for i, item := range val {
			if i > 0 {
				out += ","
			}
			out += Serialize(item)
		}
		return out + "]"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := "{"
		for i, k := range keys {
			if i > 0 {
				out += ","
			}
			kb, _ := json.Marshal(k)
			out += string(kb) + ":" + Serialize(val[k])
		}
		return out + "}"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return Undefined
		}
		return string(b)
	}
}
