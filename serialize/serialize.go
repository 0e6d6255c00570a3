// Package serialize converts handler return values into wire-safe JSON.
//
// Accepted shapes, recursively: mappings with string keys, ordered sequences,
// strings, numbers, booleans, and null. Anything else fails with a
// SerializationError naming the offending position, so callers can tell
// "handler logic failed" apart from "handler result was unrepresentable".
package serialize

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/fnhost/fnhost/fault"
)

// maxDepth bounds the recursive walk so self-referencing structures fail
// cleanly instead of exhausting the stack.
const maxDepth = 256

// Marshal validates v and encodes it as JSON wire bytes.
func Marshal(v any) ([]byte, error) {
	if err := Check(v); err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fault.Wrap(fault.KindSerialization, err)
	}
	return b, nil
}

// Check reports whether v is composed only of wire-safe values.
func Check(v any) error {
	return walk(v, "$", 0)
}

func walk(v any, path string, depth int) error {
	if depth > maxDepth {
		return fault.New(fault.KindSerialization, "value at %s exceeds maximum nesting depth", path)
	}
	if v == nil {
		return nil
	}

	// Fast paths for the types runtimes actually produce.
	switch t := v.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return nil
	case float32:
		return checkFloat(float64(t), path)
	case float64:
		return checkFloat(t, path)
	case json.Number:
		return nil
	case map[string]any:
		for k, e := range t {
			if err := walk(e, path+"."+k, depth+1); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for i, e := range t {
			if err := walk(e, fmt.Sprintf("%s[%d]", path, i), depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	// Named and less common kinds.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return nil
	case reflect.Float32, reflect.Float64:
		return checkFloat(rv.Float(), path)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fault.New(fault.KindSerialization,
				"mapping at %s has non-string keys (%s)", path, rv.Type().Key())
		}
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			if err := walk(iter.Value().Interface(), path+"."+k, depth+1); err != nil {
				return err
			}
		}
		return nil
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := walk(rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i), depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	return fault.New(fault.KindSerialization,
		"value at %s has no wire representation (%T)", path, v)
}

func checkFloat(f float64, path string) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fault.New(fault.KindSerialization, "number at %s is not representable (%v)", path, f)
	}
	return nil
}
