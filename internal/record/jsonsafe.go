package record

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// JSONSafe returns a copy of v in which every leaf that encoding/json cannot
// encode is replaced by its %v string form. Maps with non-string keys get
// their keys stringified. Containers are rebuilt; v itself is not modified.
func JSONSafe(v any) any {
	switch val := v.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val
	case float32:
		return safeLeaf(val)
	case float64:
		return safeLeaf(val)
	case Key:
		return val.String()
	case []byte:
		return Key(val).String()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = JSONSafe(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = JSONSafe(elem)
		}
		return out
	case json.Marshaler:
		return safeLeaf(val)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, k := range keys {
			out[fmt.Sprint(k.Interface())] = JSONSafe(rv.MapIndex(k).Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = JSONSafe(rv.Index(i).Interface())
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return JSONSafe(rv.Elem().Interface())
	default:
		return safeLeaf(v)
	}
}

// safeLeaf keeps v if it encodes, otherwise returns its string form.
func safeLeaf(v any) any {
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return v
}
