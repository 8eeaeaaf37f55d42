package sandbox

import (
	"math"
	"math/big"
	"strconv"

	"github.com/dop251/goja"
)

// maxExportDepth caps nesting; deeper values are replaced by a marker.
const maxExportDepth = 64

const (
	circularMarker = "[Circular]"
	depthMarker    = "[MaxDepth]"
)

// export converts a runtime value into plain Go data that encoding/json can
// serialize: nil, bool, int64, float64, string, []any or map[string]any.
// Functions become the map of their enumerable properties plus a "function"
// entry holding their name.
func export(v goja.Value) any {
	c := &exporter{path: make(map[*goja.Object]bool)}
	return c.value(v, 0)
}

// ownKeys returns the own enumerable keys of a plain object value.
func ownKeys(v goja.Value) []string {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	switch obj.ClassName() {
	case "Array", "Date", "RegExp":
		return nil
	}
	return obj.Keys()
}

type exporter struct {
	// path holds the objects between the root and the current value.
	path map[*goja.Object]bool
}

func (c *exporter) value(v goja.Value, depth int) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if sym, ok := v.(*goja.Symbol); ok {
		return sym.String()
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return primitive(v)
	}

	if c.path[obj] {
		return circularMarker
	}
	if depth >= maxExportDepth {
		return depthMarker
	}
	c.path[obj] = true
	defer delete(c.path, obj)

	switch obj.ClassName() {
	case "Array":
		n := obj.Get("length").ToInteger()
		out := make([]any, 0, n)
		for i := int64(0); i < n; i++ {
			out = append(out, c.value(obj.Get(strconv.FormatInt(i, 10)), depth+1))
		}
		return out
	case "Function":
		m := c.object(obj, depth)
		m["function"] = obj.Get("name").String()
		return m
	case "Date":
		if iso, ok := goja.AssertFunction(obj.Get("toISOString")); ok {
			if s, err := iso(obj); err == nil {
				return s.String()
			}
		}
		return obj.String()
	case "RegExp":
		return obj.String()
	case "Error":
		return map[string]any{
			"name":    obj.Get("name").String(),
			"message": obj.Get("message").String(),
		}
	}
	return c.object(obj, depth)
}

func (c *exporter) object(obj *goja.Object, depth int) map[string]any {
	keys := obj.Keys()
	m := make(map[string]any, len(keys))
	for _, k := range keys {
		val := obj.Get(k)
		if val == nil || goja.IsUndefined(val) {
			continue
		}
		m[k] = c.value(val, depth+1)
	}
	return m
}

func primitive(v goja.Value) any {
	switch x := v.Export().(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case *big.Int:
		return x.String()
	case int64, string, bool:
		return x
	default:
		return v.String()
	}
}
