package config

// Merge combines a default configuration tree with an override tree and
// returns the result. Neither input is modified.
//
// For each override key with a truthy value: arrays are appended to the
// default array, nested maps are merged recursively, any other value
// replaces the default. Keys missing from the defaults are added. Falsy
// override values (nil, false, 0, "") leave the default in place, so a
// boolean can be switched on but not off from a file.
func Merge(defaults, override map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(override))
	for k, v := range defaults {
		out[k] = clone(v)
	}

	for k, ov := range override {
		if !truthy(ov) {
			continue
		}
		switch o := ov.(type) {
		case []any:
			if d, ok := out[k].([]any); ok {
				out[k] = append(d, clone(o).([]any)...)
				continue
			}
		case map[string]any:
			if d, ok := out[k].(map[string]any); ok {
				out[k] = Merge(d, o)
				continue
			}
		}
		out[k] = clone(ov)
	}
	return out
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case uint64:
		return x != 0
	case float64:
		return x != 0 && x == x
	}
	return true
}

func clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[k] = clone(val)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, val := range x {
			s[i] = clone(val)
		}
		return s
	}
	return v
}
