package domain

import (
	"strings"

	"dario.cat/mergo"
)

// ExtractFields picks the values named by fields out of output. Dotted
// names address nested objects; the result keeps the same nesting.
// Fields absent from output are skipped.
func ExtractFields(output map[string]interface{}, fields []string) map[string]interface{} {
	patch := make(map[string]interface{})
	for _, field := range fields {
		value, ok := LookupPath(output, field)
		if !ok {
			continue
		}
		setPath(patch, strings.Split(field, "."), CloneValue(value))
	}
	return patch
}

// MergeAccumulator folds the named fields of output into acc. Each named
// field is replaced outright by its latest value; fields that share a
// dotted prefix keep their siblings. acc is not modified.
func MergeAccumulator(acc, output map[string]interface{}, fields []string) (map[string]interface{}, error) {
	merged, _ := CloneValue(acc).(map[string]interface{})
	if merged == nil {
		merged = make(map[string]interface{})
	}
	if len(fields) == 0 || len(output) == 0 {
		return merged, nil
	}

	patch := ExtractFields(output, fields)
	if len(patch) == 0 {
		return merged, nil
	}

	for _, field := range fields {
		if _, ok := LookupPath(patch, field); ok {
			deletePath(merged, strings.Split(field, "."))
		}
	}

	if err := mergo.Merge(&merged, patch, mergo.WithOverride); err != nil {
		return nil, NewExecutionError("failed to merge loop accumulator", err,
			WithComponent("domain.MergeAccumulator"),
			WithDetail("fields", fields))
	}
	return merged, nil
}

// LookupPath resolves a dotted path against nested maps.
func LookupPath(data map[string]interface{}, path string) (interface{}, bool) {
	if data == nil || path == "" {
		return nil, false
	}
	if value, ok := data[path]; ok {
		return value, true
	}

	parts := strings.Split(path, ".")
	var current interface{} = data
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func setPath(target map[string]interface{}, parts []string, value interface{}) {
	current := target
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

func deletePath(target map[string]interface{}, parts []string) {
	current := target
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			return
		}
		current = next
	}
	delete(current, parts[len(parts)-1])
}

// CloneValue deep-copies the JSON-shaped values plugins exchange.
func CloneValue(v interface{}) interface{} {
	switch typed := v.(type) {
	case map[string]interface{}:
		if typed == nil {
			return map[string]interface{}(nil)
		}
		out := make(map[string]interface{}, len(typed))
		for k, val := range typed {
			out[k] = CloneValue(val)
		}
		return out
	case []interface{}:
		if typed == nil {
			return []interface{}(nil)
		}
		out := make([]interface{}, len(typed))
		for i, val := range typed {
			out[i] = CloneValue(val)
		}
		return out
	default:
		return v
	}
}

// ClonePortData returns a deep copy of data, or nil for nil input.
func ClonePortData(data PortData) PortData {
	if data == nil {
		return nil
	}
	cloned, _ := CloneValue(data).(map[string]interface{})
	return cloned
}
