package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeAccumulator_LastWriteWins(t *testing.T) {
	acc := map[string]interface{}{"count": 3, "label": "first"}
	output := map[string]interface{}{"count": 0, "label": "second", "ignored": true}

	merged, err := MergeAccumulator(acc, output, []string{"count", "label"})
	require.NoError(t, err)

	assert.Equal(t, 0, merged["count"])
	assert.Equal(t, "second", merged["label"])
	assert.NotContains(t, merged, "ignored")
	assert.Equal(t, 3, acc["count"], "input accumulator must not be mutated")
}

func TestMergeAccumulator_DottedPaths(t *testing.T) {
	acc := map[string]interface{}{
		"stats": map[string]interface{}{"seen": 1, "kept": "yes"},
	}
	output := map[string]interface{}{
		"stats": map[string]interface{}{"seen": 2, "dropped": "no"},
	}

	merged, err := MergeAccumulator(acc, output, []string{"stats.seen"})
	require.NoError(t, err)

	stats, ok := merged["stats"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 2, stats["seen"])
	assert.Equal(t, "yes", stats["kept"])
	assert.NotContains(t, stats, "dropped")
}

func TestMergeAccumulator_ObjectFieldIsReplaced(t *testing.T) {
	first, err := MergeAccumulator(nil, map[string]interface{}{"obj": map[string]interface{}{"a": 1}}, []string{"obj"})
	require.NoError(t, err)

	second, err := MergeAccumulator(first, map[string]interface{}{"obj": map[string]interface{}{"b": 2}}, []string{"obj"})
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"b": 2}, second["obj"])
	assert.Equal(t, map[string]interface{}{"a": 1}, first["obj"], "previous accumulator must not be mutated")
}

func TestMergeAccumulator_NestedObjectFieldIsReplaced(t *testing.T) {
	acc := map[string]interface{}{
		"stats": map[string]interface{}{"seen": map[string]interface{}{"x": 1}, "kept": "yes"},
	}
	output := map[string]interface{}{
		"stats": map[string]interface{}{"seen": map[string]interface{}{"y": 2}},
	}

	merged, err := MergeAccumulator(acc, output, []string{"stats.seen"})
	require.NoError(t, err)

	stats := merged["stats"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"y": 2}, stats["seen"])
	assert.Equal(t, "yes", stats["kept"])
}

func TestMergeAccumulator_SlicesAreReplaced(t *testing.T) {
	acc := map[string]interface{}{"items": []interface{}{"a", "b"}}
	output := map[string]interface{}{"items": []interface{}{"c"}}

	merged, err := MergeAccumulator(acc, output, []string{"items"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"c"}, merged["items"])
}

func TestMergeAccumulator_NilInputs(t *testing.T) {
	merged, err := MergeAccumulator(nil, nil, []string{"x"})
	require.NoError(t, err)
	assert.NotNil(t, merged)
	assert.Empty(t, merged)

	merged, err = MergeAccumulator(nil, map[string]interface{}{"x": 1}, nil)
	require.NoError(t, err)
	assert.Empty(t, merged)
}

func TestMergeAccumulator_MissingFieldKeepsPrevious(t *testing.T) {
	acc := map[string]interface{}{"total": 10}
	merged, err := MergeAccumulator(acc, map[string]interface{}{"other": 1}, []string{"total"})
	require.NoError(t, err)
	assert.Equal(t, 10, merged["total"])
}

func TestExtractFields_DoesNotAliasOutput(t *testing.T) {
	inner := map[string]interface{}{"k": "v"}
	output := map[string]interface{}{"obj": inner}

	patch := ExtractFields(output, []string{"obj"})
	patch["obj"].(map[string]interface{})["k"] = "changed"

	assert.Equal(t, "v", inner["k"])
}

func TestLookupPath(t *testing.T) {
	data := map[string]interface{}{
		"a":   map[string]interface{}{"b": map[string]interface{}{"c": 42}},
		"x.y": "literal",
	}

	value, ok := LookupPath(data, "a.b.c")
	assert.True(t, ok)
	assert.Equal(t, 42, value)

	value, ok = LookupPath(data, "x.y")
	assert.True(t, ok)
	assert.Equal(t, "literal", value)

	_, ok = LookupPath(data, "a.missing")
	assert.False(t, ok)

	_, ok = LookupPath(nil, "a")
	assert.False(t, ok)
}
