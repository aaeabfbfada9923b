package definition

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/routines/internal/domain"
)

const jsonFixture = `{
  "routineId": "orders",
  "userId": "u1",
  "triggerData": {"order_id": "o-1"},
  "nodes": [
    {"id": "fetch", "pluginId": "http", "config": {"url": "https://example.com"}},
    {"id": "check", "pluginId": "condition", "enabled": false}
  ],
  "connections": [
    {"id": "e1", "type": "flow", "sourceNodeId": "fetch", "targetNodeId": "check"},
    {"id": "retry", "type": "flow", "sourceNodeId": "check", "targetNodeId": "fetch", "sourceHandle": "loop",
     "loopConfig": {"maxIterations": 3, "accumulatorFields": ["attempts"]}},
    {"id": "d1", "type": "data", "sourceNodeId": "fetch", "targetNodeId": "check", "sourceHandle": "body", "targetHandle": "payload"}
  ]
}`

const yamlFixture = `
routine_id: orders
user_id: u1
trigger_data:
  order_id: o-1
nodes:
  - id: fetch
    plugin_id: http
    config:
      url: https://example.com
  - id: check
    plugin_id: condition
    enabled: false
connections:
  - id: e1
    type: flow
    source: fetch
    target: check
  - id: retry
    source: check
    target: fetch
    source_handle: loop
    loop:
      max_iterations: 3
      accumulator_fields: [attempts]
  - id: d1
    type: data
    source: fetch
    target: check
    source_handle: body
    target_handle: payload
`

const hclFixture = `
routine_id = "orders"
user_id    = "u1"
trigger    = { order_id = "o-1" }

node "fetch" {
  plugin = "http"
  config = { url = "https://example.com" }
}

node "check" {
  plugin  = "condition"
  enabled = false
}

flow "e1" {
  source = "fetch"
  target = "check"
}

flow "retry" {
  source = "check"
  target = "fetch"
  handle = "loop"
  loop {
    max_iterations = 3
    accumulate     = ["attempts"]
  }
}

data "d1" {
  source        = "fetch"
  target        = "check"
  source_handle = "body"
  target_handle = "payload"
}
`

// assertOrdersDefinition checks the definition every format above describes.
func assertOrdersDefinition(t *testing.T, def domain.RoutineDefinition) {
	t.Helper()

	assert.Equal(t, "orders", def.RoutineID)
	assert.Equal(t, "u1", def.UserID)
	assert.Equal(t, "o-1", def.TriggerData["order_id"])

	require.Len(t, def.Nodes, 2)
	assert.Equal(t, "http", def.Nodes[0].PluginID)
	assert.True(t, def.Nodes[0].Enabled, "enabled defaults to true")
	assert.Equal(t, "https://example.com", def.Nodes[0].Config["url"])
	assert.False(t, def.Nodes[1].Enabled)

	byID := make(map[string]domain.Connection)
	for _, c := range def.Connections {
		byID[c.ConnectionID()] = c
	}
	require.Len(t, byID, 3)

	retry, ok := byID["retry"].(*domain.FlowConnection)
	require.True(t, ok)
	require.NotNil(t, retry.LoopConfig)
	assert.Equal(t, 3, retry.LoopConfig.MaxIterations)
	assert.Equal(t, []string{"attempts"}, retry.LoopConfig.AccumulatorFields)
	assert.Equal(t, "loop", retry.SourceHandle)

	plain, ok := byID["e1"].(*domain.FlowConnection)
	require.True(t, ok)
	assert.Nil(t, plain.LoopConfig)

	data, ok := byID["d1"].(*domain.DataConnection)
	require.True(t, ok)
	assert.Equal(t, "body", data.SourceHandle)
	assert.Equal(t, "payload", data.TargetHandle)
}

func TestParse_AllFormatsAgree(t *testing.T) {
	tests := []struct {
		format Format
		data   string
	}{
		{FormatJSON, jsonFixture},
		{FormatYAML, yamlFixture},
		{FormatHCL, hclFixture},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			def, err := Parse([]byte(tt.data), tt.format)
			require.NoError(t, err)
			assertOrdersDefinition(t, def)
		})
	}
}

func TestLoad_PicksFormatFromExtension(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"orders.json": jsonFixture,
		"orders.yml":  yamlFixture,
		"orders.hcl":  hclFixture,
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		def, err := Load(path)
		require.NoError(t, err, name)
		assertOrdersDefinition(t, def)
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("routine.toml")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestParse_RejectsMalformedInput(t *testing.T) {
	_, err := Parse([]byte(`{"nodes": [`), FormatJSON)
	assert.True(t, domain.IsDomainError(err))

	_, err = Parse([]byte(`connections: [{id: x, type: teleport}]`), FormatYAML)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = Parse([]byte(`node "a" {}`), FormatHCL)
	assert.Error(t, err, "plugin is required")

	_, err = Parse([]byte(`node "a" {
  plugin = "p"
  config = "not an object"
}`), FormatHCL)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
