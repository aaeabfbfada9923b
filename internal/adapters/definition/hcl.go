package definition

import (
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/xjson"
)

// The HCL form:
//
//	routine_id = "orders"
//	trigger    = { order_id = "o-1" }
//
//	node "fetch" {
//	  plugin = "http"
//	  config = { url = "https://example.com" }
//	}
//
//	flow "retry" {
//	  source = "check"
//	  target = "fetch"
//	  handle = "loop"
//	  loop {
//	    max_iterations = 3
//	    accumulate     = ["attempts"]
//	  }
//	}
//
//	data "payload" {
//	  source        = "fetch"
//	  target        = "check"
//	  source_handle = "body"
//	}
type hclDefinition struct {
	RoutineID string    `hcl:"routine_id,optional"`
	UserID    string    `hcl:"user_id,optional"`
	Trigger   cty.Value `hcl:"trigger,optional"`
	Nodes     []hclNode `hcl:"node,block"`
	Flows     []hclFlow `hcl:"flow,block"`
	Data      []hclData `hcl:"data,block"`
}

type hclNode struct {
	ID      string    `hcl:"id,label"`
	Plugin  string    `hcl:"plugin"`
	Enabled *bool     `hcl:"enabled,optional"`
	Config  cty.Value `hcl:"config,optional"`
}

type hclFlow struct {
	ID     string   `hcl:"id,label"`
	Source string   `hcl:"source"`
	Target string   `hcl:"target"`
	Handle string   `hcl:"handle,optional"`
	Loop   *hclLoop `hcl:"loop,block"`
}

type hclLoop struct {
	MaxIterations int      `hcl:"max_iterations"`
	Accumulate    []string `hcl:"accumulate,optional"`
}

type hclData struct {
	ID           string `hcl:"id,label"`
	Source       string `hcl:"source"`
	Target       string `hcl:"target"`
	SourceHandle string `hcl:"source_handle,optional"`
	TargetHandle string `hcl:"target_handle,optional"`
}

func parseHCL(data []byte) (domain.RoutineDefinition, error) {
	var wire hclDefinition
	if err := hclsimple.Decode("routine.hcl", data, nil, &wire); err != nil {
		return domain.RoutineDefinition{}, err
	}

	trigger, err := ctyToMap(wire.Trigger)
	if err != nil {
		return domain.RoutineDefinition{}, err
	}

	def := domain.RoutineDefinition{
		RoutineID:   wire.RoutineID,
		UserID:      wire.UserID,
		TriggerData: trigger,
	}

	for _, n := range wire.Nodes {
		config, err := ctyToMap(n.Config)
		if err != nil {
			return domain.RoutineDefinition{}, err
		}
		def.Nodes = append(def.Nodes, domain.Node{
			ID:       n.ID,
			PluginID: n.Plugin,
			Config:   config,
			Enabled:  n.Enabled == nil || *n.Enabled,
		})
	}

	for _, f := range wire.Flows {
		conn := &domain.FlowConnection{
			ID:           f.ID,
			SourceNodeID: f.Source,
			TargetNodeID: f.Target,
			SourceHandle: f.Handle,
		}
		if f.Loop != nil {
			conn.LoopConfig = &domain.LoopConfig{
				MaxIterations:     f.Loop.MaxIterations,
				AccumulatorFields: f.Loop.Accumulate,
			}
		}
		def.Connections = append(def.Connections, conn)
	}

	for _, d := range wire.Data {
		def.Connections = append(def.Connections, &domain.DataConnection{
			ID:           d.ID,
			SourceNodeID: d.Source,
			TargetNodeID: d.Target,
			SourceHandle: d.SourceHandle,
			TargetHandle: d.TargetHandle,
		})
	}

	return def, nil
}

// ctyToMap converts an object value into the plain maps plugins expect.
func ctyToMap(val cty.Value) (map[string]any, error) {
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsWhollyKnown() {
		return nil, domain.NewValidationError("definition values must be known literals", domain.ErrInvalidInput)
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, domain.NewValidationError("expected an object, got "+val.Type().FriendlyName(), domain.ErrInvalidInput)
	}

	data, err := ctyjson.Marshal(val, val.Type())
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := xjson.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
