package definition

import (
	"gopkg.in/yaml.v3"

	"github.com/eleven-am/routines/internal/domain"
)

type yamlDefinition struct {
	RoutineID   string                  `yaml:"routine_id"`
	UserID      string                  `yaml:"user_id"`
	TriggerData map[string]any          `yaml:"trigger_data"`
	Nodes       []yamlNode              `yaml:"nodes"`
	Connections []domain.ConnectionSpec `yaml:"connections"`
}

type yamlNode struct {
	ID       string         `yaml:"id"`
	PluginID string         `yaml:"plugin_id"`
	Config   map[string]any `yaml:"config"`
	Enabled  *bool          `yaml:"enabled"`
}

func parseYAML(data []byte) (domain.RoutineDefinition, error) {
	var wire yamlDefinition
	if err := yaml.Unmarshal(data, &wire); err != nil {
		return domain.RoutineDefinition{}, err
	}

	connections, err := domain.ConnectionsFromSpecs(wire.Connections)
	if err != nil {
		return domain.RoutineDefinition{}, err
	}

	def := domain.RoutineDefinition{
		RoutineID:   wire.RoutineID,
		UserID:      wire.UserID,
		TriggerData: wire.TriggerData,
		Connections: connections,
		Nodes:       make([]domain.Node, 0, len(wire.Nodes)),
	}
	for _, n := range wire.Nodes {
		def.Nodes = append(def.Nodes, domain.Node{
			ID:       n.ID,
			PluginID: n.PluginID,
			Config:   n.Config,
			Enabled:  n.Enabled == nil || *n.Enabled,
		})
	}
	return def, nil
}
