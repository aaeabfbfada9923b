package memory

import (
	"github.com/eleven-am/routines/internal/ports"
)

func validatePlugin(pluginID string, plugin ports.Plugin) error {
	if err := validatePluginID(pluginID); err != nil {
		return err
	}
	if plugin == nil {
		return &ports.PluginRegistrationError{
			PluginID: pluginID,
			Reason:   "plugin cannot be nil",
		}
	}
	return nil
}

func validatePluginID(pluginID string) error {
	if pluginID == "" {
		return &ports.PluginRegistrationError{
			PluginID: "<empty>",
			Reason:   "plugin id cannot be empty",
		}
	}
	return nil
}
