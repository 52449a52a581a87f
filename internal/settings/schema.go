package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// schemaFile is the on-disk shape of a settings schema definition file:
// a flat list under a top-level "settings" key, matching the UI-hint
// style of the original bot's settings.yaml.
type schemaFile struct {
	Settings []Schema `yaml:"settings"`
}

// LoadSchemaFile reads a YAML schema definition file describing the set
// of known settings keys, their types, defaults, and optional feature
// gate. Unknown settings encountered later at Set-time are still
// accepted — the schema exists for UI hints and documentation, not
// enforcement, matching the original bot's permissive settings store.
func LoadSchemaFile(path string) ([]Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("settings: read schema %s: %w", path, err)
	}

	var sf schemaFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("settings: parse schema %s: %w", path, err)
	}

	return sf.Settings, nil
}
