package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ActionConfig binds an action id to an external command.
type ActionConfig struct {
	ID          string            `yaml:"id" json:"id"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of actions.yaml.
type ConfigFile struct {
	Actions []ActionConfig `yaml:"actions" json:"actions"`
}

// LoadActions reads a configuration file (YAML or JSON) keyed by action id.
// A missing file yields an empty map.
func LoadActions(path string) (map[string]ActionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]ActionConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read process actions: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	actions := make(map[string]ActionConfig, len(cfg.Actions))
	for i, a := range cfg.Actions {
		switch {
		case a.ID == "":
			return nil, fmt.Errorf("%s: actions[%d].id is required", path, i)
		case a.Command == "":
			return nil, fmt.Errorf("%s: actions[%s].command is required", path, a.ID)
		}
		if _, dup := actions[a.ID]; dup {
			return nil, fmt.Errorf("%s: action %q is declared twice", path, a.ID)
		}
		actions[a.ID] = a
	}
	return actions, nil
}
