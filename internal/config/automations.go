package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sandeepkv93/companiond/internal/model"
)

// AutomationSpec is one entry of an automations import file. Timer refers
// to a timer by id or name and is resolved at import time.
type AutomationSpec struct {
	Name    string            `yaml:"name"`
	Trigger model.TriggerKind `yaml:"trigger"`
	Time    string            `yaml:"time,omitempty"`
	Days    []int             `yaml:"days,omitempty"`
	Timer   string            `yaml:"timer,omitempty"`
	Action  model.Action      `yaml:"action"`
}

type automationsFile struct {
	Automations []AutomationSpec `yaml:"automations"`
}

func (s AutomationSpec) TriggerConfig() model.TriggerConfig {
	return model.TriggerConfig{Time: s.Time, DayOfWeek: s.Days, TimerID: s.Timer}
}

// AutomationsFromYAML parses an import file. Trigger and action shapes are
// checked here; timer references are left to the caller.
func AutomationsFromYAML(data []byte) ([]AutomationSpec, error) {
	var f automationsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid automations yaml: %w", err)
	}
	for i, spec := range f.Automations {
		if err := model.ValidateTrigger(spec.Trigger, spec.TriggerConfig(), nil); err != nil {
			return nil, fmt.Errorf("automation %d (%s): %w", i+1, spec.Name, err)
		}
		if err := spec.Action.Validate(); err != nil {
			return nil, fmt.Errorf("automation %d (%s): %w", i+1, spec.Name, err)
		}
	}
	return f.Automations, nil
}

func AutomationsFromFile(path string) ([]AutomationSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return AutomationsFromYAML(data)
}
