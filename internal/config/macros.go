package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Macro maps a spoken trigger phrase to a command template. "{TRANSCRIPT}"
// in the template is replaced with the remainder of the utterance after the
// trigger.
type Macro struct {
	Trigger  string `yaml:"trigger"`
	Command  string `yaml:"command"`
	SendMode string `yaml:"send_mode,omitempty"` // "auto" or "insert", overrides the global mode
}

// MacroFile is the on-disk shape of voiceterm-macros.yaml.
type MacroFile struct {
	Macros []Macro `yaml:"macros"`
}

// LoadMacros reads the project-local macros file. A missing file is not an
// error: it returns an empty set.
func LoadMacros(path string) ([]Macro, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var f MacroFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := validateMacros(f.Macros); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f.Macros, nil
}

func validateMacros(macros []Macro) error {
	seen := make(map[string]bool, len(macros))
	for i, m := range macros {
		trigger := strings.ToLower(strings.TrimSpace(m.Trigger))
		if trigger == "" {
			return fmt.Errorf("macro %d: empty trigger", i)
		}
		if seen[trigger] {
			return fmt.Errorf("macro %d: duplicate trigger %q", i, m.Trigger)
		}
		seen[trigger] = true
		if m.Command == "" {
			return fmt.Errorf("macro %q: empty command", m.Trigger)
		}
		switch m.SendMode {
		case "", string(SendAuto), string(SendInsert):
		default:
			return fmt.Errorf("macro %q: invalid send_mode %q", m.Trigger, m.SendMode)
		}
	}
	return nil
}
