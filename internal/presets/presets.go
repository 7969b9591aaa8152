// Package presets holds the fixed catalog of named rule bundles.
package presets

import (
	_ "embed"
	"fmt"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	Default    = "default"
	Strict     = "strict"
	Learning   = "learning"
	Assessment = "assessment"
)

//go:embed presets.yaml
var catalogYAML []byte

type Preset struct {
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description" yaml:"description"`
	Rules       models.QuizRules `json:"rules" yaml:"rules"`
}

var catalog = mustParse(catalogYAML)

// Parse decodes a preset catalog document.
func Parse(data []byte) ([]Preset, error) {
	var doc struct {
		Presets []Preset `yaml:"presets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode preset catalog: %w", err)
	}

	seen := make(map[string]bool, len(doc.Presets))
	for _, p := range doc.Presets {
		if p.Name == "" {
			return nil, fmt.Errorf("preset without a name")
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate preset %q", p.Name)
		}
		if p.Rules.MaxAttempts < 1 || p.Rules.PassThreshold < 0 || p.Rules.PassThreshold > 100 {
			return nil, fmt.Errorf("preset %q has out of range rules", p.Name)
		}
		seen[p.Name] = true
	}
	return doc.Presets, nil
}

func mustParse(data []byte) []Preset {
	p, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return p
}

// Get returns a copy of the named preset.
func Get(name string) (Preset, bool) {
	for _, p := range catalog {
		if p.Name == name {
			return clone(p), true
		}
	}
	return Preset{}, false
}

// All returns the catalog in declaration order.
func All() []Preset {
	out := make([]Preset, len(catalog))
	for i, p := range catalog {
		out[i] = clone(p)
	}
	return out
}

func Names() []string {
	names := make([]string, len(catalog))
	for i, p := range catalog {
		names[i] = p.Name
	}
	return names
}

func clone(p Preset) Preset {
	if p.Rules.TimeLimit != nil {
		limit := *p.Rules.TimeLimit
		p.Rules.TimeLimit = &limit
	}
	return p
}
