// Package styles serves the preset hairstyle catalog shown by the picker UI.
// Presets ship built in; a YAML file can replace them without a rebuild.
package styles

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Style is one selectable preset.
type Style struct {
	ID     string `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

// Catalog holds the ordered preset list.
type Catalog struct {
	styles []Style
}

type catalogFile struct {
	Styles []Style `yaml:"styles"`
}

var builtin = []Style{
	{ID: "pink-bangs", Name: "Short Pink with Bangs", Prompt: "short pink hair with straight bangs"},
	{ID: "wavy-blonde", Name: "Long Wavy Blonde", Prompt: "long wavy blonde hair"},
	{ID: "curly-red", Name: "Curly Red Bob", Prompt: "curly red bob haircut"},
	{ID: "blue-purple", Name: "Blue-Purple Ombre", Prompt: "long straight hair with blue to purple ombre"},
	{ID: "platinum-buzz", Name: "Platinum Buzz Cut", Prompt: "platinum blonde buzz cut"},
	{ID: "braids-beads", Name: "Box Braids with Beads", Prompt: "long box braids decorated with golden beads"},
	{ID: "silver-pixie", Name: "Silver Pixie", Prompt: "short silver pixie cut"},
	{ID: "auburn-bangs", Name: "Auburn Curtain Bangs", Prompt: "shoulder-length auburn hair with curtain bangs"},
}

// Builtin returns the catalog compiled into the binary.
func Builtin() *Catalog {
	return &Catalog{styles: builtin}
}

// Load reads a catalog from a YAML file. An empty path returns the built-in
// catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Builtin(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("styles: read %s: %w", path, err)
	}
	var parsed catalogFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("styles: parse %s: %w", path, err)
	}
	if len(parsed.Styles) == 0 {
		return nil, fmt.Errorf("styles: %s defines no styles", path)
	}
	seen := make(map[string]bool, len(parsed.Styles))
	for _, s := range parsed.Styles {
		if s.ID == "" || s.Name == "" || s.Prompt == "" {
			return nil, fmt.Errorf("styles: %s: every style needs id, name and prompt", path)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("styles: %s: duplicate style id %q", path, s.ID)
		}
		seen[s.ID] = true
	}
	return &Catalog{styles: parsed.Styles}, nil
}

// All returns the presets in catalog order.
func (c *Catalog) All() []Style {
	out := make([]Style, len(c.styles))
	copy(out, c.styles)
	return out
}

// Lookup finds a preset by id.
func (c *Catalog) Lookup(id string) (Style, bool) {
	for _, s := range c.styles {
		if s.ID == id {
			return s, true
		}
	}
	return Style{}, false
}
