package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models microlab.yml.
type Config struct {
	Lab struct {
		ID         string `yaml:"id" json:"id"`
		Name       string `yaml:"name" json:"name"`
		FormPrefix string `yaml:"form_prefix" json:"form_prefix"`
	} `yaml:"lab" json:"lab"`
	DemoMode bool     `yaml:"demo_mode" json:"demo_mode"`
	Sites    []string `yaml:"sites" json:"sites"`
	Species  struct {
		Catalog []SpeciesEntry `yaml:"catalog" json:"catalog"`
	} `yaml:"species" json:"species"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

// SpeciesEntry is one row of the incubation-delay catalog.
type SpeciesEntry struct {
	ID               string `yaml:"id" json:"id"`
	DisplayName      string `yaml:"display_name" json:"display_name"`
	NormalDelayHours int    `yaml:"normal_delay_hours" json:"normal_delay_hours"`
	DemoDelayMinutes int    `yaml:"demo_delay_minutes" json:"demo_delay_minutes"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with mlab config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure. Catalog checks
// include the demo-delay ordering rule: demo mode may only change units,
// never the relative ordering of species delays.
func (c *Config) Validate() error {
	if c.Lab.ID == "" {
		return fmt.Errorf("config.lab.id is required")
	}
	if c.Lab.FormPrefix == "" {
		return fmt.Errorf("config.lab.form_prefix is required")
	}
	if len(c.Species.Catalog) == 0 {
		return fmt.Errorf("config.species.catalog is required")
	}
	ids := map[string]bool{}
	names := map[string]bool{}
	for _, s := range c.Species.Catalog {
		if s.ID == "" {
			return fmt.Errorf("species catalog contains empty id")
		}
		if s.DisplayName == "" {
			return fmt.Errorf("species %s has empty display name", s.ID)
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate species id %s", s.ID)
		}
		if names[s.DisplayName] {
			return fmt.Errorf("duplicate species display name %s", s.DisplayName)
		}
		ids[s.ID] = true
		names[s.DisplayName] = true
		if s.NormalDelayHours <= 0 {
			return fmt.Errorf("species %s has non-positive normal delay", s.ID)
		}
		if s.DemoDelayMinutes <= 0 {
			return fmt.Errorf("species %s has non-positive demo delay", s.ID)
		}
	}
	for _, a := range c.Species.Catalog {
		for _, b := range c.Species.Catalog {
			if a.NormalDelayHours > b.NormalDelayHours && a.DemoDelayMinutes < b.DemoDelayMinutes {
				return fmt.Errorf("species %s and %s: demo delays do not preserve normal-delay ordering", a.ID, b.ID)
			}
		}
	}
	for _, site := range c.Sites {
		if site == "" {
			return fmt.Errorf("config.sites contains empty site name")
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "microlab.yml")
}

// Default returns the default Config struct for a lab.
func Default(labID string) *Config {
	var cfg Config
	cfg.Lab.ID = labID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, labID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `lab:
  id: %s
  name: Quality Control Lab
  form_prefix: form-

demo_mode: false

sites:
  - production
  - packaging
  - warehouse

species:
  catalog:
    - id: enterobacteria
      display_name: Enterobacteria
      normal_delay_hours: 24
      demo_delay_minutes: 2
    - id: ecoli
      display_name: E. coli
      normal_delay_hours: 48
      demo_delay_minutes: 4
    - id: staphylococci
      display_name: Coagulase-positive staphylococci
      normal_delay_hours: 48
      demo_delay_minutes: 4
    - id: listeria
      display_name: Listeria
      normal_delay_hours: 48
      demo_delay_minutes: 4
    - id: salmonella
      display_name: Salmonella
      normal_delay_hours: 48
      demo_delay_minutes: 4
    - id: total_flora
      display_name: Total aerobic flora
      normal_delay_hours: 72
      demo_delay_minutes: 6
    - id: yeasts_moulds
      display_name: Yeasts and moulds
      normal_delay_hours: 120
      demo_delay_minutes: 10
`
