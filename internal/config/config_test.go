package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default("lab-1")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Lab.ID != "lab-1" {
		t.Fatalf("lab id = %s", cfg.Lab.ID)
	}
	if cfg.Lab.FormPrefix != "form-" {
		t.Fatalf("form prefix = %s", cfg.Lab.FormPrefix)
	}
	if len(cfg.Species.Catalog) == 0 {
		t.Fatalf("default catalog is empty")
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Config)
		want string
	}{
		{"missing lab id", func(c *Config) { c.Lab.ID = "" }, "lab.id"},
		{"missing prefix", func(c *Config) { c.Lab.FormPrefix = "" }, "form_prefix"},
		{"empty catalog", func(c *Config) { c.Species.Catalog = nil }, "catalog"},
		{"empty species id", func(c *Config) { c.Species.Catalog[0].ID = "" }, "empty id"},
		{"empty display name", func(c *Config) { c.Species.Catalog[0].DisplayName = "" }, "display name"},
		{"duplicate id", func(c *Config) { c.Species.Catalog[1].ID = c.Species.Catalog[0].ID }, "duplicate"},
		{"zero delay", func(c *Config) { c.Species.Catalog[0].NormalDelayHours = 0 }, "non-positive"},
		{"empty site", func(c *Config) { c.Sites = append(c.Sites, "") }, "empty site"},
		{"empty webhook url", func(c *Config) { c.Webhooks = []WebhookConfig{{}} }, "empty url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default("lab-1")
			tc.mod(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateRejectsDemoOrderingInversion(t *testing.T) {
	cfg := Default("lab-1")
	// make the longest-incubating species the fastest in demo mode
	last := len(cfg.Species.Catalog) - 1
	cfg.Species.Catalog[last].DemoDelayMinutes = 1
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected ordering error")
	}
	if !strings.Contains(err.Error(), "ordering") {
		t.Fatalf("error %q does not mention ordering", err)
	}
}

func TestFromYAMLRoundTrip(t *testing.T) {
	raw := `lab:
  id: lab-x
  name: X
  form_prefix: frm-
demo_mode: true
sites:
  - production
species:
  catalog:
    - id: listeria
      display_name: Listeria
      normal_delay_hours: 48
      demo_delay_minutes: 4
`
	cfg, err := FromYAML([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.DemoMode {
		t.Fatalf("demo mode not parsed")
	}
	if cfg.Lab.FormPrefix != "frm-" {
		t.Fatalf("prefix = %s", cfg.Lab.FormPrefix)
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg != nil {
		t.Fatalf("missing file should yield nil config")
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	raw := `lab:
  id: lab-y
  form_prefix: form-
species:
  catalog:
    - id: listeria
      display_name: Listeria
      normal_delay_hours: 48
      demo_delay_minutes: 4
`
	if err := os.WriteFile(filepath.Join(dir, "microlab.yml"), []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Lab.ID != "lab-y" {
		t.Fatalf("lab id = %s", cfg.Lab.ID)
	}
}
