package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"safetrack/internal/domain"
)

// Config models safetrack.yml.
type Config struct {
	Site struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"site"`
	Targets struct {
		Monthly int `yaml:"monthly"`
		Yearly  int `yaml:"yearly"`
	} `yaml:"targets"`
	Roster []RosterEntry `yaml:"roster"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
}

// RosterEntry seeds the directory with a known identity.
type RosterEntry struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Department string `yaml:"department"`
	Role       string `yaml:"role"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run sbt init or create it from the default template", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Site.ID == "" {
		return fmt.Errorf("config.site.id is required")
	}
	if c.Targets.Monthly <= 0 {
		return fmt.Errorf("config.targets.monthly must be positive")
	}
	if c.Targets.Yearly <= 0 {
		return fmt.Errorf("config.targets.yearly must be positive")
	}
	seen := map[string]bool{}
	for _, r := range c.Roster {
		if r.ID == "" || r.Name == "" {
			return fmt.Errorf("roster entries require id and name")
		}
		if seen[r.ID] {
			return fmt.Errorf("roster contains duplicate id %s", r.ID)
		}
		seen[r.ID] = true
		if !domain.Role(r.Role).Valid() {
			return fmt.Errorf("roster entry %s has unknown role %q", r.ID, r.Role)
		}
	}
	return nil
}

// Identities converts the roster into directory identities.
func (c *Config) Identities() []domain.Identity {
	out := make([]domain.Identity, 0, len(c.Roster))
	for _, r := range c.Roster {
		out = append(out, domain.Identity{
			ID:         r.ID,
			Name:       r.Name,
			Department: r.Department,
			Role:       domain.Role(r.Role),
		})
	}
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "safetrack.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
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

const defaultTemplate = `site:
  id: gzi-main
  name: GZI Industry

targets:
  monthly: 8
  yearly: 96

roster:
  - id: u-001
    name: Emeka Adeyemi
    department: Production
    role: observer
  - id: u-002
    name: Ngozi Okafor
    department: Quality
    role: observer
  - id: u-003
    name: John Doe
    department: Production
    role: manager
  - id: u-004
    name: Sarah Smith
    department: Safety
    role: manager
  - id: u-005
    name: Michael Chen
    department: Engineering
    role: manager
  - id: u-006
    name: Olu Bakare
    department: Logistics
    role: manager
  - id: u-007
    name: Amina Yusuf
    department: Safety
    role: hse

server:
  addr: 127.0.0.1:8080
  base_path: /v0
`
