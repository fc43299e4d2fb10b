package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"safetrack/internal/config"
	"safetrack/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Targets.Monthly != 8 || cfg.Targets.Yearly != 96 {
		t.Fatalf("unexpected targets: %+v", cfg.Targets)
	}
	idents := cfg.Identities()
	if len(idents) != 7 {
		t.Fatalf("expected 7 roster identities, got %d", len(idents))
	}
	roles := map[domain.Role]int{}
	for _, id := range idents {
		roles[id.Role]++
	}
	if roles[domain.RoleObserver] != 2 || roles[domain.RoleManager] != 4 || roles[domain.RoleHSE] != 1 {
		t.Fatalf("unexpected role mix: %v", roles)
	}
}

func TestFromYAMLRejectsUnknownRole(t *testing.T) {
	_, err := config.FromYAML([]byte(`site:
  id: test
targets:
  monthly: 8
  yearly: 96
roster:
  - id: u-001
    name: Someone
    role: auditor
`))
	if err == nil {
		t.Fatal("expected role validation error")
	}
}

func TestFromYAMLRejectsDuplicateIDs(t *testing.T) {
	_, err := config.FromYAML([]byte(`site:
  id: test
targets:
  monthly: 8
  yearly: 96
roster:
  - id: u-001
    name: A
    role: observer
  - id: u-001
    name: B
    role: observer
`))
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Site.ID != "gzi-main" {
		t.Fatalf("expected default site, got %s", cfg.Site.ID)
	}

	custom := `site:
  id: aba-plant
  name: Aba
targets:
  monthly: 10
  yearly: 120
roster:
  - id: u-001
    name: Someone
    department: Safety
    role: hse
`
	if err := os.WriteFile(filepath.Join(dir, "safetrack.yml"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = config.LoadOptional(dir)
	if err != nil {
		t.Fatalf("load custom: %v", err)
	}
	if cfg.Site.ID != "aba-plant" || cfg.Targets.Monthly != 10 {
		t.Fatalf("custom config not loaded: %+v", cfg)
	}
}
