package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// EnvVar selects the environment-scoped configuration file
	EnvVar = "UICHECK_ENV"

	// DefaultEnvironment is used when EnvVar is unset
	DefaultEnvironment = "dev"
)

// Open creates a manager with the browser and artifact sections registered
// and loads them from the file at path (JSON, or YAML by extension).
// A missing file leaves every section at its defaults.
func Open(path string) (*Manager, error) {
	store, err := NewFileStore(path)
	if err != nil {
		return nil, err
	}

	manager := NewManager(store)

	if err := manager.RegisterSection(NewBrowserSection()); err != nil {
		return nil, err
	}
	if err := manager.RegisterSection(NewArtifactsSection()); err != nil {
		return nil, err
	}

	if err := manager.LoadAll(); err != nil {
		return nil, err
	}
	return manager, nil
}

// Environment returns the configured environment name (UICHECK_ENV, default "dev").
func Environment() string {
	if env := strings.TrimSpace(os.Getenv(EnvVar)); env != "" {
		return env
	}
	return DefaultEnvironment
}

// LoadEnvironment loads <dir>/<env>.yaml. An empty env uses Environment().
// Unlike Open, the environment file must exist.
func LoadEnvironment(dir, env string) (*Manager, error) {
	if env == "" {
		env = Environment()
	}
	if strings.ContainsAny(env, `/\`) {
		return nil, fmt.Errorf("invalid environment name %q", env)
	}

	path := filepath.Join(dir, env+".yaml")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("unable to find config file for environment %q: %w", env, err)
	}

	return Open(path)
}

// Browser returns the browser section.
func (m *Manager) Browser() *BrowserSection {
	section, ok := m.GetSection(SectionIDBrowser)
	if !ok {
		return nil
	}
	browser, _ := section.(*BrowserSection)
	return browser
}

// Artifacts returns the artifacts section.
func (m *Manager) Artifacts() *ArtifactsSection {
	section, ok := m.GetSection(SectionIDArtifacts)
	if !ok {
		return nil
	}
	artifacts, _ := section.(*ArtifactsSection)
	return artifacts
}

// Settings validates the browser and artifact sections and freezes them into
// an immutable Settings value.
func (m *Manager) Settings() (Settings, error) {
	browser := m.Browser()
	artifacts := m.Artifacts()
	if browser == nil || artifacts == nil {
		return Settings{}, fmt.Errorf("browser and artifacts sections must be registered")
	}

	if err := browser.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid browser settings: %w", err)
	}
	if err := artifacts.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid artifact settings: %w", err)
	}

	return freeze(browser, artifacts), nil
}
