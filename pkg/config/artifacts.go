package config

import (
	"fmt"
	"sync"
)

// SectionIDArtifacts is the identifier for the artifact settings section
const SectionIDArtifacts = "artifacts"

// ArtifactsSection configures where diagnostic artifacts are persisted.
type ArtifactsSection struct {
	ScreenshotDir       string `json:"screenshot_dir"`
	TraceDir            string `json:"trace_dir"`
	LogDir              string `json:"log_dir"`
	FullPageScreenshots bool   `json:"full_page_screenshots"`
	mu                  sync.RWMutex
}

// NewArtifactsSection creates an artifacts section with default settings.
func NewArtifactsSection() *ArtifactsSection {
	s := &ArtifactsSection{}
	s.Reset()
	return s
}

// ID returns the section identifier.
func (s *ArtifactsSection) ID() string {
	return SectionIDArtifacts
}

// Title returns the section title.
func (s *ArtifactsSection) Title() string {
	return "Artifact Settings"
}

// Description returns the section description.
func (s *ArtifactsSection) Description() string {
	return "Configure the directories that receive screenshots, trace recordings and failure logs."
}

// Data returns the current configuration data.
func (s *ArtifactsSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"screenshot_dir":        s.ScreenshotDir,
		"trace_dir":             s.TraceDir,
		"log_dir":               s.LogDir,
		"full_page_screenshots": s.FullPageScreenshots,
	}
}

// SetData updates the configuration from the provided data.
func (s *ArtifactsSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		var err error
		switch key {
		case "screenshot_dir":
			s.ScreenshotDir, err = toString(key, value)
		case "trace_dir":
			s.TraceDir, err = toString(key, value)
		case "log_dir":
			s.LogDir, err = toString(key, value)
		case "full_page_screenshots":
			s.FullPageScreenshots, err = toBool(key, value)
		default:
			continue
		}
		if err != nil {
			return err
		}
	}

	return nil
}

// Validate validates the current configuration.
func (s *ArtifactsSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ScreenshotDir == "" {
		return fmt.Errorf("screenshot_dir must not be empty")
	}
	if s.TraceDir == "" {
		return fmt.Errorf("trace_dir must not be empty")
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *ArtifactsSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ScreenshotDir = "target/screenshots"
	s.TraceDir = "target/traces"
	s.LogDir = "target/logs"
	s.FullPageScreenshots = true
}
