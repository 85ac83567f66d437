package config

import (
	"fmt"
	"sync"
	"time"
)

const (
	// SectionIDBrowser is the identifier for the browser settings section
	SectionIDBrowser = "browser"

	defaultViewportWidth  = 1920
	defaultViewportHeight = 1080
	defaultTimeout        = 30 * time.Second
	defaultClickBackoff   = 1000 * time.Millisecond
	maxClickBackoff       = time.Minute
)

// BrowserSection configures how sessions launch and drive the browser.
type BrowserSection struct {
	Kind            BrowserKind   `json:"browser"`
	Headless        bool          `json:"headless"`
	ViewportWidth   int           `json:"viewport_width"`
	ViewportHeight  int           `json:"viewport_height"`
	BaseURL         string        `json:"base_url"`
	DefaultTimeout  time.Duration `json:"default_timeout"`
	SettleSignal    SettleSignal  `json:"settle_signal"`
	TraceEnabled    bool          `json:"trace_enabled"`
	RecordVideoDir  string        `json:"record_video_dir"`
	AllowedHosts    []string      `json:"allowed_hosts"`
	InstallBrowsers bool          `json:"install_browsers"`
	ClickBackoff    time.Duration `json:"click_backoff"`
	mu              sync.RWMutex
}

// NewBrowserSection creates a browser section with default settings.
func NewBrowserSection() *BrowserSection {
	s := &BrowserSection{}
	s.Reset()
	return s
}

// ID returns the section identifier.
func (s *BrowserSection) ID() string {
	return SectionIDBrowser
}

// Title returns the section title.
func (s *BrowserSection) Title() string {
	return "Browser Settings"
}

// Description returns the section description.
func (s *BrowserSection) Description() string {
	return "Configure the browser engine, viewport, base URL, timeouts and trace recording used by UI sessions."
}

// Data returns the current configuration data.
func (s *BrowserSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hosts := make([]string, len(s.AllowedHosts))
	copy(hosts, s.AllowedHosts)

	return map[string]interface{}{
		"browser":          string(s.Kind),
		"headless":         s.Headless,
		"viewport_width":   s.ViewportWidth,
		"viewport_height":  s.ViewportHeight,
		"base_url":         s.BaseURL,
		"default_timeout":  s.DefaultTimeout.String(),
		"settle_signal":    string(s.SettleSignal),
		"trace_enabled":    s.TraceEnabled,
		"record_video_dir": s.RecordVideoDir,
		"allowed_hosts":    hosts,
		"install_browsers": s.InstallBrowsers,
		"click_backoff":    s.ClickBackoff.String(),
	}
}

// SetData updates the configuration from the provided data.
// Unknown keys are ignored for forward compatibility.
func (s *BrowserSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		var err error
		switch key {
		case "browser":
			var name string
			if name, err = toString(key, value); err == nil {
				s.Kind, err = ParseBrowserKind(name)
			}
		case "headless":
			s.Headless, err = toBool(key, value)
		case "viewport_width":
			s.ViewportWidth, err = toInt(key, value)
		case "viewport_height":
			s.ViewportHeight, err = toInt(key, value)
		case "base_url":
			s.BaseURL, err = toString(key, value)
		case "default_timeout":
			s.DefaultTimeout, err = toDuration(key, value)
		case "settle_signal":
			var name string
			if name, err = toString(key, value); err == nil {
				s.SettleSignal, err = ParseSettleSignal(name)
			}
		case "trace_enabled":
			s.TraceEnabled, err = toBool(key, value)
		case "record_video_dir":
			s.RecordVideoDir, err = toString(key, value)
		case "allowed_hosts":
			s.AllowedHosts, err = toStringSlice(key, value)
		case "install_browsers":
			s.InstallBrowsers, err = toBool(key, value)
		case "click_backoff":
			s.ClickBackoff, err = toDuration(key, value)
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
func (s *BrowserSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := ParseBrowserKind(string(s.Kind)); err != nil {
		return err
	}
	if s.ViewportWidth <= 0 || s.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", s.ViewportWidth, s.ViewportHeight)
	}
	if s.DefaultTimeout < 100*time.Millisecond || s.DefaultTimeout > 10*time.Minute {
		return fmt.Errorf("default_timeout must be between 100ms and 10m, got %v", s.DefaultTimeout)
	}
	if _, err := ParseSettleSignal(string(s.SettleSignal)); err != nil {
		return err
	}
	if s.ClickBackoff < 0 || s.ClickBackoff > maxClickBackoff {
		return fmt.Errorf("click_backoff must be between 0 and %v, got %v", maxClickBackoff, s.ClickBackoff)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *BrowserSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Kind = BrowserChromium
	s.Headless = true
	s.ViewportWidth = defaultViewportWidth
	s.ViewportHeight = defaultViewportHeight
	s.BaseURL = ""
	s.DefaultTimeout = defaultTimeout
	s.SettleSignal = SettleNetworkIdle
	s.TraceEnabled = true
	s.RecordVideoDir = ""
	s.AllowedHosts = nil
	s.InstallBrowsers = false
	s.ClickBackoff = defaultClickBackoff
}

// SetHeadless sets whether new sessions run without a window.
func (s *BrowserSection) SetHeadless(headless bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Headless = headless
}

// SetBaseURL sets the root URL of the system under test.
func (s *BrowserSection) SetBaseURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BaseURL = url
}
