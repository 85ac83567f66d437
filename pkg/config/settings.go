package config

import (
	"fmt"
	"strings"
	"time"
)

// BrowserKind selects the browser engine to launch.
type BrowserKind string

const (
	BrowserChromium BrowserKind = "chromium"
	BrowserFirefox  BrowserKind = "firefox"
	BrowserWebKit   BrowserKind = "webkit"
)

// ParseBrowserKind maps a configured browser name to a BrowserKind.
// "safari" is an alias for webkit and an empty name means chromium.
func ParseBrowserKind(name string) (BrowserKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "chromium", "chrome":
		return BrowserChromium, nil
	case "firefox":
		return BrowserFirefox, nil
	case "webkit", "safari":
		return BrowserWebKit, nil
	default:
		return "", fmt.Errorf("unknown browser kind %q (must be chromium, firefox or webkit)", name)
	}
}

// SettleSignal is the condition that marks a navigation as complete enough to proceed.
type SettleSignal string

const (
	SettleNetworkIdle SettleSignal = "networkidle"
	SettleDOMReady    SettleSignal = "domcontentloaded"
	SettleLoad        SettleSignal = "load"
)

// ParseSettleSignal validates a configured settle signal.
func ParseSettleSignal(name string) (SettleSignal, error) {
	switch SettleSignal(strings.ToLower(strings.TrimSpace(name))) {
	case "", SettleNetworkIdle:
		return SettleNetworkIdle, nil
	case SettleDOMReady:
		return SettleDOMReady, nil
	case SettleLoad:
		return SettleLoad, nil
	default:
		return "", fmt.Errorf("unknown settle signal %q (must be networkidle, domcontentloaded or load)", name)
	}
}

// Provider is the read-only view of configuration the session manager consumes.
type Provider interface {
	BrowserKind() BrowserKind
	Headless() bool
	ViewportSize() (width, height int)
	BaseURL() string
	DefaultTimeout() time.Duration
}

// Settings is an immutable snapshot of the browser and artifact configuration.
// It is read once when a session is created and safe to share between workers.
type Settings struct {
	Kind           BrowserKind
	IsHeadless     bool
	ViewportWidth  int
	ViewportHeight int
	BaseURLValue   string
	Timeout        time.Duration
	Settle         SettleSignal
	TraceEnabled   bool
	RecordVideoDir string
	AllowedHosts   []string
	Install        bool
	ClickBackoff   time.Duration

	ScreenshotDir string
	TraceDir      string
	LogDir        string
	FullPage      bool
}

var _ Provider = Settings{}

// BrowserKind returns the engine to launch.
func (s Settings) BrowserKind() BrowserKind { return s.Kind }

// Headless reports whether the browser runs without a window.
func (s Settings) Headless() bool { return s.IsHeadless }

// ViewportSize returns the page viewport.
func (s Settings) ViewportSize() (int, int) { return s.ViewportWidth, s.ViewportHeight }

// BaseURL returns the root URL of the system under test.
func (s Settings) BaseURL() string { return s.BaseURLValue }

// DefaultTimeout bounds navigation and element waits.
func (s Settings) DefaultTimeout() time.Duration { return s.Timeout }

// Hosts returns a copy of the navigation allow-list.
func (s Settings) Hosts() []string {
	out := make([]string, len(s.AllowedHosts))
	copy(out, s.AllowedHosts)
	return out
}

// DefaultSettings returns the settings produced by freshly reset sections.
func DefaultSettings() Settings {
	return freeze(NewBrowserSection(), NewArtifactsSection())
}

// freeze copies section values into an immutable Settings.
func freeze(b *BrowserSection, a *ArtifactsSection) Settings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a.mu.RLock()
	defer a.mu.RUnlock()

	hosts := make([]string, len(b.AllowedHosts))
	copy(hosts, b.AllowedHosts)

	return Settings{
		Kind:           b.Kind,
		IsHeadless:     b.Headless,
		ViewportWidth:  b.ViewportWidth,
		ViewportHeight: b.ViewportHeight,
		BaseURLValue:   b.BaseURL,
		Timeout:        b.DefaultTimeout,
		Settle:         b.SettleSignal,
		TraceEnabled:   b.TraceEnabled,
		RecordVideoDir: b.RecordVideoDir,
		AllowedHosts:   hosts,
		Install:        b.InstallBrowsers,
		ClickBackoff:   b.ClickBackoff,
		ScreenshotDir:  a.ScreenshotDir,
		TraceDir:       a.TraceDir,
		LogDir:         a.LogDir,
		FullPage:       a.FullPageScreenshots,
	}
}
