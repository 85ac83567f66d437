package browser

import (
	"time"

	"github.com/entrhq/uicheck/pkg/config"
)

// WorkerID identifies a unit of parallel test execution. Each worker owns at
// most one session.
type WorkerID string

// State is the lifecycle state of a worker's session slot.
type State int

const (
	StateAbsent State = iota
	StateInitializing
	StateReady
	StateTearingDown
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateTearingDown:
		return "tearing down"
	default:
		return "unknown"
	}
}

// Session is a read-only snapshot of a worker's session.
type Session struct {
	// ID is unique per provisioned chain; a re-provisioned worker gets a new ID
	ID string

	Worker WorkerID
	State  State

	// Kind is the engine the session launched
	Kind config.BrowserKind

	// PageCount includes the primary page and open auxiliary pages
	PageCount int

	// Tracing is true while a trace recording is running
	Tracing bool

	CreatedAt time.Time
}

// LaunchOptions configures an engine launch.
type LaunchOptions struct {
	Kind     config.BrowserKind
	Headless bool

	// Install downloads browser binaries before the first launch
	Install bool
}

// ContextOptions configures a new browsing context.
type ContextOptions struct {
	ViewportWidth  int
	ViewportHeight int
	BaseURL        string

	// DefaultTimeout applies to every page operation without its own timeout
	DefaultTimeout time.Duration

	// RecordVideoDir enables video recording when non-empty
	RecordVideoDir string
}

// TraceOptions selects what a trace recording captures.
type TraceOptions struct {
	Screenshots bool
	Snapshots   bool
	Sources     bool
}

// DefaultTraceOptions records everything.
var DefaultTraceOptions = TraceOptions{Screenshots: true, Snapshots: true, Sources: true}

func launchOptions(s config.Settings) LaunchOptions {
	return LaunchOptions{
		Kind:     s.BrowserKind(),
		Headless: s.Headless(),
		Install:  s.Install,
	}
}

func contextOptions(s config.Settings) ContextOptions {
	w, h := s.ViewportSize()
	return ContextOptions{
		ViewportWidth:  w,
		ViewportHeight: h,
		BaseURL:        s.BaseURL(),
		DefaultTimeout: s.DefaultTimeout(),
		RecordVideoDir: s.RecordVideoDir,
	}
}
