package browser

import (
	"context"
	"time"
)

// Driver launches browser engines. PlaywrightDriver is the production
// implementation; tests substitute fakes.
type Driver interface {
	Launch(ctx context.Context, opts LaunchOptions) (Engine, error)
}

// Engine is one running browser engine process.
type Engine interface {
	NewContext(ctx context.Context, opts ContextOptions) (Context, error)
	Close() error
}

// Context is an isolated browsing context (cookies, storage, cache).
type Context interface {
	NewPage() (Page, error)

	// StartTracing begins a trace recording for the context.
	StartTracing(opts TraceOptions) error

	// StopTracing ends the recording and returns its archive bytes.
	StopTracing() ([]byte, error)

	Close() error
}

// Page is a single navigable document view. Timeouts of zero use the
// context default. Timeout failures wrap ErrTimeout.
type Page interface {
	Goto(url string, timeout time.Duration) error
	WaitForLoadState(signal string, timeout time.Duration) error

	Click(selector string, timeout time.Duration) error
	PressSequentially(selector, text string, delay time.Duration) error
	IsVisible(selector string) (bool, error)
	WaitForVisible(selector string, timeout time.Duration) error

	Screenshot(fullPage bool) ([]byte, error)
	Content() (string, error)
	Title() (string, error)
	URL() string

	Close() error
	IsClosed() bool
}
