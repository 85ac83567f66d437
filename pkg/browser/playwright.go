package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/uicheck/pkg/config"
)

// PlaywrightDriver launches engines through playwright-go. Every Launch
// starts its own driver process so workers never share one.
type PlaywrightDriver struct {
	// Stdout and Stderr receive driver install/run output; nil discards it
	Stdout io.Writer
	Stderr io.Writer

	installOnce sync.Once
	installErr  error
}

// NewPlaywrightDriver creates a driver that discards driver output.
func NewPlaywrightDriver() *PlaywrightDriver {
	return &PlaywrightDriver{}
}

func (d *PlaywrightDriver) runOptions() *playwright.RunOptions {
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if d.Stdout != nil {
		opts.Stdout = d.Stdout
	}
	if d.Stderr != nil {
		opts.Stderr = d.Stderr
	}
	return opts
}

// Launch starts playwright and the requested browser.
func (d *PlaywrightDriver) Launch(ctx context.Context, opts LaunchOptions) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runOpts := d.runOptions()
	if opts.Install {
		d.installOnce.Do(func() {
			d.installErr = playwright.Install(runOpts)
		})
		if d.installErr != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", d.installErr)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	var browserType playwright.BrowserType
	switch opts.Kind {
	case config.BrowserChromium, "":
		browserType = pw.Chromium
	case config.BrowserFirefox:
		browserType = pw.Firefox
	case config.BrowserWebKit:
		browserType = pw.WebKit
	default:
		_ = pw.Stop()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, opts.Kind)
	}

	b, err := browserType.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch %s: %w", opts.Kind, err)
	}

	return &pwEngine{pw: pw, browser: b}, nil
}

type pwEngine struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

func (e *pwEngine) NewContext(ctx context.Context, opts ContextOptions) (Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	}
	if opts.BaseURL != "" {
		contextOpts.BaseURL = playwright.String(opts.BaseURL)
	}
	if opts.RecordVideoDir != "" {
		contextOpts.RecordVideo = &playwright.RecordVideo{Dir: opts.RecordVideoDir}
	}

	bc, err := e.browser.NewContext(contextOpts)
	if err != nil {
		return nil, mapError(err)
	}
	if opts.DefaultTimeout > 0 {
		bc.SetDefaultTimeout(millis(opts.DefaultTimeout))
		bc.SetDefaultNavigationTimeout(millis(opts.DefaultTimeout))
	}
	return &pwContext{ctx: bc}, nil
}

// Close closes the browser, then stops the driver process.
func (e *pwEngine) Close() error {
	var errs []error
	if err := e.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	if err := e.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

type pwContext struct {
	ctx playwright.BrowserContext
}

func (c *pwContext) NewPage() (Page, error) {
	page, err := c.ctx.NewPage()
	if err != nil {
		return nil, mapError(err)
	}
	return &pwPage{page: page}, nil
}

func (c *pwContext) StartTracing(opts TraceOptions) error {
	return mapError(c.ctx.Tracing().Start(playwright.TracingStartOptions{
		Screenshots: playwright.Bool(opts.Screenshots),
		Snapshots:   playwright.Bool(opts.Snapshots),
		Sources:     playwright.Bool(opts.Sources),
	}))
}

// StopTracing stops the recording into a temporary archive and returns its bytes.
func (c *pwContext) StopTracing() ([]byte, error) {
	dir, err := os.MkdirTemp("", "uicheck-trace-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create trace dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "trace.zip")
	if err := c.ctx.Tracing().Stop(path); err != nil {
		return nil, mapError(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace archive: %w", err)
	}
	return data, nil
}

func (c *pwContext) Close() error {
	return mapError(c.ctx.Close())
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Goto(url string, timeout time.Duration) error {
	opts := playwright.PageGotoOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(millis(timeout))
	}
	_, err := p.page.Goto(url, opts)
	return mapError(err)
}

func (p *pwPage) WaitForLoadState(signal string, timeout time.Duration) error {
	state := playwright.LoadState(signal)
	opts := playwright.PageWaitForLoadStateOptions{State: &state}
	if timeout > 0 {
		opts.Timeout = playwright.Float(millis(timeout))
	}
	return mapError(p.page.WaitForLoadState(opts))
}

// Click resolves the locator on every call, so a retry sees a fresh element.
func (p *pwPage) Click(selector string, timeout time.Duration) error {
	opts := playwright.LocatorClickOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(millis(timeout))
	}
	return mapError(p.page.Locator(selector).Click(opts))
}

func (p *pwPage) PressSequentially(selector, text string, delay time.Duration) error {
	return mapError(p.page.Locator(selector).PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Delay: playwright.Float(millis(delay)),
	}))
}

func (p *pwPage) IsVisible(selector string) (bool, error) {
	visible, err := p.page.Locator(selector).IsVisible()
	return visible, mapError(err)
}

func (p *pwPage) WaitForVisible(selector string, timeout time.Duration) error {
	opts := playwright.LocatorWaitForOptions{State: playwright.WaitForSelectorStateVisible}
	if timeout > 0 {
		opts.Timeout = playwright.Float(millis(timeout))
	}
	return mapError(p.page.Locator(selector).WaitFor(opts))
}

func (p *pwPage) Screenshot(fullPage bool) ([]byte, error) {
	data, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
		Type:     playwright.ScreenshotTypePng,
	})
	return data, mapError(err)
}

func (p *pwPage) Content() (string, error) {
	content, err := p.page.Content()
	return content, mapError(err)
}

func (p *pwPage) Title() (string, error) {
	title, err := p.page.Title()
	return title, mapError(err)
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Close() error {
	if p.page.IsClosed() {
		return nil
	}
	return mapError(p.page.Close())
}

func (p *pwPage) IsClosed() bool {
	return p.page.IsClosed()
}

// mapError tags playwright timeouts with ErrTimeout and closed targets with
// ErrPageClosed while keeping the original error in the chain.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, playwright.ErrTimeout):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, playwright.ErrTargetClosed):
		return fmt.Errorf("%w: %w", ErrPageClosed, err)
	default:
		return err
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
