// Package harness binds browser sessions to Go tests. A Fixture gives each
// test its own worker, provisions the page on first use and always tears the
// session down when the test ends, capturing diagnostics first if it failed.
package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/entrhq/uicheck/pkg/artifact"
	"github.com/entrhq/uicheck/pkg/browser"
	"github.com/entrhq/uicheck/pkg/interact"
	"github.com/entrhq/uicheck/pkg/logging"
)

// DefaultCleanupTimeout bounds failure capture plus teardown.
const DefaultCleanupTimeout = 30 * time.Second

// Fixture owns one worker's session for the lifetime of a test.
type Fixture struct {
	tb      testing.TB
	manager *browser.Manager
	capture *browser.Capture
	worker  browser.WorkerID
	logger  *logging.Logger

	ctx            context.Context
	cleanupTimeout time.Duration
	helperOpts     []interact.Option

	helper     *interact.Helper
	helperPage browser.Page
}

// Option configures a Fixture.
type Option func(*Fixture)

// WithContext sets the context used to provision and drive the page.
func WithContext(ctx context.Context) Option {
	return func(f *Fixture) { f.ctx = ctx }
}

// WithWorker overrides the worker ID derived from the test name.
func WithWorker(worker browser.WorkerID) Option {
	return func(f *Fixture) { f.worker = worker }
}

// WithCleanupTimeout bounds the end-of-test capture and teardown.
func WithCleanupTimeout(d time.Duration) Option {
	return func(f *Fixture) { f.cleanupTimeout = d }
}

// WithHelperOptions passes options to every interact.Helper the fixture builds.
func WithHelperOptions(opts ...interact.Option) Option {
	return func(f *Fixture) { f.helperOpts = append(f.helperOpts, opts...) }
}

// New creates a fixture for tb and registers its cleanup. capture may be nil,
// in which case failed tests are torn down without diagnostics.
func New(tb testing.TB, manager *browser.Manager, capture *browser.Capture, opts ...Option) *Fixture {
	tb.Helper()

	f := &Fixture{
		tb:             tb,
		manager:        manager,
		capture:        capture,
		worker:         WorkerFor(tb),
		ctx:            context.Background(),
		cleanupTimeout: DefaultCleanupTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = manager.Logger().WithComponent("harness").WithWorker(string(f.worker))

	tb.Cleanup(f.cleanup)
	return f
}

// WorkerFor derives a worker ID from the test name. Subtests get distinct IDs.
func WorkerFor(tb testing.TB) browser.WorkerID {
	return browser.WorkerID(artifact.SanitizeName(strings.ReplaceAll(tb.Name(), "/", "-")))
}

// Worker returns the fixture's worker ID.
func (f *Fixture) Worker() browser.WorkerID {
	return f.worker
}

// Context returns the fixture's context.
func (f *Fixture) Context() context.Context {
	return f.ctx
}

// Page returns the worker's primary page, provisioning the session on first
// use. It fails the test if the session cannot be started.
func (f *Fixture) Page() browser.Page {
	f.tb.Helper()

	page, err := f.manager.ActivePage(f.ctx, f.worker)
	if err != nil {
		f.tb.Fatalf("browser session for %s: %v", f.worker, err)
		return nil
	}
	return page
}

// Helper returns an interaction helper for the primary page. The helper is
// rebuilt when the primary page changes.
func (f *Fixture) Helper() *interact.Helper {
	f.tb.Helper()

	page := f.Page()
	if page == nil {
		return nil
	}
	if f.helper != nil && f.helperPage == page {
		return f.helper
	}

	worker := f.worker
	opts := append([]interact.Option{
		interact.WithLogger(f.manager.Logger().WithComponent("interact").WithWorker(string(worker))),
		interact.WithMetrics(f.manager.Metrics()),
		interact.WithSessionGuard(func() error { return f.manager.Ready(worker) }),
	}, f.helperOpts...)

	h, err := interact.New(page, f.manager.Settings(), opts...)
	if err != nil {
		f.tb.Fatalf("interaction helper for %s: %v", f.worker, err)
		return nil
	}
	f.helper, f.helperPage = h, page
	return h
}

// AuxiliaryPage opens an extra page in the worker's context. It is closed
// during teardown.
func (f *Fixture) AuxiliaryPage() browser.Page {
	f.tb.Helper()

	page, err := f.manager.NewAuxiliaryPage(f.ctx, f.worker)
	if err != nil {
		f.tb.Fatalf("auxiliary page for %s: %v", f.worker, err)
		return nil
	}
	return page
}

// Screenshot captures the primary page under label. It never fails the test.
func (f *Fixture) Screenshot(label string) (artifact.Artifact, bool) {
	if f.capture == nil {
		return artifact.Artifact{}, false
	}
	return f.capture.CaptureScreenshot(f.ctx, f.worker, label)
}

func (f *Fixture) cleanup() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(f.ctx), f.cleanupTimeout)
	defer cancel()

	if f.tb.Failed() {
		f.captureFailure(ctx)
	}

	err := f.manager.Teardown(ctx, f.worker)
	var teardownErr *browser.TeardownError
	switch {
	case err == nil:
	case errors.As(err, &teardownErr):
		f.logger.Warnf("teardown incomplete: %v", err)
		f.tb.Logf("browser teardown for %s incomplete: %v", f.worker, err)
	default:
		f.logger.Errorf("teardown failed: %v", err)
		f.tb.Logf("browser teardown for %s failed: %v", f.worker, err)
	}
}

func (f *Fixture) captureFailure(ctx context.Context) {
	if f.capture == nil {
		return
	}
	if _, ok := f.manager.CurrentPage(f.worker); !ok {
		f.logger.Debugf("test failed without an open page, nothing to capture")
		return
	}

	name := string(f.worker)
	f.capture.CaptureScreenshot(ctx, f.worker, name+"-failure")
	f.capture.CaptureDOMSnapshot(ctx, f.worker, name+"-failure")
	f.capture.FlushTrace(ctx, f.worker)
	f.capture.AttachFailureLog(f.worker, name+"-failure", f.failureReport())

	f.logger.Infof("captured failure diagnostics for %s", f.tb.Name())
}

func (f *Fixture) failureReport() string {
	var b strings.Builder
	fmt.Fprintf(&b, "test: %s\n", f.tb.Name())
	fmt.Fprintf(&b, "worker: %s\n", f.worker)
	if s, ok := f.manager.Session(f.worker); ok {
		fmt.Fprintf(&b, "session: %s\n", s.ID)
		fmt.Fprintf(&b, "browser: %s\n", s.Kind)
		fmt.Fprintf(&b, "pages: %d\n", s.PageCount)
		fmt.Fprintf(&b, "started: %s\n", s.CreatedAt.Format(time.RFC3339))
	}
	if page, ok := f.manager.CurrentPage(f.worker); ok {
		fmt.Fprintf(&b, "url: %s\n", page.URL())
		if title, err := page.Title(); err == nil {
			fmt.Fprintf(&b, "title: %s\n", title)
		}
	}
	return b.String()
}
