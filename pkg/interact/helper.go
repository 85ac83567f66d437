package interact

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/uicheck/pkg/browser"
	"github.com/entrhq/uicheck/pkg/config"
	"github.com/entrhq/uicheck/pkg/logging"
)

const tracerName = "github.com/entrhq/uicheck/pkg/interact"

// Helper drives a single page. It is not safe for concurrent use; each
// worker builds its own.
type Helper struct {
	page       browser.Page
	settings   config.Settings
	hosts      *HostMatcher
	newBackoff func() backoff.BackOff
	logger     *logging.Logger
	metrics    *browser.Metrics
	tracer     trace.Tracer
	guard      func() error
}

// Option configures a Helper.
type Option func(*Helper)

// WithBackoff sets the wait strategy between click attempts. The factory is
// called once per ClickWithRetry.
func WithBackoff(factory func() backoff.BackOff) Option {
	return func(h *Helper) { h.newBackoff = factory }
}

// WithLogger sets the helper's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(h *Helper) { h.logger = logger }
}

// WithMetrics records navigation and click metrics.
func WithMetrics(metrics *browser.Metrics) Option {
	return func(h *Helper) { h.metrics = metrics }
}

// WithSessionGuard makes every call that reaches the page first run guard
// and fail with its error. Pass Manager.Ready bound to the worker so calls
// made while the session initializes or tears down are rejected.
func WithSessionGuard(guard func() error) Option {
	return func(h *Helper) { h.guard = guard }
}

// WithTracerProvider sets the OpenTelemetry provider for interaction spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Helper) { h.tracer = tp.Tracer(tracerName) }
}

// New binds a helper to page. Clicks back off for settings.ClickBackoff
// between attempts unless WithBackoff overrides it.
func New(page browser.Page, settings config.Settings, opts ...Option) (*Helper, error) {
	if page == nil {
		return nil, &browser.InvalidArgumentError{Name: "page", Value: nil, Reason: "page is required"}
	}

	hosts, err := NewHostMatcher(settings.Hosts())
	if err != nil {
		return nil, err
	}

	interval := settings.ClickBackoff
	h := &Helper{
		page:     page,
		settings: settings,
		hosts:    hosts,
		newBackoff: func() backoff.BackOff {
			if interval <= 0 {
				return &backoff.ZeroBackOff{}
			}
			return backoff.NewConstantBackOff(interval)
		},
		logger: logging.Discard(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Page returns the page the helper drives.
func (h *Helper) Page() browser.Page {
	return h.page
}

// Navigate loads rawURL and blocks until the configured settle signal is
// observed, bounded by the default timeout. Relative URLs resolve against
// the base URL.
func (h *Helper) Navigate(ctx context.Context, rawURL string) (err error) {
	target, err := h.resolve(rawURL)
	if err != nil {
		return err
	}

	ctx, span := h.tracer.Start(ctx, "interact.navigate", trace.WithAttributes(
		attribute.String("uicheck.url", target),
		attribute.String("uicheck.settle_signal", string(h.settings.Settle)),
	))
	defer func() { endSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.checkSession(); err != nil {
		return err
	}

	timeout := h.budget(ctx, h.settings.DefaultTimeout())
	signal := string(h.settings.Settle)
	if signal == "" {
		signal = string(config.SettleNetworkIdle)
	}
	start := time.Now()

	err = h.page.Goto(target, timeout)
	if err == nil {
		remaining := timeout - time.Since(start)
		if remaining <= 0 {
			err = browser.ErrTimeout
		} else {
			err = h.page.WaitForLoadState(signal, remaining)
		}
	}

	elapsed := time.Since(start)
	h.metrics.RecordNavigation(elapsed, err == nil)
	switch {
	case err == nil:
		h.logger.Debugf("navigated to %s (%s after %v)", target, signal, elapsed.Round(time.Millisecond))
		return nil
	case browser.IsTimeout(err):
		return &browser.NavigationTimeoutError{URL: target, Signal: signal, Timeout: timeout, Err: err}
	default:
		return fmt.Errorf("navigation to %s failed: %w", target, err)
	}
}

// NavigateToPath navigates to path under the configured base URL.
func (h *Helper) NavigateToPath(ctx context.Context, path string) error {
	base := h.settings.BaseURL()
	if base == "" {
		return &browser.InvalidArgumentError{Name: "path", Value: path, Reason: "no base URL configured"}
	}
	return h.Navigate(ctx, strings.TrimRight(base, "/")+"/"+strings.TrimLeft(path, "/"))
}

func (h *Helper) resolve(rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", &browser.InvalidArgumentError{Name: "url", Value: `""`, Reason: "url is required"}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &browser.InvalidArgumentError{Name: "url", Value: rawURL, Reason: err.Error()}
	}
	if !u.IsAbs() && h.settings.BaseURL() != "" {
		base, err := url.Parse(h.settings.BaseURL())
		if err != nil {
			return "", &browser.InvalidArgumentError{Name: "base_url", Value: h.settings.BaseURL(), Reason: err.Error()}
		}
		u = base.ResolveReference(u)
	}

	target := u.String()
	allowed, err := h.hosts.AllowsURL(target)
	if err != nil {
		return "", &browser.InvalidArgumentError{Name: "url", Value: target, Reason: err.Error()}
	}
	if !allowed {
		return "", &browser.InvalidArgumentError{Name: "url", Value: target, Reason: fmt.Sprintf("host %q is not in allowed_hosts", u.Hostname())}
	}
	return target, nil
}

// ClickWithRetry clicks selector up to maxAttempts times, backing off
// between attempts. The locator is resolved afresh on each attempt and the
// session guard is checked before each one. The last attempt's error is
// returned unwrapped.
func (h *Helper) ClickWithRetry(ctx context.Context, selector string, maxAttempts int) (err error) {
	if maxAttempts < 1 {
		return &browser.InvalidArgumentError{Name: "maxAttempts", Value: maxAttempts, Reason: "must be at least 1"}
	}
	if selector == "" {
		return &browser.InvalidArgumentError{Name: "selector", Value: `""`, Reason: "selector is required"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := h.tracer.Start(ctx, "interact.click", trace.WithAttributes(
		attribute.String("uicheck.selector", selector),
		attribute.Int("uicheck.max_attempts", maxAttempts),
	))
	defer func() { endSpan(span, err) }()

	b := h.newBackoff()
	b.Reset()

	for attempt := 1; ; attempt++ {
		if guardErr := h.checkSession(); guardErr != nil {
			if attempt == 1 {
				return guardErr
			}
			h.metrics.RecordClick(attempt-1, false)
			return fmt.Errorf("click %q abandoned after %d attempt(s): %w", selector, attempt-1, errors.Join(guardErr, err))
		}

		err = h.page.Click(selector, 0)
		if err == nil {
			span.SetAttributes(attribute.Int("uicheck.attempts", attempt))
			h.metrics.RecordClick(attempt, true)
			return nil
		}
		if attempt == maxAttempts {
			h.metrics.RecordClick(attempt, false)
			h.logger.Warnf("click %q failed after %d attempt(s): %v", selector, attempt, err)
			return err
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			h.metrics.RecordClick(attempt, false)
			return err
		}
		h.logger.Debugf("click %q attempt %d/%d failed, retrying in %v: %v", selector, attempt, maxAttempts, wait, err)

		if waitErr := sleep(ctx, wait); waitErr != nil {
			h.metrics.RecordClick(attempt, false)
			return fmt.Errorf("click %q interrupted after %d attempt(s): %w", selector, attempt, errors.Join(waitErr, err))
		}
	}
}

// TypeSlowly types text one character at a time with perCharDelay between
// keystrokes. It does not retry.
func (h *Helper) TypeSlowly(ctx context.Context, selector, text string, perCharDelay time.Duration) error {
	if perCharDelay < 0 {
		return &browser.InvalidArgumentError{Name: "perCharDelay", Value: perCharDelay, Reason: "must not be negative"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.checkSession(); err != nil {
		return err
	}
	if err := h.page.PressSequentially(selector, text, perCharDelay); err != nil {
		return fmt.Errorf("typing into %q failed: %w", selector, err)
	}
	return nil
}

// IsVisible reports whether selector currently resolves to a visible
// element. Any error counts as not visible.
func (h *Helper) IsVisible(selector string) (visible bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Debugf("visibility probe for %q panicked: %v", selector, r)
			visible = false
		}
	}()

	if err := h.checkSession(); err != nil {
		h.logger.Debugf("visibility probe for %q skipped: %v", selector, err)
		return false
	}

	visible, err := h.page.IsVisible(selector)
	if err != nil {
		h.logger.Debugf("visibility probe for %q failed: %v", selector, err)
		return false
	}
	return visible
}

// WaitForElement blocks until selector is visible. A zero timeout uses the
// configured default.
func (h *Helper) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout < 0 {
		return &browser.InvalidArgumentError{Name: "timeout", Value: timeout, Reason: "must not be negative"}
	}
	if timeout == 0 {
		timeout = h.settings.DefaultTimeout()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.checkSession(); err != nil {
		return err
	}
	timeout = h.budget(ctx, timeout)

	start := time.Now()
	err := h.page.WaitForVisible(selector, timeout)
	switch {
	case err == nil:
		return nil
	case browser.IsTimeout(err):
		return &browser.ElementWaitTimeoutError{Selector: selector, Elapsed: time.Since(start), Err: err}
	default:
		return fmt.Errorf("waiting for %q failed: %w", selector, err)
	}
}

// Title returns the page title.
func (h *Helper) Title() (string, error) {
	if err := h.checkSession(); err != nil {
		return "", err
	}
	return h.page.Title()
}

// URL returns the page's current URL.
func (h *Helper) URL() string {
	return h.page.URL()
}

func (h *Helper) checkSession() error {
	if h.guard == nil {
		return nil
	}
	return h.guard()
}

// budget shortens timeout to the context deadline if that comes first.
func (h *Helper) budget(ctx context.Context, timeout time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			if left <= 0 {
				return time.Millisecond
			}
			return left
		}
	}
	return timeout
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
