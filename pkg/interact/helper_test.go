package interact

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/uicheck/pkg/browser"
	"github.com/entrhq/uicheck/pkg/config"
	"github.com/entrhq/uicheck/pkg/logging"
)

var errDetached = errors.New("element is detached from the DOM")

// scriptedPage is a browser.Page whose calls return queued results.
type scriptedPage struct {
	mu sync.Mutex

	clickErrs []error
	clicks    int

	gotoErr  error
	loadErr  error
	gotoURL  string
	loadWait string
	gotoTTL  time.Duration

	typed      string
	typedDelay time.Duration
	typeErr    error

	visible    bool
	visibleErr error
	visPanic   bool

	waitErr     error
	waitTimeout time.Duration
}

func (p *scriptedPage) Goto(url string, timeout time.Duration) error {
	p.gotoURL = url
	p.gotoTTL = timeout
	return p.gotoErr
}

func (p *scriptedPage) WaitForLoadState(signal string, _ time.Duration) error {
	p.loadWait = signal
	return p.loadErr
}

func (p *scriptedPage) Click(string, time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks++
	if len(p.clickErrs) == 0 {
		return nil
	}
	err := p.clickErrs[0]
	if len(p.clickErrs) > 1 {
		p.clickErrs = p.clickErrs[1:]
	}
	return err
}

func (p *scriptedPage) PressSequentially(_ string, text string, delay time.Duration) error {
	p.typed = text
	p.typedDelay = delay
	return p.typeErr
}

func (p *scriptedPage) IsVisible(string) (bool, error) {
	if p.visPanic {
		panic("target crashed")
	}
	return p.visible, p.visibleErr
}

func (p *scriptedPage) WaitForVisible(_ string, timeout time.Duration) error {
	p.waitTimeout = timeout
	return p.waitErr
}

func (p *scriptedPage) Screenshot(bool) ([]byte, error) { return []byte("PNG"), nil }
func (p *scriptedPage) Content() (string, error)        { return "<html></html>", nil }
func (p *scriptedPage) Title() (string, error)          { return "Dashboard", nil }
func (p *scriptedPage) URL() string                     { return p.gotoURL }
func (p *scriptedPage) Close() error                    { return nil }
func (p *scriptedPage) IsClosed() bool                  { return false }

func (p *scriptedPage) Clicks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clicks
}

func testSettings() config.Settings {
	s := config.DefaultSettings()
	s.BaseURLValue = "https://app.example.com"
	s.Timeout = 5 * time.Second
	s.Settle = config.SettleNetworkIdle
	return s
}

func newTestHelper(t *testing.T, page browser.Page, settings config.Settings, opts ...Option) *Helper {
	t.Helper()
	opts = append([]Option{WithBackoff(func() backoff.BackOff { return &backoff.ZeroBackOff{} })}, opts...)
	h, err := New(page, settings, opts...)
	require.NoError(t, err)
	return h
}

func TestNew_RequiresPage(t *testing.T) {
	_, err := New(nil, testSettings())
	assert.ErrorIs(t, err, browser.ErrInvalidArgument)
}

func TestNew_InvalidHostPattern(t *testing.T) {
	s := testSettings()
	s.AllowedHosts = []string{"[unclosed"}
	_, err := New(&scriptedPage{}, s)
	assert.Error(t, err)
}

func TestClickWithRetry(t *testing.T) {
	tests := []struct {
		name        string
		errs        []error
		maxAttempts int
		wantClicks  int
		wantErr     error
	}{
		{name: "first attempt succeeds", maxAttempts: 3, wantClicks: 1},
		{name: "succeeds on third attempt", errs: []error{errDetached, errDetached, nil}, maxAttempts: 3, wantClicks: 3},
		{name: "always failing", errs: []error{errDetached}, maxAttempts: 3, wantClicks: 3, wantErr: errDetached},
		{name: "single attempt", errs: []error{errDetached}, maxAttempts: 1, wantClicks: 1, wantErr: errDetached},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &scriptedPage{clickErrs: tt.errs}
			h := newTestHelper(t, page, testSettings())

			err := h.ClickWithRetry(context.Background(), "#submit", tt.maxAttempts)
			assert.Equal(t, tt.wantClicks, page.Clicks())
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.Same(t, tt.wantErr, err, "the last attempt's error is returned as is")
		})
	}
}

func TestClickWithRetry_InvalidAttempts(t *testing.T) {
	for _, n := range []int{0, -1} {
		page := &scriptedPage{}
		h := newTestHelper(t, page, testSettings())

		err := h.ClickWithRetry(context.Background(), "#submit", n)

		var invalid *browser.InvalidArgumentError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "maxAttempts", invalid.Name)
		assert.Zero(t, page.Clicks(), "no click before validation")
	}
}

func TestClickWithRetry_EmptySelector(t *testing.T) {
	page := &scriptedPage{}
	h := newTestHelper(t, page, testSettings())

	err := h.ClickWithRetry(context.Background(), "", 3)
	assert.ErrorIs(t, err, browser.ErrInvalidArgument)
	assert.Zero(t, page.Clicks())
}

func TestClickWithRetry_BackoffStop(t *testing.T) {
	page := &scriptedPage{clickErrs: []error{errDetached}}
	h := newTestHelper(t, page, testSettings(), WithBackoff(func() backoff.BackOff {
		return &backoff.StopBackOff{}
	}))

	err := h.ClickWithRetry(context.Background(), "#submit", 5)
	assert.Same(t, errDetached, err)
	assert.Equal(t, 1, page.Clicks())
}

func TestClickWithRetry_ContextCancelledWhileWaiting(t *testing.T) {
	page := &scriptedPage{clickErrs: []error{errDetached}}
	h := newTestHelper(t, page, testSettings(), WithBackoff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Hour)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := h.ClickWithRetry(ctx, "#submit", 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, errDetached)
	assert.Equal(t, 1, page.Clicks())
}

func TestClickWithRetry_DefaultBackoffUsesSettings(t *testing.T) {
	page := &scriptedPage{clickErrs: []error{errDetached, nil}}
	s := testSettings()
	s.ClickBackoff = 10 * time.Millisecond
	h, err := New(page, s)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, h.ClickWithRetry(context.Background(), "#submit", 2))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestClickWithRetry_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	page := &scriptedPage{clickErrs: []error{errDetached, nil}}
	h := newTestHelper(t, page, testSettings(), WithMetrics(browser.NewMetrics(reg)))

	require.NoError(t, h.ClickWithRetry(context.Background(), "#submit", 3))

	assert.Equal(t, 1.0, counterValue(t, reg, "uicheck_clicks_total", "result", "ok"))
}

func TestClickWithRetry_CancelledContext(t *testing.T) {
	page := &scriptedPage{}
	h := newTestHelper(t, page, testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.ClickWithRetry(ctx, "#submit", 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, page.Clicks(), "no click with a cancelled context")
}

func TestClickWithRetry_GuardCheckedBeforeEachAttempt(t *testing.T) {
	page := &scriptedPage{clickErrs: []error{errDetached}}
	checks := 0
	guard := func() error {
		checks++
		if checks > 1 {
			return &browser.SessionNotReadyError{Worker: "w1", State: browser.StateTearingDown}
		}
		return nil
	}
	h := newTestHelper(t, page, testSettings(), WithSessionGuard(guard))

	err := h.ClickWithRetry(context.Background(), "#submit", 3)
	assert.ErrorIs(t, err, browser.ErrSessionNotReady)
	assert.ErrorIs(t, err, errDetached)
	assert.Equal(t, 1, page.Clicks(), "the retry is abandoned once the session leaves Ready")
}

func TestSessionGuard_RejectsPageCalls(t *testing.T) {
	notReady := &browser.SessionNotReadyError{Worker: "w1", State: browser.StateTearingDown}
	page := &scriptedPage{visible: true}
	h := newTestHelper(t, page, testSettings(), WithSessionGuard(func() error { return notReady }))
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{name: "click", call: func() error { return h.ClickWithRetry(ctx, "#submit", 1) }},
		{name: "navigate", call: func() error { return h.Navigate(ctx, "/") }},
		{name: "type", call: func() error { return h.TypeSlowly(ctx, "#email", "x", 0) }},
		{name: "wait", call: func() error { return h.WaitForElement(ctx, "#ready", 0) }},
		{name: "title", call: func() error { _, err := h.Title(); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), browser.ErrSessionNotReady)
		})
	}

	assert.False(t, h.IsVisible("#submit"), "a session that is not ready shows nothing")
	assert.Zero(t, page.Clicks())
	assert.Empty(t, page.gotoURL)
	assert.Empty(t, page.typed)
	assert.Zero(t, page.waitTimeout)
}

func TestNavigate(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantURL string
	}{
		{name: "absolute", url: "https://app.example.com/login", wantURL: "https://app.example.com/login"},
		{name: "relative to base", url: "/settings?tab=2", wantURL: "https://app.example.com/settings?tab=2"},
		{name: "bare path", url: "profile", wantURL: "https://app.example.com/profile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &scriptedPage{}
			h := newTestHelper(t, page, testSettings())

			require.NoError(t, h.Navigate(context.Background(), tt.url))
			assert.Equal(t, tt.wantURL, page.gotoURL)
			assert.Equal(t, "networkidle", page.loadWait)
			assert.Equal(t, tt.wantURL, h.URL())
		})
	}
}

func TestNavigate_UsesConfiguredSettleSignal(t *testing.T) {
	page := &scriptedPage{}
	s := testSettings()
	s.Settle = config.SettleDOMReady
	h := newTestHelper(t, page, s)

	require.NoError(t, h.Navigate(context.Background(), "/"))
	assert.Equal(t, "domcontentloaded", page.loadWait)
}

func TestNavigate_Timeout(t *testing.T) {
	tests := []struct {
		name string
		page *scriptedPage
	}{
		{name: "goto times out", page: &scriptedPage{gotoErr: browser.ErrTimeout}},
		{name: "settle times out", page: &scriptedPage{loadErr: browser.ErrTimeout}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHelper(t, tt.page, testSettings())

			err := h.Navigate(context.Background(), "/slow")

			var navErr *browser.NavigationTimeoutError
			require.ErrorAs(t, err, &navErr)
			assert.Equal(t, "https://app.example.com/slow", navErr.URL)
			assert.Equal(t, "networkidle", navErr.Signal)
			assert.Equal(t, 5*time.Second, navErr.Timeout)
			assert.True(t, browser.IsTimeout(err))
		})
	}
}

func TestNavigate_OtherFailure(t *testing.T) {
	page := &scriptedPage{gotoErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	h := newTestHelper(t, page, testSettings())

	err := h.Navigate(context.Background(), "/")
	require.Error(t, err)
	assert.False(t, browser.IsTimeout(err))
	assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
}

func TestNavigate_DeadlineBoundsTimeout(t *testing.T) {
	page := &scriptedPage{}
	h := newTestHelper(t, page, testSettings())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, h.Navigate(ctx, "/"))
	assert.LessOrEqual(t, page.gotoTTL, time.Second)
}

func TestNavigate_CancelledContext(t *testing.T) {
	page := &scriptedPage{}
	h := newTestHelper(t, page, testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.Navigate(ctx, "/")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, page.gotoURL)
}

func TestNavigate_InvalidArguments(t *testing.T) {
	tests := []struct {
		name  string
		hosts []string
		url   string
	}{
		{name: "empty url", url: ""},
		{name: "unparsable url", url: "http://[::1"},
		{name: "host outside allow-list", hosts: []string{"*.example.com"}, url: "https://evil.test/"},
		{name: "denied host", hosts: []string{"!admin.example.com"}, url: "https://admin.example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &scriptedPage{}
			s := testSettings()
			s.AllowedHosts = tt.hosts
			h := newTestHelper(t, page, s)

			err := h.Navigate(context.Background(), tt.url)
			assert.ErrorIs(t, err, browser.ErrInvalidArgument)
			assert.Empty(t, page.gotoURL, "nothing is loaded")
		})
	}
}

func TestNavigate_AllowListSkipsHostlessURLs(t *testing.T) {
	page := &scriptedPage{}
	s := testSettings()
	s.AllowedHosts = []string{"*.example.com"}
	h := newTestHelper(t, page, s)

	require.NoError(t, h.Navigate(context.Background(), "about:blank"))
	assert.Equal(t, "about:blank", page.gotoURL)

	require.NoError(t, h.Navigate(context.Background(), "/home"))
	assert.Equal(t, "https://app.example.com/home", page.gotoURL)
}

func TestNavigateToPath(t *testing.T) {
	page := &scriptedPage{}
	s := testSettings()
	s.BaseURLValue = "https://app.example.com/tenant/"
	h := newTestHelper(t, page, s)

	require.NoError(t, h.NavigateToPath(context.Background(), "/billing"))
	assert.Equal(t, "https://app.example.com/tenant/billing", page.gotoURL)

	s.BaseURLValue = ""
	h = newTestHelper(t, page, s)
	assert.ErrorIs(t, h.NavigateToPath(context.Background(), "/billing"), browser.ErrInvalidArgument)
}

func TestNavigate_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	page := &scriptedPage{}
	h := newTestHelper(t, page, testSettings(), WithMetrics(browser.NewMetrics(reg)))

	require.NoError(t, h.Navigate(context.Background(), "/"))
	page.loadErr = browser.ErrTimeout
	require.Error(t, h.Navigate(context.Background(), "/"))

	assert.Equal(t, 1.0, counterValue(t, reg, "uicheck_navigations_total", "result", "ok"))
	assert.Equal(t, 1.0, counterValue(t, reg, "uicheck_navigations_total", "result", "error"))
}

func TestTypeSlowly(t *testing.T) {
	page := &scriptedPage{}
	h := newTestHelper(t, page, testSettings())

	require.NoError(t, h.TypeSlowly(context.Background(), "#email", "ada@example.com", 50*time.Millisecond))
	assert.Equal(t, "ada@example.com", page.typed)
	assert.Equal(t, 50*time.Millisecond, page.typedDelay)

	require.NoError(t, h.TypeSlowly(context.Background(), "#email", "", 0))
	assert.Equal(t, "", page.typed)
}

func TestTypeSlowly_NegativeDelay(t *testing.T) {
	page := &scriptedPage{typed: "untouched"}
	h := newTestHelper(t, page, testSettings())

	err := h.TypeSlowly(context.Background(), "#email", "x", -time.Millisecond)
	assert.ErrorIs(t, err, browser.ErrInvalidArgument)
	assert.Equal(t, "untouched", page.typed)
}

func TestTypeSlowly_Failure(t *testing.T) {
	page := &scriptedPage{typeErr: browser.ErrPageClosed}
	h := newTestHelper(t, page, testSettings())

	err := h.TypeSlowly(context.Background(), "#email", "x", 0)
	assert.ErrorIs(t, err, browser.ErrPageClosed)
}

func TestIsVisible(t *testing.T) {
	tests := []struct {
		name string
		page *scriptedPage
		want bool
	}{
		{name: "visible", page: &scriptedPage{visible: true}, want: true},
		{name: "hidden", page: &scriptedPage{visible: false}, want: false},
		{name: "probe error", page: &scriptedPage{visible: true, visibleErr: browser.ErrPageClosed}, want: false},
		{name: "probe panic", page: &scriptedPage{visPanic: true}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHelper(t, tt.page, testSettings())
			var got bool
			assert.NotPanics(t, func() { got = h.IsVisible(".toast") })
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWaitForElement(t *testing.T) {
	page := &scriptedPage{}
	h := newTestHelper(t, page, testSettings())

	require.NoError(t, h.WaitForElement(context.Background(), "#ready", 0))
	assert.Equal(t, 5*time.Second, page.waitTimeout, "zero uses the default timeout")

	require.NoError(t, h.WaitForElement(context.Background(), "#ready", 250*time.Millisecond))
	assert.Equal(t, 250*time.Millisecond, page.waitTimeout)
}

func TestWaitForElement_Timeout(t *testing.T) {
	var buf bytes.Buffer
	page := &scriptedPage{waitErr: browser.ErrTimeout}
	h := newTestHelper(t, page, testSettings(), WithLogger(logging.New(&buf, "interact")))

	err := h.WaitForElement(context.Background(), "#never", 100*time.Millisecond)

	var waitErr *browser.ElementWaitTimeoutError
	require.ErrorAs(t, err, &waitErr)
	assert.Equal(t, "#never", waitErr.Selector)
	assert.True(t, browser.IsTimeout(err))
}

func TestWaitForElement_InvalidTimeout(t *testing.T) {
	h := newTestHelper(t, &scriptedPage{}, testSettings())
	assert.ErrorIs(t, h.WaitForElement(context.Background(), "#x", -time.Second), browser.ErrInvalidArgument)
}

func TestWaitForElement_OtherFailure(t *testing.T) {
	h := newTestHelper(t, &scriptedPage{waitErr: browser.ErrPageClosed}, testSettings())

	err := h.WaitForElement(context.Background(), "#x", time.Second)
	assert.ErrorIs(t, err, browser.ErrPageClosed)
	assert.False(t, browser.IsTimeout(err))
}

func TestTitle(t *testing.T) {
	h := newTestHelper(t, &scriptedPage{}, testSettings())
	title, err := h.Title()
	require.NoError(t, err)
	assert.Equal(t, "Dashboard", title)
}

// counterValue reads one labelled counter from reg.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
