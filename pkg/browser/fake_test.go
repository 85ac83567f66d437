package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// recorder collects the calls made against a fake engine chain, in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *recorder) Count(call string) int {
	n := 0
	for _, c := range r.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// faults makes individual fake calls fail (error) or panic.
type faults struct {
	launch       error
	newContext   error
	startTracing error
	stopTracing  error
	newPage      error
	pageClose    error
	contextClose error
	engineClose  error
	screenshot   error
	content      error

	panicOn string
}

type fakeDriver struct {
	rec     *recorder
	faults  faults
	engines []*fakeEngine
	mu      sync.Mutex
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{rec: &recorder{}}
}

func (d *fakeDriver) maybePanic(call string) {
	if d.faults.panicOn == call {
		panic(call + " exploded")
	}
}

func (d *fakeDriver) Launch(_ context.Context, opts LaunchOptions) (Engine, error) {
	d.rec.record("engine.launch")
	if d.faults.launch != nil {
		return nil, d.faults.launch
	}
	e := &fakeEngine{driver: d, opts: opts}
	d.mu.Lock()
	d.engines = append(d.engines, e)
	d.mu.Unlock()
	return e, nil
}

func (d *fakeDriver) Engines() []*fakeEngine {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeEngine(nil), d.engines...)
}

type fakeEngine struct {
	driver   *fakeDriver
	opts     LaunchOptions
	ctxOpts  ContextOptions
	contexts []*fakeContext
	closed   bool
}

func (e *fakeEngine) NewContext(_ context.Context, opts ContextOptions) (Context, error) {
	e.driver.rec.record("context.new")
	if e.driver.faults.newContext != nil {
		return nil, e.driver.faults.newContext
	}
	e.ctxOpts = opts
	c := &fakeContext{driver: e.driver}
	e.contexts = append(e.contexts, c)
	return c, nil
}

func (e *fakeEngine) Close() error {
	e.driver.rec.record("engine.close")
	e.driver.maybePanic("engine.close")
	e.closed = true
	return e.driver.faults.engineClose
}

type fakeContext struct {
	driver  *fakeDriver
	pages   []*fakePage
	tracing bool
	closed  bool
}

func (c *fakeContext) NewPage() (Page, error) {
	c.driver.rec.record("page.new")
	if c.driver.faults.newPage != nil {
		return nil, c.driver.faults.newPage
	}
	p := &fakePage{driver: c.driver, id: len(c.pages) + 1, url: "about:blank"}
	c.pages = append(c.pages, p)
	return p, nil
}

func (c *fakeContext) StartTracing(TraceOptions) error {
	c.driver.rec.record("trace.start")
	if c.driver.faults.startTracing != nil {
		return c.driver.faults.startTracing
	}
	c.tracing = true
	return nil
}

func (c *fakeContext) StopTracing() ([]byte, error) {
	c.driver.rec.record("trace.stop")
	c.driver.maybePanic("trace.stop")
	if c.driver.faults.stopTracing != nil {
		return nil, c.driver.faults.stopTracing
	}
	c.tracing = false
	return []byte("PK-trace"), nil
}

func (c *fakeContext) Close() error {
	c.driver.rec.record("context.close")
	c.driver.maybePanic("context.close")
	c.closed = true
	return c.driver.faults.contextClose
}

type fakePage struct {
	driver *fakeDriver
	id     int
	url    string
	closed bool
}

func (p *fakePage) Goto(url string, _ time.Duration) error {
	p.url = url
	return nil
}

func (p *fakePage) WaitForLoadState(string, time.Duration) error { return nil }

func (p *fakePage) Click(string, time.Duration) error { return nil }

func (p *fakePage) PressSequentially(string, string, time.Duration) error { return nil }

func (p *fakePage) IsVisible(string) (bool, error) { return true, nil }

func (p *fakePage) WaitForVisible(string, time.Duration) error { return nil }

func (p *fakePage) Screenshot(bool) ([]byte, error) {
	p.driver.rec.record("page.screenshot")
	p.driver.maybePanic("page.screenshot")
	if p.closed {
		return nil, ErrPageClosed
	}
	if p.driver.faults.screenshot != nil {
		return nil, p.driver.faults.screenshot
	}
	return []byte(fmt.Sprintf("PNG-%d", p.id)), nil
}

func (p *fakePage) Content() (string, error) {
	if p.driver.faults.content != nil {
		return "", p.driver.faults.content
	}
	return `<html><head><title>Fake</title><script>x()</script></head><body><h1 id="t">Hello</h1></body></html>`, nil
}

func (p *fakePage) Title() (string, error) { return "Fake", nil }

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Close() error {
	p.driver.rec.record("page.close")
	p.driver.maybePanic("page.close")
	p.closed = true
	return p.driver.faults.pageClose
}

func (p *fakePage) IsClosed() bool { return p.closed }

var errBoom = errors.New("boom")
