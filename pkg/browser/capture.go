package browser

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/uicheck/pkg/artifact"
	"github.com/entrhq/uicheck/pkg/logging"
)

// Capture pulls diagnostics out of a worker's session. Every method returns
// (artifact, false) instead of an error when nothing could be captured, and
// sink failures are only logged.
type Capture struct {
	manager *Manager
	sink    artifact.Sink
	logger  *logging.Logger
}

// NewCapture creates a capture that attaches artifacts to sink.
func NewCapture(manager *Manager, sink artifact.Sink) *Capture {
	return &Capture{
		manager: manager,
		sink:    sink,
		logger:  manager.Logger().WithComponent("capture"),
	}
}

// CaptureScreenshot takes a PNG of the worker's primary page named
// <label>.png. Returns false when the worker has no page or capture failed.
func (c *Capture) CaptureScreenshot(ctx context.Context, worker WorkerID, label string) (artifact.Artifact, bool) {
	page, ok := c.manager.CurrentPage(worker)
	if !ok {
		c.logger.WithWorker(string(worker)).Debugf("no active page, skipping screenshot %q", label)
		return artifact.Artifact{}, false
	}

	_, span := c.manager.tracer.Start(ctx, "browser.capture_screenshot", trace.WithAttributes(
		attribute.String("uicheck.worker", string(worker)),
		attribute.String("uicheck.label", label),
	))
	var data []byte
	err := protect(func() error {
		var shotErr error
		data, shotErr = page.Screenshot(c.manager.settings.FullPage)
		return shotErr
	})
	endSpan(span, err)

	return c.finish(worker, string(artifact.KindScreenshot), label+".png", artifact.MIMEPNG, data, err)
}

// FlushTrace stops the worker's trace recording and attaches it. Only the
// first call per context produces a recording; later calls return false.
func (c *Capture) FlushTrace(ctx context.Context, worker WorkerID) (artifact.Artifact, bool) {
	a, err := c.manager.StopTrace(ctx, worker)
	if err != nil {
		c.manager.metrics.RecordCapture(string(artifact.KindTrace), false)
		c.logger.WithWorker(string(worker)).Warnf("trace not flushed: %v", err)
		return artifact.Artifact{}, false
	}

	c.manager.metrics.RecordCapture(string(artifact.KindTrace), true)
	c.attach(worker, a)
	return a, true
}

// CaptureDOMSnapshot saves the primary page's cleaned HTML as <label>.html.
func (c *Capture) CaptureDOMSnapshot(ctx context.Context, worker WorkerID, label string) (artifact.Artifact, bool) {
	page, ok := c.manager.CurrentPage(worker)
	if !ok {
		return artifact.Artifact{}, false
	}

	var doc []byte
	err := protect(func() error {
		raw, err := page.Content()
		if err != nil {
			return err
		}
		snap, err := artifact.CleanHTML(raw, artifact.DefaultSnapshotLength)
		if err != nil {
			return err
		}
		doc = snap.Document(page.URL())
		return nil
	})

	return c.finish(worker, string(artifact.KindDOMSnapshot), label+".html", artifact.MIMEHTML, doc, err)
}

// AttachFailureLog attaches a plain-text failure log named <name>.log.
func (c *Capture) AttachFailureLog(worker WorkerID, name, message string) artifact.Artifact {
	a := artifact.New(name+".log", artifact.MIMEText, string(worker), []byte(message))
	c.attach(worker, a)
	return a
}

func (c *Capture) finish(worker WorkerID, kind, name, mimeType string, data []byte, err error) (artifact.Artifact, bool) {
	if err == nil && len(data) == 0 {
		err = fmt.Errorf("empty %s capture", kind)
	}
	c.manager.metrics.RecordCapture(kind, err == nil)
	if err != nil {
		c.logger.WithWorker(string(worker)).Warnf("%s capture %q failed: %v", kind, name, err)
		return artifact.Artifact{}, false
	}

	a := artifact.New(name, mimeType, string(worker), data)
	c.attach(worker, a)
	return a, true
}

func (c *Capture) attach(worker WorkerID, a artifact.Artifact) {
	if c.sink == nil {
		return
	}
	if err := protect(func() error { return c.sink.Attach(a.Name, a.MIMEType, a.Data) }); err != nil {
		c.logger.WithWorker(string(worker)).Warnf("failed to attach %s: %v", a.Name, err)
	}
}
