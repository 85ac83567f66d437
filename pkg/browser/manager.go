package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/uicheck/pkg/artifact"
	"github.com/entrhq/uicheck/pkg/config"
	"github.com/entrhq/uicheck/pkg/logging"
)

const tracerName = "github.com/entrhq/uicheck/pkg/browser"

// Manager owns the engine, context and pages of every worker. Sessions are
// created lazily on first use and torn down in the order
// pages, trace stop, context, engine.
type Manager struct {
	driver    Driver
	settings  config.Settings
	store     *Store
	logger    *logging.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	traceOpts TraceOptions
	traceSink artifact.Sink
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics records session metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithTracerProvider sets the OpenTelemetry provider for lifecycle spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) { m.tracer = tp.Tracer(tracerName) }
}

// WithTraceOptions selects what trace recordings capture.
func WithTraceOptions(opts TraceOptions) Option {
	return func(m *Manager) { m.traceOpts = opts }
}

// WithTraceSink receives the trace recording flushed during teardown.
func WithTraceSink(sink artifact.Sink) Option {
	return func(m *Manager) { m.traceSink = sink }
}

// NewManager creates a manager that launches engines through driver using
// the given settings.
func NewManager(driver Driver, settings config.Settings, opts ...Option) *Manager {
	m := &Manager{
		driver:    driver,
		settings:  settings,
		store:     NewStore(),
		logger:    logging.Discard(),
		tracer:    otel.Tracer(tracerName),
		traceOpts: DefaultTraceOptions,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Settings returns the configuration sessions are created with.
func (m *Manager) Settings() config.Settings {
	return m.settings
}

// Logger returns the manager's logger.
func (m *Manager) Logger() *logging.Logger {
	return m.logger
}

// Metrics returns the manager's metrics, possibly nil.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// ActivePage returns the worker's primary page, provisioning the engine,
// context, trace recording and page on first use. Repeated calls return the
// same page until teardown or CloseActivePage.
func (m *Manager) ActivePage(ctx context.Context, worker WorkerID) (Page, error) {
	if worker == "" {
		return nil, &InvalidArgumentError{Name: "worker", Value: `""`, Reason: "worker id is required"}
	}

	s, claimed, err := m.store.acquire(worker, m.settings.BrowserKind())
	if err != nil {
		return nil, err
	}
	if claimed {
		if err := m.provision(ctx, s); err != nil {
			return nil, err
		}
		return s.page, nil
	}

	if s.page != nil && !s.page.IsClosed() {
		return s.page, nil
	}
	return m.reopenPrimary(ctx, s)
}

// provision builds the chain for a claimed slot. On failure everything this
// attempt created is closed in reverse order and the slot is released.
func (m *Manager) provision(ctx context.Context, s *slot) (err error) {
	ctx, span := m.tracer.Start(ctx, "browser.provision", trace.WithAttributes(
		attribute.String("uicheck.worker", string(s.worker)),
		attribute.String("uicheck.browser", string(s.kind)),
	))
	defer func() { endSpan(span, err) }()

	logger := m.logger.WithWorker(string(s.worker))
	start := time.Now()

	var undo []func() error
	fail := func(stage Stage, cause error) error {
		m.unwind(logger, undo)
		m.store.release(s)
		m.metrics.recordInitFailure(stage)
		logger.Errorf("session init failed at %s stage: %v", stage, cause)
		return &SessionInitError{Worker: s.worker, Stage: stage, Err: cause}
	}

	if err := ctx.Err(); err != nil {
		return fail(StageEngine, err)
	}
	engine, err := m.driver.Launch(ctx, launchOptions(m.settings))
	if err != nil {
		return fail(StageEngine, err)
	}
	undo = append(undo, engine.Close)

	bctx, err := engine.NewContext(ctx, contextOptions(m.settings))
	if err != nil {
		return fail(StageContext, err)
	}
	undo = append(undo, bctx.Close)

	tracing := traceOff
	if m.settings.TraceEnabled {
		if err := bctx.StartTracing(m.traceOpts); err != nil {
			return fail(StageTrace, err)
		}
		tracing = traceRecording
		undo = append(undo, func() error {
			_, err := bctx.StopTracing()
			return err
		})
	}

	page, err := bctx.NewPage()
	if err != nil {
		return fail(StagePage, err)
	}

	s.engine = engine
	s.context = bctx
	s.page = page
	s.trace = tracing
	if err := m.store.transition(s, StateInitializing, StateReady); err != nil {
		undo = append(undo, page.Close)
		return fail(StagePage, err)
	}

	m.metrics.recordSessionStarted(time.Since(start))
	span.SetAttributes(attribute.String("uicheck.session_id", s.id))
	logger.Infof("session %s ready (%s, headless=%v) in %v", s.id, s.kind, m.settings.Headless(), time.Since(start).Round(time.Millisecond))
	return nil
}

// unwind runs cleanup steps in reverse, logging failures.
func (m *Manager) unwind(logger *logging.Logger, undo []func() error) {
	for i := len(undo) - 1; i >= 0; i-- {
		if err := protect(undo[i]); err != nil {
			logger.Warnf("cleanup after failed init: %v", err)
		}
	}
}

// reopenPrimary opens a new primary page in the existing context after the
// previous one was closed.
func (m *Manager) reopenPrimary(ctx context.Context, s *slot) (Page, error) {
	if err := m.store.transition(s, StateReady, StateInitializing); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		_ = m.store.transition(s, StateInitializing, StateReady)
		return nil, &SessionInitError{Worker: s.worker, Stage: StagePage, Err: err}
	}

	page, err := s.context.NewPage()
	if err == nil {
		s.page = page
	}
	if terr := m.store.transition(s, StateInitializing, StateReady); terr != nil && err == nil {
		err = terr
	}
	if err != nil {
		m.metrics.recordInitFailure(StagePage)
		return nil, &SessionInitError{Worker: s.worker, Stage: StagePage, Err: err}
	}
	return page, nil
}

// NewAuxiliaryPage opens an extra page in the worker's context, provisioning
// a session first if needed. The primary page is unchanged and the new page
// is closed at teardown if the caller has not closed it.
func (m *Manager) NewAuxiliaryPage(ctx context.Context, worker WorkerID) (Page, error) {
	if _, err := m.ActivePage(ctx, worker); err != nil {
		return nil, err
	}

	s, err := m.store.ready(worker)
	if err != nil {
		return nil, err
	}

	page, err := s.context.NewPage()
	if err != nil {
		m.metrics.recordInitFailure(StagePage)
		return nil, &SessionInitError{Worker: worker, Stage: StagePage, Err: err}
	}
	n, ok := m.store.addAux(s, page)
	if !ok {
		_ = protect(page.Close)
		return nil, &SessionNotReadyError{Worker: worker, State: m.store.State(worker)}
	}

	m.logger.WithWorker(string(worker)).Debugf("opened auxiliary page (%d total)", n)
	return page, nil
}

// ActiveContext returns the worker's browsing context if its session is ready.
func (m *Manager) ActiveContext(worker WorkerID) (Context, bool) {
	s, err := m.store.ready(worker)
	if err != nil {
		return nil, false
	}
	return s.context, true
}

// CurrentPage returns the worker's primary page without provisioning.
func (m *Manager) CurrentPage(worker WorkerID) (Page, bool) {
	s, err := m.store.ready(worker)
	if err != nil || s.page == nil || s.page.IsClosed() {
		return nil, false
	}
	return s.page, true
}

// CloseActivePage closes only the primary page. It is a no-op without a
// ready session and logs instead of returning close failures.
func (m *Manager) CloseActivePage(worker WorkerID) {
	s, err := m.store.ready(worker)
	if err != nil {
		return
	}

	page := m.store.takePage(s)
	if page == nil {
		return
	}
	if err := protect(page.Close); err != nil {
		m.logger.WithWorker(string(worker)).Warnf("failed to close active page: %v", err)
	}
}

// StopTrace stops the worker's trace recording and returns it as an
// artifact named <worker>-<session id>.zip. A recording is produced once per
// context; later calls fail with ErrAlreadyFlushed.
func (m *Manager) StopTrace(ctx context.Context, worker WorkerID) (artifact.Artifact, error) {
	s, err := m.store.ready(worker)
	if err != nil {
		return artifact.Artifact{}, err
	}
	return m.stopTrace(ctx, s)
}

func (m *Manager) stopTrace(ctx context.Context, s *slot) (a artifact.Artifact, err error) {
	_, span := m.tracer.Start(ctx, "browser.stop_trace", trace.WithAttributes(
		attribute.String("uicheck.worker", string(s.worker)),
	))
	defer func() { endSpan(span, err) }()

	switch m.store.claimTrace(s) {
	case traceOff:
		return artifact.Artifact{}, ErrTraceNotStarted
	case traceFlushed:
		return artifact.Artifact{}, ErrAlreadyFlushed
	}

	var data []byte
	err = protect(func() error {
		var stopErr error
		data, stopErr = s.context.StopTracing()
		return stopErr
	})
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("failed to stop trace: %w", err)
	}

	name := fmt.Sprintf("%s-%s.zip", s.worker, s.id)
	return artifact.New(name, artifact.MIMEZip, string(s.worker), data), nil
}

// Teardown closes the worker's pages, stops the trace, then closes the
// context and the engine. Every stage runs even if an earlier one failed;
// failures are returned together as a *TeardownError. The slot is cleared
// afterwards. Tearing down an absent session is a no-op.
func (m *Manager) Teardown(ctx context.Context, worker WorkerID) (err error) {
	s, err := m.store.beginTeardown(worker)
	if err != nil || s == nil {
		return err
	}

	ctx, span := m.tracer.Start(ctx, "browser.teardown", trace.WithAttributes(
		attribute.String("uicheck.worker", string(worker)),
		attribute.String("uicheck.session_id", s.id),
	))
	defer func() { endSpan(span, err) }()

	logger := m.logger.WithWorker(string(worker))
	var failures []*StageError
	run := func(stage Stage, fn func() error) {
		if stageErr := protect(fn); stageErr != nil {
			failures = append(failures, &StageError{Stage: stage, Err: stageErr})
			m.metrics.recordTeardownFailure(stage)
			logger.Warnf("teardown %s stage failed: %v", stage, stageErr)
		}
	}

	run(StagePage, func() error { return closePages(s) })
	run(StageTrace, func() error { return m.flushOnTeardown(ctx, s, logger) })
	run(StageContext, s.context.Close)
	run(StageEngine, s.engine.Close)

	m.store.release(s)
	m.metrics.recordSessionEnded()

	if len(failures) > 0 {
		return &TeardownError{Worker: worker, Stages: failures}
	}
	logger.Infof("session %s torn down", s.id)
	return nil
}

// closePages closes auxiliary pages newest first, then the primary page.
func closePages(s *slot) error {
	var errs []error
	for i := len(s.aux) - 1; i >= 0; i-- {
		if err := protect(s.aux[i].Close); err != nil {
			errs = append(errs, fmt.Errorf("auxiliary page %d: %w", i, err))
		}
	}
	if s.page != nil {
		if err := protect(s.page.Close); err != nil {
			errs = append(errs, fmt.Errorf("primary page: %w", err))
		}
	}
	return errors.Join(errs...)
}

// flushOnTeardown stops a still-running trace and hands it to the trace
// sink. A recording already flushed by the caller counts as done.
func (m *Manager) flushOnTeardown(ctx context.Context, s *slot, logger *logging.Logger) error {
	a, err := m.stopTrace(ctx, s)
	switch {
	case errors.Is(err, ErrAlreadyFlushed), errors.Is(err, ErrTraceNotStarted):
		return nil
	case err != nil:
		return err
	}

	if m.traceSink != nil {
		if err := m.traceSink.Attach(a.Name, a.MIMEType, a.Data); err != nil {
			logger.Warnf("failed to attach trace %s: %v", a.Name, err)
		}
	}
	return nil
}

// TeardownAll tears down every worker's session in turn.
func (m *Manager) TeardownAll(ctx context.Context) error {
	var errs []error
	for _, worker := range m.store.Workers() {
		if err := m.Teardown(ctx, worker); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Session returns a snapshot of the worker's session.
func (m *Manager) Session(worker WorkerID) (Session, bool) {
	return m.store.Snapshot(worker)
}

// Sessions returns snapshots of every session, ordered by worker.
func (m *Manager) Sessions() []Session {
	workers := m.store.Workers()
	sessions := make([]Session, 0, len(workers))
	for _, w := range workers {
		if s, ok := m.store.Snapshot(w); ok {
			sessions = append(sessions, s)
		}
	}
	return sessions
}

// Ready returns nil if the worker's session is Ready. A session that is
// initializing or tearing down yields a *SessionNotReadyError and a missing
// one ErrNoSession.
func (m *Manager) Ready(worker WorkerID) error {
	_, err := m.store.ready(worker)
	return err
}

// State returns the worker's lifecycle state.
func (m *Manager) State(worker WorkerID) State {
	return m.store.State(worker)
}

// protect runs fn, converting a panic into an error.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
