package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/afero"

	"github.com/entrhq/uicheck/pkg/artifact"
	"github.com/entrhq/uicheck/pkg/browser"
	"github.com/entrhq/uicheck/pkg/config"
	"github.com/entrhq/uicheck/pkg/interact"
	"github.com/entrhq/uicheck/pkg/logging"
)

const worker browser.WorkerID = "uicheck"

type deps struct {
	driver browser.Driver
	fs     afero.Fs
	logger *logging.Logger
}

// Summary is written to the output file after every run.
type Summary struct {
	Status      string        `json:"status"`
	URL         string        `json:"url"`
	Title       string        `json:"title,omitempty"`
	Browser     string        `json:"browser"`
	Environment string        `json:"environment,omitempty"`
	Error       string        `json:"error,omitempty"`
	Teardown    string        `json:"teardown_error,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
	Artifacts   []string      `json:"artifacts"`
}

// String renders a one-line human summary.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s, %v)", strings.ToUpper(s.Status), s.URL, s.Browser, s.Duration.Round(time.Millisecond))
	if s.Error != "" {
		fmt.Fprintf(&b, ": %s", s.Error)
	}
	for _, a := range s.Artifacts {
		fmt.Fprintf(&b, "\n  %s", a)
	}
	return b.String()
}

func loadSettings(cli *CLIConfig) (config.Settings, error) {
	var (
		manager *config.Manager
		err     error
	)
	switch {
	case cli.ConfigFile != "":
		manager, err = config.Open(cli.ConfigFile)
	case cli.ConfigDir != "":
		manager, err = config.LoadEnvironment(cli.ConfigDir, cli.Environment)
	default:
		return applyFlags(config.DefaultSettings(), cli), nil
	}
	if err != nil {
		return config.Settings{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	settings, err := manager.Settings()
	if err != nil {
		return config.Settings{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return applyFlags(settings, cli), nil
}

func applyFlags(settings config.Settings, cli *CLIConfig) config.Settings {
	if cli.ShowBrowser {
		settings.IsHeadless = false
	}
	if cli.InstallFirst {
		settings.Install = true
	}
	return settings
}

// run drives one check and always tears the session down. The summary is
// returned even when the check fails.
func run(ctx context.Context, cli *CLIConfig, d deps) (*Summary, error) {
	start := time.Now()

	settings, err := loadSettings(cli)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := browser.NewMetrics(registry)

	files := artifact.NewFileSink(d.fs, artifact.Dirs{
		Screenshots: settings.ScreenshotDir,
		Traces:      settings.TraceDir,
		Logs:        settings.LogDir,
	})
	collected := artifact.NewMemorySink()
	sink := artifact.MultiSink{files, collected, artifact.LogSink{Logger: d.logger.WithComponent("artifacts")}}

	manager := browser.NewManager(d.driver, settings,
		browser.WithLogger(d.logger),
		browser.WithMetrics(metrics),
		browser.WithTraceSink(sink),
	)
	capture := browser.NewCapture(manager, sink)

	summary := &Summary{
		Status:  "passed",
		URL:     cli.URL,
		Browser: string(settings.BrowserKind()),
	}
	if cli.ConfigDir != "" {
		summary.Environment = cli.Environment
		if summary.Environment == "" {
			summary.Environment = config.Environment()
		}
	}

	checkErr := check(ctx, cli, manager, metrics, summary)
	label := artifact.SanitizeName(cli.Label)
	if checkErr != nil {
		summary.Status = "failed"
		summary.Error = checkErr.Error()
		capture.CaptureScreenshot(ctx, worker, label+"-failure")
		capture.CaptureDOMSnapshot(ctx, worker, label+"-failure")
		capture.AttachFailureLog(worker, label+"-failure", summary.Error)
	} else {
		capture.CaptureScreenshot(ctx, worker, label)
	}

	if teardownErr := manager.Teardown(context.WithoutCancel(ctx), worker); teardownErr != nil {
		summary.Teardown = teardownErr.Error()
		d.logger.Warnf("teardown: %v", teardownErr)
	}

	for _, a := range collected.Artifacts() {
		summary.Artifacts = append(summary.Artifacts, files.Path(a.Name, a.MIMEType))
	}
	summary.Duration = time.Since(start)

	if err := writeSummary(d.fs, cli.OutputFile, summary); err != nil {
		d.logger.Errorf("failed to write summary: %v", err)
	}
	if cli.MetricsFile != "" {
		if err := writeMetrics(d.fs, cli.MetricsFile, registry); err != nil {
			d.logger.Errorf("failed to write metrics: %v", err)
		}
	}

	if checkErr != nil {
		return summary, checkErr
	}
	return summary, nil
}

func check(ctx context.Context, cli *CLIConfig, manager *browser.Manager, metrics *browser.Metrics, summary *Summary) error {
	page, err := manager.ActivePage(ctx, worker)
	if err != nil {
		return err
	}

	helper, err := interact.New(page, manager.Settings(),
		interact.WithLogger(manager.Logger().WithComponent("interact").WithWorker(string(worker))),
		interact.WithMetrics(metrics),
		interact.WithSessionGuard(func() error { return manager.Ready(worker) }),
	)
	if err != nil {
		return err
	}

	if err := helper.Navigate(ctx, cli.URL); err != nil {
		return err
	}
	summary.URL = helper.URL()

	if cli.WaitFor != "" {
		if err := helper.WaitForElement(ctx, cli.WaitFor, 0); err != nil {
			return err
		}
	}
	if cli.Click != "" {
		if err := helper.ClickWithRetry(ctx, cli.Click, cli.Attempts); err != nil {
			return fmt.Errorf("click %q: %w", cli.Click, err)
		}
	}

	title, err := helper.Title()
	if err != nil && !errors.Is(err, browser.ErrPageClosed) {
		return err
	}
	summary.Title = title
	return nil
}

func writeSummary(fs afero.Fs, path string, summary *Summary) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0644)
}

// writeMetrics renders every gathered family in the Prometheus text format.
func writeMetrics(fs afero.Fs, path string, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return err
		}
	}
	return afero.WriteFile(fs, path, buf.Bytes(), 0644)
}
