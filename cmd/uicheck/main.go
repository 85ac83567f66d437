// Package main provides the uicheck smoke runner. It opens a browser session
// with the configured settings, loads a page, optionally waits for and clicks
// an element, and writes the captured screenshots, trace and a JSON summary
// to the artifact directories.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/entrhq/uicheck/pkg/browser"
	"github.com/entrhq/uicheck/pkg/logging"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile   string
	ConfigDir    string
	Environment  string
	URL          string
	WaitFor      string
	Click        string
	Attempts     int
	Label        string
	Timeout      time.Duration
	OutputFile   string
	MetricsFile  string
	ShowBrowser  bool
	InstallFirst bool
	ShowVersion  bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("uicheck v%s\n", version)
		return
	}

	if err := cli.validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cli.Timeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	logger, logErr := logging.NewLogger("uicheck")
	if logErr != nil {
		log.Printf("Warning: %v", logErr)
	}
	defer logger.Close()

	driver := browser.NewPlaywrightDriver()
	driver.Stderr = os.Stderr

	summary, err := run(ctx, cli, deps{driver: driver, fs: afero.NewOsFs(), logger: logger})
	cancel()
	if summary != nil {
		fmt.Println(summary.String())
	}
	if err != nil {
		log.Printf("Check failed: %v", err)
		os.Exit(1)
	}
}

func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&cli.ConfigDir, "config-dir", "", "Directory holding <env>.yaml files")
	flag.StringVar(&cli.Environment, "env", "", "Environment name (default $UICHECK_ENV or dev)")
	flag.StringVar(&cli.URL, "url", "", "URL or path (relative to base_url) to load")
	flag.StringVar(&cli.WaitFor, "wait-for", "", "Selector that must become visible")
	flag.StringVar(&cli.Click, "click", "", "Selector to click after loading")
	flag.IntVar(&cli.Attempts, "attempts", 3, "Click attempts before giving up")
	flag.StringVar(&cli.Label, "label", "smoke", "Name prefix for captured artifacts")
	flag.DurationVar(&cli.Timeout, "timeout", 2*time.Minute, "Overall timeout")
	flag.StringVar(&cli.OutputFile, "output", "uicheck-summary.json", "Output file for the run summary")
	flag.StringVar(&cli.MetricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file")
	flag.BoolVar(&cli.ShowBrowser, "headed", false, "Show the browser window")
	flag.BoolVar(&cli.InstallFirst, "install", false, "Install browser binaries before launching")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "uicheck - browser smoke checks with diagnostics\n\n")
		fmt.Fprintf(os.Stderr, "Usage: uicheck [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Load a page and keep a screenshot and trace\n")
		fmt.Fprintf(os.Stderr, "  uicheck -url https://example.com\n\n")
		fmt.Fprintf(os.Stderr, "  # Use the staging environment and click through the login form\n")
		fmt.Fprintf(os.Stderr, "  uicheck -config-dir config -env staging -url /login -wait-for '#email' -click 'button[type=submit]'\n\n")
	}

	flag.Parse()
	return cli
}

func (c *CLIConfig) validate() error {
	if c.URL == "" {
		return fmt.Errorf("-url is required")
	}
	if c.ConfigFile != "" && c.ConfigDir != "" {
		return fmt.Errorf("-config and -config-dir are mutually exclusive")
	}
	if c.Attempts < 1 {
		return fmt.Errorf("-attempts must be at least 1")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("-timeout must be positive")
	}
	return nil
}
