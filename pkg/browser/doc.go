// Package browser manages per-worker browser sessions for end-to-end UI checks.
//
// A worker is one unit of parallel test execution, identified by a WorkerID
// that callers pass explicitly. Each worker owns at most one session: an
// engine process, one browsing context with an optional trace recording, a
// primary page and any auxiliary pages it asked for. Workers never share
// resources, so one worker's slow engine call never blocks another.
//
// # Session Lifecycle
//
// Sessions move through Absent, Initializing, Ready and TearingDown:
//
//  1. ActivePage provisions engine, context, trace and page on first use
//  2. Further ActivePage calls return the same page
//  3. Teardown closes pages, stops the trace, closes the context, then the engine
//  4. The slot is cleared; the next ActivePage starts from scratch
//
// If provisioning fails part way, whatever that attempt created is closed
// before the *SessionInitError is returned. Teardown runs every stage even
// when an earlier one fails and reports all failures in one *TeardownError.
//
// # Diagnostics
//
// Capture takes screenshots, DOM snapshots and trace recordings and hands
// them to an artifact.Sink. Capture never fails the caller: when nothing can
// be captured it returns false and logs why.
//
// # Engines
//
// The Driver, Engine, Context and Page interfaces abstract the browser
// engine. PlaywrightDriver implements them with playwright-go.
//
// # Example Usage
//
//	settings, _ := cfg.Settings()
//	mgr := browser.NewManager(browser.NewPlaywrightDriver(), settings)
//	defer mgr.TeardownAll(ctx)
//
//	page, err := mgr.ActivePage(ctx, "worker-1")
//	if err != nil {
//	    return err
//	}
//	err = page.Goto("https://example.com", 0)
package browser
