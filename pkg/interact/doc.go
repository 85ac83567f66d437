// Package interact wraps a browser page with the interaction primitives UI
// tests lean on: navigation that waits for the page to settle, clicks that
// retry with backoff, human-paced typing and visibility checks.
//
// A Helper is bound to one page and carries that page's timeout and
// navigation allow-list:
//
//	page, _ := manager.ActivePage(ctx, worker)
//	h, err := interact.New(page, manager.Settings(), interact.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	if err := h.Navigate(ctx, "/login"); err != nil {
//		return err
//	}
//	return h.ClickWithRetry(ctx, "button[type=submit]", 3)
package interact
