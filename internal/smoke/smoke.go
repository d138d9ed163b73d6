// Package smoke drives the served navigator page in headless Chrome and
// checks that the browser bindings reach the API.
package smoke

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	wantTranslation = "hola (translated)"
	wantTimeline    = "Submit I-130"
)

type Result struct {
	Translation string
	Timeline    string
	ErrorHidden bool

	// What the translate binding shows for a response without a translation.
	MissingTranslation string
}

const renderMissingTranslation = `(function () {
  var el = document.createElement("p");
  navigatorBridge.render("translate-form", el, {});
  return el.textContent;
})()`

// Check opens baseURL, submits the translate form and loads the timeline.
func Check(ctx context.Context, baseURL string, timeout time.Duration) (Result, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.NoSandbox,
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var res Result
	var ready bool
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(strings.TrimRight(baseURL, "/")+"/"),
		chromedp.WaitVisible("#translate-form", chromedp.ByQuery),
		chromedp.SetValue(`#translate-form input[name="text"]`, "hello", chromedp.ByQuery),
		chromedp.SetValue(`#translate-form select[name="language"]`, "es", chromedp.ByQuery),
		chromedp.Click(`#translate-form button[type="submit"]`, chromedp.ByQuery),
		chromedp.Poll(`document.getElementById("translate-result").textContent !== ""`, &ready),
		chromedp.Text("#translate-result", &res.Translation, chromedp.ByQuery),
		chromedp.Click("#load-timeline", chromedp.ByQuery),
		chromedp.Poll(`document.getElementById("timeline").textContent !== ""`, &ready),
		chromedp.Text("#timeline", &res.Timeline, chromedp.ByQuery),
		chromedp.Evaluate(`document.getElementById("bridge-error").hidden`, &res.ErrorHidden),
		chromedp.Evaluate(renderMissingTranslation, &res.MissingTranslation),
	)
	if err != nil {
		return res, fmt.Errorf("drive page: %w", err)
	}

	switch {
	case strings.TrimSpace(res.Translation) != wantTranslation:
		return res, fmt.Errorf("translate-result = %q, want %q", res.Translation, wantTranslation)
	case !strings.Contains(res.Timeline, wantTimeline):
		return res, fmt.Errorf("timeline does not list %q", wantTimeline)
	case !res.ErrorHidden:
		return res, fmt.Errorf("bridge-error is showing")
	case res.MissingTranslation != "undefined":
		return res, fmt.Errorf("missing translation rendered %q, want %q", res.MissingTranslation, "undefined")
	}
	return res, nil
}
