package fetch

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// MinContentLength is the minimum extracted text length to consider an HTTP
// fetch successful. Shorter pages are likely rendered client-side.
const MinContentLength = 500

// DefaultRenderTimeout bounds a headless render.
const DefaultRenderTimeout = 30 * time.Second

// ShouldUseBrowser returns true if the extracted text is too short to
// describe a product.
func ShouldUseBrowser(extractedText string) bool {
	return len(strings.TrimSpace(extractedText)) < MinContentLength
}

// RenderOptions configures headless rendering.
type RenderOptions struct {
	Timeout time.Duration
	// Settle is how long to wait after the body is ready for scripts to run.
	Settle  time.Duration
	Verbose bool
}

// Render loads a page in headless Chrome and returns the rendered HTML.
// Requires Chrome or Chromium on the host.
func Render(ctx context.Context, url string, opts RenderOptions) (string, error) {
	if err := ValidateURL(url); err != nil {
		return "", err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRenderTimeout
	}
	if opts.Settle <= 0 {
		opts.Settle = 2 * time.Second
	}
	if opts.Verbose {
		log.Printf("[BROWSER] Rendering %s", url)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(DefaultUserAgent),
		)...,
	)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, opts.Timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(opts.Settle),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Cookie banners hide product copy on some sites; absent buttons are fine.
			_ = chromedp.Click(`button[id*="accept"], button[class*="accept"]`, chromedp.NodeVisible, chromedp.AtLeast(0)).Do(ctx)
			return nil
		}),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", &Error{URL: url, Message: "browser rendering failed", Cause: err}
	}

	if opts.Verbose {
		log.Printf("[BROWSER] Rendered HTML: %d bytes", len(html))
	}
	return html, nil
}

// Renderer renders a URL to HTML. Render satisfies it.
type Renderer func(ctx context.Context, url string, opts RenderOptions) (string, error)
