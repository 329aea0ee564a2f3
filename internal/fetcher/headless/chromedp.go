// Package headless contains a fetcher that renders pages in headless Chrome.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/linkvault/internal/archive"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

// Fetcher implements archive.Fetcher using chromedp. It renders JavaScript
// and can print the page to PDF for the archive's pdf asset.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a headless fetcher backed by chromedp.
func New(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context and tears down the browser.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates with a headless browser and returns the rendered DOM.
// Document-level HTTP rejections classify the same way the plain fetcher
// classifies them.
func (f *Fetcher) Fetch(ctx context.Context, request archive.FetchRequest) (archive.FetchResult, error) {
	if err := f.acquire(ctx); err != nil {
		return archive.FetchResult{}, archive.ClassifyFetchError(request.URL, err)
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	// Honor the caller's cancellation alongside the navigation budget.
	stop := propagateCancel(ctx, cancel)
	defer stop()

	status := newStatusTracker()
	chromedp.ListenTarget(taskCtx, status.captureEvent)

	start := time.Now()
	html, pdf, finalURL, err := f.run(taskCtx, request)
	if err != nil {
		return archive.FetchResult{}, archive.ClassifyFetchError(request.URL, err)
	}

	code := status.code(http.StatusOK)
	if code >= 400 {
		return archive.FetchResult{}, archive.NewRejectionError(request.URL, code,
			fmt.Errorf("document request rejected"))
	}
	if finalURL == "" {
		finalURL = request.URL
	}

	return archive.FetchResult{
		URL:          request.URL,
		FinalURL:     finalURL,
		StatusCode:   code,
		HTML:         []byte(html),
		PDF:          pdf,
		UsedHeadless: true,
		Duration:     time.Since(start),
	}, nil
}

func (f *Fetcher) run(ctx context.Context, request archive.FetchRequest) (string, []byte, string, error) {
	var (
		html     string
		pdf      []byte
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if request.RenderPDF {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().WithPrintBackground(false).Do(ctx)
			if err != nil {
				return fmt.Errorf("print to pdf: %w", err)
			}
			pdf = buf
			return nil
		}))
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", nil, "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, pdf, finalURL, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

// propagateCancel cancels the task when the caller's context finishes. The
// returned stop function releases the watcher goroutine.
func propagateCancel(ctx context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// statusTracker records the HTTP status of the main document response.
type statusTracker struct {
	mu     sync.Mutex
	status int
}

func newStatusTracker() *statusTracker {
	return &statusTracker{}
}

func (t *statusTracker) captureEvent(ev any) {
	event, ok := ev.(*network.EventResponseReceived)
	if !ok || event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == 0 {
		t.status = int(event.Response.Status)
	}
}

func (t *statusTracker) code(fallback int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == 0 {
		return fallback
	}
	return t.status
}
