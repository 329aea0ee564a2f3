// Package collyfetcher implements the fetcher on plain HTTP using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/linkvault/internal/archive"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements archive.Fetcher and archive.AssetFetcher with a Colly
// collector. Each call clones the base collector, so one Fetcher serves all
// workers.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, base: c}
}

// Fetch executes a single HTTP GET. Non-2xx responses come back as
// rejection errors; transport-level failures classify as transient.
// RenderPDF is ignored: plain HTTP cannot render.
func (f *Fetcher) Fetch(ctx context.Context, request archive.FetchRequest) (archive.FetchResult, error) {
	var (
		result   archive.FetchResult
		fetchErr error
	)
	start := time.Now()

	collector := f.newCollector()
	collector.OnResponse(func(r *colly.Response) {
		result = archive.FetchResult{
			URL:        request.URL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			HTML:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= 400 {
			fetchErr = archive.NewRejectionError(request.URL, r.StatusCode, err)
			return
		}
		fetchErr = archive.ClassifyFetchError(request.URL, err)
	})

	if err := f.visit(ctx, collector, request.URL, &fetchErr); err != nil {
		return archive.FetchResult{}, err
	}
	if len(result.HTML) == 0 {
		return archive.FetchResult{}, archive.ClassifyFetchError(request.URL, fmt.Errorf("empty response body"))
	}
	return result, nil
}

// FetchAsset downloads one auxiliary asset and returns body plus content
// type. Used for lead images by both this fetcher and the headless one.
func (f *Fetcher) FetchAsset(ctx context.Context, url string) ([]byte, string, error) {
	var (
		body        []byte
		contentType string
		fetchErr    error
	)

	collector := f.newCollector()
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		contentType = r.Headers.Get("Content-Type")
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= 400 {
			fetchErr = archive.NewRejectionError(url, r.StatusCode, err)
			return
		}
		fetchErr = archive.ClassifyFetchError(url, err)
	})

	if err := f.visit(ctx, collector, url, &fetchErr); err != nil {
		return nil, "", err
	}
	return body, contentType, nil
}

func (f *Fetcher) newCollector() *colly.Collector {
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	return collector
}

// visit runs the collector under ctx. The OnError callback classifies HTTP
// rejections with the status code; its error wins over the less specific
// one Visit returns for the same failure.
func (f *Fetcher) visit(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return archive.ClassifyFetchError(url, ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			return archive.ClassifyFetchError(url, err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
