package pipeline

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkvault/internal/archive"
	"github.com/JakeFAU/linkvault/internal/extract"
	"github.com/JakeFAU/linkvault/internal/metrics"
)

const (
	// MaxConcurrency caps the worker pool size.
	MaxConcurrency = 4

	defaultFetchTimeout = 30 * time.Second
	defaultAssetTimeout = 10 * time.Second
)

// Config controls Orchestrator behavior.
type Config struct {
	Concurrency int
	// FetchTimeout bounds a single page fetch.
	FetchTimeout time.Duration
	// AssetTimeout bounds the lead image download.
	AssetTimeout time.Duration
	// RefreshBefore, when non-zero, forces a re-scrape of every URL whose
	// archived record is older than the cutoff. It never overrides the
	// permanent failure state.
	RefreshBefore time.Time
	// RenderPDF asks the fetcher to also capture a print-style PDF.
	RenderPDF bool
}

// Orchestrator runs the archive pipeline over a link list: it decides per
// URL whether to scrape or skip, fans the work out to a bounded pool, and
// tallies outcomes into a Report.
type Orchestrator struct {
	store     archive.Store
	ledger    archive.Ledger
	fetcher   archive.Fetcher
	assets    archive.AssetFetcher
	extractor *extract.Extractor
	notifier  archive.Notifier
	clock     archive.Clock
	ids       archive.IDGenerator
	hasher    archive.Hasher
	cfg       Config
	logger    *zap.Logger
	report    *Report
}

// New constructs an Orchestrator. The asset fetcher and notifier are
// optional; every other dependency is required.
func New(
	store archive.Store,
	ledger archive.Ledger,
	fetcher archive.Fetcher,
	assets archive.AssetFetcher,
	extractor *extract.Extractor,
	notifier archive.Notifier,
	clock archive.Clock,
	ids archive.IDGenerator,
	hasher archive.Hasher,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Concurrency > MaxConcurrency {
		cfg.Concurrency = MaxConcurrency
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.AssetTimeout <= 0 {
		cfg.AssetTimeout = defaultAssetTimeout
	}
	metrics.Init()
	return &Orchestrator{
		store:     store,
		ledger:    ledger,
		fetcher:   fetcher,
		assets:    assets,
		extractor: extractor,
		notifier:  notifier,
		clock:     clock,
		ids:       ids,
		hasher:    hasher,
		cfg:       cfg,
		logger:    logger,
		report:    NewReport(),
	}
}

// Report returns the live outcome tallies for the current run.
func (o *Orchestrator) Report() *Report {
	return o.report
}

// Run processes every link and returns the final Summary. A storage failure
// aborts the run: dispatch stops, in-flight work finishes, and the error is
// returned alongside the partial Summary. Context cancellation stops
// dispatch the same way without an error from the pipeline itself.
func (o *Orchestrator) Run(ctx context.Context, links []archive.LinkRecord) (Summary, error) {
	runID, err := o.ids.NewID()
	if err != nil {
		return o.report.Snapshot(), fmt.Errorf("generate run id: %w", err)
	}
	started := o.clock.Now()
	o.logger.Info("run started",
		zap.String("run_id", runID),
		zap.Int("links", len(links)),
		zap.Int("concurrency", o.cfg.Concurrency),
		zap.Bool("refresh", !o.cfg.RefreshBefore.IsZero()),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		fatalErr error
	)
	fail := func(err error) {
		once.Do(func() {
			fatalErr = err
			cancel()
		})
	}

	work := make(chan archive.LinkRecord)
	for i := 0; i < o.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for link := range work {
				metrics.IncActiveWorkers()
				err := o.processLink(runCtx, runID, link)
				metrics.DecActiveWorkers()
				if err != nil {
					fail(err)
					return
				}
			}
		}()
	}

dispatch:
	for _, link := range links {
		select {
		case <-runCtx.Done():
			break dispatch
		case work <- link:
		}
	}
	close(work)
	wg.Wait()

	summary := o.report.Snapshot()
	metrics.ObserveRunDuration(o.clock.Now().Sub(started))
	o.logger.Info("run finished",
		zap.String("run_id", runID),
		zap.Int64("scraped", summary.Scraped),
		zap.Int64("skipped_cached", summary.SkippedCached),
		zap.Int64("skipped_cooldown", summary.SkippedCooldown),
		zap.Int64("skipped_permanent", summary.SkippedPermanent),
		zap.Int64("failed", summary.Failed),
		zap.Int64("newly_permanent", summary.NewlyPermanent),
	)
	if fatalErr != nil {
		return summary, fatalErr
	}
	return summary, ctx.Err()
}

// processLink applies the scrape-or-skip decision to one link. A non-nil
// return aborts the whole run; per-URL fetch failures are absorbed into the
// ledger and the report instead.
func (o *Orchestrator) processLink(ctx context.Context, runID string, link archive.LinkRecord) error {
	id, err := archive.IDFor(link.URL)
	if err != nil {
		o.logger.Warn("unusable link url", zap.String("url", link.URL), zap.Error(err))
		o.report.Failed()
		metrics.ObserveOutcome("failed")
		return nil
	}
	log := o.logger.With(
		zap.String("run_id", runID),
		zap.String("article_id", string(id)),
		zap.String("url", link.URL),
	)

	status := o.ledger.Status(id)
	if status.State == archive.StatePermanent {
		log.Debug("skipping permanently failed url")
		o.report.SkippedPermanent()
		metrics.ObserveOutcome("skipped_permanent")
		return nil
	}

	refresh := false
	if !o.cfg.RefreshBefore.IsZero() {
		last, ok, err := o.store.LastScrapedAt(ctx, id)
		if err != nil {
			return fmt.Errorf("read archive timestamp for %s: %w", id, err)
		}
		refresh = ok && last.Before(o.cfg.RefreshBefore)
	}

	if !refresh {
		exists, err := o.store.Exists(ctx, id)
		if err != nil {
			return fmt.Errorf("check archive for %s: %w", id, err)
		}
		if exists {
			log.Debug("already archived")
			o.report.SkippedCached()
			metrics.ObserveOutcome("skipped_cached")
			return nil
		}
		if status.State == archive.StateCooling {
			log.Info("url cooling down", zap.Time("cooldown_until", status.CooldownUntil))
			o.report.SkippedCooldown()
			metrics.ObserveOutcome("skipped_cooldown")
			return nil
		}
	}

	return o.attempt(ctx, runID, id, link, refresh, log)
}

// attempt fetches, extracts, and commits one URL.
func (o *Orchestrator) attempt(
	ctx context.Context,
	runID string,
	id archive.ArticleID,
	link archive.LinkRecord,
	refresh bool,
	log *zap.Logger,
) error {
	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	result, fetchErr := o.fetcher.Fetch(fetchCtx, archive.FetchRequest{
		URL:       link.URL,
		RenderPDF: o.cfg.RenderPDF,
	})
	cancel()

	if fetchErr != nil {
		return o.recordFailure(ctx, id, link.URL, fetchErr, log)
	}
	metrics.ObserveFetch(link.URL, fetchMode(result.UsedHeadless), len(result.HTML), result.Duration)

	extraction, extractErr := o.extractor.Extract(pageURL(result), result.HTML)
	if extractErr != nil {
		log.Warn("extraction incomplete, archiving raw page", zap.Error(extractErr))
	}

	assets := archive.Assets{RawHTML: result.HTML, PDF: result.PDF}
	if extraction.LeadImageURL != "" && o.assets != nil {
		o.fetchLeadImage(ctx, result, extraction.LeadImageURL, &assets, log)
	}

	hash, err := o.hasher.Hash(result.HTML)
	if err != nil {
		return fmt.Errorf("hash page body: %w", err)
	}

	now := o.clock.Now()
	record := archive.Record{
		ArticleID:    id,
		URL:          link.URL,
		FinalURL:     result.FinalURL,
		ScrapedAt:    now,
		Title:        extraction.Title,
		BodyText:     extraction.BodyText,
		ContentHash:  hash,
		UsedHeadless: result.UsedHeadless,
		Meta:         extraction.Meta,
		Tags:         link.Tags,
		Section:      link.Section,
		Note:         link.Note,
	}

	if err := o.store.Write(ctx, id, record, assets); err != nil {
		return fmt.Errorf("write archive for %s: %w", id, err)
	}
	if err := o.ledger.RecordSuccess(ctx, id); err != nil {
		return fmt.Errorf("clear failure state for %s: %w", id, err)
	}

	o.report.Scraped()
	metrics.ObserveOutcome("scraped")
	log.Info("archived",
		zap.String("title", extraction.Title),
		zap.Bool("headless", result.UsedHeadless),
		zap.Bool("refresh", refresh),
	)

	o.publish(ctx, archive.Event{
		RunID:     runID,
		ArticleID: id,
		URL:       link.URL,
		Title:     extraction.Title,
		ScrapedAt: now,
		Refresh:   refresh,
	}, log)
	return nil
}

// recordFailure books a fetch failure into the ledger and the report. Only
// a ledger persistence error aborts the run.
func (o *Orchestrator) recordFailure(
	ctx context.Context,
	id archive.ArticleID,
	rawURL string,
	fetchErr error,
	log *zap.Logger,
) error {
	classified := archive.ClassifyFetchError(rawURL, fetchErr)
	record, err := o.ledger.RecordFailure(ctx, id, rawURL, o.clock.Now())
	if err != nil {
		return fmt.Errorf("record failure for %s: %w", id, err)
	}

	o.report.Failed()
	metrics.ObserveOutcome("failed")
	fields := []zap.Field{
		zap.Error(classified),
		zap.Int("failure_count", record.FailureCount),
	}
	if record.CooldownUntil != nil {
		fields = append(fields, zap.Time("cooldown_until", *record.CooldownUntil))
	}
	if record.Permanent {
		o.report.NewlyPermanent()
		metrics.ObservePermanent()
		log.Warn("url marked permanently failed", fields...)
		return nil
	}
	log.Warn("fetch failed", fields...)
	return nil
}

// fetchLeadImage downloads the extracted lead image. Failures are logged
// and dropped; the archive commit proceeds without the image.
func (o *Orchestrator) fetchLeadImage(
	ctx context.Context,
	result archive.FetchResult,
	imageURL string,
	assets *archive.Assets,
	log *zap.Logger,
) {
	resolved := resolveAssetURL(pageURL(result), imageURL)
	if resolved == "" {
		log.Debug("unresolvable lead image url", zap.String("image_url", imageURL))
		return
	}

	assetCtx, cancel := context.WithTimeout(ctx, o.cfg.AssetTimeout)
	defer cancel()

	body, contentType, err := o.assets.FetchAsset(assetCtx, resolved)
	if err != nil {
		log.Debug("lead image fetch failed", zap.String("image_url", resolved), zap.Error(err))
		return
	}
	assets.Image = body
	assets.ImageExt = imageExtension(contentType, resolved)
}

func (o *Orchestrator) publish(ctx context.Context, event archive.Event, log *zap.Logger) {
	if o.notifier == nil {
		return
	}
	msgID, err := o.notifier.Publish(ctx, event)
	if err != nil {
		log.Warn("archive event publish failed", zap.Error(err))
		return
	}
	log.Debug("archive event published", zap.String("message_id", msgID))
}

func pageURL(result archive.FetchResult) string {
	if result.FinalURL != "" {
		return result.FinalURL
	}
	return result.URL
}

func fetchMode(headless bool) string {
	if headless {
		return "headless"
	}
	return "http"
}

// resolveAssetURL resolves an image reference against the page URL. It
// returns "" when no absolute http(s) URL can be formed.
func resolveAssetURL(pageURL, assetURL string) string {
	ref, err := url.Parse(strings.TrimSpace(assetURL))
	if err != nil {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// imageExtension picks a file extension from the content type, falling back
// to the URL path.
func imageExtension(contentType, assetURL string) string {
	switch {
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/gif"):
		return ".gif"
	case strings.HasPrefix(contentType, "image/webp"):
		return ".webp"
	case strings.HasPrefix(contentType, "image/svg"):
		return ".svg"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	if u, err := url.Parse(assetURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" {
			return ext
		}
	}
	return ".img"
}
