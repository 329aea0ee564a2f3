// Package archive defines core types shared across subsystems.
package archive

import (
	"time"
)

// LinkRecord is one entry of the curated link list. It is produced by an
// external editing step and treated as immutable input to a run.
type LinkRecord struct {
	URL     string    `yaml:"url" json:"url"`
	Tags    []string  `yaml:"tags" json:"tags,omitempty"`
	Note    string    `yaml:"note" json:"note,omitempty"`
	Section string    `yaml:"section" json:"section"`
	AddedAt time.Time `yaml:"added_at" json:"added_at"`
}

// PageMeta holds structured page metadata extracted from JSON-LD or
// OpenGraph tags. Every field is optional; absence is not an error.
type PageMeta struct {
	Type          string     `json:"type,omitempty"`
	Headline      string     `json:"headline,omitempty"`
	Author        string     `json:"author,omitempty"`
	SiteName      string     `json:"site_name,omitempty"`
	Description   string     `json:"description,omitempty"`
	DatePublished *time.Time `json:"date_published,omitempty"`
}

// Record is the metadata persisted for each archived URL. A new successful
// scrape fully replaces the prior record in one atomic commit.
type Record struct {
	ArticleID    ArticleID `json:"article_id"`
	URL          string    `json:"url"`
	FinalURL     string    `json:"final_url,omitempty"`
	ScrapedAt    time.Time `json:"scraped_at"`
	Title        string    `json:"title,omitempty"`
	BodyText     string    `json:"body_text,omitempty"`
	ContentHash  string    `json:"content_hash"`
	UsedHeadless bool      `json:"used_headless"`
	RawHTMLRef   string    `json:"raw_html_ref"`
	ImageRef     string    `json:"image_ref,omitempty"`
	PDFRef       string    `json:"pdf_ref,omitempty"`
	Meta         *PageMeta `json:"meta,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Section      string    `json:"section,omitempty"`
	Note         string    `json:"note,omitempty"`
}

// Assets are the binary artifacts committed alongside a Record. RawHTML is
// required; Image and PDF are optional.
type Assets struct {
	RawHTML  []byte
	Image    []byte
	ImageExt string
	PDF      []byte
}

// FetchRequest captures everything needed to fetch one URL.
type FetchRequest struct {
	URL       string
	RenderPDF bool
}

// FetchResult is the raw outcome returned by a Fetcher implementation.
// Extraction of title/body/metadata happens downstream.
type FetchResult struct {
	URL          string
	FinalURL     string
	StatusCode   int
	HTML         []byte
	PDF          []byte
	UsedHeadless bool
	Duration     time.Duration
}

// FailureRecord tracks retry bookkeeping for one ArticleID.
type FailureRecord struct {
	ArticleID     ArticleID  `json:"article_id"`
	URL           string     `json:"url"`
	FailureCount  int        `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Permanent     bool       `json:"permanent"`
}

// RetryState classifies an ArticleID's position in the retry state machine.
type RetryState int

// Retry states reported by the ledger.
const (
	StateNeverFailed RetryState = iota
	StateCooling
	StateRetryable
	StatePermanent
)

// String returns the state name used in logs and the failures listing.
func (s RetryState) String() string {
	switch s {
	case StateNeverFailed:
		return "never_failed"
	case StateCooling:
		return "cooling"
	case StateRetryable:
		return "retryable"
	case StatePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Status is the ledger's answer for one ArticleID. CooldownUntil is only
// meaningful when State == StateCooling.
type Status struct {
	State         RetryState
	CooldownUntil time.Time
}

// Event is published after each successful archive commit. Downstream
// enrichment (tagging, indexing) hangs off these events.
type Event struct {
	RunID     string    `json:"run_id"`
	ArticleID ArticleID `json:"article_id"`
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	ScrapedAt time.Time `json:"scraped_at"`
	Refresh   bool      `json:"refresh"`
}
