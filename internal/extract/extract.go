// Package extract turns fetched HTML into archive-ready fields: readable
// title and body, the lead image URL, and validated structured metadata.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/JakeFAU/linkvault/internal/archive"
)

// Result carries everything extraction could recover. Extraction failure is
// partial success, not a fetch failure: callers archive whatever is here.
type Result struct {
	Title        string
	BodyText     string
	Excerpt      string
	LeadImageURL string
	Meta         *archive.PageMeta
}

// Extractor parses pages. Safe for concurrent use.
type Extractor struct {
	converter *md.Converter
}

// New builds an Extractor with a default markdown converter.
func New() *Extractor {
	return &Extractor{converter: md.NewConverter("", true, nil)}
}

// Extract parses html fetched from pageURL. The returned error reports a
// parse problem; Result is still meaningful (often just metadata) when the
// error is non-nil.
func (e *Extractor) Extract(pageURL string, html []byte) (Result, error) {
	var result Result

	parsedURL, urlErr := url.Parse(pageURL)
	if urlErr != nil {
		parsedURL = nil
	}

	doc, docErr := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if docErr == nil {
		result.Meta = pageMeta(doc)
		result.LeadImageURL = ogImage(doc)
	}

	article, readErr := readability.FromReader(bytes.NewReader(html), parsedURL)
	if readErr != nil {
		if docErr != nil {
			return result, fmt.Errorf("parse document: %w", docErr)
		}
		// Readability gave up; keep what the metadata pass recovered.
		result.Title = docTitle(doc)
		return result, fmt.Errorf("extract readable content: %w", readErr)
	}

	result.Title = strings.TrimSpace(article.Title)
	result.Excerpt = strings.TrimSpace(article.Excerpt)
	if article.Image != "" {
		result.LeadImageURL = article.Image
	}

	if body, err := e.converter.ConvertString(article.Content); err == nil {
		result.BodyText = strings.TrimSpace(body)
	} else {
		result.BodyText = strings.TrimSpace(article.TextContent)
	}
	if result.BodyText == "" {
		return result, fmt.Errorf("no readable body in %s", pageURL)
	}
	return result, nil
}

func docTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func ogImage(doc *goquery.Document) string {
	content, _ := doc.Find(`meta[property="og:image"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

// jsonLD mirrors the loosely-typed JSON-LD blobs sites embed. Author and
// publisher show up as strings, objects, or arrays in the wild.
type jsonLD struct {
	Type          string          `json:"@type"`
	Headline      string          `json:"headline"`
	Description   string          `json:"description"`
	DatePublished string          `json:"datePublished"`
	Author        json.RawMessage `json:"author"`
	Publisher     json.RawMessage `json:"publisher"`
}

// pageMeta builds a validated PageMeta from JSON-LD, falling back to
// OpenGraph tags. Returns nil when nothing useful was found.
func pageMeta(doc *goquery.Document) *archive.PageMeta {
	meta := &archive.PageMeta{}

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var ld jsonLD
		if err := json.Unmarshal([]byte(sel.Text()), &ld); err != nil {
			return true
		}
		if ld.Headline == "" && ld.Type == "" {
			return true
		}
		meta.Type = ld.Type
		meta.Headline = ld.Headline
		meta.Description = ld.Description
		meta.Author = nameFromEntity(ld.Author)
		meta.SiteName = nameFromEntity(ld.Publisher)
		if ts := parseDate(ld.DatePublished); ts != nil {
			meta.DatePublished = ts
		}
		return false
	})

	if meta.SiteName == "" {
		if v, ok := doc.Find(`meta[property="og:site_name"]`).First().Attr("content"); ok {
			meta.SiteName = strings.TrimSpace(v)
		}
	}
	if meta.Description == "" {
		if v, ok := doc.Find(`meta[property="og:description"]`).First().Attr("content"); ok {
			meta.Description = strings.TrimSpace(v)
		}
	}

	if *meta == (archive.PageMeta{}) {
		return nil
	}
	return meta
}

// nameFromEntity pulls a display name out of a JSON-LD entity that may be a
// bare string, an object with a name field, or an array of either.
func nameFromEntity(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Name != "" {
		return strings.TrimSpace(obj.Name)
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return nameFromEntity(list[0])
	}
	return ""
}

func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}
