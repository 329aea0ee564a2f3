// Package linklist reads the curated link list. The list is a hand-edited
// YAML document grouped by section; the pipeline consumes it as a flat,
// ordered sequence of link records.
package linklist

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/linkvault/internal/archive"
)

type document struct {
	Sections []section `yaml:"sections"`
}

type section struct {
	Name  string  `yaml:"name"`
	Links []entry `yaml:"links"`
}

type entry struct {
	URL     string    `yaml:"url"`
	Tags    []string  `yaml:"tags"`
	Note    string    `yaml:"note"`
	AddedAt time.Time `yaml:"added_at"`
}

// Load parses the link list at path into ordered link records. Entries
// missing a URL fail the load: the list is the pipeline's source of truth
// and a malformed list should be fixed, not silently skipped.
func Load(path string) ([]archive.LinkRecord, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path by design.
	if err != nil {
		return nil, fmt.Errorf("read link list %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a link list document.
func Parse(raw []byte) ([]archive.LinkRecord, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse link list: %w", err)
	}

	var records []archive.LinkRecord
	for si, sec := range doc.Sections {
		name := strings.TrimSpace(sec.Name)
		if name == "" {
			return nil, fmt.Errorf("section %d has no name", si)
		}
		for li, link := range sec.Links {
			url := strings.TrimSpace(link.URL)
			if url == "" {
				return nil, fmt.Errorf("section %q link %d has no url", name, li)
			}
			records = append(records, archive.LinkRecord{
				URL:     url,
				Tags:    link.Tags,
				Note:    strings.TrimSpace(link.Note),
				Section: name,
				AddedAt: link.AddedAt,
			})
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("link list contains no links")
	}
	return records, nil
}
