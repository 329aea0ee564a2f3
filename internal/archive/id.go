package archive

import (
	"crypto/sha1" // #nosec G505 -- identity derivation, not cryptographic integrity.
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ArticleID is the stable identity derived from a URL, used as the archive
// and failure-ledger key. It doubles as a filesystem-safe directory name.
type ArticleID string

var invalidIDChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// NormalizeURL standardizes a URL so that trivially different spellings map
// to the same ArticleID. It lowercases scheme and host, strips default
// ports and fragments, and sorts query parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q missing scheme or host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}

// IDFor derives the ArticleID for a URL: a readable host_path slug suffixed
// with a 16-hex-digit hash of the normalized URL. The slug part keeps the
// archive browsable on disk; the hash part guarantees stability and
// uniqueness.
func IDFor(rawURL string) (ArticleID, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return "", fmt.Errorf("parse normalized url: %w", err)
	}

	host := invalidIDChars.ReplaceAllString(u.Hostname(), "_")
	p := strings.Trim(u.EscapedPath(), "/")
	if p == "" {
		p = "root"
	}
	p = invalidIDChars.ReplaceAllString(p, "_")
	if len(p) > 80 {
		p = p[:80]
	}

	return ArticleID(fmt.Sprintf("%s_%s_%s", host, p, hashURL(normalized)[:16])), nil
}

func hashURL(raw string) string {
	sum := sha1.Sum([]byte(raw)) // #nosec G401 -- see note above on identity hashing.
	return hex.EncodeToString(sum[:])
}
