// Package fs implements the archive store on the local filesystem. Each
// article occupies one directory; commits go through a staging area and a
// directory rename so a crash never leaves a torn record visible.
package fs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkvault/internal/archive"
)

const (
	metadataFile = "article.json"
	rawHTMLFile  = "page.html"
	pdfFile      = "article.pdf"
	imageStem    = "image"

	stagingDir = ".staging"
	trashDir   = ".trash"
)

// Config captures the parameters for the filesystem store.
type Config struct {
	// Root is the directory holding one subdirectory per ArticleID.
	Root string `mapstructure:"root" yaml:"root"`
}

// Store is a filesystem-backed archive.Store. All commits are serialized
// through an internal lock; concurrent workers target distinct ArticleIDs
// but share the staging and trash areas.
type Store struct {
	root   string
	mu     sync.Mutex
	logger *zap.Logger
}

// New creates the store, ensuring the root exists and is writable.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("archive root is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(cfg.Root)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("archive root %s is not a directory", cfg.Root)
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.Root, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create archive root: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat archive root: %w", err)
	}

	probe := filepath.Join(cfg.Root, ".writable_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return nil, fmt.Errorf("archive root is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up write probe: %w", err)
	}

	return &Store{root: cfg.Root, logger: logger}, nil
}

// Recover sweeps remnants of interrupted runs. Staging entries never reached
// the commit rename and are deleted; trash entries are a prior version moved
// aside mid-swap and are restored when the article directory is missing.
func (s *Store) Recover(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	staged, err := os.ReadDir(filepath.Join(s.root, stagingDir))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("scan staging: %w", err)
	}
	for _, entry := range staged {
		path := filepath.Join(s.root, stagingDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("drop stale staging %s: %w", entry.Name(), err)
		}
		s.logger.Info("dropped stale staging entry", zap.String("entry", entry.Name()))
	}

	trashed, err := os.ReadDir(filepath.Join(s.root, trashDir))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("scan trash: %w", err)
	}
	for _, entry := range trashed {
		id, ok := trashArticleID(entry.Name())
		path := filepath.Join(s.root, trashDir, entry.Name())
		if !ok {
			if err := os.RemoveAll(path); err != nil {
				return fmt.Errorf("drop unrecognized trash %s: %w", entry.Name(), err)
			}
			continue
		}
		target := s.articleDir(id)
		if _, statErr := os.Stat(target); os.IsNotExist(statErr) {
			if err := os.Rename(path, target); err != nil {
				return fmt.Errorf("restore %s from trash: %w", id, err)
			}
			s.logger.Info("restored article from trash", zap.String("article_id", string(id)))
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("drop superseded trash %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Exists reports whether a committed record with valid metadata is present.
func (s *Store) Exists(ctx context.Context, id archive.ArticleID) (bool, error) {
	_, err := s.Read(ctx, id)
	if errors.Is(err, archive.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Read loads the metadata record for id. A missing directory, missing
// metadata file, or unparseable metadata all report ErrNotFound: only a
// valid metadata document counts as archived.
func (s *Store) Read(ctx context.Context, id archive.ArticleID) (archive.Record, error) {
	if err := ctx.Err(); err != nil {
		return archive.Record{}, err
	}
	raw, err := os.ReadFile(filepath.Join(s.articleDir(id), metadataFile)) // #nosec G304 -- path derived from a sanitized ArticleID.
	if err != nil {
		if os.IsNotExist(err) {
			return archive.Record{}, archive.ErrNotFound
		}
		return archive.Record{}, fmt.Errorf("read metadata for %s: %w", id, err)
	}
	var record archive.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		s.logger.Warn("invalid metadata document, treating as not archived",
			zap.String("article_id", string(id)), zap.Error(err))
		return archive.Record{}, archive.ErrNotFound
	}
	return record, nil
}

// LastScrapedAt returns when id was last successfully archived. The second
// return is false when no record exists.
func (s *Store) LastScrapedAt(ctx context.Context, id archive.ArticleID) (time.Time, bool, error) {
	record, err := s.Read(ctx, id)
	if errors.Is(err, archive.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return record.ScrapedAt, true, nil
}

// Write persists the record and its assets atomically. The full set is
// staged first; the commit is a directory rename, with any prior version
// moved aside and removed only after the swap lands. Failures surface as
// StorageError since they indicate an environment problem.
func (s *Store) Write(ctx context.Context, id archive.ArticleID, record archive.Record, assets archive.Assets) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(assets.RawHTML) == 0 {
		return &archive.StorageError{Op: "stage", Err: fmt.Errorf("raw HTML asset is required for %s", id)}
	}

	nonce, err := randomNonce()
	if err != nil {
		return &archive.StorageError{Op: "stage", Err: err}
	}

	staging := filepath.Join(s.root, stagingDir, fmt.Sprintf("%s.%s", id, nonce))
	if err := s.stage(staging, id, record, assets); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commit(staging, id, nonce); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}
	return nil
}

func (s *Store) stage(staging string, id archive.ArticleID, record archive.Record, assets archive.Assets) error {
	if err := os.MkdirAll(staging, 0o750); err != nil {
		return &archive.StorageError{Op: "stage", Err: fmt.Errorf("create staging dir: %w", err)}
	}

	record.RawHTMLRef = rawHTMLFile
	if err := os.WriteFile(filepath.Join(staging, rawHTMLFile), assets.RawHTML, 0o600); err != nil {
		return &archive.StorageError{Op: "stage", Err: fmt.Errorf("write raw HTML: %w", err)}
	}

	if len(assets.Image) > 0 {
		ext := assets.ImageExt
		if ext == "" {
			ext = ".img"
		}
		name := imageStem + ext
		if err := os.WriteFile(filepath.Join(staging, name), assets.Image, 0o600); err != nil {
			return &archive.StorageError{Op: "stage", Err: fmt.Errorf("write image: %w", err)}
		}
		record.ImageRef = name
	}

	if len(assets.PDF) > 0 {
		if err := os.WriteFile(filepath.Join(staging, pdfFile), assets.PDF, 0o600); err != nil {
			return &archive.StorageError{Op: "stage", Err: fmt.Errorf("write pdf: %w", err)}
		}
		record.PDFRef = pdfFile
	}

	record.ArticleID = id
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return &archive.StorageError{Op: "stage", Err: fmt.Errorf("marshal metadata: %w", err)}
	}
	if err := os.WriteFile(filepath.Join(staging, metadataFile), payload, 0o600); err != nil {
		return &archive.StorageError{Op: "stage", Err: fmt.Errorf("write metadata: %w", err)}
	}
	return nil
}

func (s *Store) commit(staging string, id archive.ArticleID, nonce string) error {
	target := s.articleDir(id)

	var trashed string
	if _, err := os.Stat(target); err == nil {
		if err := os.MkdirAll(filepath.Join(s.root, trashDir), 0o750); err != nil {
			return &archive.StorageError{Op: "commit", Err: fmt.Errorf("create trash dir: %w", err)}
		}
		trashed = filepath.Join(s.root, trashDir, fmt.Sprintf("%s.%s", id, nonce))
		if err := os.Rename(target, trashed); err != nil {
			return &archive.StorageError{Op: "commit", Err: fmt.Errorf("move prior version aside: %w", err)}
		}
	} else if !os.IsNotExist(err) {
		return &archive.StorageError{Op: "commit", Err: fmt.Errorf("stat target: %w", err)}
	}

	if err := os.Rename(staging, target); err != nil {
		// Swap failed: put the prior version back so the old record stays
		// visible rather than disappearing.
		if trashed != "" {
			if restoreErr := os.Rename(trashed, target); restoreErr != nil {
				s.logger.Error("failed to restore prior version after aborted commit",
					zap.String("article_id", string(id)), zap.Error(restoreErr))
			}
		}
		return &archive.StorageError{Op: "commit", Err: fmt.Errorf("swap in new version: %w", err)}
	}

	if trashed != "" {
		if err := os.RemoveAll(trashed); err != nil {
			s.logger.Warn("failed to remove trashed prior version; Recover will clean it",
				zap.String("article_id", string(id)), zap.Error(err))
		}
	}
	return nil
}

func (s *Store) articleDir(id archive.ArticleID) string {
	return filepath.Join(s.root, string(id))
}

// trashArticleID strips the commit nonce from a trash entry name.
func trashArticleID(name string) (archive.ArticleID, bool) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return "", false
	}
	return archive.ArticleID(name[:idx]), true
}

func randomNonce() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate commit nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
