package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/linkvault/internal/archive"
)

const (
	failuresFile  = "failures.json"
	permanentFile = "permanent.jsonl"
)

// FileBackend persists the ledger under a directory: a JSON document with
// all failure records, plus a JSON-lines file holding the append-only
// permanent set. The permanent file is only ever appended to; operator
// intervention is the sole way an entry leaves it.
type FileBackend struct {
	mu  sync.Mutex
	dir string
}

// NewFileBackend ensures the ledger directory exists.
func NewFileBackend(dir string) (*FileBackend, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("ledger directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// Load reads the failures document and merges in the permanent set. The
// permanent file wins on conflict: an id recorded there stays permanent
// even if the failures document was lost or rolled back.
func (b *FileBackend) Load(ctx context.Context) (map[archive.ArticleID]archive.FailureRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make(map[archive.ArticleID]archive.FailureRecord)

	raw, err := os.ReadFile(b.failuresPath()) // #nosec G304 -- fixed file name under the configured dir.
	switch {
	case os.IsNotExist(err):
		// First run.
	case err != nil:
		return nil, fmt.Errorf("read failures document: %w", err)
	default:
		var list []archive.FailureRecord
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("parse failures document: %w", err)
		}
		for _, record := range list {
			records[record.ArticleID] = record
		}
	}

	f, err := os.Open(b.permanentPath()) // #nosec G304 -- fixed file name under the configured dir.
	if os.IsNotExist(err) {
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open permanent set: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record archive.FailureRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("parse permanent entry: %w", err)
		}
		record.Permanent = true
		existing, ok := records[record.ArticleID]
		if !ok || !existing.Permanent {
			records[record.ArticleID] = record
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan permanent set: %w", err)
	}
	return records, nil
}

// Put rewrites the failures document. The ledger is sized for a curated
// link list, so a full rewrite per mutation is cheaper than it sounds and
// keeps the on-disk format a single readable document.
func (b *FileBackend) Put(ctx context.Context, record archive.FailureRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	records, err := b.readFailures()
	if err != nil {
		return err
	}
	records[record.ArticleID] = record

	list := make([]archive.FailureRecord, 0, len(records))
	for _, r := range records {
		list = append(list, r)
	}
	payload, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal failures document: %w", err)
	}

	tmp := b.failuresPath() + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write failures document: %w", err)
	}
	if err := os.Rename(tmp, b.failuresPath()); err != nil {
		return fmt.Errorf("commit failures document: %w", err)
	}
	return nil
}

// MarkPermanent appends one line to the permanent set.
func (b *FileBackend) MarkPermanent(ctx context.Context, record archive.FailureRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal permanent entry: %w", err)
	}

	f, err := os.OpenFile(b.permanentPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- fixed file name under the configured dir.
	if err != nil {
		return fmt.Errorf("open permanent set: %w", err)
	}
	defer f.Close() //nolint:errcheck // flushed below

	if _, err := f.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("append permanent entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync permanent set: %w", err)
	}
	return nil
}

func (b *FileBackend) readFailures() (map[archive.ArticleID]archive.FailureRecord, error) {
	records := make(map[archive.ArticleID]archive.FailureRecord)
	raw, err := os.ReadFile(b.failuresPath()) // #nosec G304 -- fixed file name under the configured dir.
	if os.IsNotExist(err) {
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read failures document: %w", err)
	}
	var list []archive.FailureRecord
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parse failures document: %w", err)
	}
	for _, record := range list {
		records[record.ArticleID] = record
	}
	return records, nil
}

func (b *FileBackend) failuresPath() string {
	return filepath.Join(b.dir, failuresFile)
}

func (b *FileBackend) permanentPath() string {
	return filepath.Join(b.dir, permanentFile)
}
