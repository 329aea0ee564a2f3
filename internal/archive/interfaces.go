package archive

import (
	"context"
	"time"
)

// Store persists archive records and their binary assets. Write commits the
// record and full asset set atomically: a concurrent reader observes either
// the prior complete record or the new one, never a mix.
type Store interface {
	Exists(ctx context.Context, id ArticleID) (bool, error)
	Read(ctx context.Context, id ArticleID) (Record, error)
	Write(ctx context.Context, id ArticleID, record Record, assets Assets) error
	LastScrapedAt(ctx context.Context, id ArticleID) (time.Time, bool, error)
}

// Ledger tracks per-ArticleID failure state across runs. Implementations
// must serialize internal mutations; callers may be concurrent workers.
type Ledger interface {
	Status(id ArticleID) Status
	// RecordFailure increments the failure count, starts a cooldown window,
	// and marks the id permanent once the count reaches the limit. The
	// updated record is returned so callers can observe the transition.
	RecordFailure(ctx context.Context, id ArticleID, url string, now time.Time) (FailureRecord, error)
	// RecordSuccess clears all failure state for the id.
	RecordSuccess(ctx context.Context, id ArticleID) error
}

// Fetcher retrieves one URL and returns the raw page plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResult, error)
}

// AssetFetcher downloads a single auxiliary asset (lead image). It returns
// the body and the response content type.
type AssetFetcher interface {
	FetchAsset(ctx context.Context, url string) ([]byte, string, error)
}

// Notifier publishes archive events for downstream consumers. Publish
// failures must never invalidate an already-committed archive.
type Notifier interface {
	Publish(ctx context.Context, event Event) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes digests for content integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}
