package airquality

import (
	"context"
	"io"
	"time"
)

// Fetcher issues one upstream GET and returns the body plus status.
// Non-success statuses are returned as responses; only transport failures are errors.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Archiver persists a raw feed response before it is processed.
type Archiver interface {
	Archive(ctx context.Context, city string, body []byte) (string, error)
}

// RecordStore upserts batches and answers liveness probes.
type RecordStore interface {
	Upsert(ctx context.Context, batch *Batch) (int, error)
	Liveness(ctx context.Context) error
}

// Publisher pushes batch notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
