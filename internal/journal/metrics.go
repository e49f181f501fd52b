package journal

import "context"

type Totals struct {
	Count        int64 `json:"count"`
	UniqueDates  int64 `json:"unique_dates"`
	UniqueEvents int64 `json:"unique_events"`
}

type Bucket struct {
	BucketStart  int64 `json:"bucket_start"`
	Count        int64 `json:"count"`
	UniqueDates  int64 `json:"unique_dates"`
	UniqueEvents int64 `json:"unique_events"`
}

// Query selects journal rows by commit time (epoch seconds, inclusive) and
// optionally by op. An empty Op means all ops.
type Query struct {
	Op   string
	From int64
	To   int64
}

// Reader is implemented by sinks that can aggregate what they stored.
type Reader interface {
	QueryTotals(ctx context.Context, q Query) (Totals, error)
	QueryBucketsDaily(ctx context.Context, q Query) ([]Bucket, error)
	Ready(ctx context.Context) error
}
