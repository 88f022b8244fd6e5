package feed

import (
	"time"
)

// Source is one registered feed endpoint. Priority is the position within
// its category in the registry; lower is preferred when breaking ties.
type Source struct {
	Category  string `json:"category"`
	Name      string `json:"name"`
	Endpoint  string `json:"endpoint"`
	FetchKind string `json:"fetchKind"`
	Priority  int    `json:"-"`
}

// RawItem is the source-specific payload produced by the Fetcher. It is
// consumed immediately by the Normalizer and never persisted.
type RawItem struct {
	Title       string
	Link        string
	PublishedAt time.Time
	Source      Source
}

// NewsItem is the canonical item record. Immutable once constructed;
// Identity is the deduplication key.
type NewsItem struct {
	Identity       string
	Category       string
	Title          string
	URL            string
	PublishedAt    time.Time
	Source         string
	SourcePriority int
}

// SourceReport records the outcome of one source fetch within a cycle.
type SourceReport struct {
	Source    Source
	ItemCount int
	Err       error
	Elapsed   time.Duration
}

// FetchResult carries one source's items plus its report.
type FetchResult struct {
	Report SourceReport
	Items  []RawItem
}
