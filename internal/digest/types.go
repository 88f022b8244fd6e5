package digest

import (
	"time"

	"newsdigest/internal/feed"
)

// Digest is the per-cycle, per-subscriber assembled content: an ordered set
// of category sections, each with exactly the configured item count. It is
// constructed fresh per delivery cycle, handed to the transport and
// discarded.
type Digest struct {
	SubscriberID string
	Slot         int
	GeneratedAt  time.Time
	Sections     []Section
	// MarketSummary is an optional trailing section from the external
	// market provider; empty when the provider is absent or failed.
	MarketSummary string
}

// Section is one category's curated items.
type Section struct {
	Category string
	Items    []feed.NewsItem
}

// Selection is the curator's output for one category.
type Selection struct {
	Items []feed.NewsItem
	// Fresh holds only the fresh-tier items actually included; these are
	// the only items recorded to the dedup ledger.
	Fresh      []feed.NewsItem
	SeenUsed   int
	FillerUsed int
}
