package digest

import (
	"time"

	"newsdigest/internal/feed"
)

const (
	// DefaultItemsPerCategory is the fixed digest size N per category.
	DefaultItemsPerCategory = 5
	// DefaultMaxPerSource caps how many items one source may contribute to
	// the fresh and seen tiers of a single section.
	DefaultMaxPerSource = 3
)

// CurateConfig tunes the tiered selection. Zero values use defaults.
type CurateConfig struct {
	ItemsPerCategory int
	MaxPerSource     int
}

func (c CurateConfig) withDefaults() CurateConfig {
	if c.ItemsPerCategory <= 0 {
		c.ItemsPerCategory = DefaultItemsPerCategory
	}
	if c.MaxPerSource <= 0 {
		c.MaxPerSource = DefaultMaxPerSource
	}
	return c
}

// Curate selects exactly N items for one category from a recency-ordered
// pool. Tier order: fresh items (not in the dedup ledger), then seen items,
// then static filler. The pool must already be sorted most recent first with
// ties broken by source priority then identity; relative order is preserved
// within each tier. The invariant holds even for an empty pool: the result
// is all filler.
func Curate(category string, pool []feed.NewsItem, seen map[string]bool, cfg CurateConfig, now time.Time) Selection {
	cfg = cfg.withDefaults()

	var fresh, stale []feed.NewsItem
	for _, item := range pool {
		if seen[item.Identity] {
			stale = append(stale, item)
		} else {
			fresh = append(fresh, item)
		}
	}

	sel := Selection{}
	perSource := make(map[string]int)
	taken := make(map[string]bool)

	take := func(tier []feed.NewsItem) int {
		n := 0
		for _, item := range tier {
			if len(sel.Items) >= cfg.ItemsPerCategory {
				break
			}
			if taken[item.Identity] {
				continue
			}
			if perSource[item.Source] >= cfg.MaxPerSource {
				continue
			}
			sel.Items = append(sel.Items, item)
			taken[item.Identity] = true
			perSource[item.Source]++
			n++
		}
		return n
	}

	freshTaken := take(fresh)
	sel.Fresh = append(sel.Fresh, sel.Items[:freshTaken]...)
	sel.SeenUsed = take(stale)

	if missing := cfg.ItemsPerCategory - len(sel.Items); missing > 0 {
		sel.Items = append(sel.Items, Filler(category, missing, now)...)
		sel.FillerUsed = missing
	}

	return sel
}
