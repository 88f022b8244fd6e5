package digest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"newsdigest/internal/feed"

	"github.com/google/uuid"
)

var (
	// ErrLedgerWrite means dedup records could not be made durable; the
	// cycle fails closed and nothing is delivered.
	ErrLedgerWrite = errors.New("ledger write failed")
	// ErrDeliveryFailed means the transport rejected the digest beyond the
	// retry budget.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// Ledger is the narrow dedup interface the orchestrator needs. The store's
// own transaction discipline makes conditional inserts safe across
// concurrently firing cycles.
type Ledger interface {
	SeenIdentities(ctx context.Context, identities []string) (map[string]bool, error)
	RecordAll(ctx context.Context, items []feed.NewsItem, slot int) error
}

// Transport delivers an assembled digest to a subscriber. Implementations
// are treated as at-least-once with idempotent formatting on the far side.
type Transport interface {
	Deliver(ctx context.Context, subscriberID string, d *Digest) error
}

// MarketProvider supplies the optional market snapshot section. A failing
// provider degrades the digest, never the cycle.
type MarketProvider interface {
	Snapshot(ctx context.Context) (string, error)
}

// Fetcher is implemented by feed.Fetcher.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []feed.Source) ([]feed.RawItem, []feed.SourceReport)
}

// Config bounds one delivery cycle.
type Config struct {
	ItemsPerCategory int
	MaxPerSource     int
	RecencyWindow    time.Duration
	CycleTimeout     time.Duration
	LedgerRetries    int
	DeliverRetries   int
	RetryBackoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.ItemsPerCategory <= 0 {
		c.ItemsPerCategory = DefaultItemsPerCategory
	}
	if c.MaxPerSource <= 0 {
		c.MaxPerSource = DefaultMaxPerSource
	}
	if c.RecencyWindow <= 0 {
		c.RecencyWindow = 48 * time.Hour
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = 2 * time.Minute
	}
	if c.LedgerRetries <= 0 {
		c.LedgerRetries = 3
	}
	if c.DeliverRetries <= 0 {
		c.DeliverRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	return c
}

// Orchestrator runs one delivery cycle: fetch, normalize, curate per
// category, record fresh items durably, then hand the digest to the
// transport. Cycles for different subscribers are independent; no error
// crosses between them.
type Orchestrator struct {
	logger     *log.Logger
	fetcher    Fetcher
	ledger     Ledger
	transport  Transport
	market     MarketProvider
	sources    []feed.Source
	categories []string
	cfg        Config

	now func() time.Time
}

func NewOrchestrator(logger *log.Logger, fetcher Fetcher, ledger Ledger, transport Transport, sources []feed.Source, cfg Config) *Orchestrator {
	return &Orchestrator{
		logger:     logger,
		fetcher:    fetcher,
		ledger:     ledger,
		transport:  transport,
		sources:    sources,
		categories: categoryOrder(sources),
		cfg:        cfg.withDefaults(),
		now:        time.Now,
	}
}

// SetMarketProvider attaches the optional market snapshot provider.
func (o *Orchestrator) SetMarketProvider(p MarketProvider) {
	o.market = p
}

func categoryOrder(sources []feed.Source) []string {
	seen := make(map[string]bool)
	var order []string
	for _, s := range sources {
		if !seen[s.Category] {
			seen[s.Category] = true
			order = append(order, s.Category)
		}
	}
	return order
}

// Run executes one delivery cycle for (subscriber, slot). It returns an
// error only for cycle-fatal conditions; degraded fetches still deliver.
func (o *Orchestrator) Run(ctx context.Context, subscriberID string, slot int) error {
	cycleID := uuid.NewString()
	start := o.now()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.CycleTimeout)
	defer cancel()

	o.logger.Printf("[cycle %s] starting for subscriber=%s slot=%d", cycleID, subscriberID, slot)

	raws, reports := o.fetcher.FetchAll(ctx, o.sources)
	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
		}
	}
	items, rejected := feed.NormalizeAll(raws)
	o.logger.Printf("[cycle %s] fetched %d items from %d sources (%d failed, %d rejected)",
		cycleID, len(items), len(reports), failed, rejected)

	byCategory := make(map[string][]feed.NewsItem)
	for _, item := range items {
		byCategory[item.Category] = append(byCategory[item.Category], item)
	}

	d := &Digest{
		SubscriberID: subscriberID,
		Slot:         slot,
		GeneratedAt:  start.UTC(),
	}

	curateCfg := CurateConfig{ItemsPerCategory: o.cfg.ItemsPerCategory, MaxPerSource: o.cfg.MaxPerSource}
	for _, category := range o.categories {
		pool := feed.RecencyFilter(byCategory[category], start, o.cfg.RecencyWindow)

		ids := make([]string, len(pool))
		for i, item := range pool {
			ids[i] = item.Identity
		}
		seen, err := o.ledger.SeenIdentities(ctx, ids)
		if err != nil {
			// Fail closed: without ledger state we cannot prove an item is
			// new, and a duplicate must never go unrecorded.
			return fmt.Errorf("%w: reading ledger for %s: %v", ErrLedgerWrite, category, err)
		}

		sel := Curate(category, pool, seen, curateCfg, start)

		if err := o.recordWithRetry(ctx, sel.Fresh, slot); err != nil {
			return fmt.Errorf("%w: category %s: %v", ErrLedgerWrite, category, err)
		}

		o.logger.Printf("[cycle %s] category %s: %d fresh, %d seen, %d filler",
			cycleID, category, len(sel.Fresh), sel.SeenUsed, sel.FillerUsed)
		d.Sections = append(d.Sections, Section{Category: category, Items: sel.Items})
	}

	if o.market != nil {
		if summary, err := o.market.Snapshot(ctx); err != nil {
			o.logger.Printf("[cycle %s] market snapshot unavailable: %v", cycleID, err)
		} else {
			d.MarketSummary = summary
		}
	}

	if err := o.deliverWithRetry(ctx, subscriberID, d); err != nil {
		o.logger.Printf("[cycle %s] delivery failed for subscriber=%s: %v", cycleID, subscriberID, err)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	o.logger.Printf("[cycle %s] delivered to subscriber=%s in %s", cycleID, subscriberID, o.now().Sub(start))
	return nil
}

// recordWithRetry makes the fresh items durable before delivery. Ledger
// writes must complete before the digest is treated as deliverable.
func (o *Orchestrator) recordWithRetry(ctx context.Context, items []feed.NewsItem, slot int) error {
	if len(items) == 0 {
		return nil
	}
	var err error
	for attempt := 0; attempt < o.cfg.LedgerRetries; attempt++ {
		if err = o.ledger.RecordAll(ctx, items, slot); err == nil {
			return nil
		}
		if !sleepCtx(ctx, o.cfg.RetryBackoff<<attempt) {
			break
		}
	}
	return err
}

func (o *Orchestrator) deliverWithRetry(ctx context.Context, subscriberID string, d *Digest) error {
	var err error
	for attempt := 0; attempt < o.cfg.DeliverRetries; attempt++ {
		if err = o.transport.Deliver(ctx, subscriberID, d); err == nil {
			return nil
		}
		if !sleepCtx(ctx, o.cfg.RetryBackoff<<attempt) {
			break
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
