// internal/feed/fetcher.go
package feed

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	// maxFeedBytes bounds a single feed download to avoid huge responses.
	maxFeedBytes = 5 << 20
	// maxItemsPerSource bounds how many entries one source contributes to a
	// cycle; curation never needs the long tail.
	maxItemsPerSource = 25
)

// Fetcher retrieves raw items from registered sources concurrently. One
// source timing out or returning malformed data is recorded as a failure in
// its report and never blocks sibling fetches or the cycle.
type Fetcher struct {
	logger        *log.Logger
	parser        *gofeed.Parser
	client        *http.Client
	sourceTimeout time.Duration
	concurrency   int
	userAgent     string
}

// FetcherConfig tunes per-source behavior. Zero values fall back to
// defaults suited to an IO-bound workload.
type FetcherConfig struct {
	SourceTimeout time.Duration
	Concurrency   int
	UserAgent     string
}

func NewFetcher(logger *log.Logger, cfg FetcherConfig) *Fetcher {
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 15 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "newsdigest/1.0"
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Fetcher{
		logger: logger,
		parser: gofeed.NewParser(),
		client: &http.Client{
			Timeout:   cfg.SourceTimeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		sourceTimeout: cfg.SourceTimeout,
		concurrency:   cfg.Concurrency,
		userAgent:     cfg.UserAgent,
	}
}

func defaultConcurrency() int {
	n := runtime.NumCPU() * 4
	if n < 4 {
		n = 4
	}
	if n > 32 {
		n = 32
	}
	return n
}

// FetchAll fetches every source in parallel behind a concurrency limiter and
// returns the union of successfully retrieved items plus a per-source
// report. An empty item list is a valid, degraded result.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]RawItem, []SourceReport) {
	results := make(chan FetchResult, len(sources))
	var wg sync.WaitGroup
	sem := make(chan struct{}, f.concurrency)

	for _, src := range sources {
		wg.Add(1)
		sem <- struct{}{}
		go func(src Source) {
			defer wg.Done()
			defer func() { <-sem }()
			results <- f.fetchSource(ctx, src)
		}(src)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var items []RawItem
	reports := make([]SourceReport, 0, len(sources))
	for result := range results {
		if result.Report.Err != nil {
			f.logger.Printf("Error fetching source %s (%s): %v",
				result.Report.Source.Name, result.Report.Source.Endpoint, result.Report.Err)
		}
		reports = append(reports, result.Report)
		items = append(items, result.Items...)
	}
	return items, reports
}

func (f *Fetcher) fetchSource(ctx context.Context, src Source) FetchResult {
	start := time.Now()
	result := FetchResult{Report: SourceReport{Source: src}}

	ctx, cancel := context.WithTimeout(ctx, f.sourceTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Endpoint, nil)
	if err != nil {
		result.Report.Err = fmt.Errorf("creating request: %w", err)
		result.Report.Elapsed = time.Since(start)
		return result
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		result.Report.Err = fmt.Errorf("fetching source: %w", err)
		result.Report.Elapsed = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		result.Report.Err = fmt.Errorf("unexpected response status %d", resp.StatusCode)
		result.Report.Elapsed = time.Since(start)
		return result
	}

	parsed, err := f.parser.Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		result.Report.Err = fmt.Errorf("parsing feed: %w", err)
		result.Report.Elapsed = time.Since(start)
		return result
	}
	if parsed == nil {
		result.Report.Err = fmt.Errorf("parsing feed: empty document")
		result.Report.Elapsed = time.Since(start)
		return result
	}

	items := make([]RawItem, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		if len(items) >= maxItemsPerSource {
			break
		}
		pub := it.PublishedParsed
		if pub == nil {
			pub = it.UpdatedParsed
		}
		raw := RawItem{
			Title:  it.Title,
			Link:   it.Link,
			Source: src,
		}
		if pub != nil {
			raw.PublishedAt = pub.UTC()
		}
		items = append(items, raw)
	}

	result.Items = items
	result.Report.ItemCount = len(items)
	result.Report.Elapsed = time.Since(start)
	return result
}
