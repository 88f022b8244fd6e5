// internal/feed/normalizer.go
package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ErrRejected marks items that cannot be normalized into a NewsItem.
// Rejections are per-item and silently dropped by callers; they are counted
// for observability, never surfaced to subscribers.
var ErrRejected = errors.New("item rejected")

// trackingParams are query parameters stripped during URL canonicalization.
// Two fetches of the same story that differ only in these must produce the
// same identity.
var trackingParams = map[string]bool{
	"fbclid":        true,
	"gclid":         true,
	"igshid":        true,
	"mc_cid":        true,
	"mc_eid":        true,
	"cmpid":         true,
	"ref":           true,
	"referrer":      true,
	"source":        true,
	"partner":       true,
	"ocid":          true,
	"ftag":          true,
	"smid":          true,
	"sh":            true,
	"guccounter":    true,
	"guce_referrer": true,
}

// Normalize converts a RawItem into a canonical NewsItem. It is pure and
// deterministic: identical input yields an identical identity. Items missing
// a usable title or link, or whose published time cannot be resolved, are
// rejected.
func Normalize(raw RawItem) (NewsItem, error) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return NewsItem{}, fmt.Errorf("%w: missing title", ErrRejected)
	}

	link := strings.TrimSpace(raw.Link)
	if link == "" || link == "#" {
		return NewsItem{}, fmt.Errorf("%w: missing link", ErrRejected)
	}

	if raw.PublishedAt.IsZero() {
		return NewsItem{}, fmt.Errorf("%w: unresolvable published time", ErrRejected)
	}

	canonical, err := CanonicalURL(link)
	if err != nil {
		// Fall back to title+source identity for links that do not parse
		// but still point somewhere a reader can follow.
		canonical = ""
	}

	item := NewsItem{
		Category:       raw.Source.Category,
		Title:          title,
		URL:            link,
		PublishedAt:    raw.PublishedAt.UTC(),
		Source:         raw.Source.Name,
		SourcePriority: raw.Source.Priority,
	}
	if canonical != "" {
		item.Identity = identityHash(canonical)
	} else {
		item.Identity = identityHash(strings.ToLower(title) + "|" + raw.Source.Name)
	}
	return item, nil
}

// CanonicalURL reduces a URL to its stable form: lowercased scheme and host,
// default ports and fragments dropped, tracking parameters removed, remaining
// query sorted, trailing slash trimmed.
func CanonicalURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url missing scheme or host: %s", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	// Only the port that is default for the scheme is redundant.
	switch u.Scheme {
	case "http":
		host = strings.TrimSuffix(host, ":80")
	case "https":
		host = strings.TrimSuffix(host, ":443")
	}
	u.Host = host
	u.Fragment = ""

	q := u.Query()
	kept := url.Values{}
	for key, vals := range q {
		lower := strings.ToLower(key)
		if trackingParams[lower] || strings.HasPrefix(lower, "utm_") {
			continue
		}
		for _, v := range vals {
			kept.Add(key, v)
		}
	}
	keys := make([]string, 0, len(kept))
	for k := range kept {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		vs := kept[k]
		sort.Strings(vs)
		for _, v := range vs {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}
	u.RawQuery = sb.String()

	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

func identityHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// NormalizeAll runs Normalize over a batch and returns the accepted items
// plus the rejection count. Rejection reasons are not returned; the caller
// only needs the tally.
func NormalizeAll(raws []RawItem) ([]NewsItem, int) {
	items := make([]NewsItem, 0, len(raws))
	rejected := 0
	for _, raw := range raws {
		item, err := Normalize(raw)
		if err != nil {
			rejected++
			continue
		}
		items = append(items, item)
	}
	return items, rejected
}

// RecencyFilter returns the items published within window of now, most
// recent first.
func RecencyFilter(items []NewsItem, now time.Time, window time.Duration) []NewsItem {
	cutoff := now.Add(-window)
	kept := make([]NewsItem, 0, len(items))
	for _, it := range items {
		if it.PublishedAt.Before(cutoff) || it.PublishedAt.After(now.Add(time.Minute)) {
			continue
		}
		kept = append(kept, it)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if !kept[i].PublishedAt.Equal(kept[j].PublishedAt) {
			return kept[i].PublishedAt.After(kept[j].PublishedAt)
		}
		if kept[i].SourcePriority != kept[j].SourcePriority {
			return kept[i].SourcePriority < kept[j].SourcePriority
		}
		return kept[i].Identity < kept[j].Identity
	})
	return kept
}
