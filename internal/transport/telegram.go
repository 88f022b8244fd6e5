// internal/transport/telegram.go
package transport

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"newsdigest/internal/digest"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	// Telegram rejects messages longer than 4096 characters.
	maxMessageLen = 4096
)

var categoryHeadings = map[string]string{
	"local":  "LOCAL NEWS",
	"global": "GLOBAL NEWS",
	"tech":   "TECH NEWS",
	"sports": "SPORTS NEWS",
	"crypto": "CRYPTO & FINANCE NEWS",
}

// Telegram delivers digests through the Bot API sendMessage endpoint. The
// subscriber ID is the chat ID. Formatting is deterministic so redelivery of
// the same digest produces the same messages.
type Telegram struct {
	logger  *log.Logger
	client  *http.Client
	token   string
	apiBase string

	now func() time.Time
}

func NewTelegram(logger *log.Logger, token string) *Telegram {
	return &Telegram{
		logger:  logger,
		client:  &http.Client{Timeout: 30 * time.Second},
		token:   token,
		apiBase: defaultAPIBase,
		now:     time.Now,
	}
}

// SetAPIBase overrides the Bot API host, used by tests.
func (t *Telegram) SetAPIBase(base string) {
	t.apiBase = strings.TrimSuffix(base, "/")
}

// Deliver renders the digest and sends it, splitting into multiple messages
// when over the length cap. An error from any chunk fails the delivery; the
// orchestrator retries the whole digest.
func (t *Telegram) Deliver(ctx context.Context, subscriberID string, d *digest.Digest) error {
	if t.token == "" {
		return fmt.Errorf("telegram token not configured")
	}

	text := t.Render(d)
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if err := t.sendMessage(ctx, subscriberID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (t *Telegram) sendMessage(ctx context.Context, chatID, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	form := url.Values{
		"chat_id":                  {chatID},
		"text":                     {text},
		"parse_mode":               {"Markdown"},
		"disable_web_page_preview": {"true"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Render produces the digest text: a dated header, one numbered block per
// category, and the market section when present.
func (t *Telegram) Render(d *digest.Digest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*DAILY NEWS DIGEST*\n_%s_\n\n", d.GeneratedAt.Format("Jan 2, 2006 15:04 MST"))

	for _, section := range d.Sections {
		heading := categoryHeadings[section.Category]
		if heading == "" {
			heading = strings.ToUpper(section.Category)
		}
		fmt.Fprintf(&sb, "*%s:*\n", heading)
		for i, item := range section.Items {
			fmt.Fprintf(&sb, "%d. [%s](%s) - %s (%s)\n",
				i+1, sanitizeTitle(item.Title), item.URL, item.Source, relativeAge(item.PublishedAt, t.now()))
		}
		sb.WriteString("\n")
	}

	if d.MarketSummary != "" {
		sb.WriteString(d.MarketSummary)
		sb.WriteString("\n")
	}
	return sb.String()
}

// sanitizeTitle strips the characters that break Markdown link syntax.
func sanitizeTitle(title string) string {
	r := strings.NewReplacer("[", "", "]", "", "*", "", "_", "", "`", "")
	return r.Replace(title)
}

// relativeAge renders a published time as "Xmin ago", "Xhr ago" or "Xd ago".
func relativeAge(published, now time.Time) string {
	if published.IsZero() || published.After(now) {
		return "just now"
	}
	delta := now.Sub(published)
	switch {
	case delta >= 24*time.Hour:
		return fmt.Sprintf("%dd ago", int(delta.Hours())/24)
	case delta >= time.Hour:
		return fmt.Sprintf("%dhr ago", int(delta.Hours()))
	case delta >= time.Minute:
		return fmt.Sprintf("%dmin ago", int(delta.Minutes()))
	default:
		return "just now"
	}
}

// splitMessage cuts text into chunks of at most limit characters, breaking
// on newlines so no item line is split mid-link.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		if current.Len()+len(line) > limit && current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		// A single oversized line gets hard-cut, on a rune boundary so
		// multi-byte titles are never split mid-sequence.
		for len(line) > limit {
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
