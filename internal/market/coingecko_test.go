package market

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const globalPayload = `{
	"data": {
		"total_market_cap": {"usd": 3240000000000},
		"total_volume": {"usd": 98700000000},
		"market_cap_change_percentage_24h_usd": 1.42
	}
}`

const bigCapsPayload = `[
	{"symbol": "btc", "current_price": 109412.55, "price_change_percentage_24h": 1.2},
	{"symbol": "eth", "current_price": 4120.01, "price_change_percentage_24h": -0.8}
]`

const fngPayload = `{"data": [{"value": "71", "value_classification": "Greed"}]}`

// moversPayload: twelve coins spanning the change range so gainer and loser
// picks are unambiguous.
func moversPayload() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < 12; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"symbol": "c%02d", "current_price": %d, "price_change_percentage_24h": %d}`,
			i, 100+i, i-6)
	}
	sb.WriteString("]")
	return sb.String()
}

// marketsHandler distinguishes the big-cap call (ids param) from the movers
// call (per_page param).
func marketsHandler(t *testing.T, w http.ResponseWriter, r *http.Request) {
	t.Helper()
	if got := r.URL.Query().Get("vs_currency"); got != "usd" {
		t.Errorf("expected vs_currency=usd, got %q", got)
	}
	if r.URL.Query().Get("ids") != "" {
		io.WriteString(w, bigCapsPayload)
		return
	}
	io.WriteString(w, moversPayload())
}

func newTestProvider(t *testing.T, handler http.Handler) *CoinGecko {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewCoinGecko(log.New(io.Discard, "", 0))
	c.SetAPIBase(srv.URL)
	c.SetFNGBase(srv.URL)
	return c
}

func TestSnapshot(t *testing.T) {
	c := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/global":
			io.WriteString(w, globalPayload)
		case "/api/v3/coins/markets":
			marketsHandler(t, w, r)
		case "/fng/":
			io.WriteString(w, fngPayload)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))

	summary, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	for _, want := range []string{
		"*CRYPTO MARKET:*",
		"Market Cap (24h): $3.24T (+1.42%)",
		"Volume (24h): $98.70B",
		"Fear/Greed Index: 71/100 (Greed)",
		"BTC: $109412.55 (+1.20%)",
		"ETH: $4120.01 (-0.80%)",
		"*Top Gainers (24h):*",
		"1. C11: $111.00 (+5.00%)",
		"*Top Losers (24h):*",
		"1. C00: $100.00 (-6.00%)",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestSnapshotGlobalFailure(t *testing.T) {
	c := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))

	if _, err := c.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error when global market data is unavailable")
	}
}

func TestSnapshotSubSectionFailuresDegrade(t *testing.T) {
	// Everything except the global figures fails; the snapshot still renders
	// the required section and omits the rest.
	c := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v3/global" {
			io.WriteString(w, globalPayload)
			return
		}
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))

	summary, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("sub-section failure must not fail the snapshot: %v", err)
	}
	if !strings.Contains(summary, "Market Cap (24h):") {
		t.Errorf("expected global section to survive, got:\n%s", summary)
	}
	for _, absent := range []string{"Big Cap Crypto", "Fear/Greed", "Top Gainers", "Top Losers"} {
		if strings.Contains(summary, absent) {
			t.Errorf("section %q present despite fetch failure:\n%s", absent, summary)
		}
	}
}

func TestSnapshotMissingUSDFigures(t *testing.T) {
	c := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": {"total_market_cap": {}, "total_volume": {}}}`)
	}))

	if _, err := c.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error for a payload without usd figures")
	}
}

func TestWriteMoversFewCoins(t *testing.T) {
	// Fewer coins than the movers count: both lists just shrink.
	var sb strings.Builder
	writeMovers(&sb, []coinMarket{
		{Symbol: "aaa", CurrentPrice: 1, PriceChange24h: 3},
		{Symbol: "bbb", CurrentPrice: 2, PriceChange24h: -3},
	})
	out := sb.String()
	if !strings.Contains(out, "1. AAA: $1.00 (+3.00%)") {
		t.Errorf("missing gainer line:\n%s", out)
	}
	if !strings.Contains(out, "1. BBB: $2.00 (-3.00%)") {
		t.Errorf("missing loser line:\n%s", out)
	}
	if strings.Count(out, "AAA") != 2 || strings.Count(out, "BBB") != 2 {
		// Two coins appear in both lists when the pool is tiny.
		t.Errorf("unexpected movers output:\n%s", out)
	}
}

func TestHumanNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{3.24e12, "$3.24T"},
		{98.7e9, "$98.70B"},
		{5.5e6, "$5.50M"},
		{1200, "$1.20K"},
		{42.5, "$42.50"},
		{-2.1e9, "$-2.10B"},
	}
	for _, tt := range tests {
		if got := humanNumber(tt.in); got != tt.want {
			t.Errorf("humanNumber(%g) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}
