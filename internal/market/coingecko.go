package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	defaultAPIBase = "https://api.coingecko.com"
	defaultFNGBase = "https://api.alternative.me"
	// moversCount is how many gainers and losers the movers section lists.
	moversCount = 5
)

var bigCapIDs = "bitcoin,ethereum,ripple,binancecoin,solana,tron,dogecoin,cardano"

// CoinGecko renders the optional crypto-market section of a digest from the
// public CoinGecko API. It implements digest.MarketProvider; any failure is
// returned to the orchestrator, which omits the section and carries on.
type CoinGecko struct {
	logger  *log.Logger
	client  *http.Client
	apiBase string
	fngBase string
}

func NewCoinGecko(logger *log.Logger) *CoinGecko {
	return &CoinGecko{
		logger:  logger,
		client:  &http.Client{Timeout: 15 * time.Second},
		apiBase: defaultAPIBase,
		fngBase: defaultFNGBase,
	}
}

// SetAPIBase overrides the API host, used by tests.
func (c *CoinGecko) SetAPIBase(base string) {
	c.apiBase = strings.TrimSuffix(base, "/")
}

// SetFNGBase overrides the fear/greed index host, used by tests.
func (c *CoinGecko) SetFNGBase(base string) {
	c.fngBase = strings.TrimSuffix(base, "/")
}

type globalResponse struct {
	Data struct {
		TotalMarketCap        map[string]float64 `json:"total_market_cap"`
		TotalVolume           map[string]float64 `json:"total_volume"`
		MarketCapChangePct24h float64            `json:"market_cap_change_percentage_24h_usd"`
	} `json:"data"`
}

type coinMarket struct {
	Symbol         string  `json:"symbol"`
	CurrentPrice   float64 `json:"current_price"`
	PriceChange24h float64 `json:"price_change_percentage_24h"`
}

type fngResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
	} `json:"data"`
}

// Snapshot fetches global market data, the fear/greed index, big-cap prices
// and the day's top movers, and formats the market section. Only the global
// figures are required; every other sub-section degrades to absence.
func (c *CoinGecko) Snapshot(ctx context.Context) (string, error) {
	var global globalResponse
	if err := c.getJSON(ctx, c.apiBase+"/api/v3/global", &global); err != nil {
		return "", fmt.Errorf("fetching global market data: %w", err)
	}

	marketCap := global.Data.TotalMarketCap["usd"]
	volume := global.Data.TotalVolume["usd"]
	if marketCap == 0 {
		return "", fmt.Errorf("global market data missing usd figures")
	}

	var sb strings.Builder
	sb.WriteString("*CRYPTO MARKET:*\n")
	fmt.Fprintf(&sb, "Market Cap (24h): %s (%+.2f%%)\n", humanNumber(marketCap), global.Data.MarketCapChangePct24h)
	fmt.Fprintf(&sb, "Volume (24h): %s\n", humanNumber(volume))

	var fng fngResponse
	if err := c.getJSON(ctx, c.fngBase+"/fng/?limit=1", &fng); err != nil {
		c.logger.Printf("Error fetching fear/greed index: %v", err)
	} else if len(fng.Data) > 0 {
		fmt.Fprintf(&sb, "Fear/Greed Index: %s/100 (%s)\n", fng.Data[0].Value, fng.Data[0].Classification)
	}

	var coins []coinMarket
	if err := c.getJSON(ctx, c.apiBase+"/api/v3/coins/markets?vs_currency=usd&ids="+bigCapIDs, &coins); err != nil {
		c.logger.Printf("Error fetching big cap prices: %v", err)
	} else if len(coins) > 0 {
		sb.WriteString("\n*Big Cap Crypto:*\n")
		for _, coin := range coins {
			fmt.Fprintf(&sb, "%s: $%.2f (%+.2f%%)\n",
				strings.ToUpper(coin.Symbol), coin.CurrentPrice, coin.PriceChange24h)
		}
	}

	var top []coinMarket
	if err := c.getJSON(ctx, c.apiBase+"/api/v3/coins/markets?vs_currency=usd&order=market_cap_desc&per_page=100", &top); err != nil {
		c.logger.Printf("Error fetching top movers: %v", err)
	} else if len(top) > 0 {
		writeMovers(&sb, top)
	}

	return sb.String(), nil
}

// writeMovers appends the top gainers and losers by 24h change among the
// largest caps.
func writeMovers(sb *strings.Builder, coins []coinMarket) {
	sorted := make([]coinMarket, len(coins))
	copy(sorted, coins)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PriceChange24h > sorted[j].PriceChange24h
	})

	n := moversCount
	if n > len(sorted) {
		n = len(sorted)
	}

	sb.WriteString("\n*Top Gainers (24h):*\n")
	for i := 0; i < n; i++ {
		c := sorted[i]
		fmt.Fprintf(sb, "%d. %s: $%.2f (%+.2f%%)\n", i+1, strings.ToUpper(c.Symbol), c.CurrentPrice, c.PriceChange24h)
	}

	sb.WriteString("\n*Top Losers (24h):*\n")
	for i := 0; i < n; i++ {
		c := sorted[len(sorted)-1-i]
		fmt.Fprintf(sb, "%d. %s: $%.2f (%+.2f%%)\n", i+1, strings.ToUpper(c.Symbol), c.CurrentPrice, c.PriceChange24h)
	}
}

func (c *CoinGecko) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// humanNumber formats a dollar amount with a T/B/M/K suffix.
func humanNumber(n float64) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e12:
		return fmt.Sprintf("$%.2fT", n/1e12)
	case abs >= 1e9:
		return fmt.Sprintf("$%.2fB", n/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("$%.2fM", n/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("$%.2fK", n/1e3)
	default:
		return fmt.Sprintf("$%.2f", n)
	}
}
