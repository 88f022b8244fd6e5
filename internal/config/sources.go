package config

import (
	"encoding/json"
	"fmt"
	"os"

	"newsdigest/internal/feed"
)

// Source registry: a static list of {category, name, endpoint, fetchKind},
// loaded once at startup. Hot reload is deliberately not supported.

var validFetchKinds = map[string]bool{
	"rss":  true,
	"atom": true,
}

// LoadSources reads the registry from a JSON file, or returns the built-in
// defaults when path is empty. Priority is assigned from position within
// each category: earlier sources win ties during curation.
func LoadSources(path string) ([]feed.Source, error) {
	if path == "" {
		return assignPriorities(defaultSources()), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sources file: %w", err)
	}

	var sources []feed.Source
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("parsing sources file: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("sources file %s lists no sources", path)
	}

	for i, s := range sources {
		if s.Category == "" || s.Name == "" || s.Endpoint == "" {
			return nil, fmt.Errorf("source %d: category, name and endpoint are required", i)
		}
		if !validFetchKinds[s.FetchKind] {
			return nil, fmt.Errorf("source %q: unknown fetchKind %q", s.Name, s.FetchKind)
		}
	}
	return assignPriorities(sources), nil
}

func assignPriorities(sources []feed.Source) []feed.Source {
	perCategory := make(map[string]int)
	for i := range sources {
		sources[i].Priority = perCategory[sources[i].Category]
		perCategory[sources[i].Category]++
	}
	return sources
}

func defaultSources() []feed.Source {
	return []feed.Source{
		{Category: "local", Name: "Prothom Alo", Endpoint: "https://www.prothomalo.com/feed", FetchKind: "rss"},
		{Category: "local", Name: "BDNews24", Endpoint: "https://bdnews24.com/feed", FetchKind: "rss"},
		{Category: "local", Name: "Dhaka Tribune", Endpoint: "https://www.dhakatribune.com/articles.rss", FetchKind: "rss"},
		{Category: "local", Name: "Ittefaq", Endpoint: "https://www.ittefaq.com.bd/rss.xml", FetchKind: "rss"},

		{Category: "global", Name: "BBC", Endpoint: "http://feeds.bbci.co.uk/news/rss.xml", FetchKind: "rss"},
		{Category: "global", Name: "Al Jazeera", Endpoint: "https://www.aljazeera.com/xml/rss/all.xml", FetchKind: "rss"},
		{Category: "global", Name: "The Guardian", Endpoint: "https://www.theguardian.com/world/rss", FetchKind: "rss"},
		{Category: "global", Name: "NBC News", Endpoint: "https://feeds.nbcnews.com/nbcnews/public/news", FetchKind: "rss"},
		{Category: "global", Name: "The New York Times", Endpoint: "https://rss.nytimes.com/services/xml/rss/nyt/HomePage.xml", FetchKind: "rss"},

		{Category: "tech", Name: "TechCrunch", Endpoint: "http://feeds.feedburner.com/TechCrunch/", FetchKind: "rss"},
		{Category: "tech", Name: "The Verge", Endpoint: "https://www.theverge.com/rss/index.xml", FetchKind: "atom"},
		{Category: "tech", Name: "Ars Technica", Endpoint: "https://feeds.arstechnica.com/arstechnica/index", FetchKind: "rss"},
		{Category: "tech", Name: "Engadget", Endpoint: "https://www.engadget.com/rss.xml", FetchKind: "rss"},

		{Category: "sports", Name: "ESPN", Endpoint: "https://www.espn.com/espn/rss/news", FetchKind: "rss"},
		{Category: "sports", Name: "Sky Sports", Endpoint: "https://www.skysports.com/rss/12040", FetchKind: "rss"},
		{Category: "sports", Name: "BBC Sport", Endpoint: "http://feeds.bbci.co.uk/sport/rss.xml", FetchKind: "rss"},
		{Category: "sports", Name: "The Guardian Sport", Endpoint: "https://www.theguardian.com/sport/rss", FetchKind: "rss"},

		{Category: "crypto", Name: "Cointelegraph", Endpoint: "https://cointelegraph.com/rss", FetchKind: "rss"},
		{Category: "crypto", Name: "Decrypt", Endpoint: "https://decrypt.co/feed", FetchKind: "rss"},
		{Category: "crypto", Name: "Coindesk", Endpoint: "https://www.coindesk.com/arc/outboundfeeds/rss/", FetchKind: "rss"},
		{Category: "crypto", Name: "CryptoSlate", Endpoint: "https://cryptoslate.com/feed/", FetchKind: "rss"},
	}
}
