package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"newsdigest/internal/config"
	"newsdigest/internal/database"
	"newsdigest/internal/digest"
	"newsdigest/internal/feed"
	"newsdigest/internal/market"
	"newsdigest/internal/scheduler"
	"newsdigest/internal/transport"
)

var (
	// Version will be set during build
	Version = "dev"

	// Command line flags
	dbPath      = flag.String("db", "", "Path to database file (default: data/newsdigest.db or NEWSDIGEST_DB_PATH)")
	sourcesPath = flag.String("sources", "", "Path to sources JSON file (default: built-in registry or NEWSDIGEST_SOURCES_PATH)")
	subsPath    = flag.String("subscribers", "", "Path to subscribers JSON file (default: data/subscribers.json or NEWSDIGEST_SUBSCRIBERS_PATH)")
	slotSpec    = flag.String("slots", "", "Daily delivery slots as HH:MM,HH:MM,... (default: 08:00,13:00,19:00,23:00 or NEWSDIGEST_SLOTS)")
	version     = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("newsdigest version %s\n", Version)
		return
	}

	logger := log.New(os.Stdout, "newsdigest: ", log.LstdFlags|log.Lshortfile)

	cfg := config.GetConfig()
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *sourcesPath != "" {
		cfg.SourcesPath = *sourcesPath
	}
	if *subsPath != "" {
		cfg.SubscribersPath = *subsPath
	}
	if *slotSpec != "" {
		cfg.SlotSpec = *slotSpec
	}

	logger.Printf("Starting newsdigest v%s", Version)
	logger.Printf("Database: %s", cfg.DBPath)
	logger.Printf("Subscribers: %s", cfg.SubscribersPath)

	sources, err := config.LoadSources(cfg.SourcesPath)
	if err != nil {
		logger.Fatalf("Failed to load source registry: %v", err)
	}
	logger.Printf("Loaded %d sources", len(sources))

	slots, err := scheduler.ParseSlots(cfg.SlotSpec)
	if err != nil {
		logger.Fatalf("Failed to parse slots %q: %v", cfg.SlotSpec, err)
	}
	logger.Printf("Delivery slots: %s", cfg.SlotSpec)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		logger.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := database.NewDB(cfg.DBPath, database.DefaultConfig())
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	fetcher := feed.NewFetcher(logger, feed.FetcherConfig{
		SourceTimeout: time.Duration(cfg.SourceTimeoutSecs) * time.Second,
	})

	telegram := transport.NewTelegram(logger, cfg.TelegramToken)

	orch := digest.NewOrchestrator(logger, fetcher, db, telegram, sources, digest.Config{
		ItemsPerCategory: cfg.ItemsPerCategory,
		MaxPerSource:     cfg.MaxPerSource,
		RecencyWindow:    time.Duration(cfg.RecencyWindowHours) * time.Hour,
		CycleTimeout:     time.Duration(cfg.CycleTimeoutSecs) * time.Second,
	})
	if cfg.MarketEnabled {
		orch.SetMarketProvider(market.NewCoinGecko(logger))
	}

	store := scheduler.NewFileStore(cfg.SubscribersPath)
	cache := scheduler.NewSubscriberCache(store, logger, 5*time.Minute)

	sched := scheduler.New(logger, db, cache, orch, slots, time.Duration(cfg.TickSeconds)*time.Second)
	sched.Start()
	defer sched.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Printf("Received %s, shutting down", sig)
}
