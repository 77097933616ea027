package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cardpulse_scraper/config"
	"cardpulse_scraper/delivery"
	"cardpulse_scraper/httputil"
	"cardpulse_scraper/logging"
	"cardpulse_scraper/normalize"
	"cardpulse_scraper/scheduler"
	"cardpulse_scraper/scraper"
	"cardpulse_scraper/server"
	"cardpulse_scraper/storage"
)

var (
	scrapeNow = flag.Bool("scrape", false, "Run one scrape and exit")
	query     = flag.String("query", "", "Query for -scrape")
	sweepNow  = flag.Bool("sweep", false, "Run one tracked-query sweep and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("scraper.log")
	if err != nil {
		logging.Warnf("Could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting cardpulse_scraper...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.SetLevel(cfg.LogLevel)

	market, ok := cfg.Markets["ebay"]
	if !ok {
		log.Fatalf("No ebay market config found under config/markets")
	}
	log.Printf("Market: %s (%s)", market.Name, market.ID)

	clients := httputil.NewClients(cfg.Sink.Timeout)

	fetcher := scraper.NewFetcher(clients.Scraping, market.RateLimitMS)
	var source scraper.Source = scraper.NewHTTPSource(fetcher, market)

	var browser *scraper.BrowserSource
	if cfg.Scraper.BrowserFallback {
		browser = scraper.NewBrowserSource(market)
		source = &scraper.FallbackSource{Primary: source, Fallback: browser}
		defer browser.Close()
		log.Println("Browser fallback enabled")
	}

	extractor := scraper.NewCardExtractor(market.ID, market.MaxCards)
	parser := scraper.NewListingParser(source, extractor)
	normalizer := normalize.New()
	coordinator := delivery.NewCoordinator(cfg.Sink, clients.Sink)

	orchestrator := scraper.NewOrchestrator(cfg, parser, normalizer, coordinator)

	ctx := context.Background()

	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	var pgStore *storage.PostgresStore
	if cfg.DBURL != "" {
		pgStore, err = storage.NewPostgresStore(ctx, cfg.DBURL)
		if err != nil {
			logging.Warnf("Postgres unavailable, tracked queries fall back to defaults: %v", err)
		} else {
			defer pgStore.Close()
			log.Println("Connected to Postgres")
		}
	}

	orchestrator.SetStores(sqliteStore, pgStore)

	sched := scheduler.New(cfg, orchestrator, pgStore)

	if *scrapeNow {
		if *query == "" {
			log.Fatal("-scrape requires -query")
		}
		result, err := orchestrator.Run(ctx, *query)
		if err != nil {
			log.Fatalf("Scrape failed: %v", err)
		}
		out, _ := json.MarshalIndent(result, "", "  ")
		os.Stdout.Write(append(out, '\n'))
		return
	}

	if *sweepNow {
		if err := sched.Sweep(ctx); err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		return
	}

	// Daemon mode
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	srv := server.New(cfg, orchestrator, sqliteStore)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	log.Println("Goodbye!")
}
