package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"leadscraper/internal/config"
	"leadscraper/internal/domain"
	"leadscraper/internal/enrich"
	"leadscraper/internal/monitoring"
	"leadscraper/internal/pipeline"
	"leadscraper/internal/proxy"
	"leadscraper/internal/scrape"
)

var scrapeFlags struct {
	keyword  string
	location string
	max      int
	headed   bool
	enrich   bool
	deep     bool
	export   string
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one search and print the leads",
	Example: `  leadscraper scrape -k "coffee shop" -l "Springfield, IL"
  leadscraper scrape -k plumber -l Austin -n 30 --enrich --export ./out`,
	RunE: runScrape,
}

func init() {
	f := scrapeCmd.Flags()
	f.StringVarP(&scrapeFlags.keyword, "keyword", "k", "", "business type to search for (required)")
	f.StringVarP(&scrapeFlags.location, "location", "l", "", "city or area to search in (required)")
	f.IntVarP(&scrapeFlags.max, "max", "n", 0, "maximum leads to collect (default from config)")
	f.BoolVar(&scrapeFlags.headed, "headed", false, "show the browser window")
	f.BoolVar(&scrapeFlags.enrich, "enrich", false, "visit each lead's website for emails, socials and stack")
	f.BoolVar(&scrapeFlags.deep, "deep", false, "re-open every listing's place page in parallel sessions")
	f.StringVar(&scrapeFlags.export, "export", "", "directory for CSV/JSON exports (empty keeps the configured one)")
	_ = scrapeCmd.MarkFlagRequired("keyword")
	_ = scrapeCmd.MarkFlagRequired("location")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	flags := cmd.Flags()
	if scrapeFlags.headed {
		cfg.Headless = false
	}
	if flags.Changed("enrich") {
		cfg.EnrichLeads = scrapeFlags.enrich
	}
	if flags.Changed("deep") {
		cfg.DeepFetch = scrapeFlags.deep
	}
	if flags.Changed("export") {
		cfg.ExportDir = scrapeFlags.export
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pm := proxy.NewManager(nil)
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	scraper := scrape.NewScraper(cfg, metrics, logger, func(ctx context.Context) (scrape.FeedDriver, error) {
		return scrape.NewDriver(ctx, cfg, pm, logger)
	})

	var enricher pipeline.Enricher
	if cfg.EnrichLeads {
		enricher = enrich.New(cfg.EnrichWait(), logger)
	}

	ctrl := pipeline.NewController(cfg, scraper, enricher, nil, nil,
		scrape.NewDetailFetcher(cfg, pm, logger), metrics, logger)

	req := domain.ScrapeRequest{
		Keyword:    scrapeFlags.keyword,
		Location:   scrapeFlags.location,
		MaxResults: scrapeFlags.max,
	}
	target := req.MaxResults
	if target <= 0 {
		target = cfg.MaxResults
	}

	bar := progressbar.Default(int64(target), "collecting leads")
	res, err := ctrl.Run(ctx, req, func(domain.Lead) { _ = bar.Add(1) })
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		return err
	}

	for i, lead := range res.Leads {
		printLead(i+1, lead)
	}
	fmt.Printf("\nCollected %d leads for %q\n", len(res.Leads), req.Query())
	if res.CSVPath != "" {
		fmt.Println("CSV: ", res.CSVPath)
	}
	if res.JSONPath != "" {
		fmt.Println("JSON:", res.JSONPath)
	}
	return nil
}

func printLead(n int, l domain.Lead) {
	fmt.Printf("%2d. %s\n", n, l.BusinessName)
	if l.Phone != "" {
		fmt.Printf("    Phone:   %s\n", l.Phone)
	}
	if l.Website != "" {
		fmt.Printf("    Website: %s\n", l.Website)
	}
	if l.Address != "" {
		fmt.Printf("    Address: %s\n", l.Address)
	}
	if l.Rating != "" {
		fmt.Printf("    Rating:  %s\n", l.Rating)
	}
	if len(l.Emails) > 0 {
		fmt.Printf("    Emails:  %s\n", strings.Join(l.Emails, ", "))
	}
	if len(l.SocialLinks) > 0 {
		fmt.Printf("    Social:  %s\n", strings.Join(l.SocialLinks, ", "))
	}
	if l.Notes != "" {
		fmt.Printf("    Notes:   %s\n", l.Notes)
	}
}
