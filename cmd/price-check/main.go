// price-check runs a comps query against the marketplace and prints the
// resulting normalization, recommendation and sell-through report. Useful for
// eyeballing pricing behavior without going through the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rewear/internal/intel"
	"rewear/internal/market"
)

func main() {
	query := flag.String("q", "", "search query, e.g. \"patagonia fleece M\"")
	condition := flag.String("condition", "", "optional condition filter (new, like_new, good, fair, poor)")
	baseURL := flag.String("base-url", "", "override marketplace base URL")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *query == "" {
		fmt.Fprintln(os.Stderr, "usage: price-check -q <query> [-condition <cond>]")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := market.NewClient(market.ClientOpts{BaseURL: *baseURL})
	service := intel.NewService(client)

	sold, err := service.Comps(ctx, *query)
	if err != nil {
		log.Fatal().Err(err).Msg("comps query failed")
	}
	fmt.Printf("comps in window: %d\n", len(sold))
	for _, c := range sold {
		fmt.Printf("  %s  %8.2f %s  %-9s  %s\n", c.SoldAt.Format("2006-01-02"), c.Price, c.Currency, c.Condition, c.Title)
	}

	rec, err := service.Recommend(ctx, *query, *condition)
	if err != nil {
		log.Fatal().Err(err).Msg("recommendation failed")
	}
	fmt.Printf("\nrecommendation (n=%d, confidence=%s):\n", rec.SampleSize, rec.Confidence)
	fmt.Printf("  quick:   %8.2f %s\n", rec.Quick, rec.Currency)
	fmt.Printf("  market:  %8.2f %s\n", rec.Market, rec.Currency)
	fmt.Printf("  premium: %8.2f %s\n", rec.Premium, rec.Currency)

	report, err := service.SellThrough(ctx, *query)
	if err != nil {
		log.Fatal().Err(err).Msg("sell-through estimation failed")
	}
	fmt.Printf("\nsell-through: %.2f (%d sold / %d active) -> %s\n",
		report.Rate, report.SoldCount, report.ActiveCount, report.Velocity)
}
