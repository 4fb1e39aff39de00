package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"rewear/internal/config"
	"rewear/internal/httpapi"
	"rewear/internal/intel"
	"rewear/internal/market"
	"rewear/internal/market/auth"
	"rewear/internal/queue"
	"rewear/internal/storage"
	"rewear/internal/vision"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config.LoadEnvFile()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	encryptionKey, err := storage.DeriveKey(cfg.TokenKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to derive encryption key")
	}

	store, err := storage.NewStore(cfg.DBPath, encryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer store.Close()
	log.Info().Str("dbPath", cfg.DBPath).Msg("store initialized")

	marketClient := market.NewClient(market.ClientOpts{
		BaseURL: cfg.MarketBaseURL,
		Timeout: cfg.RequestTimeout,
	})

	authManager := auth.NewManager(auth.Config{
		ClientID:     cfg.MarketClientID,
		ClientSecret: cfg.MarketSecret,
		RedirectURI:  cfg.RedirectURI,
		Scopes:       []string{"listings.read", "listings.write"},
		Endpoints: auth.Endpoints{
			AuthorizeURL: marketURL(cfg, "/oauth/authorize"),
			TokenURL:     marketURL(cfg, "/oauth/token"),
		},
		Timeout: cfg.RequestTimeout,
	}, store)

	analyzer, err := vision.NewGeminiAnalyzer(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize gemini vision analyzer")
	}
	log.Info().Msg("gemini vision analyzer initialized")

	intelService := intel.NewService(marketClient)

	processor, err := queue.NewProcessor(authManager, marketClient, intelService, store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize publish queue")
	}

	server := httpapi.NewServer(analyzer, intelService, authManager, processor)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

func marketURL(cfg *config.Config, path string) string {
	base := cfg.MarketBaseURL
	if base == "" {
		base = market.DefaultBaseURL
	}
	return base + path
}
