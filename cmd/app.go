package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pricewatch/config"
	"pricewatch/database"
	"pricewatch/logs"
	"pricewatch/notifier"
	"pricewatch/repository"
	"pricewatch/scheduler"
	"pricewatch/scraper"
)

var errNoChannel = errors.New("no notification channel configured: set TELEGRAM_TOKEN and TELEGRAM_CHAT_ID or SMTP_HOST, SMTP_FROM and ALERT_EMAIL_TO")

// app holds the wired components shared by the subcommands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	fetcher scraper.Fetcher
	runner  *scheduler.Runner
	closers []func() error
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := logs.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, dryRun bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	n, err := buildNotifier(cfg, logger, dryRun)
	if err != nil {
		return nil, err
	}

	fetcher, err := a.buildFetcher()
	if err != nil {
		return nil, err
	}
	a.fetcher = fetcher

	source, err := a.buildSource(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.runner = scheduler.NewRunner(source, fetcher, newExtractor(cfg, logger), n, logger,
		scheduler.WithProductDelay(cfg.Check.ProductDelay),
		scheduler.WithStrictThreshold(cfg.Check.StrictThreshold),
		scheduler.WithBotDetector(scraper.NewBotDetector()),
	)
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to release resource", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}

func newExtractor(cfg *config.Config, logger *zap.Logger) *scraper.PriceExtractor {
	normalizer := scraper.NewNormalizer(cfg.Check.PriceMin, cfg.Check.PriceMax)
	return scraper.NewPriceExtractor(normalizer, scraper.WithLogger(logger.Named("extractor")))
}

func (a *app) buildFetcher() (scraper.Fetcher, error) {
	if a.cfg.Check.FetchMode != "browser" {
		return scraper.NewHTTPFetcher(a.cfg.Check.UserAgent, a.cfg.Check.FetchTimeout), nil
	}

	bf, err := scraper.NewBrowserFetcher(scraper.BrowserOptions{
		Bin:       a.cfg.Check.ChromeBin,
		UserAgent: a.cfg.Check.UserAgent,
		Timeout:   a.cfg.Check.FetchTimeout,
	}, a.logger.Named("browser"))
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	a.closers = append(a.closers, bf.Close)
	return bf, nil
}

func (a *app) buildSource(ctx context.Context) (repository.ProductSource, error) {
	if a.cfg.Products.DatabaseURL == "" {
		return repository.NewCSVProductSource(a.cfg.Products.CSV, a.logger.Named("products")), nil
	}

	db, err := database.Open(ctx, a.cfg.Products.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	if err := database.CreateTables(ctx, db); err != nil {
		return nil, err
	}
	return repository.NewPostgresProductSource(db, a.logger.Named("products")), nil
}

func buildNotifier(cfg *config.Config, logger *zap.Logger, dryRun bool) (notifier.Notifier, error) {
	symbol := cfg.Check.CurrencySymbol
	if dryRun {
		return notifier.NewLogNotifier(logger.Named("dry-run"), symbol), nil
	}

	var channels []notifier.Notifier
	if cfg.Telegram.Enabled() {
		channels = append(channels, notifier.NewTelegramNotifier(
			cfg.Telegram.BaseURL, cfg.Telegram.Token, cfg.Telegram.ChatID, symbol, logger.Named("telegram")))
	}
	if cfg.Email.Enabled() {
		channels = append(channels, notifier.NewEmailNotifier(cfg.Email, symbol, logger.Named("email")))
	}

	switch len(channels) {
	case 0:
		return nil, errNoChannel
	case 1:
		return channels[0], nil
	default:
		return notifier.NewMultiNotifier(logger, channels...), nil
	}
}
