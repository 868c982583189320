package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pricewatch/models"
	"pricewatch/notifier"
	"pricewatch/repository"
	"pricewatch/scraper"
)

// ErrSourceUnavailable means the product list could not be loaded, so no
// product was checked.
var ErrSourceUnavailable = errors.New("product source unavailable")

const DefaultProductDelay = 3 * time.Second

// Extractor finds a price in fetched page content.
type Extractor interface {
	Extract(content string) (models.Extraction, bool)
}

// Runner performs verification passes: products are checked one at a time and
// a failure on one product never stops the pass.
type Runner struct {
	source    repository.ProductSource
	fetcher   scraper.Fetcher
	extractor Extractor
	notifier  notifier.Notifier
	detector  *scraper.BotDetector
	logger    *zap.Logger

	delay  time.Duration
	strict bool
}

type RunnerOption func(*Runner)

// WithProductDelay sets the pause between two products. Zero disables it.
func WithProductDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d >= 0 {
			r.delay = d
		}
	}
}

// WithStrictThreshold alerts only when the price is strictly below the
// desired price.
func WithStrictThreshold(strict bool) RunnerOption {
	return func(r *Runner) {
		r.strict = strict
	}
}

func WithBotDetector(d *scraper.BotDetector) RunnerOption {
	return func(r *Runner) {
		r.detector = d
	}
}

func NewRunner(source repository.ProductSource, fetcher scraper.Fetcher, extractor Extractor, n notifier.Notifier, logger *zap.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		source:    source,
		fetcher:   fetcher,
		extractor: extractor,
		notifier:  n,
		logger:    logger,
		delay:     DefaultProductDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce loads the product list and runs a pass over it.
func (r *Runner) RunOnce(ctx context.Context) (models.Summary, error) {
	if r.source == nil {
		return emptySummary(), fmt.Errorf("%w: no source configured", ErrSourceUnavailable)
	}
	products, err := r.source.Load(ctx)
	if err != nil {
		r.logger.Error("failed to load products", zap.Error(err))
		return emptySummary(), fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return r.Run(ctx, products), nil
}

// Run checks every product in order and always returns a summary. When ctx is
// cancelled the pass stops at the next product boundary and the summary
// covers the products checked so far.
func (r *Runner) Run(ctx context.Context, products []models.Product) models.Summary {
	summary := models.Summary{StartedAt: time.Now()}
	r.logger.Info("verification pass started", zap.Int("products", len(products)))

	for i, product := range products {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}

		outcome := r.check(ctx, product)
		summary.Checked++
		if outcome.HasPrice() {
			summary.PricesFound++
		} else {
			summary.Misses++
		}

		if outcome.AlertTriggered {
			if err := r.notifier.Send(ctx, outcome.Alert()); err != nil {
				summary.NotifyFailures++
				r.logger.Error("failed to send alert",
					zap.String("product", product.Name),
					zap.Error(err))
			} else {
				summary.AlertsSent++
			}
		}

		if i < len(products)-1 && !r.wait(ctx) {
			summary.Cancelled = true
			break
		}
	}

	summary.FinishedAt = time.Now()
	r.logger.Info("verification pass finished",
		zap.Int("checked", summary.Checked),
		zap.Int("alerts_sent", summary.AlertsSent),
		zap.Int("misses", summary.Misses),
		zap.Int("notify_failures", summary.NotifyFailures),
		zap.Bool("cancelled", summary.Cancelled),
		zap.Duration("duration", summary.Duration()))
	return summary
}

func (r *Runner) check(ctx context.Context, product models.Product) models.Outcome {
	outcome := models.Outcome{Product: product}
	log := r.logger.With(zap.String("product", product.Name), zap.String("url", product.URL))

	content, err := r.fetcher.Fetch(ctx, product.URL)
	if err != nil {
		outcome.Reason = "fetch failed: " + err.Error()
		log.Warn("fetch failed", zap.Error(err))
		return outcome
	}

	extraction, ok := r.extractor.Extract(content)
	if !ok {
		outcome.Reason = "price not found"
		if r.detector != nil {
			if blocked, reason := r.detector.Inspect(content); blocked {
				outcome.Reason = "price not found, page looks like a bot check: " + reason
			}
		}
		log.Warn("price not found", zap.String("reason", outcome.Reason))
		return outcome
	}

	price := extraction.Price
	outcome.Price = &price
	outcome.AlertTriggered = r.triggers(price, product.DesiredPrice)
	if outcome.AlertTriggered {
		outcome.Reason = "price at or below desired"
	} else {
		outcome.Reason = "price above desired"
	}

	log.Info("price checked",
		zap.String("price", price.StringFixed(2)),
		zap.String("desired_price", product.DesiredPrice.StringFixed(2)),
		zap.String("strategy", extraction.Strategy),
		zap.Bool("alert", outcome.AlertTriggered))
	return outcome
}

func (r *Runner) triggers(price, desired decimal.Decimal) bool {
	if r.strict {
		return price.LessThan(desired)
	}
	return price.LessThanOrEqual(desired)
}

// wait pauses between products. It returns false if ctx ends first.
func (r *Runner) wait(ctx context.Context) bool {
	if r.delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(r.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func emptySummary() models.Summary {
	now := time.Now()
	return models.Summary{StartedAt: now, FinishedAt: now}
}
