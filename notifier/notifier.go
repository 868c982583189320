// Package notifier delivers price-drop alerts.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pricewatch/models"
)

// Notifier sends one alert. A returned error means the alert was not
// delivered; callers treat it as non-fatal.
type Notifier interface {
	Send(ctx context.Context, alert models.Alert) error
}

// LogNotifier only logs alerts. Used for dry runs.
type LogNotifier struct {
	logger *zap.Logger
	symbol string
}

func NewLogNotifier(logger *zap.Logger, currencySymbol string) *LogNotifier {
	return &LogNotifier{logger: logger, symbol: currencySymbol}
}

func (n *LogNotifier) Send(_ context.Context, alert models.Alert) error {
	n.logger.Info("price alert (dry run)",
		zap.String("product", alert.Name),
		zap.String("url", alert.URL),
		zap.String("price", FormatMoney(n.symbol, alert.Price)),
		zap.String("desired_price", FormatMoney(n.symbol, alert.DesiredPrice)),
	)
	return nil
}

// MultiNotifier fans an alert out to every channel. It fails only when no
// channel delivered.
type MultiNotifier struct {
	notifiers []Notifier
	logger    *zap.Logger
}

func NewMultiNotifier(logger *zap.Logger, notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers, logger: logger}
}

func (m *MultiNotifier) Send(ctx context.Context, alert models.Alert) error {
	if len(m.notifiers) == 0 {
		return errors.New("no notification channel configured")
	}
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, alert); err != nil {
			m.logger.Warn("notification channel failed", zap.String("product", alert.Name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) == len(m.notifiers) {
		return fmt.Errorf("all channels failed: %w", errors.Join(errs...))
	}
	return nil
}

// FormatMoney renders a price as "R$ 1,234.56".
func FormatMoney(symbol string, v decimal.Decimal) string {
	fixed := v.StringFixed(2)
	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, fracPart, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	for i, ch := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}

	out := b.String() + "." + fracPart
	if neg {
		out = "-" + out
	}
	if symbol == "" {
		return out
	}
	return symbol + " " + out
}
