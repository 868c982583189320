package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidProduct = errors.New("invalid product")

// Product is one monitored listing loaded from the product source.
type Product struct {
	Name         string          `json:"name"`
	URL          string          `json:"url"`
	DesiredPrice decimal.Decimal `json:"desired_price"`
}

// NewProduct trims the inputs and validates the result.
func NewProduct(name, url string, desiredPrice decimal.Decimal) (Product, error) {
	p := Product{
		Name:         strings.TrimSpace(name),
		URL:          strings.TrimSpace(url),
		DesiredPrice: desiredPrice,
	}
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	return p, nil
}

// Validate reports why a product cannot be checked.
func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProduct)
	}
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("%w: missing url for %q", ErrInvalidProduct, p.Name)
	}
	if p.DesiredPrice.IsNegative() {
		return fmt.Errorf("%w: negative desired price %s for %q", ErrInvalidProduct, p.DesiredPrice, p.Name)
	}
	return nil
}

// Candidate is a raw text fragment matched by one extraction strategy.
type Candidate struct {
	MatchedText string `json:"matched_text"`
	Strategy    int    `json:"strategy"`
}

// Extraction is a successfully normalized price and where it came from.
type Extraction struct {
	Price     decimal.Decimal `json:"price"`
	Strategy  string          `json:"strategy"`
	Candidate Candidate       `json:"candidate"`
}

// Outcome is the result of checking one product in one pass.
type Outcome struct {
	Product        Product
	Price          *decimal.Decimal
	AlertTriggered bool
	Reason         string
}

// HasPrice returns true if a plausible price was extracted
func (o Outcome) HasPrice() bool {
	return o.Price != nil
}

// Alert builds the notification payload. Only meaningful when HasPrice.
func (o Outcome) Alert() Alert {
	a := Alert{
		Name:         o.Product.Name,
		URL:          o.Product.URL,
		DesiredPrice: o.Product.DesiredPrice,
	}
	if o.Price != nil {
		a.Price = *o.Price
	}
	return a
}

// Alert is what a notifier delivers.
type Alert struct {
	Name         string          `json:"name"`
	URL          string          `json:"url"`
	Price        decimal.Decimal `json:"price"`
	DesiredPrice decimal.Decimal `json:"desired_price"`
}

// Summary aggregates one verification pass.
type Summary struct {
	Checked        int       `json:"checked"`
	AlertsSent     int       `json:"alerts_sent"`
	PricesFound    int       `json:"prices_found"`
	Misses         int       `json:"misses"`
	NotifyFailures int       `json:"notify_failures"`
	Cancelled      bool      `json:"cancelled"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Duration returns how long the pass took
func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
