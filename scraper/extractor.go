package scraper

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pricewatch/models"
)

// Elements with longer text are layout containers, not price labels.
const maxPriceTextLen = 80

// PriceExtractor applies an ordered strategy list to page content. The first
// strategy that yields a plausible price wins; later ones are not consulted.
type PriceExtractor struct {
	strategies []Strategy
	normalizer *Normalizer
	logger     *zap.Logger
}

type ExtractorOption func(*PriceExtractor)

// WithStrategies replaces the default strategy list.
func WithStrategies(strategies []Strategy) ExtractorOption {
	return func(e *PriceExtractor) {
		e.strategies = append([]Strategy(nil), strategies...)
	}
}

func WithLogger(logger *zap.Logger) ExtractorOption {
	return func(e *PriceExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewPriceExtractor creates an extractor. A nil normalizer uses the default
// plausibility range.
func NewPriceExtractor(normalizer *Normalizer, opts ...ExtractorOption) *PriceExtractor {
	if normalizer == nil {
		normalizer = DefaultNormalizer()
	}
	e := &PriceExtractor{
		strategies: DefaultStrategies(),
		normalizer: normalizer,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strategies returns a copy of the strategy list in priority order.
func (e *PriceExtractor) Strategies() []Strategy {
	return append([]Strategy(nil), e.strategies...)
}

// Extract returns the first plausible price found in content. Malformed or
// empty markup is reported as not found, never as a failure.
func (e *PriceExtractor) Extract(content string) (result models.Extraction, found bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("price extraction panicked", zap.Any("panic", r))
			result, found = models.Extraction{}, false
		}
	}()

	if strings.TrimSpace(content) == "" {
		return models.Extraction{}, false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		e.logger.Debug("unparseable page content", zap.Error(err))
		return models.Extraction{}, false
	}

	for i, s := range e.strategies {
		price, cand, ok := e.apply(doc, i, s)
		if !ok {
			continue
		}
		e.logger.Debug("price found",
			zap.String("strategy", s.Name),
			zap.String("matched", cand.MatchedText),
			zap.String("price", price.String()),
		)
		return models.Extraction{Price: price, Strategy: s.Name, Candidate: cand}, true
	}
	return models.Extraction{}, false
}

func (e *PriceExtractor) apply(doc *goquery.Document, ordinal int, s Strategy) (decimal.Decimal, models.Candidate, bool) {
	switch s.Kind {
	case KindAttribute:
		return e.applyAttribute(doc, ordinal, s)
	case KindJSONLD:
		return e.applyJSONLD(doc, ordinal, s)
	case KindSplit:
		return e.applySplit(doc, ordinal, s)
	case KindText:
		return e.applyText(doc, ordinal, s)
	default:
		return decimal.Zero, models.Candidate{}, false
	}
}

func (e *PriceExtractor) applyAttribute(doc *goquery.Document, ordinal int, s Strategy) (price decimal.Decimal, cand models.Candidate, ok bool) {
	doc.Find(s.Selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		val, exists := sel.Attr(s.Attr)
		if !exists || strings.TrimSpace(val) == "" {
			return true
		}
		c := models.Candidate{MatchedText: strings.TrimSpace(val), Strategy: ordinal}
		if p, valid := e.normalizer.NormalizeMachine(c.MatchedText); valid {
			price, cand, ok = p, c, true
			return false
		}
		return true
	})
	return price, cand, ok
}

func (e *PriceExtractor) applyJSONLD(doc *goquery.Document, ordinal int, s Strategy) (price decimal.Decimal, cand models.Candidate, ok bool) {
	doc.Find(s.Selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		for _, raw := range offerPrices(sel.Text()) {
			c := models.Candidate{MatchedText: raw, Strategy: ordinal}
			if p, valid := e.normalizer.NormalizeMachine(raw); valid {
				price, cand, ok = p, c, true
				return false
			}
		}
		return true
	})
	return price, cand, ok
}

func (e *PriceExtractor) applySplit(doc *goquery.Document, ordinal int, s Strategy) (price decimal.Decimal, cand models.Candidate, ok bool) {
	// scope is where the cents fragment is looked up: the container when the
	// strategy has one, otherwise the fraction's parent.
	try := func(fraction, scope *goquery.Selection) bool {
		integer := strings.TrimSpace(fraction.Text())
		if integer == "" {
			return false
		}
		cents := ""
		if s.Cents != "" {
			cents = strings.TrimSpace(scope.Find(s.Cents).First().Text())
		}
		c := models.Candidate{MatchedText: strings.TrimSpace(integer + " " + cents), Strategy: ordinal}
		if p, valid := e.normalizer.NormalizeParts(integer, cents); valid {
			price, cand, ok = p, c, true
			return true
		}
		return false
	}

	if s.Container == "" {
		doc.Find(s.Selector).EachWithBreak(func(_ int, fraction *goquery.Selection) bool {
			return !try(fraction, fraction.Parent())
		})
		return price, cand, ok
	}

	doc.Find(s.Container).EachWithBreak(func(_ int, scope *goquery.Selection) bool {
		fraction := scope.Find(s.Selector).First()
		if fraction.Length() == 0 {
			return true
		}
		return !try(fraction, scope)
	})
	return price, cand, ok
}

func (e *PriceExtractor) applyText(doc *goquery.Document, ordinal int, s Strategy) (price decimal.Decimal, cand models.Candidate, ok bool) {
	doc.Find(s.Selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if goquery.NodeName(sel) == "script" || goquery.NodeName(sel) == "style" {
			return true
		}
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" || len(text) > maxPriceTextLen {
			return true
		}
		c := models.Candidate{MatchedText: text, Strategy: ordinal}
		if p, valid := e.normalizer.Normalize(text); valid {
			price, cand, ok = p, c, true
			return false
		}
		return true
	})
	return price, cand, ok
}

// offerPrices returns schema.org offer prices from an ld+json block in
// document order. Invalid JSON yields nothing.
func offerPrices(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil
	}
	var out []string
	collectOfferPrices(payload, &out)
	return out
}

func collectOfferPrices(payload any, out *[]string) {
	switch t := payload.(type) {
	case map[string]any:
		if offers, ok := t["offers"]; ok {
			collectOffer(offers, out)
		}
		if graph, ok := t["@graph"]; ok {
			collectOfferPrices(graph, out)
		}
	case []any:
		for _, item := range t {
			collectOfferPrices(item, out)
		}
	}
}

func collectOffer(offer any, out *[]string) {
	switch t := offer.(type) {
	case map[string]any:
		for _, key := range []string{"price", "lowPrice"} {
			if v := scalarString(t[key]); v != "" {
				*out = append(*out, v)
				return
			}
		}
		if nested, ok := t["offers"]; ok {
			collectOffer(nested, out)
		}
	case []any:
		for _, item := range t {
			collectOffer(item, out)
		}
	}
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	default:
		return ""
	}
}
