package scraper

// StrategyKind selects how a strategy turns matched elements into text.
type StrategyKind int

const (
	// KindAttribute reads a machine-readable attribute (e.g. itemprop content).
	KindAttribute StrategyKind = iota
	// KindJSONLD reads schema.org offers from ld+json script blocks.
	KindJSONLD
	// KindSplit joins an integer fragment with an optional cents fragment.
	KindSplit
	// KindText takes the first price-shaped token of an element's text.
	KindText
)

func (k StrategyKind) String() string {
	switch k {
	case KindAttribute:
		return "attribute"
	case KindJSONLD:
		return "json-ld"
	case KindSplit:
		return "split"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Strategy describes one way of locating a price in page markup.
//
// Selector is the element selector for every kind; for KindSplit it selects
// the integer fragment. Comma-separated selectors are alternatives matched in
// document order.
type Strategy struct {
	Name     string
	Kind     StrategyKind
	Selector string

	// KindAttribute
	Attr string

	// KindSplit. Container scopes the search when set; Cents is looked up
	// next to the integer fragment.
	Container string
	Cents     string
}

// DefaultStrategies returns the built-in strategies, most reliable first.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Name:     "meta-itemprop",
			Kind:     KindAttribute,
			Selector: `meta[itemprop="price"], [itemprop="price"][content]`,
			Attr:     "content",
		},
		{
			Name:     "json-ld",
			Kind:     KindJSONLD,
			Selector: `script[type="application/ld+json"]`,
		},
		{
			Name:      "main-container",
			Kind:      KindSplit,
			Container: ".ui-pdp-price__main-container",
			Selector:  ".andes-money-amount__fraction",
			Cents:     ".andes-money-amount__cents",
		},
		{
			Name:     "fraction-class",
			Kind:     KindSplit,
			Selector: ".price-tag-fraction, .andes-money-amount__fraction",
			Cents:    ".price-tag-cents, .andes-money-amount__cents",
		},
		{
			Name:     "price-text",
			Kind:     KindText,
			Selector: `[itemprop="price"], [data-testid*="price"], [class*="price"], [id*="price"]`,
		},
	}
}
