package scraper

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Locale text never carries more than two decimal places.
const maxLocaleDecimals = 2

var (
	// A number token: digit runs joined by '.' or ',' and, for grouping only,
	// by a (no-break) space followed by exactly three digits.
	numberToken = regexp.MustCompile(`((?:R\$|US\$|\$|€|£|¥)\s*)?(\d+(?:[.,]\d+|[\x{00a0}\x{202f} ]\d{3}\b)*)`)

	defaultMinPrice = decimal.NewFromInt(10)
	defaultMaxPrice = decimal.NewFromInt(1000000)
)

// Normalizer turns matched text into a canonical decimal price, rejecting
// anything outside the plausibility range.
type Normalizer struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// NewNormalizer creates a normalizer with the given inclusive bounds
func NewNormalizer(min, max decimal.Decimal) *Normalizer {
	return &Normalizer{Min: min, Max: max}
}

// DefaultNormalizer accepts prices between 10 and 1,000,000.
func DefaultNormalizer() *Normalizer {
	return NewNormalizer(defaultMinPrice, defaultMaxPrice)
}

// Normalize parses locale-formatted text such as "R$ 1.234,56", "$1,234.56",
// "1 234,56" or "1234.56". When the text holds several numbers, the first one
// written next to a currency symbol wins, otherwise the first one.
func (n *Normalizer) Normalize(raw string) (decimal.Decimal, bool) {
	token := pickToken(raw)
	if token == "" {
		return decimal.Zero, false
	}
	value, ok := parseLocaleNumber(token)
	if !ok {
		return decimal.Zero, false
	}
	return n.validate(value)
}

// NormalizeMachine parses a machine-readable value (dot decimal, no
// grouping) as found in itemprop/JSON-LD attributes. Values that are not
// machine formatted fall back to Normalize.
func (n *Normalizer) NormalizeMachine(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, false
	}
	if value, err := decimal.NewFromString(raw); err == nil {
		return n.validate(value)
	}
	return n.Normalize(raw)
}

// NormalizeParts joins a price the page renders as separate integer and
// cents fragments. Without cents the integer fragment goes through
// Normalize, so a lone "1.234" is read as one thousand two hundred
// thirty-four.
func (n *Normalizer) NormalizeParts(integer, fraction string) (decimal.Decimal, bool) {
	fracDigits := onlyDigits(fraction)
	if fracDigits == "" {
		return n.Normalize(integer)
	}
	intDigits := onlyDigits(integer)
	if intDigits == "" {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(intDigits + "." + fracDigits)
	if err != nil {
		return decimal.Zero, false
	}
	return n.validate(value)
}

// InRange reports whether v falls inside the plausibility range.
func (n *Normalizer) InRange(v decimal.Decimal) bool {
	_, ok := n.validate(v)
	return ok
}

func (n *Normalizer) validate(v decimal.Decimal) (decimal.Decimal, bool) {
	if v.IsNegative() {
		return decimal.Zero, false
	}
	if v.LessThan(n.Min) || v.GreaterThan(n.Max) {
		return decimal.Zero, false
	}
	return v, true
}

func pickToken(raw string) string {
	matches := numberToken.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return ""
	}
	for _, m := range matches {
		if strings.TrimSpace(m[1]) != "" {
			return m[2]
		}
	}
	return matches[0][2]
}

// parseLocaleNumber resolves which separator is the decimal point:
//   - with both '.' and ',' present, the rightmost one is decimal
//   - one kind repeated is grouping ("1.234.567")
//   - one occurrence followed by exactly three digits is grouping ("1.234")
//   - one or two trailing digits make it decimal ("89,90", "1234.5")
//   - anything longer is rejected rather than guessed ("12.34990")
func parseLocaleNumber(token string) (decimal.Decimal, bool) {
	token = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, token)

	lastDot := strings.LastIndex(token, ".")
	lastComma := strings.LastIndex(token, ",")

	var canonical string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		decSep, groupSep := ".", ","
		if lastComma > lastDot {
			decSep, groupSep = ",", "."
		}
		if strings.Count(token, decSep) > 1 {
			return decimal.Zero, false
		}
		intPart, fracPart, _ := strings.Cut(token, decSep)
		if len(fracPart) == 0 || len(fracPart) > maxLocaleDecimals {
			return decimal.Zero, false
		}
		if !validGrouping(intPart, groupSep) {
			return decimal.Zero, false
		}
		canonical = strings.ReplaceAll(intPart, groupSep, "") + "." + fracPart
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		if lastComma >= 0 {
			sep = ","
		}
		trailing := len(token) - strings.LastIndex(token, sep) - 1
		switch {
		case strings.Count(token, sep) > 1 || trailing == 3:
			if !validGrouping(token, sep) {
				return decimal.Zero, false
			}
			canonical = strings.ReplaceAll(token, sep, "")
		case trailing > maxLocaleDecimals:
			// Integer and cents rendered back to back ("12.349" + "90").
			return decimal.Zero, false
		default:
			canonical = strings.Replace(token, sep, ".", 1)
		}
	default:
		canonical = token
	}

	value, err := decimal.NewFromString(canonical)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

// validGrouping checks that every group after the first has three digits.
func validGrouping(s, sep string) bool {
	groups := strings.Split(s, sep)
	if groups[0] == "" || len(groups[0]) > 3 && len(groups) > 1 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
