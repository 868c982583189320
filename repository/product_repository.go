package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pricewatch/models"
)

// ProductSource loads the list of products to check.
type ProductSource interface {
	Load(ctx context.Context) ([]models.Product, error)
}

var (
	nameColumns    = []string{"nome", "name", "produto", "product"}
	urlColumns     = []string{"url", "link"}
	desiredColumns = []string{"preco_desejado", "preço_desejado", "desired_price", "target_price", "preco", "price"}
)

// CSVProductSource reads products from a CSV file or from a URL serving CSV,
// such as a spreadsheet's "publish as CSV" link.
type CSVProductSource struct {
	location string
	client   *http.Client
	logger   *zap.Logger
}

func NewCSVProductSource(location string, logger *zap.Logger) *CSVProductSource {
	return &CSVProductSource{
		location: strings.TrimSpace(location),
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

// Load returns every valid row. Malformed rows are logged and skipped; an
// error means the list itself could not be read.
func (s *CSVProductSource) Load(ctx context.Context) ([]models.Product, error) {
	rc, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	products, err := ParseProductsCSV(rc, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to read products from %s: %w", s.location, err)
	}
	s.logger.Info("products loaded", zap.String("source", s.location), zap.Int("count", len(products)))
	return products, nil
}

func (s *CSVProductSource) open(ctx context.Context) (io.ReadCloser, error) {
	if s.location == "" {
		return nil, errors.New("no product list location configured")
	}
	if !strings.HasPrefix(s.location, "http://") && !strings.HasPrefix(s.location, "https://") {
		f, err := os.Open(s.location)
		if err != nil {
			return nil, fmt.Errorf("failed to open product list: %w", err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build product list request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download product list: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("product list download returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// ParseProductsCSV reads a header row followed by product rows. Header names
// are matched case-insensitively against known aliases (Nome/name,
// URL/link, Preco_Desejado/desired_price).
func ParseProductsCSV(r io.Reader, logger *zap.Logger) ([]models.Product, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	nameIdx := columnIndex(header, nameColumns)
	urlIdx := columnIndex(header, urlColumns)
	priceIdx := columnIndex(header, desiredColumns)
	if nameIdx < 0 || urlIdx < 0 {
		return nil, fmt.Errorf("header %v lacks a name or url column", header)
	}

	var products []models.Product
	line := 1
	for {
		record, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn("skipping malformed row", zap.Int("line", line), zap.Error(err))
			continue
		}

		desired := decimal.Zero
		if priceIdx >= 0 {
			raw := field(record, priceIdx)
			if strings.TrimSpace(raw) != "" {
				desired, err = ParseDesiredPrice(raw)
				if err != nil {
					logger.Warn("skipping row with invalid desired price", zap.Int("line", line), zap.String("value", raw))
					continue
				}
			}
		}

		p, err := models.NewProduct(field(record, nameIdx), field(record, urlIdx), desired)
		if err != nil {
			logger.Warn("skipping invalid product row", zap.Int("line", line), zap.Error(err))
			continue
		}
		products = append(products, p)
	}

	return products, nil
}

// ParseDesiredPrice reads a spreadsheet price cell. A comma is the decimal
// separator unless a dot follows it ("1.234,56", "99,90", "1,234.56", "100").
func ParseDesiredPrice(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	for _, sym := range []string{"R$", "US$", "$", "€", "£"} {
		s = strings.TrimPrefix(s, sym)
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0':
			return -1
		}
		return r
	}, s)

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastComma >= 0 && lastDot > lastComma:
		s = strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid desired price %q: %w", raw, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid desired price %q: negative", raw)
	}
	return d, nil
}

func columnIndex(header []string, aliases []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		h = strings.ReplaceAll(h, " ", "_")
		for _, a := range aliases {
			if h == a {
				return i
			}
		}
	}
	return -1
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}
