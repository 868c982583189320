package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pricewatch/models"
)

// PostgresProductSource reads the active products from the
// monitored_products table. It never writes.
type PostgresProductSource struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresProductSource(db *sql.DB, logger *zap.Logger) *PostgresProductSource {
	return &PostgresProductSource{db: db, logger: logger}
}

func (s *PostgresProductSource) Load(ctx context.Context) ([]models.Product, error) {
	query := `SELECT name, url, desired_price FROM monitored_products WHERE is_active ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var name, url, desiredRaw string
		if err := rows.Scan(&name, &url, &desiredRaw); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}

		desired, err := decimal.NewFromString(desiredRaw)
		if err != nil {
			s.logger.Warn("skipping product with invalid desired price",
				zap.String("name", name), zap.String("value", desiredRaw))
			continue
		}
		p, err := models.NewProduct(name, url, desired)
		if err != nil {
			s.logger.Warn("skipping invalid product", zap.Error(err))
			continue
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}

	s.logger.Info("products loaded", zap.String("source", "postgres"), zap.Int("count", len(products)))
	return products, nil
}
