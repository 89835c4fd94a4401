package postgres

import (
	"context"
	"encoding/json"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

// CatalogStore implements monitor.CatalogStore on the products table.
type CatalogStore struct {
	db DB
}

// NewCatalogStore creates a CatalogStore.
func NewCatalogStore(db DB) *CatalogStore {
	return &CatalogStore{db: db}
}

const upsertProductSQL = `
INSERT INTO products (asin, title, categories, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (asin) DO UPDATE
SET title = EXCLUDED.title,
    categories = EXCLUDED.categories,
    updated_at = NOW()`

// UpsertProducts refreshes catalog rows from a scraped batch.
func (s *CatalogStore) UpsertProducts(ctx context.Context, products []monitor.Product) error {
	for _, p := range products {
		categories, err := json.Marshal(p.Categories)
		if err != nil {
			return monitor.Persistence("encode categories", err)
		}
		if _, err := s.db.Exec(ctx, upsertProductSQL, p.ASIN, p.Title, categories); err != nil {
			return monitor.Persistence("upsert product", err)
		}
	}
	return nil
}

const fetchProductsSQL = `
SELECT asin, title, categories
FROM products
WHERE asin = ANY($1)
ORDER BY asin`

// FetchProducts loads catalog rows for the given ASINs. Unknown ASINs
// are simply absent from the result.
func (s *CatalogStore) FetchProducts(ctx context.Context, asins []string) ([]monitor.Product, error) {
	rows, err := s.db.Query(ctx, fetchProductsSQL, asins)
	if err != nil {
		return nil, monitor.Persistence("fetch products", err)
	}
	defer rows.Close()

	var products []monitor.Product
	for rows.Next() {
		var p monitor.Product
		var categories []byte
		if err := rows.Scan(&p.ASIN, &p.Title, &categories); err != nil {
			return nil, monitor.Persistence("scan product", err)
		}
		if len(categories) > 0 {
			if err := json.Unmarshal(categories, &p.Categories); err != nil {
				return nil, monitor.Persistence("decode categories", err)
			}
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, monitor.Persistence("iterate products", err)
	}
	return products, nil
}
