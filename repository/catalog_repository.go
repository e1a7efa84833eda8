package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/models"
	"pdv-sorveteria/utils"
)

const searchLimit = 50

const catalogColumns = `
	p.row_key,
	p.barcode,
	p.category,
	p.flavor,
	pp.shop,
	pp.price,
	pp.promo_price,
	pp.promo_threshold`

// CatalogRepository handles database operations for the product catalog
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository creates a new CatalogRepository
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Ensure CatalogRepository implements CatalogRepositoryInterface
var _ CatalogRepositoryInterface = (*CatalogRepository)(nil)

// SearchText is what Search matches against: category, flavor and barcode, accent and case folded
func SearchText(entry models.CatalogEntry) string {
	return utils.NormalizeSearch(strings.Join([]string{entry.Category, entry.Flavor, entry.Barcode}, " "))
}

// LookupByCode returns every row of shop carrying the barcode
func (r *CatalogRepository) LookupByCode(ctx context.Context, code string, shop string) ([]models.CatalogEntry, error) {
	query := `SELECT` + catalogColumns + `
		FROM products p
		INNER JOIN product_prices pp ON pp.row_key = p.row_key
		WHERE p.barcode = $1 AND pp.shop = $2
		ORDER BY p.row_key ASC`

	var entries []models.CatalogEntry
	if err := r.db.SelectContext(ctx, &entries, query, strings.TrimSpace(code), shop); err != nil {
		log.WithError(err).WithField("barcode", code).Error("❌ Error looking up barcode")
		return nil, errors.Wrap(err, "failed to look up barcode")
	}
	return entries, nil
}

// LookupAnyShop returns rows carrying the barcode in any shop
func (r *CatalogRepository) LookupAnyShop(ctx context.Context, code string) ([]models.CatalogEntry, error) {
	query := `SELECT` + catalogColumns + `
		FROM products p
		INNER JOIN product_prices pp ON pp.row_key = p.row_key
		WHERE p.barcode = $1
		ORDER BY p.row_key ASC, pp.shop ASC`

	var entries []models.CatalogEntry
	if err := r.db.SelectContext(ctx, &entries, query, strings.TrimSpace(code)); err != nil {
		log.WithError(err).WithField("barcode", code).Error("❌ Error looking up barcode in other shops")
		return nil, errors.Wrap(err, "failed to look up barcode")
	}
	return entries, nil
}

// Search finds products of shop whose category, flavor or barcode contains term
func (r *CatalogRepository) Search(ctx context.Context, term string, shop string) ([]models.CatalogEntry, error) {
	normalized := utils.NormalizeSearch(term)
	if normalized == "" {
		return nil, nil
	}

	query := `SELECT` + catalogColumns + `
		FROM products p
		INNER JOIN product_prices pp ON pp.row_key = p.row_key
		WHERE pp.shop = $1 AND p.search_text LIKE '%' || $2 || '%'
		ORDER BY p.category ASC, p.flavor ASC
		LIMIT $3`

	var entries []models.CatalogEntry
	if err := r.db.SelectContext(ctx, &entries, query, shop, normalized, searchLimit); err != nil {
		log.WithError(err).WithField("term", term).Error("❌ Error searching catalog")
		return nil, errors.Wrap(err, "failed to search catalog")
	}
	log.WithFields(log.Fields{"term": term, "shop": shop, "count": len(entries)}).Debug("🔍 Catalog search")
	return entries, nil
}

// Upsert registers a product, or overwrites row RowKey when set, and stores its price for shop.
// Product and price are written in a single transaction.
func (r *CatalogRepository) Upsert(ctx context.Context, entry models.CatalogEntry, shop string) (models.CatalogEntry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.CatalogEntry{}, errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	searchText := SearchText(entry)
	if entry.RowKey == 0 {
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO products (barcode, category, flavor, search_text)
			VALUES ($1, $2, $3, $4)
			RETURNING row_key`,
			entry.Barcode, entry.Category, entry.Flavor, searchText,
		).Scan(&entry.RowKey)
		if err != nil {
			return models.CatalogEntry{}, errors.Wrap(err, "failed to insert product")
		}
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO products (row_key, barcode, category, flavor, search_text)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (row_key) DO UPDATE SET
				barcode = EXCLUDED.barcode,
				category = EXCLUDED.category,
				flavor = EXCLUDED.flavor,
				search_text = EXCLUDED.search_text,
				updated_at = NOW()`,
			entry.RowKey, entry.Barcode, entry.Category, entry.Flavor, searchText,
		)
		if err != nil {
			return models.CatalogEntry{}, errors.Wrap(err, "failed to update product")
		}
		// explicit keys bypass the sequence
		_, err = tx.ExecContext(ctx, `
			SELECT setval(pg_get_serial_sequence('products', 'row_key'),
				GREATEST((SELECT MAX(row_key) FROM products), 1))`)
		if err != nil {
			return models.CatalogEntry{}, errors.Wrap(err, "failed to advance product sequence")
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO product_prices (row_key, shop, price, promo_price, promo_threshold)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (row_key, shop) DO UPDATE SET
			price = EXCLUDED.price,
			promo_price = EXCLUDED.promo_price,
			promo_threshold = EXCLUDED.promo_threshold,
			updated_at = NOW()`,
		entry.RowKey, shop, entry.Price, entry.PromoPrice, entry.PromoThreshold,
	)
	if err != nil {
		return models.CatalogEntry{}, errors.Wrap(err, "failed to store product price")
	}

	if err := tx.Commit(); err != nil {
		return models.CatalogEntry{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	entry.Shop = shop
	log.WithFields(log.Fields{"rowKey": entry.RowKey, "barcode": entry.Barcode, "shop": shop}).Info("✅ Product saved")
	return entry, nil
}
