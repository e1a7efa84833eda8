package repository

import (
	"context"

	"pdv-sorveteria/models"
)

// CatalogRepositoryInterface defines the contract for the per-shop product catalog
type CatalogRepositoryInterface interface {
	LookupByCode(ctx context.Context, code string, shop string) ([]models.CatalogEntry, error)
	LookupAnyShop(ctx context.Context, code string) ([]models.CatalogEntry, error)
	Search(ctx context.Context, term string, shop string) ([]models.CatalogEntry, error)
	// Upsert inserts the entry, or overwrites it when RowKey is set. The stored entry is returned.
	Upsert(ctx context.Context, entry models.CatalogEntry, shop string) (models.CatalogEntry, error)
}

// HistoryRepositoryInterface defines the contract for the append-only sales history
type HistoryRepositoryInterface interface {
	Append(ctx context.Context, record models.HistoryRecord) error
	// ListAll returns every record, most recent first
	ListAll(ctx context.Context) ([]models.HistoryRecord, error)
}

// CatalogSourceInterface is a catalog that can be read in full, used to seed another store
type CatalogSourceInterface interface {
	ListAll(ctx context.Context) ([]models.CatalogEntry, error)
}
