package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/config"
	"pdv-sorveteria/db"
	"pdv-sorveteria/repository"
)

// Stores are the catalog and history backends selected by STORE_BACKEND
type Stores struct {
	Catalog repository.CatalogRepositoryInterface
	History repository.HistoryRepositoryInterface
	// CatalogSource is the catalog spreadsheet the database can be seeded
	// from. Nil when there is none.
	CatalogSource repository.CatalogSourceInterface
}

// Close releases the database connection, if any
func (s *Stores) Close() error {
	return db.CloseDB()
}

// OpenStores connects the configured backend. The Postgres schema is
// migrated before use.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		if err := db.InitDB(ctx, cfg.Database()); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := db.Migrate(db.DB); err != nil {
			db.CloseDB()
			return nil, err
		}

		stores := &Stores{
			Catalog: repository.NewCatalogRepository(db.DB),
			History: repository.NewHistoryRepository(db.DB),
		}
		if cfg.GoogleCredentials != "" && cfg.CatalogSpreadsheetID != "" {
			svc, err := repository.NewSheetsService(ctx, cfg.GoogleCredentials)
			if err != nil {
				db.CloseDB()
				return nil, err
			}
			stores.CatalogSource = repository.NewSheetsCatalogRepository(svc, cfg.CatalogSpreadsheetID, cfg.CatalogSheet)
		}
		log.WithField("backend", cfg.StoreBackend).Info("🗄️ Stores ready")
		return stores, nil

	case config.BackendSheets:
		svc, err := repository.NewSheetsService(ctx, cfg.GoogleCredentials)
		if err != nil {
			return nil, err
		}
		history := repository.NewSheetsHistoryRepository(svc, cfg.HistorySpreadsheetID, cfg.HistorySheet)
		if err := history.EnsureHeader(ctx); err != nil {
			return nil, err
		}
		log.WithField("backend", cfg.StoreBackend).Info("🗄️ Stores ready")
		return &Stores{
			Catalog: repository.NewSheetsCatalogRepository(svc, cfg.CatalogSpreadsheetID, cfg.CatalogSheet),
			History: history,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
