package service

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/repository"
)

// SyncStats summarizes one catalog import
type SyncStats struct {
	Total  int `json:"total"`
	Saved  int `json:"saved"`
	Failed int `json:"failed"`
}

// SyncService copies the catalog spreadsheet into the database catalog.
// Row keys are kept so lines of open sales keep pointing at the same product.
type SyncService struct {
	source repository.CatalogSourceInterface
	target repository.CatalogRepositoryInterface
}

// NewSyncService creates a new SyncService
func NewSyncService(source repository.CatalogSourceInterface, target repository.CatalogRepositoryInterface) *SyncService {
	return &SyncService{
		source: source,
		target: target,
	}
}

// SyncCatalog upserts every priced entry of the source into the target.
// A failing row is logged and skipped.
func (s *SyncService) SyncCatalog(ctx context.Context) (SyncStats, error) {
	log.Info("🔄 Starting catalog synchronization")

	entries, err := s.source.ListAll(ctx)
	if err != nil {
		return SyncStats{}, fmt.Errorf("failed to read catalog source: %w", err)
	}

	stats := SyncStats{Total: len(entries)}
	log.Infof("📦 Processing %d catalog entries", stats.Total)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if _, err := s.target.Upsert(ctx, entry, entry.Shop); err != nil {
			log.WithError(err).WithFields(log.Fields{"rowKey": entry.RowKey, "shop": entry.Shop}).Error("❌ Error saving catalog entry")
			stats.Failed++
			continue
		}
		stats.Saved++
	}

	log.Infof("🎉 Catalog synchronization completed: %d saved, %d failed, %d total", stats.Saved, stats.Failed, stats.Total)
	return stats, nil
}
