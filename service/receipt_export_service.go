package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ExportStats summarizes one receipt export run
type ExportStats struct {
	Total    int      `json:"total"`
	Exported int      `json:"exported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ReceiptExportService writes the PDF receipts of a date range to a local folder
type ReceiptExportService struct {
	history  *HistoryService
	receipts ReceiptServiceInterface
}

// NewReceiptExportService creates a new ReceiptExportService
func NewReceiptExportService(history *HistoryService, receipts ReceiptServiceInterface) *ReceiptExportService {
	return &ReceiptExportService{
		history:  history,
		receipts: receipts,
	}
}

// ExportReceipts renders every record between from and to (inclusive, empty
// means unbounded) into dir. Files already on disk are skipped, so an
// interrupted export can be run again.
func (s *ReceiptExportService) ExportReceipts(ctx context.Context, dir string, from, to string) (ExportStats, error) {
	if dir == "" {
		return ExportStats{}, fmt.Errorf("export directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ExportStats{}, errors.Wrap(err, "create export directory")
	}

	records, err := s.history.List(ctx, 0)
	if err != nil {
		return ExportStats{}, err
	}

	log.WithFields(log.Fields{"dir": dir, "from": from, "to": to}).Info("📤 Starting receipt export")

	var stats ExportStats
	for _, record := range records {
		if (from != "" && record.Date < from) || (to != "" && record.Date > to) {
			continue
		}
		stats.Total++

		if err := ctx.Err(); err != nil {
			return stats, err
		}

		path := filepath.Join(dir, ReceiptFileName(record))
		if _, err := os.Stat(path); err == nil {
			log.WithField("file", path).Debug("⏭️  Receipt already exported")
			stats.Skipped++
			continue
		}

		pdf, err := s.receipts.GeneratePDF(ctx, record)
		if err != nil {
			msg := fmt.Sprintf("sale %s: %v", record.SaleID, err)
			log.WithError(err).WithField("saleId", record.SaleID).Error("❌ Failed to render receipt")
			stats.Errors = append(stats.Errors, msg)
			continue
		}
		if err := os.WriteFile(path, pdf, 0o644); err != nil {
			msg := fmt.Sprintf("sale %s: %v", record.SaleID, err)
			log.WithError(err).WithField("file", path).Error("❌ Failed to save receipt")
			stats.Errors = append(stats.Errors, msg)
			continue
		}
		stats.Exported++
	}

	log.Infof("🎉 Receipt export completed: %d exported, %d skipped, %d failed out of %d", stats.Exported, stats.Skipped, len(stats.Errors), stats.Total)
	return stats, nil
}
