package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdv-sorveteria/models"
)

func TestReceiptExport(t *testing.T) {
	ctx := context.Background()
	repo := &fakeHistory{}
	for _, r := range []models.HistoryRecord{
		{SaleID: "a", Date: "2026-10-01", Time: "10:00:00"},
		{SaleID: "b", Date: "2026-10-05", Time: "11:30:00"},
		{SaleID: "c", Date: "2026-10-09", Time: "18:45:10"},
	} {
		require.NoError(t, repo.Append(ctx, r))
	}
	receipts := &fakeReceipts{}
	exporter := NewReceiptExportService(NewHistoryService(repo), receipts)
	dir := filepath.Join(t.TempDir(), "recibos")

	stats, err := exporter.ExportReceipts(ctx, dir, "2026-10-05", "")
	require.NoError(t, err)
	assert.Equal(t, ExportStats{Total: 2, Exported: 2}, stats)

	content, err := os.ReadFile(filepath.Join(dir, "2026-10-09_184510_c.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(content))

	// a second run only renders what is missing
	stats, err = exporter.ExportReceipts(ctx, dir, "", "")
	require.NoError(t, err)
	assert.Equal(t, ExportStats{Total: 3, Exported: 1, Skipped: 2}, stats)
	assert.Equal(t, 3, receipts.calls)
}

func TestReceiptExport_CollectsFailures(t *testing.T) {
	ctx := context.Background()
	repo := &fakeHistory{}
	require.NoError(t, repo.Append(ctx, models.HistoryRecord{SaleID: "a", Date: "2026-10-01", Time: "10:00:00"}))
	exporter := NewReceiptExportService(NewHistoryService(repo), &fakeReceipts{err: os.ErrPermission})

	stats, err := exporter.ExportReceipts(ctx, t.TempDir(), "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Zero(t, stats.Exported)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "sale a")

	_, err = exporter.ExportReceipts(ctx, "", "", "")
	assert.Error(t, err)
}
