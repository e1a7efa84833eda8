package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/models"
)

// HistoryRepository stores settled sales in Postgres
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository creates a new HistoryRepository
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Ensure HistoryRepository implements HistoryRepositoryInterface
var _ HistoryRepositoryInterface = (*HistoryRepository)(nil)

type historyRow struct {
	ID            int64     `db:"id"`
	SaleID        string    `db:"sale_id"`
	Shop          string    `db:"shop"`
	Date          string    `db:"sale_date"`
	Time          string    `db:"sale_time"`
	FinalTotal    int64     `db:"final_total"`
	PaymentMethod string    `db:"payment_method"`
	PaymentID     string    `db:"payment_id"`
	Lines         []byte    `db:"lines"`
	TotalQuantity int       `db:"total_quantity"`
	CreatedAt     time.Time `db:"created_at"`
}

func (row historyRow) toRecord() (models.HistoryRecord, error) {
	var lines []models.LineItem
	if err := json.Unmarshal(row.Lines, &lines); err != nil {
		return models.HistoryRecord{}, errors.Wrapf(err, "failed to decode lines of sale %s", row.SaleID)
	}
	return models.HistoryRecord{
		ID:            row.ID,
		SaleID:        row.SaleID,
		Shop:          row.Shop,
		Date:          row.Date,
		Time:          row.Time,
		FinalTotal:    row.FinalTotal,
		PaymentMethod: models.PaymentMethod(row.PaymentMethod),
		PaymentID:     row.PaymentID,
		Lines:         lines,
		TotalQuantity: row.TotalQuantity,
		CreatedAt:     row.CreatedAt,
	}, nil
}

// Append writes one settled sale. Writing the same sale twice keeps the first record.
func (r *HistoryRepository) Append(ctx context.Context, record models.HistoryRecord) error {
	lines, err := json.Marshal(record.Lines)
	if err != nil {
		return errors.Wrap(err, "failed to encode sale lines")
	}

	query := `
		INSERT INTO sale_history (
			sale_id, shop, sale_date, sale_time, final_total,
			payment_method, payment_id, lines, total_quantity
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (sale_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query,
		record.SaleID,
		record.Shop,
		record.Date,
		record.Time,
		record.FinalTotal,
		string(record.PaymentMethod),
		record.PaymentID,
		lines,
		record.TotalQuantity,
	)
	if err != nil {
		log.WithError(err).WithField("saleId", record.SaleID).Error("❌ Error appending sale history")
		return errors.Wrap(err, "failed to append sale history")
	}

	if n, _ := res.RowsAffected(); n == 0 {
		log.WithField("saleId", record.SaleID).Warn("⚠️ Sale already in history, skipping")
		return nil
	}
	log.WithFields(log.Fields{"saleId": record.SaleID, "total": record.FinalTotal}).Info("💾 Sale appended to history")
	return nil
}

// ListAll returns every record, most recent first
func (r *HistoryRepository) ListAll(ctx context.Context) ([]models.HistoryRecord, error) {
	query := `
		SELECT id, sale_id, shop, sale_date, sale_time, final_total,
		       payment_method, payment_id, lines, total_quantity, created_at
		FROM sale_history
		ORDER BY sale_date DESC, sale_time DESC, id DESC`

	var rows []historyRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "failed to list sale history")
	}

	records := make([]models.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		record, err := row.toRecord()
		if err != nil {
			log.WithError(err).Warn("⚠️ Skipping unreadable history row")
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
