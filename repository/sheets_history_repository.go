package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/sheets/v4"

	"pdv-sorveteria/models"
	"pdv-sorveteria/utils"
)

// HistoryHeader is the first row of the history sheet
var HistoryHeader = []interface{}{
	"Data", "Horario", "Preco Final", "Metodo de pagamento", "Produtos",
	"Quantidade de produtos", "Venda", "Loja", "Pagamento",
}

// SheetsHistoryRepository appends settled sales to a spreadsheet, one row per sale
type SheetsHistoryRepository struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
}

var _ HistoryRepositoryInterface = (*SheetsHistoryRepository)(nil)

// NewSheetsHistoryRepository creates a new SheetsHistoryRepository
func NewSheetsHistoryRepository(svc *sheets.Service, spreadsheetID, sheetName string) *SheetsHistoryRepository {
	return &SheetsHistoryRepository{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}
}

// historyToRow lays a record out in HistoryHeader order
func historyToRow(record models.HistoryRecord) ([]interface{}, error) {
	lines, err := json.Marshal(record.Lines)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode sale lines")
	}
	return []interface{}{
		record.Date,
		record.Time,
		decimal.New(record.FinalTotal, -2).InexactFloat64(),
		string(record.PaymentMethod),
		string(lines),
		record.TotalQuantity,
		record.SaleID,
		record.Shop,
		record.PaymentID,
	}, nil
}

// rowToHistory parses a row written by historyToRow
func rowToHistory(row []interface{}) (models.HistoryRecord, error) {
	cells := make([]string, len(HistoryHeader))
	for i := 0; i < len(row) && i < len(cells); i++ {
		cells[i] = cellString(row[i])
	}

	total, err := utils.ParseAmount(cells[2])
	if err != nil {
		return models.HistoryRecord{}, errors.Wrapf(err, "invalid final total %q", cells[2])
	}
	var lines []models.LineItem
	if cells[4] != "" {
		if err := json.Unmarshal([]byte(cells[4]), &lines); err != nil {
			return models.HistoryRecord{}, errors.Wrap(err, "invalid products cell")
		}
	}
	qty := 0
	if cells[5] != "" {
		f, err := strconv.ParseFloat(cells[5], 64)
		if err != nil {
			return models.HistoryRecord{}, errors.Wrapf(err, "invalid quantity %q", cells[5])
		}
		qty = int(f)
	}

	return models.HistoryRecord{
		Date:          cells[0],
		Time:          cells[1],
		FinalTotal:    total,
		PaymentMethod: models.PaymentMethod(cells[3]),
		Lines:         lines,
		TotalQuantity: qty,
		SaleID:        cells[6],
		Shop:          cells[7],
		PaymentID:     cells[8],
	}, nil
}

// Append writes one settled sale at the end of the sheet
func (r *SheetsHistoryRepository) Append(ctx context.Context, record models.HistoryRecord) error {
	row, err := historyToRow(record)
	if err != nil {
		return err
	}

	vr := &sheets.ValueRange{Values: [][]interface{}{row}}
	_, err = r.svc.Spreadsheets.Values.Append(r.spreadsheetID, r.sheetName+"!A:I", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		log.WithError(err).WithField("saleId", record.SaleID).Error("❌ Error appending sale to history sheet")
		return errors.Wrap(err, "failed to append history row")
	}
	log.WithFields(log.Fields{"saleId": record.SaleID, "total": record.FinalTotal}).Info("💾 Sale appended to history sheet")
	return nil
}

// ListAll returns every record, most recent first. Rows repeated by a retried
// append are returned once.
func (r *SheetsHistoryRepository) ListAll(ctx context.Context) ([]models.HistoryRecord, error) {
	resp, err := r.svc.Spreadsheets.Values.Get(r.spreadsheetID, r.sheetName).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read history sheet")
	}
	return parseHistoryRows(resp.Values), nil
}

func parseHistoryRows(values [][]interface{}) []models.HistoryRecord {
	seen := make(map[string]bool)
	var records []models.HistoryRecord
	for i, row := range values {
		if i == 0 || len(row) == 0 {
			continue
		}
		record, err := rowToHistory(row)
		if err != nil {
			log.WithError(err).WithField("row", i+1).Warn("⚠️ Skipping unreadable history row")
			continue
		}
		if record.SaleID != "" {
			if seen[record.SaleID] {
				continue
			}
			seen[record.SaleID] = true
		}
		record.ID = int64(i + 1)
		records = append(records, record)
	}

	sort.SliceStable(records, func(i, j int) bool {
		a := records[i].Date + " " + records[i].Time
		b := records[j].Date + " " + records[j].Time
		if a != b {
			return a > b
		}
		return records[i].ID > records[j].ID
	})
	return records
}

// EnsureHeader writes HistoryHeader on an empty sheet
func (r *SheetsHistoryRepository) EnsureHeader(ctx context.Context) error {
	resp, err := r.svc.Spreadsheets.Values.Get(r.spreadsheetID, fmt.Sprintf("%s!A1:I1", r.sheetName)).Context(ctx).Do()
	if err != nil {
		return errors.Wrap(err, "failed to read history header")
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	vr := &sheets.ValueRange{Values: [][]interface{}{HistoryHeader}}
	_, err = r.svc.Spreadsheets.Values.Update(r.spreadsheetID, fmt.Sprintf("%s!A1", r.sheetName), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return errors.Wrap(err, "failed to write history header")
	}
	log.Info("📝 History sheet header created")
	return nil
}
