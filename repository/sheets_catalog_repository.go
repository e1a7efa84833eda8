package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"pdv-sorveteria/models"
	"pdv-sorveteria/utils"
)

// Catalog sheet layout: row 1 holds the group ("Todas" or a shop name), row 2
// the field. Product rows start at row 3 and a product's row number is its RowKey.
const (
	allShopsGroup     = "Todas"
	fieldBarcode      = "Codigo de Barras"
	fieldFlavor       = "Sabor"
	fieldCategory     = "Categoria"
	fieldPrice        = "Preco"
	fieldPromoPrice   = "Promo Preco"
	fieldPromoQty     = "Promo Quantidade"
	firstProductRow   = 3
	defaultCatalogTTL = 30 * time.Second
)

// NewSheetsService creates a Sheets API client from a Service Account JSON file
func NewSheetsService(ctx context.Context, credentialsPath string) (*sheets.Service, error) {
	svc, err := sheets.NewService(ctx, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return svc, nil
}

// catalogSheet is the parsed content of the catalog sheet
type catalogSheet struct {
	columns map[string]int // "group|field" -> column index
	shops   []string
	rows    [][]string
}

func columnKey(group, field string) string {
	return strings.ToLower(group) + "|" + strings.ToLower(field)
}

func cellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// parseCatalogSheet reads the two header rows and the product rows.
// A blank group cell continues the group on its left, as merged cells read back.
func parseCatalogSheet(values [][]interface{}) (catalogSheet, error) {
	if len(values) < 2 {
		return catalogSheet{}, fmt.Errorf("catalog sheet must have two header rows")
	}

	sheet := catalogSheet{columns: make(map[string]int)}
	groups, fields := values[0], values[1]
	group := ""
	seenShop := make(map[string]bool)
	for i := range fields {
		if i < len(groups) {
			if g := cellString(groups[i]); g != "" {
				group = g
			}
		}
		field := cellString(fields[i])
		if group == "" || field == "" {
			continue
		}
		sheet.columns[columnKey(group, field)] = i
		if !strings.EqualFold(group, allShopsGroup) && !seenShop[group] {
			seenShop[group] = true
			sheet.shops = append(sheet.shops, group)
		}
	}

	for _, field := range []string{fieldBarcode, fieldFlavor, fieldCategory} {
		if _, ok := sheet.columns[columnKey(allShopsGroup, field)]; !ok {
			return catalogSheet{}, fmt.Errorf("catalog sheet is missing column %s %s", allShopsGroup, field)
		}
	}

	for _, raw := range values[2:] {
		row := make([]string, len(raw))
		for i, v := range raw {
			row[i] = cellString(v)
		}
		sheet.rows = append(sheet.rows, row)
	}
	return sheet, nil
}

func (cs catalogSheet) cell(row []string, group, field string) string {
	col, ok := cs.columns[columnKey(group, field)]
	if !ok || col >= len(row) {
		return ""
	}
	return row[col]
}

// entry builds the entry of row idx priced for shop. ok is false when the row
// is blank or the product has no price in that shop.
func (cs catalogSheet) entry(idx int, shop string) (models.CatalogEntry, bool) {
	row := cs.rows[idx]
	entry := models.CatalogEntry{
		RowKey:   int64(idx + firstProductRow),
		Barcode:  cs.cell(row, allShopsGroup, fieldBarcode),
		Flavor:   cs.cell(row, allShopsGroup, fieldFlavor),
		Category: cs.cell(row, allShopsGroup, fieldCategory),
		Shop:     shop,
	}
	if entry.Category == "" && entry.Barcode == "" {
		return models.CatalogEntry{}, false
	}

	price, err := utils.ParseAmount(cs.cell(row, shop, fieldPrice))
	if err != nil {
		return models.CatalogEntry{}, false
	}
	entry.Price = price

	if promo, err := utils.ParseOptionalAmount(cs.cell(row, shop, fieldPromoPrice)); err == nil {
		entry.PromoPrice = promo
	} else {
		log.WithFields(log.Fields{"row": entry.RowKey, "shop": shop}).Warn("⚠️ Ignoring invalid promo price")
	}
	if qty := cs.cell(row, shop, fieldPromoQty); qty != "" {
		if f, err := strconv.ParseFloat(strings.ReplaceAll(qty, ",", "."), 64); err == nil && f >= 0 {
			threshold := int(f)
			entry.PromoThreshold = &threshold
		} else {
			log.WithFields(log.Fields{"row": entry.RowKey, "shop": shop}).Warn("⚠️ Ignoring invalid promo quantity")
		}
	}
	return entry, true
}

// entries returns every priced entry of shop, or of every shop when shop is ""
func (cs catalogSheet) entries(shop string) []models.CatalogEntry {
	shops := cs.shops
	if shop != "" {
		shops = []string{shop}
	}
	var out []models.CatalogEntry
	for idx := range cs.rows {
		for _, s := range shops {
			if e, ok := cs.entry(idx, s); ok {
				out = append(out, e)
			}
		}
	}
	return out
}

// nextFreeRow is the first row without barcode and category, or the row after the last one
func (cs catalogSheet) nextFreeRow() int64 {
	for idx, row := range cs.rows {
		if cs.cell(row, allShopsGroup, fieldBarcode) == "" && cs.cell(row, allShopsGroup, fieldCategory) == "" {
			return int64(idx + firstProductRow)
		}
	}
	return int64(len(cs.rows) + firstProductRow)
}

// columnLetter converts a zero-based column index to A1 notation (0 -> A, 26 -> AA)
func columnLetter(col int) string {
	letters := ""
	for col >= 0 {
		letters = string(rune('A'+col%26)) + letters
		col = col/26 - 1
	}
	return letters
}

// SheetsCatalogRepository reads and writes the product catalog spreadsheet
type SheetsCatalogRepository struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
	ttl           time.Duration

	mu       sync.Mutex
	cached   *catalogSheet
	cachedAt time.Time
}

var _ CatalogRepositoryInterface = (*SheetsCatalogRepository)(nil)
var _ CatalogSourceInterface = (*SheetsCatalogRepository)(nil)

// NewSheetsCatalogRepository creates a new SheetsCatalogRepository
func NewSheetsCatalogRepository(svc *sheets.Service, spreadsheetID, sheetName string) *SheetsCatalogRepository {
	return &SheetsCatalogRepository{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		ttl:           defaultCatalogTTL,
	}
}

func (r *SheetsCatalogRepository) load(ctx context.Context) (catalogSheet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil && time.Since(r.cachedAt) < r.ttl {
		return *r.cached, nil
	}

	resp, err := r.svc.Spreadsheets.Values.Get(r.spreadsheetID, r.sheetName).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return catalogSheet{}, errors.Wrap(err, "failed to read catalog sheet")
	}

	parsed, err := parseCatalogSheet(resp.Values)
	if err != nil {
		return catalogSheet{}, err
	}
	r.cached = &parsed
	r.cachedAt = time.Now()
	log.WithFields(log.Fields{"rows": len(parsed.rows), "shops": parsed.shops}).Debug("📄 Catalog sheet loaded")
	return parsed, nil
}

func (r *SheetsCatalogRepository) invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

// ListAll returns every priced entry of every shop
func (r *SheetsCatalogRepository) ListAll(ctx context.Context) ([]models.CatalogEntry, error) {
	sheet, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return sheet.entries(""), nil
}

func (r *SheetsCatalogRepository) lookup(ctx context.Context, code, shop string) ([]models.CatalogEntry, error) {
	sheet, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	var out []models.CatalogEntry
	for _, e := range sheet.entries(shop) {
		if e.Barcode == code {
			out = append(out, e)
		}
	}
	return out, nil
}

// LookupByCode returns every row of shop carrying the barcode
func (r *SheetsCatalogRepository) LookupByCode(ctx context.Context, code string, shop string) ([]models.CatalogEntry, error) {
	return r.lookup(ctx, code, shop)
}

// LookupAnyShop returns rows carrying the barcode in any shop
func (r *SheetsCatalogRepository) LookupAnyShop(ctx context.Context, code string) ([]models.CatalogEntry, error) {
	return r.lookup(ctx, code, "")
}

// Search finds products of shop whose category, flavor or barcode contains term
func (r *SheetsCatalogRepository) Search(ctx context.Context, term string, shop string) ([]models.CatalogEntry, error) {
	normalized := utils.NormalizeSearch(term)
	if normalized == "" {
		return nil, nil
	}
	sheet, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.CatalogEntry
	for _, e := range sheet.entries(shop) {
		if strings.Contains(SearchText(e), normalized) {
			out = append(out, e)
			if len(out) == searchLimit {
				break
			}
		}
	}
	return out, nil
}

func sheetAmount(centavos *int64) interface{} {
	if centavos == nil {
		return ""
	}
	return decimal.New(*centavos, -2).InexactFloat64()
}

// Upsert writes the product on row RowKey, or on the next free row when RowKey is 0.
// The shop must already have its price columns in the sheet.
func (r *SheetsCatalogRepository) Upsert(ctx context.Context, entry models.CatalogEntry, shop string) (models.CatalogEntry, error) {
	r.invalidate()
	sheet, err := r.load(ctx)
	if err != nil {
		return models.CatalogEntry{}, err
	}
	if _, ok := sheet.columns[columnKey(shop, fieldPrice)]; !ok {
		return models.CatalogEntry{}, &models.ValidationError{Field: "shop", Reason: fmt.Sprintf("shop %s has no price column in the catalog", shop)}
	}

	if entry.RowKey == 0 {
		entry.RowKey = sheet.nextFreeRow()
	} else if entry.RowKey < firstProductRow {
		return models.CatalogEntry{}, &models.ValidationError{Field: "rowKey", Reason: "row is part of the header"}
	}

	price := entry.Price
	var threshold interface{} = ""
	if entry.PromoThreshold != nil {
		threshold = *entry.PromoThreshold
	}
	cells := []struct {
		group, field string
		value        interface{}
	}{
		{allShopsGroup, fieldBarcode, entry.Barcode},
		{allShopsGroup, fieldFlavor, entry.Flavor},
		{allShopsGroup, fieldCategory, entry.Category},
		{shop, fieldPrice, sheetAmount(&price)},
		{shop, fieldPromoPrice, sheetAmount(entry.PromoPrice)},
		{shop, fieldPromoQty, threshold},
	}

	var data []*sheets.ValueRange
	for _, c := range cells {
		col, ok := sheet.columns[columnKey(c.group, c.field)]
		if !ok {
			continue
		}
		data = append(data, &sheets.ValueRange{
			Range:  fmt.Sprintf("%s!%s%d", r.sheetName, columnLetter(col), entry.RowKey),
			Values: [][]interface{}{{c.value}},
		})
	}

	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: "RAW", Data: data}
	if _, err := r.svc.Spreadsheets.Values.BatchUpdate(r.spreadsheetID, req).Context(ctx).Do(); err != nil {
		log.WithError(err).WithField("rowKey", entry.RowKey).Error("❌ Error writing product to catalog sheet")
		return models.CatalogEntry{}, errors.Wrap(err, "failed to write catalog sheet")
	}
	r.invalidate()

	entry.Shop = shop
	log.WithFields(log.Fields{"rowKey": entry.RowKey, "barcode": entry.Barcode, "shop": shop}).Info("✅ Product saved to catalog sheet")
	return entry, nil
}
