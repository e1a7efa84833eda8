package models

import "time"

const (
	HistoryDateLayout = "2006-01-02"
	HistoryTimeLayout = "15:04:05"
)

// HistoryRecord is the immutable record of a settled sale
// Example:
// {
//   "saleId": "3f1c...",
//   "shop": "Centro",
//   "date": "2026-10-15",
//   "time": "14:03:11",
//   "finalTotal": 3750,
//   "paymentMethod": "Dinheiro",
//   "lines": [{"key": "row:12", "category": "Pote", "quantity": 3, ...}],
//   "totalQuantity": 3
// }
type HistoryRecord struct {
	ID            int64         `json:"id,omitempty"`
	SaleID        string        `json:"saleId"`
	Shop          string        `json:"shop"`
	Date          string        `json:"date"`
	Time          string        `json:"time"`
	FinalTotal    int64         `json:"finalTotal"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	PaymentID     string        `json:"paymentId,omitempty"`
	Lines         []LineItem    `json:"lines"`
	TotalQuantity int           `json:"totalQuantity"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// SoldAt parses Date and Time back into a timestamp in loc
func (r HistoryRecord) SoldAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(HistoryDateLayout+" "+HistoryTimeLayout, r.Date+" "+r.Time, loc)
}

// CategoryQuantity is one row of the per-category sales report
type CategoryQuantity struct {
	Category string `json:"category"`
	Quantity int    `json:"quantity"`
}

// HistoryListResponse represents the response for listing history records
type HistoryListResponse struct {
	Records []HistoryRecord `json:"records"`
}
