package service

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"pdv-sorveteria/models"
	"pdv-sorveteria/repository"
	"pdv-sorveteria/utils"
)

// ReportFilter narrows the category report. Dates are inclusive, in the
// history date layout; empty means unbounded.
type ReportFilter struct {
	Category string
	From     string
	To       string
}

// HistoryService reads the sales history
type HistoryService struct {
	repository repository.HistoryRepositoryInterface
}

// NewHistoryService creates a new HistoryService
func NewHistoryService(repo repository.HistoryRepositoryInterface) *HistoryService {
	return &HistoryService{repository: repo}
}

// List returns the most recent records first; limit <= 0 returns all
func (s *HistoryService) List(ctx context.Context, limit int) ([]models.HistoryRecord, error) {
	records, err := s.repository.ListAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list history")
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Find returns the record of a settled sale
func (s *HistoryService) Find(ctx context.Context, saleID string) (models.HistoryRecord, error) {
	records, err := s.repository.ListAll(ctx)
	if err != nil {
		return models.HistoryRecord{}, errors.Wrap(err, "list history")
	}
	for _, r := range records {
		if r.SaleID == saleID {
			return r, nil
		}
	}
	return models.HistoryRecord{}, &models.NotFoundError{Kind: "history record", ID: saleID}
}

// CategoryReport sums the quantity sold per category
func (s *HistoryService) CategoryReport(ctx context.Context, filter ReportFilter) ([]models.CategoryQuantity, error) {
	records, err := s.repository.ListAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list history")
	}
	return CategoryQuantities(records, filter), nil
}

// CategoryQuantities aggregates line quantities per category, largest first.
// The category filter is a case and accent insensitive substring match.
func CategoryQuantities(records []models.HistoryRecord, filter ReportFilter) []models.CategoryQuantity {
	needle := utils.NormalizeSearch(filter.Category)
	totals := make(map[string]int)

	for _, r := range records {
		if filter.From != "" && r.Date < filter.From {
			continue
		}
		if filter.To != "" && r.Date > filter.To {
			continue
		}
		for _, l := range r.Lines {
			if needle != "" && !strings.Contains(utils.NormalizeSearch(l.Category), needle) {
				continue
			}
			totals[l.Category] += l.Quantity
		}
	}

	out := make([]models.CategoryQuantity, 0, len(totals))
	for category, qty := range totals {
		out = append(out, models.CategoryQuantity{Category: category, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].Category < out[j].Category
	})
	return out
}
