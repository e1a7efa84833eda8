package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdv-sorveteria/models"
)

func intPtr(v int) *int { return &v }

func promoLines() []models.LineItem {
	return []models.LineItem{
		{Key: models.CatalogKey(3), Category: "X", UnitPrice: 1000, PromoPrice: 800, PromoThreshold: intPtr(3), Quantity: 2},
		{Key: models.CatalogKey(4), Category: "X", UnitPrice: 500, PromoPrice: 400, PromoThreshold: intPtr(3), Quantity: 2},
	}
}

func TestEvaluate_PromotionWithPix(t *testing.T) {
	res := Default().Evaluate(promoLines(), models.MethodPix)

	assert.Equal(t, 4, res.CategoryQuantities["X"])
	assert.Equal(t, int64(2400), res.Total)
	require.Len(t, res.Lines, 2)
	for _, l := range res.Lines {
		assert.True(t, l.Promoted)
	}
	assert.Equal(t, int64(1600), res.Lines[0].Subtotal)
	assert.Equal(t, int64(800), res.Lines[1].Subtotal)
}

func TestEvaluate_NoPromotionWithDebit(t *testing.T) {
	res := Default().Evaluate(promoLines(), models.MethodDebit)

	assert.Equal(t, int64(3000), res.Total)
	for _, l := range res.Lines {
		assert.False(t, l.Promoted)
		assert.Equal(t, l.UnitPrice, l.EffectivePrice)
	}
}

func TestEvaluate_CashIsEligible(t *testing.T) {
	res := Default().Evaluate(promoLines(), models.MethodCash)
	assert.Equal(t, int64(2400), res.Total)
}

func TestEvaluate_BelowThreshold(t *testing.T) {
	lines := promoLines()
	lines[1].Quantity = 0
	lines[0].Quantity = 2

	res := Default().Evaluate(lines, models.MethodPix)

	assert.Equal(t, int64(2000), res.Total)
	assert.False(t, res.Lines[0].Promoted)
}

func TestEvaluate_ThresholdIsInclusive(t *testing.T) {
	lines := []models.LineItem{
		{Key: models.CatalogKey(1), Category: "Pote", UnitPrice: 2000, PromoPrice: 1500, PromoThreshold: intPtr(3), Quantity: 3},
	}

	res := Default().Evaluate(lines, models.MethodPix)

	assert.Equal(t, int64(4500), res.Total)
}

func TestEvaluate_MissingThresholdNeverPromotes(t *testing.T) {
	lines := []models.LineItem{
		{Key: models.CatalogKey(1), Category: "Pote", UnitPrice: 2000, PromoPrice: 1500, Quantity: 10},
	}

	res := Default().Evaluate(lines, models.MethodPix)

	assert.Equal(t, int64(20000), res.Total)
	assert.False(t, res.Lines[0].Promoted)
}

func TestEvaluate_ThresholdCountsWholeCategory(t *testing.T) {
	lines := []models.LineItem{
		{Key: models.CatalogKey(1), Category: "Picolé", Flavor: "Uva", UnitPrice: 600, PromoPrice: 500, PromoThreshold: intPtr(3), Quantity: 1},
		{Key: models.CatalogKey(2), Category: "Picolé", Flavor: "Limão", UnitPrice: 600, PromoPrice: 500, PromoThreshold: intPtr(3), Quantity: 2},
		{Key: models.CatalogKey(9), Category: "Pote", UnitPrice: 2000, PromoPrice: 1500, PromoThreshold: intPtr(3), Quantity: 1},
	}

	res := Default().Evaluate(lines, models.MethodPix)

	assert.Equal(t, int64(500+1000+2000), res.Total)
}

func TestEvaluate_Idempotent(t *testing.T) {
	lines := promoLines()
	lines = append(lines, models.LineItem{Key: models.ManualKey(1), Category: models.ManualCategory, UnitPrice: 350, PromoPrice: 350, Quantity: 1})

	first := Default().Evaluate(lines, models.MethodPix)
	second := Default().Evaluate(lines, models.MethodPix)

	assert.Equal(t, first, second)
}

func TestEvaluate_DoesNotMutateInput(t *testing.T) {
	lines := []models.LineItem{
		{Key: models.ManualKey(2), Category: models.ManualCategory, UnitPrice: 100, PromoPrice: 100, Quantity: 1},
		{Key: models.CatalogKey(7), Category: "Pote", UnitPrice: 100, PromoPrice: 100, Quantity: 1},
	}

	res := Default().Evaluate(lines, models.MethodUnset)

	assert.Equal(t, models.ManualKey(2), lines[0].Key)
	assert.Equal(t, models.CatalogKey(7), res.Lines[0].Key)
	assert.Equal(t, models.ManualKey(2), res.Lines[1].Key)
}

func TestNewEngine_CustomMethods(t *testing.T) {
	engine := NewEngine(models.MethodCash)

	assert.True(t, engine.PromotionEligible(models.MethodCash))
	assert.False(t, engine.PromotionEligible(models.MethodPix))
	assert.Equal(t, int64(3000), engine.Evaluate(promoLines(), models.MethodPix).Total)
}
