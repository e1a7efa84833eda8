package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdv-sorveteria/models"
)

func TestNormalizeSearch(t *testing.T) {
	assert.Equal(t, "limao", NormalizeSearch(" Limão "))
	assert.Equal(t, "acai com granola", NormalizeSearch("AÇAÍ com Granola"))
	assert.Equal(t, "Picole", StripAccents("Picolé"))
}

func TestInputClassification(t *testing.T) {
	assert.True(t, IsBarcode("7891234567890"))
	assert.False(t, IsBarcode(""))
	assert.False(t, IsBarcode("789-12"))

	assert.True(t, LooksLikeAmount("7,50"))
	assert.True(t, LooksLikeAmount("12.00"))
	assert.False(t, LooksLikeAmount("750"))
	assert.False(t, LooksLikeAmount("pote 1.5"))
}

func TestParseOptionalInt(t *testing.T) {
	v, err := ParseOptionalInt("promoThreshold", "")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = ParseOptionalInt("promoThreshold", " 3 ")
	require.NoError(t, err)
	assert.Equal(t, 3, *v)

	_, err = ParseOptionalInt("promoThreshold", "três")
	assert.True(t, models.IsValidation(err))
	_, err = ParseOptionalInt("promoThreshold", "-2")
	assert.True(t, models.IsValidation(err))
}
