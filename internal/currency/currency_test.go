package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "expenseflow/pkg/domain-errors"
)

func TestToCanonical(t *testing.T) {
	t.Run("EUR converts at identity", func(t *testing.T) {
		got, err := ToCanonical(decimal.NewFromInt(150), "EUR")
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(150)), "got %s", got)
	})

	t.Run("USD converts at 0.92", func(t *testing.T) {
		got, err := ToCanonical(decimal.NewFromInt(100), "USD")
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(92)), "got %s", got)
	})

	t.Run("LEI converts at 0.2", func(t *testing.T) {
		got, err := ToCanonical(decimal.NewFromInt(500), "LEI")
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(100)), "got %s", got)
	})

	t.Run("unknown code fails with unsupported currency", func(t *testing.T) {
		_, err := ToCanonical(decimal.NewFromInt(10), "GBP")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnsupportedCurrency))
	})
}

func TestIsSupported(t *testing.T) {
	for _, code := range Supported {
		assert.True(t, IsSupported(code), code)
	}
	assert.False(t, IsSupported("JPY"))
	assert.False(t, IsSupported("eur"), "codes are case sensitive")
}
