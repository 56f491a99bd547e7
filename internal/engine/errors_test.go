package engine

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	cases := map[error]string{
		nil:                                          "",
		ErrInvalidQuantity:                           "INVALID_QUANTITY",
		fmt.Errorf("%w: FOO", ErrUnknownSymbol):      "UNKNOWN_SYMBOL",
		fmt.Errorf("wrap: %w", ErrInsufficientFunds): "INSUFFICIENT_FUNDS",
		ErrInsufficientShares:                        "INSUFFICIENT_SHARES",
		ErrFeeExceedsProceeds:                        "FEE_EXCEEDS_PROCEEDS",
		ErrEngineClosed:                              "ENGINE_CLOSED",
		errors.New("boom"):                           "INTERNAL",
	}
	for err, want := range cases {
		assert.Equal(t, want, ErrorCode(err), "error %v", err)
	}
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(fmt.Errorf("%w: x", ErrFeeExceedsProceeds)))
	assert.False(t, IsRejection(ErrEngineClosed))
	assert.False(t, IsRejection(nil))
}

func TestValidPrice(t *testing.T) {
	assert.True(t, ValidPrice(0.01))
	assert.True(t, ValidPrice(1e300))
	for _, bad := range []float64{0, -0.5, math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.False(t, ValidPrice(bad), "price %v", bad)
	}
}

func TestQuantityFromFloat(t *testing.T) {
	q, err := QuantityFromFloat(12)
	assert.NoError(t, err)
	assert.Equal(t, 12, q)

	q, err = QuantityFromFloat(1e12)
	assert.NoError(t, err)
	assert.Equal(t, 1_000_000_000_000, q)

	for _, bad := range []float64{0, -1, 1.5, math.NaN(), math.Inf(1), 1e17} {
		_, err := QuantityFromFloat(bad)
		assert.ErrorIs(t, err, ErrInvalidQuantity, "input %v", bad)
	}
}
