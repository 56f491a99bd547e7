package engine

import (
	"errors"
	"math"
)

// Trade rejections. A rejected trade leaves the ledger untouched.
var (
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrFeeExceedsProceeds = errors.New("fee exceeds proceeds")
)

var (
	ErrEngineClosed = errors.New("engine is shut down")
	ErrInvalidPrice = errors.New("price must be positive")
)

// ErrorCode returns a stable machine-readable code for engine errors, or
// "INTERNAL" for anything else.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidQuantity):
		return "INVALID_QUANTITY"
	case errors.Is(err, ErrUnknownSymbol):
		return "UNKNOWN_SYMBOL"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrInsufficientShares):
		return "INSUFFICIENT_SHARES"
	case errors.Is(err, ErrFeeExceedsProceeds):
		return "FEE_EXCEEDS_PROCEEDS"
	case errors.Is(err, ErrInvalidPrice):
		return "INVALID_PRICE"
	case errors.Is(err, ErrEngineClosed):
		return "ENGINE_CLOSED"
	}
	return "INTERNAL"
}

// IsRejection reports whether err is a trade validation failure rather than
// an engine fault.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrUnknownSymbol) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientShares) ||
		errors.Is(err, ErrFeeExceedsProceeds)
}

// ValidPrice reports whether p is usable as a price: positive and finite.
// NaN fails the comparison.
func ValidPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0)
}

// MaxQuantity is the largest quantity a float64 carries exactly. Anything
// smaller is accepted here and left to the ledger to price.
const MaxQuantity = 1 << 53

// QuantityFromFloat converts a client-supplied quantity, rejecting fractional,
// non-positive and non-finite values and those above MaxQuantity.
func QuantityFromFloat(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f != math.Trunc(f) || f > MaxQuantity {
		return 0, ErrInvalidQuantity
	}
	return int(f), nil
}
