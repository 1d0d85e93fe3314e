package ethereum

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/chainsafe/cccp-relayer/pkg/primitives"
)

// ErrGasOverflow is returned when a scaled gas limit does not fit in a uint64.
var ErrGasOverflow = errors.New("scaled gas limit overflows uint64")

// ApplyGasCoefficient multiplies an estimated gas amount by the coefficient,
// rounding up.
func ApplyGasCoefficient(gas uint64, coefficient primitives.GasCoefficient) (uint64, error) {
	scaled := decimal.NewFromBigInt(new(big.Int).SetUint64(gas), 0).
		Mul(decimal.NewFromFloat(coefficient.Float64())).
		Ceil().
		BigInt()
	if !scaled.IsUint64() {
		return 0, fmt.Errorf("%w: %d x %.1f", ErrGasOverflow, gas, coefficient.Float64())
	}
	return scaled.Uint64(), nil
}
