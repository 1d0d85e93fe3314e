package primitives

import "fmt"

// GasCoefficient is the multiplier tier applied to an estimated gas amount.
type GasCoefficient uint8

const (
	// GasCoefficientLow is used for submissions to external chains.
	GasCoefficientLow GasCoefficient = iota + 1
	// GasCoefficientMid is used for submissions to the native chain.
	GasCoefficientMid
	// GasCoefficientHigh is reserved.
	GasCoefficientHigh
)

// CoefficientFor returns the coefficient for a transaction whose destination
// has the given direction.
func CoefficientFor(direction BridgeDirection) GasCoefficient {
	if direction == Inbound {
		return GasCoefficientMid
	}
	return GasCoefficientLow
}

// Float64 returns the multiplier.
func (c GasCoefficient) Float64() float64 {
	switch c {
	case GasCoefficientLow:
		return 1.2
	case GasCoefficientMid:
		return 7.0
	case GasCoefficientHigh:
		return 10.0
	default:
		panic(fmt.Sprintf("unknown gas coefficient %d", uint8(c)))
	}
}

func (c GasCoefficient) String() string {
	switch c {
	case GasCoefficientLow:
		return "low"
	case GasCoefficientMid:
		return "mid"
	case GasCoefficientHigh:
		return "high"
	default:
		return fmt.Sprintf("GasCoefficient(%d)", uint8(c))
	}
}
