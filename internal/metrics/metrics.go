package metrics

import (
	"github.com/shopspring/decimal"
)

// shareDecimals is fixed at 18: vault shares report 18 decimals regardless of
// the underlying asset, matching the vault share token convention.
const shareDecimals = 18

var hundred = decimal.NewFromInt(100)

// Derived holds display metrics computed from raw vault state.
type Derived struct {
	Liquidity       decimal.Decimal
	Shares          decimal.Decimal
	UtilizationRate decimal.Decimal
}

// Compute converts raw base-unit totals into human-readable metrics.
// Zero denominators yield zero, never an error or a non-finite value.
//
// UtilizationRate is shares over liquidity, scaled to percent. The name is a
// known misnomer kept for compatibility with the existing reporting contract.
func Compute(totalAssetsRaw, totalSupplyRaw decimal.Decimal, assetDecimals uint8) Derived {
	liquidity := totalAssetsRaw.Shift(-int32(assetDecimals))
	shares := totalSupplyRaw.Shift(-shareDecimals)

	utilization := decimal.Zero
	if liquidity.IsPositive() && shares.IsPositive() {
		utilization = shares.Div(liquidity).Mul(hundred)
	}

	return Derived{
		Liquidity:       liquidity,
		Shares:          shares,
		UtilizationRate: utilization,
	}
}

// SharePrice is assets per share in raw units, zero when supply is zero.
func SharePrice(totalAssetsRaw, totalSupplyRaw decimal.Decimal) decimal.Decimal {
	if !totalSupplyRaw.IsPositive() {
		return decimal.Zero
	}
	return totalAssetsRaw.Div(totalSupplyRaw)
}

// PercentOf returns value/reference*100, zero when the reference is zero.
func PercentOf(value, reference decimal.Decimal) decimal.Decimal {
	if reference.IsZero() {
		return decimal.Zero
	}
	return value.Div(reference).Mul(hundred)
}
