package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is one recorded liquidity observation for a tracked vault.
type Snapshot struct {
	VaultAddress   string
	Chain          string
	ObservedAt     time.Time
	Liquidity      decimal.Decimal
	Shares         decimal.Decimal
	UtilizationPct decimal.Decimal
	Threshold      decimal.Decimal
	BelowThreshold bool
	CreatedAt      time.Time
}

// AlertRecord is an audit row for one dispatched alert. Repeated breaches
// produce repeated rows; the store never deduplicates them.
type AlertRecord struct {
	ID           int64
	VaultAddress string
	Chain        string
	Liquidity    decimal.Decimal
	Threshold    decimal.Decimal
	Deficit      decimal.Decimal
	CreatedAt    time.Time
}
