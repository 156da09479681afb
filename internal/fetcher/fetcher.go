package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"vaultwatcher/internal/chains"
)

var (
	// ErrVaultFetch marks an unreachable or malformed vault data source.
	ErrVaultFetch = errors.New("vault fetch failed")
	// ErrIndexQuery marks a position index query failure.
	ErrIndexQuery = errors.New("position index query failed")
)

// VaultState is a point-in-time snapshot of a vault's on-chain state.
// Raw totals stay in base units; conversion happens in the metrics package.
type VaultState struct {
	Address       string
	Chain         string
	Name          string
	Symbol        string
	Asset         string
	AssetSymbol   string
	AssetDecimals uint8
	TotalAssets   decimal.Decimal
	TotalSupply   decimal.Decimal
	FetchedAt     time.Time
}

// Position is one account position returned by the index: the vault identity
// plus the account's raw 18-decimal share balance.
type Position struct {
	Vault  VaultState
	Shares decimal.Decimal
}

// VaultStateFetcher retrieves live vault state over a given RPC endpoint.
type VaultStateFetcher interface {
	FetchVaultState(ctx context.Context, rpcURL, address string) (VaultState, error)
}

// PositionSource finds vault positions held by an account on one chain.
type PositionSource interface {
	QueryPositions(ctx context.Context, account string, chain chains.Chain) ([]Position, error)
}
