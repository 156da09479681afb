package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"vaultwatcher/internal/alerting"
	"vaultwatcher/internal/chains"
	"vaultwatcher/internal/fetcher"
	"vaultwatcher/internal/metrics"
	"vaultwatcher/internal/registry"
	"vaultwatcher/internal/storage"
)

// ErrDuplicateVault marks an add of an already-tracked address.
var ErrDuplicateVault = errors.New("vault already tracked")

// autoThresholdFactor derives an auto-add threshold from current liquidity:
// alert once liquidity drops by 20%.
var autoThresholdFactor = decimal.RequireFromString("0.8")

// DefaultAutoThreshold applies to auto-added vaults with zero liquidity.
var DefaultAutoThreshold = decimal.NewFromInt(1_000_000)

// RegistryStore persists the set of tracked vaults.
type RegistryStore interface {
	Load() (*registry.Config, error)
	Save(cfg *registry.Config) error
}

// VaultInfo is the live view of one vault, raw state plus derived metrics.
type VaultInfo struct {
	Address         string
	Chain           string
	Name            string
	Symbol          string
	Asset           string
	AssetSymbol     string
	AssetDecimals   uint8
	Liquidity       decimal.Decimal
	Shares          decimal.Decimal
	UtilizationRate decimal.Decimal
	FetchedAt       time.Time
}

// CheckResult is the outcome of one vault's threshold evaluation.
type CheckResult struct {
	VaultInfo
	Threshold          decimal.Decimal
	BelowThreshold     bool
	PercentOfThreshold decimal.Decimal
}

// CheckFailure reports one vault the check cycle could not evaluate.
type CheckFailure struct {
	Address string
	Chain   string
	Err     error
}

// DiscoveredVault is one position found for an account.
type DiscoveredVault struct {
	Chain           string
	Address         string
	Name            string
	Symbol          string
	AssetSymbol     string
	AssetDecimals   uint8
	UserShares      decimal.Decimal
	UserAssetsValue decimal.Decimal
	Liquidity       decimal.Decimal
}

// DiscoveryFailure reports one chain the discovery scan could not query.
type DiscoveryFailure struct {
	Chain string
	Err   error
}

// Status is a read-only snapshot of the registry.
type Status struct {
	Vaults        []registry.TrackedVault
	AlertChannels registry.AlertChannels
}

// History is a vault's recorded liquidity series. Without a snapshot store
// the series is always empty.
type History struct {
	Vault      string
	Period     string
	DataPoints []HistoryPoint
}

// HistoryPoint is one recorded observation.
type HistoryPoint struct {
	Time           time.Time
	Liquidity      decimal.Decimal
	UtilizationPct decimal.Decimal
	BelowThreshold bool
}

// Options tune engine behaviour.
type Options struct {
	Concurrency int
}

// Engine orchestrates the vault registry, data sources, and alert delivery.
// Registry mutations serialize behind a single mutex so concurrent add,
// remove, and auto-add calls never interleave their load-mutate-save cycles.
type Engine struct {
	store     RegistryStore
	vaults    fetcher.VaultStateFetcher
	positions fetcher.PositionSource
	sink      alerting.Sink
	snapshots storage.SnapshotStore // optional
	alertLog  storage.AlertStore    // optional
	logger    zerolog.Logger

	concurrency int
	mu          sync.Mutex
}

// New constructs the monitoring engine. snapshots and alertLog may be nil.
func New(store RegistryStore, vaults fetcher.VaultStateFetcher, positions fetcher.PositionSource, sink alerting.Sink, snapshots storage.SnapshotStore, alertLog storage.AlertStore, logger zerolog.Logger, opts Options) *Engine {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Engine{
		store:       store,
		vaults:      vaults,
		positions:   positions,
		sink:        sink,
		snapshots:   snapshots,
		alertLog:    alertLog,
		logger:      logger.With().Str("component", "monitor").Logger(),
		concurrency: concurrency,
	}
}

// resolveRPC picks the endpoint for a chain. The registry's rpcUrl overrides
// the ethereum default; other chains keep their built-in endpoints.
func resolveRPC(cfg *registry.Config, chain chains.Chain) string {
	if chain.Key == "ethereum" && cfg.RPCURL != "" {
		return cfg.RPCURL
	}
	return chain.RPCURL
}

// AddVault validates and registers a vault for monitoring. The vault must
// resolve on-chain before anything is persisted.
func (e *Engine) AddVault(ctx context.Context, address string, threshold decimal.Decimal, chainKey string) (*VaultInfo, error) {
	if !threshold.IsPositive() {
		return nil, fmt.Errorf("threshold must be a positive amount, got %s", threshold)
	}
	chain, err := chains.Lookup(chainKey)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.store.Load()
	if err != nil {
		return nil, err
	}
	if _, exists := cfg.FindVault(address); exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateVault, address)
	}

	state, err := e.vaults.FetchVaultState(ctx, resolveRPC(cfg, chain), address)
	if err != nil {
		return nil, err
	}
	state.Chain = chain.Key
	info := buildInfo(state)

	cfg.Vaults = append(cfg.Vaults, registry.TrackedVault{
		Address:     address,
		Chain:       chain.Key,
		Threshold:   threshold,
		Name:        state.Name,
		Symbol:      state.Symbol,
		AssetSymbol: state.AssetSymbol,
		AddedAt:     time.Now().UTC(),
	})
	if err := e.store.Save(cfg); err != nil {
		return nil, err
	}

	e.logger.Info().Str("vault", address).Str("chain", chain.Key).Str("threshold", threshold.String()).Msg("vault added")
	return &info, nil
}

// RemoveVault drops a vault from monitoring. Removing an unknown address is
// not an error.
func (e *Engine) RemoveVault(ctx context.Context, address string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.store.Load()
	if err != nil {
		return err
	}
	removed := cfg.RemoveVault(address)
	if err := e.store.Save(cfg); err != nil {
		return err
	}

	e.logger.Info().Str("vault", address).Bool("removed", removed).Msg("vault removal processed")
	return nil
}

// CheckAll evaluates every tracked vault. Results come back in registry
// order; a fetch failure for one vault is reported alongside the results for
// the others and never aborts the cycle. Each breaching vault triggers the
// alert sink exactly once per call.
func (e *Engine) CheckAll(ctx context.Context) ([]CheckResult, []CheckFailure, error) {
	cfg, err := e.store.Load()
	if err != nil {
		return nil, nil, err
	}

	resultSlots := make([]*CheckResult, len(cfg.Vaults))
	failureSlots := make([]*CheckFailure, len(cfg.Vaults))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, tracked := range cfg.Vaults {
		g.Go(func() error {
			result, err := e.checkOne(ctx, cfg, tracked)
			if err != nil {
				e.logger.Error().Err(err).Str("vault", tracked.Address).Str("chain", tracked.Chain).Msg("vault check failed")
				failureSlots[i] = &CheckFailure{Address: tracked.Address, Chain: tracked.Chain, Err: err}
				return nil
			}
			resultSlots[i] = result
			return nil
		})
	}
	_ = g.Wait()

	results := make([]CheckResult, 0, len(cfg.Vaults))
	failures := make([]CheckFailure, 0)
	for i := range cfg.Vaults {
		if resultSlots[i] != nil {
			results = append(results, *resultSlots[i])
		}
		if failureSlots[i] != nil {
			failures = append(failures, *failureSlots[i])
		}
	}
	return results, failures, nil
}

func (e *Engine) checkOne(ctx context.Context, cfg *registry.Config, tracked registry.TrackedVault) (*CheckResult, error) {
	chain, err := chains.Lookup(tracked.Chain)
	if err != nil {
		return nil, err
	}

	state, err := e.vaults.FetchVaultState(ctx, resolveRPC(cfg, chain), tracked.Address)
	if err != nil {
		return nil, err
	}
	state.Chain = chain.Key

	info := buildInfo(state)
	below := info.Liquidity.LessThan(tracked.Threshold)
	result := &CheckResult{
		VaultInfo:          info,
		Threshold:          tracked.Threshold,
		BelowThreshold:     below,
		PercentOfThreshold: metrics.PercentOf(info.Liquidity, tracked.Threshold),
	}

	if e.snapshots != nil {
		snapshot := storage.Snapshot{
			VaultAddress:   tracked.Address,
			Chain:          chain.Key,
			ObservedAt:     info.FetchedAt,
			Liquidity:      info.Liquidity,
			Shares:         info.Shares,
			UtilizationPct: info.UtilizationRate,
			Threshold:      tracked.Threshold,
			BelowThreshold: below,
		}
		if err := e.snapshots.InsertSnapshot(ctx, snapshot); err != nil {
			e.logger.Error().Err(err).Str("vault", tracked.Address).Msg("failed to record snapshot")
		}
	}

	if below {
		e.dispatchAlert(ctx, cfg.AlertChannels, tracked, info)
	}
	return result, nil
}

func (e *Engine) dispatchAlert(ctx context.Context, channels registry.AlertChannels, tracked registry.TrackedVault, info VaultInfo) {
	alert := alerting.Alert{
		VaultName:   tracked.Name,
		VaultSymbol: tracked.Symbol,
		Address:     tracked.Address,
		Chain:       tracked.Chain,
		AssetSymbol: tracked.AssetSymbol,
		Liquidity:   info.Liquidity,
		Threshold:   tracked.Threshold,
	}

	if e.alertLog != nil {
		record := storage.AlertRecord{
			VaultAddress: tracked.Address,
			Chain:        tracked.Chain,
			Liquidity:    info.Liquidity,
			Threshold:    tracked.Threshold,
			Deficit:      alert.Deficit(),
		}
		if _, err := e.alertLog.InsertAlert(ctx, record); err != nil {
			e.logger.Error().Err(err).Str("vault", tracked.Address).Msg("failed to persist alert record")
		}
	}

	if err := e.sink.Send(ctx, channels, alert); err != nil {
		e.logger.Error().Err(err).Str("vault", tracked.Address).Msg("alert delivery reported an error")
	}
}

// GetStatus returns a read-only snapshot of the registry.
func (e *Engine) GetStatus(ctx context.Context) (*Status, error) {
	cfg, err := e.store.Load()
	if err != nil {
		return nil, err
	}
	return &Status{Vaults: cfg.Vaults, AlertChannels: cfg.AlertChannels}, nil
}

// GetVaultInfo fetches live state for a single vault. Tracked vaults resolve
// on their registered chain; unknown addresses default to ethereum.
func (e *Engine) GetVaultInfo(ctx context.Context, address string) (*VaultInfo, error) {
	cfg, err := e.store.Load()
	if err != nil {
		return nil, err
	}

	chainKey := "ethereum"
	if tracked, ok := cfg.FindVault(address); ok {
		chainKey = tracked.Chain
	}
	chain, err := chains.Lookup(chainKey)
	if err != nil {
		return nil, err
	}

	state, err := e.vaults.FetchVaultState(ctx, resolveRPC(cfg, chain), address)
	if err != nil {
		return nil, err
	}
	state.Chain = chain.Key
	info := buildInfo(state)
	return &info, nil
}

// GetHistory returns the recorded liquidity series over the trailing period.
// Without a snapshot store the series is empty by contract.
func (e *Engine) GetHistory(ctx context.Context, address string, days int) (*History, error) {
	if days <= 0 {
		days = 7
	}
	history := &History{
		Vault:      address,
		Period:     fmt.Sprintf("%d days", days),
		DataPoints: []HistoryPoint{},
	}
	if e.snapshots == nil {
		return history, nil
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)
	snapshots, err := e.snapshots.ListSnapshotsBetween(ctx, address, from, to)
	if err != nil {
		return nil, err
	}
	for _, s := range snapshots {
		history.DataPoints = append(history.DataPoints, HistoryPoint{
			Time:           s.ObservedAt,
			Liquidity:      s.Liquidity,
			UtilizationPct: s.UtilizationPct,
			BelowThreshold: s.BelowThreshold,
		})
	}
	return history, nil
}

// DiscoverVaults scans the requested chains for the account's vault
// positions. Chains without a registry mapping are skipped; a query failure
// on one chain is reported and scanning continues. Results keep chain
// iteration order, then position order as returned by the index.
func (e *Engine) DiscoverVaults(ctx context.Context, account string, chainKeys []string) ([]DiscoveredVault, []DiscoveryFailure, error) {
	if len(chainKeys) == 0 {
		chainKeys = chains.DefaultKeys()
	}

	perChain := make([][]DiscoveredVault, len(chainKeys))
	failureSlots := make([]*DiscoveryFailure, len(chainKeys))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, key := range chainKeys {
		chain, err := chains.Lookup(key)
		if err != nil {
			e.logger.Warn().Str("chain", key).Msg("skipping unsupported chain")
			continue
		}
		g.Go(func() error {
			positions, err := e.positions.QueryPositions(ctx, account, chain)
			if err != nil {
				e.logger.Error().Err(err).Str("chain", chain.Key).Msg("position scan failed")
				failureSlots[i] = &DiscoveryFailure{Chain: chain.Key, Err: err}
				return nil
			}
			perChain[i] = discoveredFromPositions(chain, positions)
			return nil
		})
	}
	_ = g.Wait()

	var discovered []DiscoveredVault
	failures := make([]DiscoveryFailure, 0)
	for i := range chainKeys {
		discovered = append(discovered, perChain[i]...)
		if failureSlots[i] != nil {
			failures = append(failures, *failureSlots[i])
		}
	}
	return discovered, failures, nil
}

func discoveredFromPositions(chain chains.Chain, positions []fetcher.Position) []DiscoveredVault {
	discovered := make([]DiscoveredVault, 0, len(positions))
	for _, pos := range positions {
		vault := pos.Vault
		decimals := int32(vault.AssetDecimals)

		sharePrice := metrics.SharePrice(vault.TotalAssets, vault.TotalSupply)
		discovered = append(discovered, DiscoveredVault{
			Chain:           chain.Key,
			Address:         vault.Address,
			Name:            vault.Name,
			Symbol:          vault.Symbol,
			AssetSymbol:     vault.AssetSymbol,
			AssetDecimals:   vault.AssetDecimals,
			UserShares:      pos.Shares.Shift(-18),
			UserAssetsValue: pos.Shares.Mul(sharePrice).Shift(-decimals),
			Liquidity:       vault.TotalAssets.Shift(-decimals),
		})
	}
	return discovered
}

// AutoAddDiscovered runs discovery and registers every vault not already
// tracked, deriving each threshold from current liquidity (80% of it) and
// falling back to defaultThreshold for empty vaults. The registry is
// persisted once after the whole set is processed. Returns the full
// discovered set, not just the newly added entries.
func (e *Engine) AutoAddDiscovered(ctx context.Context, account string, defaultThreshold decimal.Decimal, chainKeys []string) ([]DiscoveredVault, []DiscoveryFailure, error) {
	if !defaultThreshold.IsPositive() {
		defaultThreshold = DefaultAutoThreshold
	}

	discovered, failures, err := e.DiscoverVaults(ctx, account, chainKeys)
	if err != nil {
		return nil, nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.store.Load()
	if err != nil {
		return nil, nil, err
	}

	added := 0
	for _, vault := range discovered {
		if _, exists := cfg.FindVault(vault.Address); exists {
			e.logger.Info().Str("vault", vault.Address).Msg("already monitoring, skipping")
			continue
		}

		threshold := defaultThreshold
		if vault.Liquidity.IsPositive() {
			threshold = vault.Liquidity.Mul(autoThresholdFactor)
		}

		shares := vault.UserShares
		cfg.Vaults = append(cfg.Vaults, registry.TrackedVault{
			Address:        vault.Address,
			Chain:          vault.Chain,
			Threshold:      threshold,
			Name:           vault.Name,
			Symbol:         vault.Symbol,
			AssetSymbol:    vault.AssetSymbol,
			AddedAt:        time.Now().UTC(),
			AutoDiscovered: true,
			UserShares:     &shares,
		})
		added++
		e.logger.Info().Str("vault", vault.Address).Str("chain", vault.Chain).Str("threshold", threshold.String()).Msg("auto-added vault")
	}

	if err := e.store.Save(cfg); err != nil {
		return nil, nil, err
	}

	e.logger.Info().Int("discovered", len(discovered)).Int("added", added).Msg("auto-add complete")
	return discovered, failures, nil
}

func buildInfo(state fetcher.VaultState) VaultInfo {
	derived := metrics.Compute(state.TotalAssets, state.TotalSupply, state.AssetDecimals)
	return VaultInfo{
		Address:         state.Address,
		Chain:           state.Chain,
		Name:            state.Name,
		Symbol:          state.Symbol,
		Asset:           state.Asset,
		AssetSymbol:     state.AssetSymbol,
		AssetDecimals:   state.AssetDecimals,
		Liquidity:       derived.Liquidity,
		Shares:          derived.Shares,
		UtilizationRate: derived.UtilizationRate,
		FetchedAt:       state.FetchedAt,
	}
}
