package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vaultwatcher/internal/alerting"
	"vaultwatcher/internal/chains"
	"vaultwatcher/internal/fetcher"
	"vaultwatcher/internal/registry"
)

type memStore struct {
	mu    sync.Mutex
	cfg   *registry.Config
	saves int
}

func newMemStore(cfg *registry.Config) *memStore {
	if cfg == nil {
		cfg = &registry.Config{
			RPCURL:        "https://rpc.test",
			Vaults:        []registry.TrackedVault{},
			AlertChannels: registry.AlertChannels{Console: true},
		}
	}
	return &memStore{cfg: cfg}
}

func (m *memStore) Load() (*registry.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.cfg
	cp.Vaults = append([]registry.TrackedVault(nil), m.cfg.Vaults...)
	return &cp, nil
}

func (m *memStore) Save(cfg *registry.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.saves++
	return nil
}

type fakeVaultFetcher struct {
	mu     sync.Mutex
	states map[string]fetcher.VaultState
	errs   map[string]error
	calls  int
}

func (f *fakeVaultFetcher) FetchVaultState(ctx context.Context, rpcURL, address string) (fetcher.VaultState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	key := strings.ToLower(address)
	if err, ok := f.errs[key]; ok {
		return fetcher.VaultState{}, err
	}
	state, ok := f.states[key]
	if !ok {
		return fetcher.VaultState{}, errors.New("unknown vault")
	}
	state.Address = address
	state.FetchedAt = time.Now().UTC()
	return state, nil
}

type fakePositions struct {
	byChain map[string][]fetcher.Position
	errs    map[string]error
}

func (f *fakePositions) QueryPositions(ctx context.Context, account string, chain chains.Chain) ([]fetcher.Position, error) {
	if err, ok := f.errs[chain.Key]; ok {
		return nil, err
	}
	return f.byChain[chain.Key], nil
}

type fakeSink struct {
	mu     sync.Mutex
	alerts []alerting.Alert
}

func (f *fakeSink) Send(ctx context.Context, channels registry.AlertChannels, alert alerting.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

// vaultState builds a state with the given human liquidity in a 6-decimal
// asset and a fixed 18-decimal share supply.
func vaultState(name, symbol string, liquidity int64) fetcher.VaultState {
	return fetcher.VaultState{
		Name:          name,
		Symbol:        symbol,
		Asset:         "0xAsset",
		AssetSymbol:   "USDC",
		AssetDecimals: 6,
		TotalAssets:   decimal.New(liquidity, 6),
		TotalSupply:   decimal.New(1000, 18),
	}
}

func newTestEngine(store RegistryStore, vaults fetcher.VaultStateFetcher, positions fetcher.PositionSource, sink alerting.Sink) *Engine {
	return New(store, vaults, positions, sink, nil, nil, zerolog.Nop(), Options{Concurrency: 2})
}

func TestAddVaultRejectsBadThreshold(t *testing.T) {
	store := newMemStore(nil)
	engine := newTestEngine(store, &fakeVaultFetcher{}, &fakePositions{}, &fakeSink{})

	for _, threshold := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		if _, err := engine.AddVault(context.Background(), "0xVault1", threshold, "ethereum"); err == nil {
			t.Fatalf("threshold %s must be rejected", threshold)
		}
	}
	if store.saves != 0 {
		t.Fatal("rejected add must not persist")
	}
}

func TestAddVaultRejectsUnknownChain(t *testing.T) {
	store := newMemStore(nil)
	engine := newTestEngine(store, &fakeVaultFetcher{}, &fakePositions{}, &fakeSink{})

	_, err := engine.AddVault(context.Background(), "0xVault1", decimal.NewFromInt(1000), "solana")
	if !errors.Is(err, chains.ErrUnknown) {
		t.Fatalf("expected chains.ErrUnknown, got %v", err)
	}
	if store.saves != 0 {
		t.Fatal("rejected add must not persist")
	}
}

func TestAddVaultFetchFailureDoesNotPersist(t *testing.T) {
	store := newMemStore(nil)
	vaults := &fakeVaultFetcher{errs: map[string]error{"0xvault1": fetcher.ErrVaultFetch}}
	engine := newTestEngine(store, vaults, &fakePositions{}, &fakeSink{})

	_, err := engine.AddVault(context.Background(), "0xVault1", decimal.NewFromInt(1000), "ethereum")
	if !errors.Is(err, fetcher.ErrVaultFetch) {
		t.Fatalf("expected ErrVaultFetch, got %v", err)
	}
	if store.saves != 0 {
		t.Fatal("failed add must not persist")
	}
}

func TestAddVaultSuccessAndDuplicateCaseInsensitive(t *testing.T) {
	store := newMemStore(nil)
	vaults := &fakeVaultFetcher{states: map[string]fetcher.VaultState{
		"0xabc1": vaultState("Prime USDC", "pUSDC", 1500),
	}}
	engine := newTestEngine(store, vaults, &fakePositions{}, &fakeSink{})

	info, err := engine.AddVault(context.Background(), "0xAbC1", decimal.NewFromInt(1000), "base")
	if err != nil {
		t.Fatalf("AddVault failed: %v", err)
	}
	if info.Chain != "base" {
		t.Fatalf("info chain = %q", info.Chain)
	}
	if !info.Liquidity.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("info liquidity = %s", info.Liquidity)
	}
	if store.saves != 1 {
		t.Fatalf("expected one save, got %d", store.saves)
	}

	// Same address in different case must be rejected, leaving one entry.
	_, err = engine.AddVault(context.Background(), "0xABC1", decimal.NewFromInt(2000), "base")
	if !errors.Is(err, ErrDuplicateVault) {
		t.Fatalf("expected ErrDuplicateVault, got %v", err)
	}
	if len(store.cfg.Vaults) != 1 {
		t.Fatalf("registry has %d entries, want 1", len(store.cfg.Vaults))
	}
	if !store.cfg.Vaults[0].Threshold.Equal(decimal.NewFromInt(1000)) {
		t.Fatal("duplicate add must not overwrite the threshold")
	}
}

func TestRemoveVaultIdempotent(t *testing.T) {
	store := newMemStore(&registry.Config{
		Vaults: []registry.TrackedVault{{Address: "0xVault1", Chain: "ethereum"}},
	})
	engine := newTestEngine(store, &fakeVaultFetcher{}, &fakePositions{}, &fakeSink{})

	if err := engine.RemoveVault(context.Background(), "0xvault1"); err != nil {
		t.Fatalf("first remove failed: %v", err)
	}
	afterFirst := len(store.cfg.Vaults)

	if err := engine.RemoveVault(context.Background(), "0xvault1"); err != nil {
		t.Fatalf("second remove must not fail: %v", err)
	}
	if len(store.cfg.Vaults) != afterFirst || afterFirst != 0 {
		t.Fatalf("registry not stable under repeated remove: %d entries", len(store.cfg.Vaults))
	}
}

func TestCheckAllPartialFailureIsolation(t *testing.T) {
	store := newMemStore(&registry.Config{
		AlertChannels: registry.AlertChannels{Console: true},
		Vaults: []registry.TrackedVault{
			{Address: "0xVault1", Chain: "ethereum", Threshold: decimal.NewFromInt(1000), Name: "One", Symbol: "vONE", AssetSymbol: "USDC"},
			{Address: "0xVault2", Chain: "ethereum", Threshold: decimal.NewFromInt(1000), Name: "Two", Symbol: "vTWO", AssetSymbol: "USDC"},
			{Address: "0xVault3", Chain: "ethereum", Threshold: decimal.NewFromInt(1000), Name: "Three", Symbol: "vTHREE", AssetSymbol: "USDC"},
		},
	})
	vaults := &fakeVaultFetcher{
		states: map[string]fetcher.VaultState{
			"0xvault1": vaultState("One", "vONE", 2000),
			"0xvault3": vaultState("Three", "vTHREE", 3000),
		},
		errs: map[string]error{"0xvault2": fetcher.ErrVaultFetch},
	}
	engine := newTestEngine(store, vaults, &fakePositions{}, &fakeSink{})

	results, failures, err := engine.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("CheckAll failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Address != "0xVault1" || results[1].Address != "0xVault3" {
		t.Fatalf("results out of registry order: %s, %s", results[0].Address, results[1].Address)
	}
	if len(failures) != 1 || failures[0].Address != "0xVault2" {
		t.Fatalf("expected one failure for 0xVault2, got %+v", failures)
	}
	if !errors.Is(failures[0].Err, fetcher.ErrVaultFetch) {
		t.Fatalf("failure cause = %v", failures[0].Err)
	}
}

func TestCheckAllThresholdEvaluationAndAlerts(t *testing.T) {
	store := newMemStore(&registry.Config{
		AlertChannels: registry.AlertChannels{Console: true},
		Vaults: []registry.TrackedVault{
			{Address: "0xLow", Chain: "ethereum", Threshold: decimal.NewFromInt(1000), Name: "Low", Symbol: "vLOW", AssetSymbol: "USDC"},
			{Address: "0xHigh", Chain: "ethereum", Threshold: decimal.NewFromInt(1000), Name: "High", Symbol: "vHIGH", AssetSymbol: "USDC"},
		},
	})
	vaults := &fakeVaultFetcher{states: map[string]fetcher.VaultState{
		"0xlow":  vaultState("Low", "vLOW", 900),
		"0xhigh": vaultState("High", "vHIGH", 1500),
	}}
	sink := &fakeSink{}
	engine := newTestEngine(store, vaults, &fakePositions{}, sink)

	results, failures, err := engine.CheckAll(context.Background())
	if err != nil || len(failures) != 0 {
		t.Fatalf("CheckAll failed: %v, failures %+v", err, failures)
	}

	low, high := results[0], results[1]
	if !low.BelowThreshold {
		t.Fatal("900 against 1000 must be below threshold")
	}
	if low.PercentOfThreshold.StringFixed(2) != "90.00" {
		t.Fatalf("low percent = %s", low.PercentOfThreshold.StringFixed(2))
	}
	if high.BelowThreshold {
		t.Fatal("1500 against 1000 must not be below threshold")
	}
	if high.PercentOfThreshold.StringFixed(2) != "150.00" {
		t.Fatalf("high percent = %s", high.PercentOfThreshold.StringFixed(2))
	}

	if len(sink.alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(sink.alerts))
	}
	if sink.alerts[0].Address != "0xLow" {
		t.Fatalf("alert for wrong vault: %s", sink.alerts[0].Address)
	}
	if !sink.alerts[0].Deficit().Equal(decimal.NewFromInt(100)) {
		t.Fatalf("alert deficit = %s", sink.alerts[0].Deficit())
	}

	// A second cycle re-alerts; there is no cross-cycle dedup.
	if _, _, err := engine.CheckAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sink.alerts) != 2 {
		t.Fatalf("expected re-alert on second cycle, got %d alerts", len(sink.alerts))
	}
}

func discoveredPosition(address, name string, liquidityUnits int64) fetcher.Position {
	return fetcher.Position{
		Vault: fetcher.VaultState{
			Address:       address,
			Name:          name,
			Symbol:        "v" + name,
			Asset:         "0xAsset",
			AssetSymbol:   "USDC",
			AssetDecimals: 6,
			TotalAssets:   decimal.New(liquidityUnits, 6),
			TotalSupply:   decimal.New(1000, 18),
		},
		// 0.5 shares raw.
		Shares: decimal.New(5, 17),
	}
}

func TestDiscoverVaultsMathAndIsolation(t *testing.T) {
	positions := &fakePositions{
		byChain: map[string][]fetcher.Position{
			"ethereum": {discoveredPosition("0xEth1", "EthVault", 2_000_000)},
			"arbitrum": {discoveredPosition("0xArb1", "ArbVault", 50)},
		},
		errs: map[string]error{"base": fetcher.ErrIndexQuery},
	}
	engine := newTestEngine(newMemStore(nil), &fakeVaultFetcher{}, positions, &fakeSink{})

	discovered, failures, err := engine.DiscoverVaults(context.Background(), "0xUser", nil)
	if err != nil {
		t.Fatalf("DiscoverVaults failed: %v", err)
	}

	if len(discovered) != 2 {
		t.Fatalf("expected 2 discovered vaults, got %d", len(discovered))
	}
	// Chain iteration order: ethereum before arbitrum.
	if discovered[0].Address != "0xEth1" || discovered[1].Address != "0xArb1" {
		t.Fatalf("discovery order wrong: %s, %s", discovered[0].Address, discovered[1].Address)
	}

	eth := discovered[0]
	if !eth.Liquidity.Equal(decimal.NewFromInt(2_000_000)) {
		t.Fatalf("liquidity = %s", eth.Liquidity)
	}
	if eth.UserShares.String() != "0.5" {
		t.Fatalf("user shares = %s", eth.UserShares)
	}
	// sharePrice = 2e12/1e21, userAssetsValue = 5e17 * sharePrice / 1e6 = 1000.
	if !eth.UserAssetsValue.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("user assets value = %s", eth.UserAssetsValue)
	}

	if len(failures) != 1 || failures[0].Chain != "base" {
		t.Fatalf("expected one failure for base, got %+v", failures)
	}
	if !errors.Is(failures[0].Err, fetcher.ErrIndexQuery) {
		t.Fatalf("failure cause = %v", failures[0].Err)
	}
}

func TestDiscoverVaultsSkipsUnknownChains(t *testing.T) {
	positions := &fakePositions{byChain: map[string][]fetcher.Position{
		"ethereum": {discoveredPosition("0xEth1", "EthVault", 100)},
	}}
	engine := newTestEngine(newMemStore(nil), &fakeVaultFetcher{}, positions, &fakeSink{})

	discovered, failures, err := engine.DiscoverVaults(context.Background(), "0xUser", []string{"solana", "ethereum"})
	if err != nil {
		t.Fatalf("DiscoverVaults failed: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("unknown chain must be skipped, not failed: %+v", failures)
	}
	if len(discovered) != 1 || discovered[0].Address != "0xEth1" {
		t.Fatalf("unexpected discovery: %+v", discovered)
	}
}

func TestAutoAddThresholdDerivation(t *testing.T) {
	empty := discoveredPosition("0xEmpty", "Empty", 0)
	empty.Vault.TotalAssets = decimal.Zero
	positions := &fakePositions{byChain: map[string][]fetcher.Position{
		"ethereum": {discoveredPosition("0xRich", "Rich", 2_000_000), empty},
	}}
	store := newMemStore(nil)
	engine := newTestEngine(store, &fakeVaultFetcher{}, positions, &fakeSink{})

	discovered, _, err := engine.AutoAddDiscovered(context.Background(), "0xUser", decimal.NewFromInt(500_000), []string{"ethereum"})
	if err != nil {
		t.Fatalf("AutoAddDiscovered failed: %v", err)
	}
	if len(discovered) != 2 {
		t.Fatalf("expected full discovered set back, got %d", len(discovered))
	}

	if len(store.cfg.Vaults) != 2 {
		t.Fatalf("expected 2 tracked vaults, got %d", len(store.cfg.Vaults))
	}
	rich, _ := store.cfg.FindVault("0xRich")
	if !rich.Threshold.Equal(decimal.NewFromInt(1_600_000)) {
		t.Fatalf("derived threshold = %s, want 1600000", rich.Threshold)
	}
	if !rich.AutoDiscovered {
		t.Fatal("auto-added vault must be flagged autoDiscovered")
	}
	if rich.UserShares == nil || rich.UserShares.String() != "0.5" {
		t.Fatalf("user shares not captured: %v", rich.UserShares)
	}

	emptyVault, _ := store.cfg.FindVault("0xEmpty")
	if !emptyVault.Threshold.Equal(decimal.NewFromInt(500_000)) {
		t.Fatalf("zero-liquidity threshold = %s, want 500000", emptyVault.Threshold)
	}

	if store.saves != 1 {
		t.Fatalf("auto-add must persist once, saved %d times", store.saves)
	}
}

func TestAutoAddSkipsExistingVaults(t *testing.T) {
	existing := registry.TrackedVault{
		Address:   "0xrich",
		Chain:     "ethereum",
		Threshold: decimal.NewFromInt(42),
		Name:      "Rich",
	}
	store := newMemStore(&registry.Config{Vaults: []registry.TrackedVault{existing}})
	positions := &fakePositions{byChain: map[string][]fetcher.Position{
		"ethereum": {discoveredPosition("0xRich", "Rich", 2_000_000)},
	}}
	engine := newTestEngine(store, &fakeVaultFetcher{}, positions, &fakeSink{})

	discovered, _, err := engine.AutoAddDiscovered(context.Background(), "0xUser", decimal.Zero, []string{"ethereum"})
	if err != nil {
		t.Fatalf("AutoAddDiscovered failed: %v", err)
	}
	if len(discovered) != 1 {
		t.Fatalf("discovered set = %d", len(discovered))
	}

	if len(store.cfg.Vaults) != 1 {
		t.Fatalf("registry gained a duplicate: %d entries", len(store.cfg.Vaults))
	}
	if !store.cfg.Vaults[0].Threshold.Equal(decimal.NewFromInt(42)) {
		t.Fatal("existing threshold must not be overwritten")
	}
}

func TestGetHistoryStubWithoutStore(t *testing.T) {
	engine := newTestEngine(newMemStore(nil), &fakeVaultFetcher{}, &fakePositions{}, &fakeSink{})

	history, err := engine.GetHistory(context.Background(), "0xVault1", 7)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if history.Vault != "0xVault1" || history.Period != "7 days" {
		t.Fatalf("unexpected history header: %+v", history)
	}
	if len(history.DataPoints) != 0 {
		t.Fatal("stub history must be empty")
	}
}

func TestGetVaultInfoUsesTrackedChain(t *testing.T) {
	store := newMemStore(&registry.Config{
		RPCURL: "https://rpc.test",
		Vaults: []registry.TrackedVault{{Address: "0xVault1", Chain: "polygon", Threshold: decimal.NewFromInt(1)}},
	})
	vaults := &fakeVaultFetcher{states: map[string]fetcher.VaultState{
		"0xvault1": vaultState("Poly", "vPOLY", 123),
	}}
	engine := newTestEngine(store, vaults, &fakePositions{}, &fakeSink{})

	info, err := engine.GetVaultInfo(context.Background(), "0xVault1")
	if err != nil {
		t.Fatalf("GetVaultInfo failed: %v", err)
	}
	if info.Chain != "polygon" {
		t.Fatalf("info chain = %q, want polygon", info.Chain)
	}
	if !info.Liquidity.Equal(decimal.NewFromInt(123)) {
		t.Fatalf("liquidity = %s", info.Liquidity)
	}
}

func TestGetStatusSnapshot(t *testing.T) {
	chat := "777"
	store := newMemStore(&registry.Config{
		Vaults:        []registry.TrackedVault{{Address: "0xVault1", Chain: "ethereum"}},
		AlertChannels: registry.AlertChannels{Console: true, Telegram: &chat},
	})
	engine := newTestEngine(store, &fakeVaultFetcher{}, &fakePositions{}, &fakeSink{})

	status, err := engine.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if len(status.Vaults) != 1 {
		t.Fatalf("status vaults = %d", len(status.Vaults))
	}
	if status.AlertChannels.ChatID() != "777" {
		t.Fatalf("status chat id = %q", status.AlertChannels.ChatID())
	}
}
