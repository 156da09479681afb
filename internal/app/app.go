package app

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vaultwatcher/internal/alerting"
	"vaultwatcher/internal/config"
	"vaultwatcher/internal/fetcher"
	"vaultwatcher/internal/monitor"
	"vaultwatcher/internal/registry"
	"vaultwatcher/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	registryPath string
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	path := cfg.Registry.Path
	if path == "" {
		resolved, err := registry.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = resolved
	}

	return &App{
		Config:       cfg,
		Logger:       logger.With().Str("component", "app").Logger(),
		registryPath: path,
	}, nil
}

// RegistryPath reports where the tracked-vault registry lives.
func (a *App) RegistryPath() string {
	return a.registryPath
}

func (a *App) newSink() alerting.Sink {
	var notifier alerting.Notifier
	if token := a.Config.Alerting.Telegram.BotToken; token != "" {
		notifier = alerting.NewTelegramNotifier(token, a.Config.Alerting.Telegram.APIBase, 10*time.Second, a.Logger)
	}

	logPath := a.Config.Alerting.LogPath
	if logPath == "" {
		logPath = filepath.Join(filepath.Dir(a.registryPath), "alerts.log")
	}

	return alerting.NewDispatcher(notifier, logPath, nil, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, storage.PoolConfig{
		DSN:             a.Config.Database.DSN,
		MaxOpenConns:    a.Config.Database.MaxOpenConns,
		MaxIdleConns:    a.Config.Database.MaxIdleConns,
		ConnMaxLifetime: a.Config.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newEngine wires the monitoring engine. store may be nil, which disables
// snapshot and alert persistence.
func (a *App) newEngine(store *storage.Store) *monitor.Engine {
	vaults := fetcher.NewEthVaultFetcher(fetcher.VaultOptions{
		Timeout: a.Config.Ethereum.RequestTimeout,
	}, a.Logger)

	positions := fetcher.NewIndexClient(fetcher.IndexOptions{
		BaseURL:   a.Config.Index.BaseURL,
		Timeout:   a.Config.Index.RequestTimeout,
		RetryMax:  a.Config.Index.RetryMax,
		UserAgent: a.Config.Index.UserAgent,
	}, a.Logger)

	var snapshots storage.SnapshotStore
	var alertLog storage.AlertStore
	if store != nil {
		snapshots = store
		alertLog = store
	}

	return monitor.New(
		registry.NewStore(a.registryPath),
		vaults,
		positions,
		a.newSink(),
		snapshots,
		alertLog,
		a.Logger,
		monitor.Options{Concurrency: a.Config.Monitor.Concurrency},
	)
}

// AddOptions configure the add command.
type AddOptions struct {
	Address   string
	Threshold decimal.Decimal
	Chain     string
}

// DiscoverOptions configure the discover command.
type DiscoverOptions struct {
	Account          string
	Chains           []string
	AutoAdd          bool
	DefaultThreshold decimal.Decimal
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Address string
	Days    int
}

// ExportOptions hold parameters for exporting recorded snapshots.
type ExportOptions struct {
	Address   string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
