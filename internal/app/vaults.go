package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"vaultwatcher/internal/monitor"
)

// Add registers a vault for monitoring and prints its resolved state.
func (a *App) Add(ctx context.Context, opts AddOptions) error {
	engine := a.newEngine(nil)

	info, err := engine.AddVault(ctx, opts.Address, opts.Threshold, opts.Chain)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Added vault %s (%s) on %s\n", info.Name, info.Symbol, info.Chain)
	printVaultInfo(info, &opts.Threshold)
	return nil
}

// Remove drops a vault from monitoring.
func (a *App) Remove(ctx context.Context, address string) error {
	engine := a.newEngine(nil)

	if err := engine.RemoveVault(ctx, address); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Removed vault %s\n", address)
	return nil
}

// Status prints the tracked vaults, alert channel configuration, and the most
// recent recorded alerts when a database is configured.
func (a *App) Status(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	engine := a.newEngine(store)
	status, err := engine.GetStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Registry: %s\n", a.registryPath)
	if len(status.Vaults) == 0 {
		fmt.Fprintln(os.Stdout, "No vaults are being monitored. Use 'add' or 'discover --auto-add' to start.")
	} else {
		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Vault\tChain\tThreshold\tName\tAdded (UTC)\tSource")
		for _, vault := range status.Vaults {
			source := "manual"
			if vault.AutoDiscovered {
				source = "discovered"
			}
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
				vault.Address,
				vault.Chain,
				vault.Threshold.String(),
				vault.Name,
				vault.AddedAt.UTC().Format(time.RFC3339),
				source,
			)
		}
		writer.Flush()
	}

	fmt.Fprintf(os.Stdout, "\nAlert channels: console=%t", status.AlertChannels.Console)
	if chatID := status.AlertChannels.ChatID(); chatID != "" {
		fmt.Fprintf(os.Stdout, " telegram(chat %s)", chatID)
	}
	fmt.Fprintln(os.Stdout)

	if store != nil {
		alerts, err := store.ListRecentAlerts(ctx, 5)
		if err != nil {
			return err
		}
		if len(alerts) > 0 {
			fmt.Fprintln(os.Stdout, "\nRecent alerts:")
			writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "Time (UTC)\tVault\tChain\tLiquidity\tThreshold\tDeficit")
			for _, alert := range alerts {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
					alert.CreatedAt.UTC().Format(time.RFC3339),
					alert.VaultAddress,
					alert.Chain,
					alert.Liquidity.StringFixed(2),
					alert.Threshold.StringFixed(2),
					alert.Deficit.StringFixed(2),
				)
			}
			writer.Flush()
		}
	}
	return nil
}

// Info fetches and prints live state for one vault.
func (a *App) Info(ctx context.Context, address string) error {
	engine := a.newEngine(nil)

	info, err := engine.GetVaultInfo(ctx, address)
	if err != nil {
		return err
	}
	printVaultInfo(info, nil)
	return nil
}

func printVaultInfo(info *monitor.VaultInfo, threshold *decimal.Decimal) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Address:\t%s\n", info.Address)
	fmt.Fprintf(writer, "Chain:\t%s\n", info.Chain)
	fmt.Fprintf(writer, "Name:\t%s (%s)\n", info.Name, info.Symbol)
	fmt.Fprintf(writer, "Asset:\t%s (%s)\n", info.AssetSymbol, info.Asset)
	fmt.Fprintf(writer, "Liquidity:\t%s %s\n", info.Liquidity.StringFixed(2), info.AssetSymbol)
	fmt.Fprintf(writer, "Total shares:\t%s\n", info.Shares.StringFixed(4))
	fmt.Fprintf(writer, "Utilization:\t%s%%\n", info.UtilizationRate.StringFixed(2))
	if threshold != nil {
		fmt.Fprintf(writer, "Threshold:\t%s %s\n", threshold.StringFixed(2), info.AssetSymbol)
	}
	writer.Flush()
}
