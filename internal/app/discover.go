package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"vaultwatcher/internal/monitor"
)

// Discover scans the supported chains for vaults the account holds positions
// in, optionally registering each new vault for monitoring.
func (a *App) Discover(ctx context.Context, opts DiscoverOptions) error {
	engine := a.newEngine(nil)

	var discovered []monitor.DiscoveredVault
	var failures []monitor.DiscoveryFailure
	var err error
	if opts.AutoAdd {
		discovered, failures, err = engine.AutoAddDiscovered(ctx, opts.Account, opts.DefaultThreshold, opts.Chains)
	} else {
		discovered, failures, err = engine.DiscoverVaults(ctx, opts.Account, opts.Chains)
	}
	if err != nil {
		return err
	}

	if len(discovered) == 0 {
		fmt.Fprintf(os.Stdout, "No vault positions found for %s\n", opts.Account)
	} else {
		fmt.Fprintf(os.Stdout, "Found %d vault position(s) for %s\n\n", len(discovered), opts.Account)
		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Vault\tChain\tName\tShares\tValue\tVault liquidity")
		for _, vault := range discovered {
			fmt.Fprintf(writer, "%s\t%s\t%s (%s)\t%s\t%s %s\t%s %s\n",
				vault.Address,
				vault.Chain,
				vault.Name, vault.Symbol,
				vault.UserShares.StringFixed(4),
				vault.UserAssetsValue.StringFixed(2), vault.AssetSymbol,
				vault.Liquidity.StringFixed(2), vault.AssetSymbol,
			)
		}
		writer.Flush()

		if opts.AutoAdd {
			fmt.Fprintln(os.Stdout, "\nNew vaults were added to monitoring; already-tracked vaults were left unchanged.")
		}
	}

	for _, failure := range failures {
		fmt.Fprintf(os.Stdout, "discovery failed on %s: %v\n", failure.Chain, failure.Err)
	}

	if len(discovered) == 0 && len(failures) > 0 {
		return fmt.Errorf("discovery failed on %d chain(s)", len(failures))
	}
	return nil
}
