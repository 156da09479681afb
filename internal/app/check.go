package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"vaultwatcher/internal/monitor"
)

// Check runs one threshold evaluation cycle against every tracked vault and
// prints the results. Per-vault failures are reported but only a cycle where
// every vault failed returns an error.
func (a *App) Check(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	engine := a.newEngine(store)
	results, failures, err := engine.CheckAll(ctx)
	if err != nil {
		return err
	}

	if len(results) == 0 && len(failures) == 0 {
		fmt.Fprintln(os.Stdout, "No vaults are being monitored. Use 'add' or 'discover --auto-add' to start.")
		return nil
	}

	printCheckResults(results, failures)

	if len(results) == 0 {
		return fmt.Errorf("all %d vault checks failed", len(failures))
	}
	return nil
}

func printCheckResults(results []monitor.CheckResult, failures []monitor.CheckFailure) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Vault\tChain\tLiquidity\tThreshold\t% of threshold\tStatus")

	for _, result := range results {
		status := "OK"
		if result.BelowThreshold {
			status = "BELOW THRESHOLD"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s %s\t%s %s\t%s%%\t%s\n",
			result.Address,
			result.Chain,
			result.Liquidity.StringFixed(2), result.AssetSymbol,
			result.Threshold.StringFixed(2), result.AssetSymbol,
			result.PercentOfThreshold.StringFixed(2),
			status,
		)
	}
	writer.Flush()

	for _, failure := range failures {
		fmt.Fprintf(os.Stdout, "check failed for %s (%s): %v\n", failure.Address, failure.Chain, failure.Err)
	}
}
