package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// History prints the recorded liquidity series for a vault. Without a
// configured database the series is empty.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	engine := a.newEngine(store)
	history, err := engine.GetHistory(ctx, opts.Address, opts.Days)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Liquidity history for %s (last %s)\n", history.Vault, history.Period)
	if len(history.DataPoints) == 0 {
		if store == nil {
			fmt.Fprintln(os.Stdout, "No data points. Configure database.dsn and run 'watch' to record history.")
		} else {
			fmt.Fprintln(os.Stdout, "No data points recorded in this period.")
		}
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tLiquidity\tUtilization%\tBelow threshold")
	for _, point := range history.DataPoints {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%t\n",
			point.Time.UTC().Format(time.RFC3339),
			point.Liquidity.StringFixed(2),
			point.UtilizationPct.StringFixed(2),
			point.BelowThreshold,
		)
	}
	writer.Flush()
	return nil
}
