package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"vaultwatcher/internal/app"
)

var addCmd = &cobra.Command{
	Use:   "add <address> <threshold> [chain]",
	Short: "Start monitoring a vault with a liquidity threshold",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid threshold %q: %w", args[1], err)
		}

		chain := "ethereum"
		if len(args) == 3 {
			chain = args[2]
		}

		return getApp().Add(cmd.Context(), app.AddOptions{
			Address:   args[0],
			Threshold: threshold,
			Chain:     chain,
		})
	},
}
