package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vaultwatcher/internal/app"
)

var historyCmd = &cobra.Command{
	Use:   "history <address> [days]",
	Short: "Show recorded liquidity history for a vault",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		days := 7
		if len(args) == 2 {
			parsed, err := strconv.Atoi(args[1])
			if err != nil || parsed <= 0 {
				return fmt.Errorf("invalid days value %q: must be a positive integer", args[1])
			}
			days = parsed
		}

		return getApp().History(cmd.Context(), app.HistoryOptions{
			Address: args[0],
			Days:    days,
		})
	},
}
