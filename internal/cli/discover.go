package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"vaultwatcher/internal/app"
)

var (
	discoverAutoAdd   bool
	discoverThreshold string
)

var discoverCmd = &cobra.Command{
	Use:   "discover <account>",
	Short: "Find vaults an account holds positions in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.DiscoverOptions{
			Account: args[0],
			AutoAdd: discoverAutoAdd,
		}

		if discoverThreshold != "" {
			threshold, err := decimal.NewFromString(discoverThreshold)
			if err != nil {
				return fmt.Errorf("invalid --threshold value %q: %w", discoverThreshold, err)
			}
			opts.DefaultThreshold = threshold
		}

		return getApp().Discover(cmd.Context(), opts)
	},
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverAutoAdd, "auto-add", false, "Register every newly discovered vault for monitoring")
	discoverCmd.Flags().StringVar(&discoverThreshold, "threshold", "", "Fallback threshold for auto-added vaults with no liquidity")
}
