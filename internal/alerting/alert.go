package alerting

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"vaultwatcher/internal/registry"
)

// Alert captures one threshold breach for delivery.
type Alert struct {
	VaultName   string
	VaultSymbol string
	Address     string
	Chain       string
	AssetSymbol string
	Liquidity   decimal.Decimal
	Threshold   decimal.Decimal
}

// Deficit is how far liquidity sits below the threshold.
func (a Alert) Deficit() decimal.Decimal {
	return a.Threshold.Sub(a.Liquidity)
}

// Sink delivers a rendered alert through the configured channels.
type Sink interface {
	Send(ctx context.Context, channels registry.AlertChannels, alert Alert) error
}

// Notifier pushes an alert to an external chat channel.
type Notifier interface {
	Notify(ctx context.Context, chatID string, alert Alert) error
}

func renderMessage(a Alert) string {
	builder := strings.Builder{}
	builder.WriteString("Vault Liquidity Alert\n\n")
	builder.WriteString(fmt.Sprintf("Vault: %s (%s)\n", a.VaultName, a.VaultSymbol))
	builder.WriteString(fmt.Sprintf("Current Liquidity: %s %s\n", a.Liquidity.StringFixed(2), a.AssetSymbol))
	builder.WriteString(fmt.Sprintf("Threshold: %s %s\n", a.Threshold.String(), a.AssetSymbol))
	builder.WriteString(fmt.Sprintf("Deficit: %s %s\n\n", a.Deficit().StringFixed(2), a.AssetSymbol))
	builder.WriteString(fmt.Sprintf("Address: %s", a.Address))
	return builder.String()
}
