package registry

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TrackedVault is a vault under monitoring. Identity is the lower-cased
// address; the cached display fields are captured at add time.
type TrackedVault struct {
	Address        string           `json:"address"`
	Chain          string           `json:"chain"`
	Threshold      decimal.Decimal  `json:"threshold"`
	Name           string           `json:"name"`
	Symbol         string           `json:"symbol"`
	AssetSymbol    string           `json:"assetSymbol"`
	AddedAt        time.Time        `json:"addedAt"`
	AutoDiscovered bool             `json:"autoDiscovered,omitempty"`
	UserShares     *decimal.Decimal `json:"userShares,omitempty"`
}

// AlertChannels routes emitted alerts.
type AlertChannels struct {
	Telegram *string `json:"telegram"`
	Console  bool    `json:"console"`
}

// ChatID returns the configured telegram chat id, empty when unset.
func (c AlertChannels) ChatID() string {
	if c.Telegram == nil {
		return ""
	}
	return *c.Telegram
}

// Config is the persisted monitoring registry.
type Config struct {
	RPCURL        string         `json:"rpcUrl"`
	Vaults        []TrackedVault `json:"vaults"`
	AlertChannels AlertChannels  `json:"alertChannels"`
}

// FindVault locates a tracked vault by case-insensitive address.
func (c *Config) FindVault(address string) (*TrackedVault, bool) {
	needle := strings.ToLower(address)
	for i := range c.Vaults {
		if strings.ToLower(c.Vaults[i].Address) == needle {
			return &c.Vaults[i], true
		}
	}
	return nil, false
}

// RemoveVault drops a tracked vault by case-insensitive address. Removing an
// unknown address leaves the set unchanged and reports false.
func (c *Config) RemoveVault(address string) bool {
	needle := strings.ToLower(address)
	kept := c.Vaults[:0]
	removed := false
	for _, v := range c.Vaults {
		if strings.ToLower(v.Address) == needle {
			removed = true
			continue
		}
		kept = append(kept, v)
	}
	c.Vaults = kept
	return removed
}
