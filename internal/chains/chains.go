package chains

import (
	"errors"
	"fmt"
)

// ErrUnknown marks a chain key that is not in the registry.
var ErrUnknown = errors.New("unsupported chain")

// Chain describes a supported network.
type Chain struct {
	Key    string
	Name   string
	ID     int64
	RPCURL string
}

var registry = map[string]Chain{
	"ethereum": {Key: "ethereum", Name: "Ethereum", ID: 1, RPCURL: "https://eth.llamarpc.com"},
	"base":     {Key: "base", Name: "Base", ID: 8453, RPCURL: "https://mainnet.base.org"},
	"polygon":  {Key: "polygon", Name: "Polygon", ID: 137, RPCURL: "https://polygon-rpc.com"},
	"arbitrum": {Key: "arbitrum", Name: "Arbitrum", ID: 42161, RPCURL: "https://arb1.arbitrum.io/rpc"},
}

// defaultOrder fixes the scan order for discovery.
var defaultOrder = []string{"ethereum", "base", "polygon", "arbitrum"}

// Lookup resolves a chain key.
func Lookup(key string) (Chain, error) {
	chain, ok := registry[key]
	if !ok {
		return Chain{}, fmt.Errorf("%w: %q", ErrUnknown, key)
	}
	return chain, nil
}

// DefaultKeys returns all supported chain keys in scan order.
func DefaultKeys() []string {
	keys := make([]string, len(defaultOrder))
	copy(keys, defaultOrder)
	return keys
}
