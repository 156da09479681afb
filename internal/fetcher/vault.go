package fetcher

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	vaultABIJSON = `[
		{"inputs":[],"name":"totalAssets","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"totalSupply","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"asset","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"name","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"symbol","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"}
	]`
	erc20ABIJSON = `[
		{"inputs":[],"name":"symbol","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
	]`
)

var (
	vaultABI abi.ABI
	erc20ABI abi.ABI
)

func init() {
	var err error
	if vaultABI, err = abi.JSON(strings.NewReader(vaultABIJSON)); err != nil {
		panic("failed to parse vault ABI: " + err.Error())
	}
	if erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON)); err != nil {
		panic("failed to parse erc20 ABI: " + err.Error())
	}
}

// VaultOptions parameterise the on-chain fetcher.
type VaultOptions struct {
	Timeout time.Duration
}

// EthVaultFetcher reads vault state through JSON-RPC contract calls.
// Clients are dialed lazily and cached per endpoint.
type EthVaultFetcher struct {
	opts      VaultOptions
	logger    zerolog.Logger
	clients   map[string]*ethclient.Client
	clientMux sync.Mutex
}

// NewEthVaultFetcher builds an on-chain vault fetcher.
func NewEthVaultFetcher(opts VaultOptions, logger zerolog.Logger) *EthVaultFetcher {
	return &EthVaultFetcher{
		opts:    opts,
		logger:  logger.With().Str("component", "vault_fetcher").Logger(),
		clients: make(map[string]*ethclient.Client),
	}
}

// FetchVaultState reads the vault contract plus its underlying asset contract.
func (f *EthVaultFetcher) FetchVaultState(ctx context.Context, rpcURL, address string) (VaultState, error) {
	if rpcURL == "" {
		return VaultState{}, fmt.Errorf("%w: rpc url not configured", ErrVaultFetch)
	}

	timeout := f.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := f.getClient(ctx, rpcURL)
	if err != nil {
		return VaultState{}, fmt.Errorf("%w: dial %s: %v", ErrVaultFetch, rpcURL, err)
	}

	vaultAddr := common.HexToAddress(address)

	totalAssets, err := callBigInt(ctx, client, vaultABI, vaultAddr, "totalAssets")
	if err != nil {
		return VaultState{}, fmt.Errorf("%w: totalAssets: %v", ErrVaultFetch, err)
	}
	totalSupply, err := callBigInt(ctx, client, vaultABI, vaultAddr, "totalSupply")
	if err != nil {
		return VaultState{}, fmt.Errorf("%w: totalSupply: %v", ErrVaultFetch, err)
	}
	assetAddr, err := callAddress(ctx, client, vaultABI, vaultAddr, "asset")
	if err != nil {
		return VaultState{}, fmt.Errorf("%w: asset: %v", ErrVaultFetch, err)
	}
	name, err := callString(ctx, client, vaultABI, vaultAddr, "name")
	if err != nil {
		return VaultState{}, fmt.Errorf("%w: name: %v", ErrVaultFetch, err)
	}
	symbol, err := callString(ctx, client, vaultABI, vaultAddr, "symbol")
	if err != nil {
		return VaultState{}, fmt.Errorf("%w: symbol: %v", ErrVaultFetch, err)
	}

	assetSymbol, err := callString(ctx, client, erc20ABI, assetAddr, "symbol")
	if err != nil {
		return VaultState{}, fmt.Errorf("%w: asset symbol: %v", ErrVaultFetch, err)
	}
	assetDecimals, err := callUint8(ctx, client, erc20ABI, assetAddr, "decimals")
	if err != nil {
		return VaultState{}, fmt.Errorf("%w: asset decimals: %v", ErrVaultFetch, err)
	}

	return VaultState{
		Address:       address,
		Name:          name,
		Symbol:        symbol,
		Asset:         assetAddr.Hex(),
		AssetSymbol:   assetSymbol,
		AssetDecimals: assetDecimals,
		TotalAssets:   decimal.NewFromBigInt(totalAssets, 0),
		TotalSupply:   decimal.NewFromBigInt(totalSupply, 0),
		FetchedAt:     time.Now().UTC(),
	}, nil
}

func (f *EthVaultFetcher) getClient(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	f.clientMux.Lock()
	defer f.clientMux.Unlock()

	if client, ok := f.clients[rpcURL]; ok {
		return client, nil
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	f.clients[rpcURL] = client
	return client, nil
}

func call(ctx context.Context, client *ethclient.Client, parsed abi.ABI, to common.Address, method string) ([]interface{}, error) {
	payload, err := parsed.Pack(method)
	if err != nil {
		return nil, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: payload}, nil)
	if err != nil {
		return nil, err
	}
	outputs, err := parsed.Unpack(method, res)
	if err != nil {
		return nil, err
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("unexpected %s output arity %d", method, len(outputs))
	}
	return outputs, nil
}

func callBigInt(ctx context.Context, client *ethclient.Client, parsed abi.ABI, to common.Address, method string) (*big.Int, error) {
	outputs, err := call(ctx, client, parsed, to, method)
	if err != nil {
		return nil, err
	}
	value, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode %s output", method)
	}
	return value, nil
}

func callAddress(ctx context.Context, client *ethclient.Client, parsed abi.ABI, to common.Address, method string) (common.Address, error) {
	outputs, err := call(ctx, client, parsed, to, method)
	if err != nil {
		return common.Address{}, err
	}
	value, ok := outputs[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("decode %s output", method)
	}
	return value, nil
}

func callString(ctx context.Context, client *ethclient.Client, parsed abi.ABI, to common.Address, method string) (string, error) {
	outputs, err := call(ctx, client, parsed, to, method)
	if err != nil {
		return "", err
	}
	value, ok := outputs[0].(string)
	if !ok {
		return "", fmt.Errorf("decode %s output", method)
	}
	return value, nil
}

func callUint8(ctx context.Context, client *ethclient.Client, parsed abi.ABI, to common.Address, method string) (uint8, error) {
	outputs, err := call(ctx, client, parsed, to, method)
	if err != nil {
		return 0, err
	}
	value, ok := outputs[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decode %s output", method)
	}
	return value, nil
}

var _ VaultStateFetcher = (*EthVaultFetcher)(nil)
