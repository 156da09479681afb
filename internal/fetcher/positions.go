package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vaultwatcher/internal/chains"
)

const vaultPositionsQuery = `query VaultPositions($users: [String!]!, $chainIds: [Int!]!) {
  vaultPositions(where: {userAddress_in: $users, chainId_in: $chainIds}, first: 100) {
    items {
      vault {
        address
        name
        symbol
        asset { address symbol decimals }
        state { totalAssets totalSupply }
      }
      shares
    }
  }
}`

// IndexOptions parameterise the position index client.
type IndexOptions struct {
	BaseURL   string
	Timeout   time.Duration
	RetryMax  int
	UserAgent string
}

// IndexClient queries the Morpho Blue GraphQL API for account positions.
type IndexClient struct {
	opts    IndexOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewIndexClient constructs a position index client with a retrying transport.
func NewIndexClient(opts IndexOptions, logger zerolog.Logger) *IndexClient {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://blue-api.morpho.org/graphql"
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	if retryClient.RetryMax <= 0 {
		retryClient.RetryMax = 3
	}
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 3 * time.Second
	retryClient.Logger = nil
	if opts.Timeout > 0 {
		retryClient.HTTPClient.Timeout = opts.Timeout
	} else {
		retryClient.HTTPClient.Timeout = 10 * time.Second
	}

	return &IndexClient{
		opts:    opts,
		logger:  logger.With().Str("component", "position_index").Logger(),
		client:  retryClient.StandardClient(),
		baseURL: baseURL,
	}
}

// QueryPositions returns the account's vault positions on one chain.
func (c *IndexClient) QueryPositions(ctx context.Context, account string, chain chains.Chain) ([]Position, error) {
	payload := graphqlRequest{
		Query: vaultPositionsQuery,
		Variables: map[string]interface{}{
			"users":    []string{account},
			"chainIds": []int64{chain.ID},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode query: %v", ErrIndexQuery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrIndexQuery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexQuery, err)
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrIndexQuery, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrIndexQuery, resp.StatusCode, strings.TrimSpace(string(payloadBytes)))
	}

	var res graphqlResponse
	if err := json.Unmarshal(payloadBytes, &res); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrIndexQuery, err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrIndexQuery, res.Errors[0].Message)
	}

	positions := make([]Position, 0, len(res.Data.VaultPositions.Items))
	for _, item := range res.Data.VaultPositions.Items {
		totalAssets, err := decimal.NewFromString(item.Vault.State.TotalAssets.String())
		if err != nil {
			return nil, fmt.Errorf("%w: parse totalAssets for %s: %v", ErrIndexQuery, item.Vault.Address, err)
		}
		totalSupply, err := decimal.NewFromString(item.Vault.State.TotalSupply.String())
		if err != nil {
			return nil, fmt.Errorf("%w: parse totalSupply for %s: %v", ErrIndexQuery, item.Vault.Address, err)
		}
		shares, err := decimal.NewFromString(item.Shares.String())
		if err != nil {
			return nil, fmt.Errorf("%w: parse shares for %s: %v", ErrIndexQuery, item.Vault.Address, err)
		}

		positions = append(positions, Position{
			Vault: VaultState{
				Address:       item.Vault.Address,
				Chain:         chain.Key,
				Name:          item.Vault.Name,
				Symbol:        item.Vault.Symbol,
				Asset:         item.Vault.Asset.Address,
				AssetSymbol:   item.Vault.Asset.Symbol,
				AssetDecimals: item.Vault.Asset.Decimals,
				TotalAssets:   totalAssets,
				TotalSupply:   totalSupply,
				FetchedAt:     time.Now().UTC(),
			},
			Shares: shares,
		})
	}

	c.logger.Debug().Str("chain", chain.Key).Int("positions", len(positions)).Msg("position index queried")
	return positions, nil
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphqlResponse struct {
	Data struct {
		VaultPositions struct {
			Items []struct {
				Vault struct {
					Address string `json:"address"`
					Name    string `json:"name"`
					Symbol  string `json:"symbol"`
					Asset   struct {
						Address  string `json:"address"`
						Symbol   string `json:"symbol"`
						Decimals uint8  `json:"decimals"`
					} `json:"asset"`
					State struct {
						// BigInt scalars arrive as bare numbers or strings
						// depending on the API version.
						TotalAssets json.Number `json:"totalAssets"`
						TotalSupply json.Number `json:"totalSupply"`
					} `json:"state"`
				} `json:"vault"`
				Shares json.Number `json:"shares"`
			} `json:"items"`
		} `json:"vaultPositions"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

var _ PositionSource = (*IndexClient)(nil)
