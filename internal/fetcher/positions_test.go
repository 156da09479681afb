package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vaultwatcher/internal/chains"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testChain() chains.Chain {
	return chains.Chain{Key: "base", Name: "Base", ID: 8453}
}

func TestQueryPositionsSuccess(t *testing.T) {
	var captured struct {
		Query     string `json:"query"`
		Variables struct {
			Users    []string `json:"users"`
			ChainIDs []int64  `json:"chainIds"`
		} `json:"variables"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": {
				"vaultPositions": {
					"items": [
						{
							"vault": {
								"address": "0xVault1",
								"name": "Prime USDC",
								"symbol": "pUSDC",
								"asset": {"address": "0xAsset1", "symbol": "USDC", "decimals": 6},
								"state": {"totalAssets": "2000000000000", "totalSupply": 1000000000000000000000}
							},
							"shares": "500000000000000000"
						}
					]
				}
			}
		}`))
	}))
	defer srv.Close()

	client := NewIndexClient(IndexOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	positions, err := client.QueryPositions(context.Background(), "0xUser", testChain())
	if err != nil {
		t.Fatalf("QueryPositions failed: %v", err)
	}

	if len(captured.Variables.Users) != 1 || captured.Variables.Users[0] != "0xUser" {
		t.Fatalf("query sent wrong users: %v", captured.Variables.Users)
	}
	if len(captured.Variables.ChainIDs) != 1 || captured.Variables.ChainIDs[0] != 8453 {
		t.Fatalf("query sent wrong chain ids: %v", captured.Variables.ChainIDs)
	}

	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	pos := positions[0]
	if pos.Vault.Chain != "base" {
		t.Fatalf("chain = %q", pos.Vault.Chain)
	}
	if pos.Vault.AssetDecimals != 6 {
		t.Fatalf("asset decimals = %d", pos.Vault.AssetDecimals)
	}
	if pos.Vault.TotalAssets.String() != "2000000000000" {
		t.Fatalf("totalAssets = %s", pos.Vault.TotalAssets)
	}
	if pos.Vault.TotalSupply.String() != "1000000000000000000000" {
		t.Fatalf("totalSupply = %s", pos.Vault.TotalSupply)
	}
	if pos.Shares.String() != "500000000000000000" {
		t.Fatalf("shares = %s", pos.Shares)
	}
}

func TestQueryPositionsGraphQLError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errors": [{"message": "invalid address"}]}`))
	}))
	defer srv.Close()

	client := NewIndexClient(IndexOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := client.QueryPositions(context.Background(), "bogus", testChain())
	if !errors.Is(err, ErrIndexQuery) {
		t.Fatalf("expected ErrIndexQuery, got %v", err)
	}
}

func TestQueryPositionsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	// RetryMax 1 keeps the retry transport from dragging the test out.
	client := NewIndexClient(IndexOptions{BaseURL: srv.URL, Timeout: time.Second, RetryMax: 1}, noopLogger())
	_, err := client.QueryPositions(context.Background(), "0xUser", testChain())
	if !errors.Is(err, ErrIndexQuery) {
		t.Fatalf("expected ErrIndexQuery, got %v", err)
	}
}

func TestQueryPositionsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {"vaultPositions": {"items": []}}}`))
	}))
	defer srv.Close()

	client := NewIndexClient(IndexOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	positions, err := client.QueryPositions(context.Background(), "0xUser", testChain())
	if err != nil {
		t.Fatalf("empty result must not error: %v", err)
	}
	if len(positions) != 0 {
		t.Fatalf("expected no positions, got %d", len(positions))
	}
}
