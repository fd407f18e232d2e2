package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arthur-zhuk/yieldsnap/internal/config"
	"github.com/arthur-zhuk/yieldsnap/internal/model"
)

// AaveClient implements a client for the Aave v3 markets API
type AaveClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

// NewAaveClient creates a new Aave API client
func NewAaveClient(cfg config.Config) *AaveClient {
	return &AaveClient{
		baseURL:    cfg.AaveURL,
		httpClient: StandardClient(newRetryClient()),
		apiKey:     getAPIKey(cfg, "aave"),
	}
}

// Name identifies this provider
func (c *AaveClient) Name() string { return "aave" }

const aaveMarketsQuery = `query Markets($request: MarketsRequest!) {
  markets(request: $request) {
    name
    chain { chainId name }
    reserves {
      underlyingToken { address symbol decimals }
      size { usd }
      supplyInfo { apy { value } }
    }
  }
}`

// Fetch retrieves lending reserves from the Aave markets API.
func (c *AaveClient) Fetch(ctx context.Context) ([]model.YieldOpportunity, error) {
	payload, err := json.Marshal(map[string]any{
		"query":     aaveMarketsQuery,
		"variables": map[string]any{"request": map[string]any{}},
	})
	if err != nil {
		return nil, fmt.Errorf("error building query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/graphql", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	logrus.Debugf("Fetching reserves from Aave: %s", c.baseURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching data from Aave: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Aave API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Structure matching the Aave v3 markets response
	var response struct {
		Data struct {
			Markets []struct {
				Name  string `json:"name"`
				Chain struct {
					ChainID int64 `json:"chainId"`
				} `json:"chain"`
				Reserves []struct {
					UnderlyingToken struct {
						Address string `json:"address"`
						Symbol  string `json:"symbol"`
					} `json:"underlyingToken"`
					Size struct {
						USD string `json:"usd"`
					} `json:"size"`
					SupplyInfo struct {
						APY struct {
							Value string `json:"value"`
						} `json:"apy"`
					} `json:"supplyInfo"`
				} `json:"reserves"`
			} `json:"markets"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	if len(response.Errors) > 0 {
		return nil, fmt.Errorf("Aave API error: %s", response.Errors[0].Message)
	}

	if len(response.Data.Markets) == 0 {
		return nil, fmt.Errorf("no markets returned from Aave")
	}

	now := time.Now()
	var ops []model.YieldOpportunity
	for _, market := range response.Data.Markets {
		chain := chainFromID(market.Chain.ChainID)
		for _, r := range market.Reserves {
			// Aave reports APY as a fraction
			apy := parseFloat(r.SupplyInfo.APY.Value) * 100
			tvl := parseFloat(r.Size.USD)
			if tvl <= 0 {
				continue
			}

			symbol := strings.ToUpper(strings.TrimSpace(r.UnderlyingToken.Symbol))
			poolKey := market.Name + ":" + strings.ToLower(r.UnderlyingToken.Address)

			op := model.NewOpportunity("aave", "aave-v3", chain, symbol, apy, tvl)
			op.ID = model.OpportunityID("aave", string(chain), poolKey, symbol)
			op.PoolName = market.Name
			op.APYBase = apy
			op.LiquidityUSD = tvl
			op.Stablecoin = isStablecoin(symbol)
			op.ILRisk = "no" // single-asset lending carries no impermanent loss
			op.CollectedAt = now
			ops = append(ops, op)
		}
	}

	logrus.Debugf("Received %d reserves from Aave", len(ops))
	return ops, nil
}

// chainFromID maps an EVM chain id to the canonical chain name
func chainFromID(id int64) model.Chain {
	switch id {
	case 137:
		return model.ChainPolygon
	case 42161:
		return model.ChainArbitrum
	case 10:
		return model.ChainOptimism
	case 43114:
		return model.ChainAvalanche
	case 8453:
		return model.ChainBase
	default:
		return model.ChainEthereum
	}
}

// parseFloat converts a numeric string to float64, returning 0 on failure
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

var stableSymbols = map[string]struct{}{
	"USDC": {}, "USDT": {}, "DAI": {}, "USDS": {}, "GHO": {},
	"LUSD": {}, "FRAX": {}, "TUSD": {}, "USDE": {}, "PYUSD": {},
}

// isStablecoin reports whether a symbol is a known USD stablecoin
func isStablecoin(symbol string) bool {
	_, ok := stableSymbols[strings.ToUpper(symbol)]
	return ok
}
