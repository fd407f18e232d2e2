package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arthur-zhuk/yieldsnap/internal/config"
	"github.com/arthur-zhuk/yieldsnap/internal/model"
)

// CompoundClient implements a client for the Compound cToken API
type CompoundClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewCompoundClient creates a new Compound API client
func NewCompoundClient(cfg config.Config) *CompoundClient {
	return &CompoundClient{
		baseURL:    cfg.CompoundURL,
		httpClient: StandardClient(newRetryClient()),
	}
}

// Name identifies this provider
func (c *CompoundClient) Name() string { return "compound" }

// Fetch retrieves money market data from the Compound API.
func (c *CompoundClient) Fetch(ctx context.Context) ([]model.YieldOpportunity, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v2/ctoken", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	logrus.Debugf("Fetching markets from Compound: %s", c.baseURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching data from Compound: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Compound API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Structure matching the Compound cToken response; numeric values
	// arrive as decimal strings
	var response struct {
		CToken []struct {
			Symbol           string `json:"symbol"`
			UnderlyingSymbol string `json:"underlying_symbol"`
			SupplyRate       struct {
				Value string `json:"value"`
			} `json:"supply_rate"`
			Cash struct {
				Value string `json:"value"`
			} `json:"cash"`
			TotalSupply struct {
				Value string `json:"value"`
			} `json:"total_supply"`
			UnderlyingPrice struct {
				Value string `json:"value"`
			} `json:"underlying_price"`
		} `json:"cToken"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	if len(response.CToken) == 0 {
		return nil, fmt.Errorf("no markets returned from Compound")
	}

	now := time.Now()
	var ops []model.YieldOpportunity
	for _, market := range response.CToken {
		// supply_rate is a fraction per year
		apy := parseFloat(market.SupplyRate.Value) * 100
		price := parseFloat(market.UnderlyingPrice.Value)
		tvl := parseFloat(market.TotalSupply.Value) * price
		liquidity := parseFloat(market.Cash.Value) * price
		if tvl <= 0 {
			continue
		}

		symbol := strings.ToUpper(strings.TrimSpace(market.UnderlyingSymbol))
		if symbol == "" {
			symbol = strings.ToUpper(strings.TrimSpace(market.Symbol))
		}

		op := model.NewOpportunity("compound", "compound-v2", model.ChainEthereum, symbol, apy, tvl)
		op.ID = model.OpportunityID("compound", string(model.ChainEthereum), market.Symbol, symbol)
		op.PoolName = market.Symbol
		op.APYBase = apy
		op.LiquidityUSD = liquidity
		op.Stablecoin = isStablecoin(symbol)
		op.ILRisk = "no"
		op.CollectedAt = now
		ops = append(ops, op)
	}

	if len(ops) == 0 {
		return nil, fmt.Errorf("no usable markets in Compound response")
	}

	logrus.Debugf("Received %d markets from Compound", len(ops))
	return ops, nil
}
