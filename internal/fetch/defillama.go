package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arthur-zhuk/yieldsnap/internal/config"
	"github.com/arthur-zhuk/yieldsnap/internal/model"
)

// maxLlamaPools caps how many pools one fetch contributes, keeping the
// snapshot at the deepest pools instead of the full ten-thousand entry feed
const maxLlamaPools = 200

// DefiLlamaClient implements a client for the DeFi Llama yields API
type DefiLlamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDefiLlamaClient creates a new DeFi Llama API client
func NewDefiLlamaClient(cfg config.Config) *DefiLlamaClient {
	return &DefiLlamaClient{
		baseURL:    cfg.LlamaURL,
		httpClient: StandardClient(newRetryClient()),
	}
}

// Name identifies this provider
func (c *DefiLlamaClient) Name() string { return "defillama" }

type poolsEnvelope struct {
	Status string      `json:"status"`
	Data   []poolEntry `json:"data"`
}

// poolEntry mirrors one pool in the yields feed. APY and TVL fields are
// pointers because the feed omits them for some pools.
type poolEntry struct {
	Pool         string   `json:"pool"`
	Chain        string   `json:"chain"`
	Project      string   `json:"project"`
	Symbol       string   `json:"symbol"`
	APYBase      *float64 `json:"apyBase"`
	APYReward    *float64 `json:"apyReward"`
	APY          *float64 `json:"apy"`
	TVLUSD       *float64 `json:"tvlUsd"`
	ILRisk       string   `json:"ilRisk"`
	Stablecoin   bool     `json:"stablecoin"`
	RewardTokens []string `json:"rewardTokens"`
}

// Fetch retrieves the pool list from the DeFi Llama yields API.
func (c *DefiLlamaClient) Fetch(ctx context.Context) ([]model.YieldOpportunity, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/pools", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	logrus.Debugf("Fetching pools from DeFi Llama: %s", c.baseURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching data from DeFi Llama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("DeFi Llama API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var env poolsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	if len(env.Data) == 0 {
		return nil, fmt.Errorf("no pools returned from DeFi Llama")
	}

	now := time.Now()
	ops := make([]model.YieldOpportunity, 0, len(env.Data))
	for _, p := range env.Data {
		apy := numOrZero(p.APY)
		tvl := numOrZero(p.TVLUSD)
		if apy == 0 || tvl == 0 {
			continue
		}

		chain := chainFromName(p.Chain)
		symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))

		op := model.NewOpportunity("defillama", p.Project, chain, symbol, apy, tvl)
		op.ID = model.OpportunityID("defillama", string(chain), p.Pool, symbol)
		op.PoolName = p.Project + " " + symbol
		op.APYBase = numOrZero(p.APYBase)
		op.APYReward = numOrZero(p.APYReward)
		op.LiquidityUSD = tvl
		op.Stablecoin = p.Stablecoin
		op.ILRisk = strings.ToLower(strings.TrimSpace(p.ILRisk))
		op.RewardTokens = p.RewardTokens
		op.CollectedAt = now
		ops = append(ops, op)
	}

	// Keep the deepest pools
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].TVL != ops[j].TVL {
			return ops[i].TVL > ops[j].TVL
		}
		return ops[i].ID < ops[j].ID
	})
	if len(ops) > maxLlamaPools {
		ops = ops[:maxLlamaPools]
	}

	logrus.Debugf("Received %d pools from DeFi Llama", len(ops))
	return ops, nil
}

// chainFromName maps a chain label from the feed to the canonical chain name
func chainFromName(name string) model.Chain {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "polygon":
		return model.ChainPolygon
	case "arbitrum":
		return model.ChainArbitrum
	case "optimism", "op mainnet":
		return model.ChainOptimism
	case "avalanche", "avax":
		return model.ChainAvalanche
	case "base":
		return model.ChainBase
	default:
		return model.ChainEthereum
	}
}

// numOrZero dereferences an optional number, guarding against NaN and Inf
func numOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return *v
}
