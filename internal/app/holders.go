package app

import (
	"context"
	"fmt"
	"sort"
	"walletwatch/clients/notifier"
	"walletwatch/clients/solanarpc"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	VerdictSuspicious      = "Suspicious"
	VerdictPotentiallyGood = "Potentially Good"
)

// HolderSource is the slice of the RPC client holder analysis needs.
type HolderSource interface {
	GetTokenSupply(ctx context.Context, mint string) (solanarpc.TokenSupply, error)
	GetTokenAccounts(ctx context.Context, mint string, pageLimit int) ([]solanarpc.TokenAccount, error)
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]solanarpc.LargestAccount, error)
}

// HolderAnalyzerConfig holds distribution thresholds.
type HolderAnalyzerConfig struct {
	TopN                  int
	SuspiciousPercent     float64
	PageLimit             int
	WhaleMinAmount        float64
	WhaleMinSupplyPercent float64
}

// HolderAnalyzer summarizes how concentrated a token's supply is.
type HolderAnalyzer struct {
	logger *zap.Logger
	source HolderSource
	cfg    HolderAnalyzerConfig
}

func NewHolderAnalyzer(logger *zap.Logger, source HolderSource, cfg HolderAnalyzerConfig) *HolderAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 20
	}
	return &HolderAnalyzer{
		logger: logger,
		source: source,
		cfg:    cfg,
	}
}

type ownerBalance struct {
	owner  string
	amount decimal.Decimal
}

// Analyze aggregates every token account by owner and reports the share of supply
// held by the top N owners, plus whale accounts from the largest-accounts list.
func (h *HolderAnalyzer) Analyze(ctx context.Context, mint string) (notifier.HolderSummary, error) {
	supply, err := h.source.GetTokenSupply(ctx, mint)
	if err != nil {
		return notifier.HolderSummary{}, fmt.Errorf("token supply: %w", err)
	}
	if supply.Amount.IsZero() {
		return notifier.HolderSummary{}, fmt.Errorf("token %s reports zero supply", shortID(mint))
	}

	accounts, err := h.source.GetTokenAccounts(ctx, mint, h.cfg.PageLimit)
	if err != nil {
		return notifier.HolderSummary{}, fmt.Errorf("token accounts: %w", err)
	}

	scale := decimal.New(1, int32(supply.Decimals))
	byOwner := make(map[string]decimal.Decimal)
	for _, acct := range accounts {
		if acct.Owner == "" {
			continue
		}
		byOwner[acct.Owner] = byOwner[acct.Owner].Add(acct.Amount.Div(scale))
	}

	owners := make([]ownerBalance, 0, len(byOwner))
	for owner, amount := range byOwner {
		owners = append(owners, ownerBalance{owner: owner, amount: amount})
	}
	sort.Slice(owners, func(i, j int) bool {
		if c := owners[i].amount.Cmp(owners[j].amount); c != 0 {
			return c > 0
		}
		return owners[i].owner < owners[j].owner
	})
	if len(owners) > h.cfg.TopN {
		owners = owners[:h.cfg.TopN]
	}

	topTotal := decimal.Zero
	for _, o := range owners {
		topTotal = topTotal.Add(o.amount)
	}
	topPercent, _ := topTotal.Div(supply.Amount).Mul(decimal.NewFromInt(100)).Round(2).Float64()

	verdict := VerdictPotentiallyGood
	if topPercent > h.cfg.SuspiciousPercent {
		verdict = VerdictSuspicious
	}

	totalSupply, _ := supply.Amount.Float64()
	summary := notifier.HolderSummary{
		TotalHolders:  len(byOwner),
		TopNPercent:   topPercent,
		TopN:          h.cfg.TopN,
		Verdict:       verdict,
		TotalSupply:   totalSupply,
		HasHolderInfo: true,
	}

	largest, err := h.source.GetTokenLargestAccounts(ctx, mint)
	if err != nil {
		h.logger.Warn("failed to fetch largest accounts",
			zap.String("mint", shortID(mint)),
			zap.Error(err),
		)
		return summary, nil
	}
	summary.Whales = h.whales(largest, supply.Amount)

	return summary, nil
}

func (h *HolderAnalyzer) whales(largest []solanarpc.LargestAccount, supply decimal.Decimal) []notifier.Whale {
	minAmount := decimal.NewFromFloat(h.cfg.WhaleMinAmount)
	minPercent := decimal.NewFromFloat(h.cfg.WhaleMinSupplyPercent)
	hundred := decimal.NewFromInt(100)

	var out []notifier.Whale
	for _, acct := range largest {
		pct := acct.Amount.Div(supply).Mul(hundred)
		if acct.Amount.LessThan(minAmount) && pct.LessThan(minPercent) {
			continue
		}
		amount, _ := acct.Amount.Float64()
		pctF, _ := pct.Round(2).Float64()
		out = append(out, notifier.Whale{
			Address:       acct.Address,
			Amount:        amount,
			SupplyPercent: pctF,
		})
	}
	return out
}
