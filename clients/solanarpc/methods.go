package solanarpc

import (
	"context"
	"encoding/json"
	"fmt"
	"walletwatch/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// TokenProgramID is the SPL token program owning fungible token accounts.
	TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

	lamportDecimals = 9
	maxHolderPages  = 100
)

// TokenHolding is one parsed token account of a wallet.
type TokenHolding struct {
	Account  string
	Mint     string
	Amount   decimal.Decimal // Normalized by decimals
	Decimals int
}

// SignatureInfo is one entry of getSignaturesForAddress.
type SignatureInfo struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Err       any    `json:"err"`
}

// Transaction is the subset of getTransaction the watcher consumes.
type Transaction struct {
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Meta      *struct {
		Err any `json:"err"`
	} `json:"meta"`
}

// Failed reports whether the transaction was executed with an error.
func (t *Transaction) Failed() bool {
	return t.Meta != nil && t.Meta.Err != nil
}

// TokenSupply is the result of getTokenSupply.
type TokenSupply struct {
	Amount   decimal.Decimal // Normalized by decimals
	Decimals int
}

// TokenAccount is one holder account returned by the paged getTokenAccounts method.
type TokenAccount struct {
	Address string          `json:"address"`
	Owner   string          `json:"owner"`
	Amount  decimal.Decimal `json:"-"` // Raw base units
}

// LargestAccount is one entry of getTokenLargestAccounts.
type LargestAccount struct {
	Address  string
	Amount   decimal.Decimal // Normalized by decimals
	Decimals int
}

type tokenAmount struct {
	Amount   *string  `json:"amount"`
	Decimals *int     `json:"decimals"`
	UIAmount *float64 `json:"uiAmount"`
}

// normalized converts a raw amount to whole units. When the raw amount is absent the
// provider-computed uiAmount is used.
func (ta tokenAmount) normalized() (decimal.Decimal, int, bool) {
	decimals := 0
	if ta.Decimals != nil {
		decimals = *ta.Decimals
	}
	if ta.Amount != nil && ta.Decimals != nil {
		raw, err := decimal.NewFromString(*ta.Amount)
		if err != nil {
			return decimal.Zero, 0, false
		}
		return raw.Shift(int32(-decimals)), decimals, true
	}
	if ta.UIAmount != nil {
		return decimal.NewFromFloat(*ta.UIAmount), decimals, true
	}
	return decimal.Zero, 0, false
}

type tokenAccountsByOwnerResult struct {
	Value *[]struct {
		Pubkey  string `json:"pubkey"`
		Account struct {
			Data struct {
				Parsed *struct {
					Info struct {
						Mint        string      `json:"mint"`
						TokenAmount tokenAmount `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
}

// GetTokenAccountsByOwner returns the SPL token accounts held by wallet. Records missing a
// mint or amount are skipped; a response without a value list is an error.
func (c *Client) GetTokenAccountsByOwner(ctx context.Context, wallet string) ([]TokenHolding, error) {
	params := []any{
		wallet,
		map[string]string{"programId": TokenProgramID},
		map[string]string{"encoding": "jsonParsed"},
	}

	var result tokenAccountsByOwnerResult
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, fmt.Errorf("getTokenAccountsByOwner: %w: missing value", ErrMalformedResponse)
	}

	holdings := make([]TokenHolding, 0, len(*result.Value))
	for _, acct := range *result.Value {
		parsed := acct.Account.Data.Parsed
		if parsed == nil || parsed.Info.Mint == "" {
			c.logger.Warn("skipping malformed token account",
				zap.String("wallet", wallet),
				zap.String("account", acct.Pubkey),
			)
			continue
		}
		amount, decimals, ok := parsed.Info.TokenAmount.normalized()
		if !ok {
			c.logger.Warn("skipping token account without amount",
				zap.String("wallet", wallet),
				zap.String("mint", parsed.Info.Mint),
			)
			continue
		}
		holdings = append(holdings, TokenHolding{
			Account:  acct.Pubkey,
			Mint:     parsed.Info.Mint,
			Amount:   amount,
			Decimals: decimals,
		})
	}
	return holdings, nil
}

// GetBalance returns the native balance of wallet in SOL.
func (c *Client) GetBalance(ctx context.Context, wallet string) (decimal.Decimal, error) {
	var result struct {
		Value *json.Number `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []any{wallet}, &result); err != nil {
		return decimal.Zero, err
	}
	if result.Value == nil {
		return decimal.Zero, fmt.Errorf("getBalance: %w: missing value", ErrMalformedResponse)
	}
	lamports, err := decimal.NewFromString(result.Value.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("getBalance: %w: %v", ErrMalformedResponse, err)
	}
	return lamports.Shift(-lamportDecimals), nil
}

// FetchBalances returns the wallet's holdings keyed by mint. Multiple accounts of the same
// mint are summed. The native balance is included under config.NativeAssetID when enabled.
// Either every call succeeds or an error is returned; a partial snapshot is never produced.
func (c *Client) FetchBalances(ctx context.Context, wallet string) (map[string]float64, error) {
	holdings, err := c.GetTokenAccountsByOwner(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("fetch token accounts: %w", err)
	}

	totals := make(map[string]decimal.Decimal, len(holdings)+1)
	for _, h := range holdings {
		totals[h.Mint] = totals[h.Mint].Add(h.Amount)
	}

	if c.includeNative {
		native, err := c.GetBalance(ctx, wallet)
		if err != nil {
			return nil, fmt.Errorf("fetch native balance: %w", err)
		}
		totals[config.NativeAssetID] = native
	}

	balances := make(map[string]float64, len(totals))
	for mint, amount := range totals {
		balances[mint] = amount.InexactFloat64()
	}
	return balances, nil
}

// GetSignaturesForAddress returns the most recent signatures involving address, newest first.
// A malformed payload yields an empty list.
func (c *Client) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	params := []any{address, map[string]int{"limit": limit}}

	var raw json.RawMessage
	if err := c.call(ctx, "getSignaturesForAddress", params, &raw); err != nil {
		return nil, err
	}

	var sigs []SignatureInfo
	if err := json.Unmarshal(raw, &sigs); err != nil {
		c.logger.Warn("malformed signatures response", zap.String("address", address), zap.Error(err))
		return nil, nil
	}
	out := sigs[:0]
	for _, s := range sigs {
		if s.Signature != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// GetTransaction returns the transaction for signature, or nil if the provider does not
// know it yet.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	params := []any{
		signature,
		map[string]any{
			"encoding":                       "jsonParsed",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var raw json.RawMessage
	if err := c.call(ctx, "getTransaction", params, &raw); err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil
	}

	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		c.logger.Warn("malformed transaction response", zap.String("signature", signature), zap.Error(err))
		return nil, nil
	}
	return &tx, nil
}

// GetTokenSupply returns the total supply of mint.
func (c *Client) GetTokenSupply(ctx context.Context, mint string) (TokenSupply, error) {
	var result struct {
		Value tokenAmount `json:"value"`
	}
	if err := c.call(ctx, "getTokenSupply", []any{mint}, &result); err != nil {
		return TokenSupply{}, err
	}

	amount, decimals, ok := result.Value.normalized()
	if !ok {
		c.logger.Warn("malformed token supply response", zap.String("mint", mint))
		return TokenSupply{}, nil
	}
	return TokenSupply{Amount: amount, Decimals: decimals}, nil
}

type tokenAccountsPage struct {
	TokenAccounts    []rawTokenAccount `json:"token_accounts"`
	TokenAccountsAlt []rawTokenAccount `json:"tokenAccounts"`
}

type rawTokenAccount struct {
	Address string      `json:"address"`
	Owner   string      `json:"owner"`
	Amount  json.Number `json:"amount"`
}

// GetTokenAccounts pages through every non-zero holder account of mint using the
// provider's paged getTokenAccounts extension. Amounts are raw base units.
func (c *Client) GetTokenAccounts(ctx context.Context, mint string, pageLimit int) ([]TokenAccount, error) {
	if pageLimit <= 0 {
		pageLimit = 1000
	}

	var all []TokenAccount
	for page := 1; page <= maxHolderPages; page++ {
		params := map[string]any{
			"mint":  mint,
			"page":  page,
			"limit": pageLimit,
			"displayOptions": map[string]bool{
				"showZeroBalance": false,
			},
		}

		var result tokenAccountsPage
		if err := c.call(ctx, "getTokenAccounts", params, &result); err != nil {
			return nil, err
		}

		accounts := result.TokenAccounts
		if len(accounts) == 0 {
			accounts = result.TokenAccountsAlt
		}
		if len(accounts) == 0 {
			break
		}

		for _, a := range accounts {
			amount, err := decimal.NewFromString(a.Amount.String())
			if err != nil || a.Owner == "" {
				continue
			}
			all = append(all, TokenAccount{Address: a.Address, Owner: a.Owner, Amount: amount})
		}

		if len(accounts) < pageLimit {
			break
		}
	}
	return all, nil
}

// GetTokenLargestAccounts returns the largest accounts of mint.
func (c *Client) GetTokenLargestAccounts(ctx context.Context, mint string) ([]LargestAccount, error) {
	var result struct {
		Value []struct {
			Address string `json:"address"`
			tokenAmount
		} `json:"value"`
	}
	if err := c.call(ctx, "getTokenLargestAccounts", []any{mint}, &result); err != nil {
		return nil, err
	}

	out := make([]LargestAccount, 0, len(result.Value))
	for _, v := range result.Value {
		amount, decimals, ok := v.tokenAmount.normalized()
		if !ok || v.Address == "" {
			continue
		}
		out = append(out, LargestAccount{Address: v.Address, Amount: amount, Decimals: decimals})
	}
	return out, nil
}
