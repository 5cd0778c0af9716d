package app

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"walletwatch/clients/notifier"
)

// balanceEpsilon absorbs floating point noise between samples.
const balanceEpsilon = 1e-9

// BalanceDelta is one classified change of a wallet's holding of one asset.
type BalanceDelta struct {
	Wallet        string
	Asset         string
	Old           float64
	New           float64
	Delta         float64 // New - Old
	Action        notifier.Action
	PercentChange float64 // Relative to Old; 100 for new holdings
	NewHolding    bool
	USDValue      float64 // Value of |Delta|
	Signature     string  // Latest transaction signature, when known
}

// Quantity returns the absolute amount moved.
func (d BalanceDelta) Quantity() float64 {
	return math.Abs(d.Delta)
}

// Message renders the delta as a single human readable line.
func (d BalanceDelta) Message() string {
	switch {
	case d.NewHolding:
		return fmt.Sprintf("Wallet %s bought: %s, New Balance: %s (New holding: 100%%)",
			d.Wallet, d.Asset, formatAmount(d.New, 3))
	case d.Action == notifier.ActionBuy:
		return fmt.Sprintf("Wallet %s bought: %s, Old Balance: %s, New Balance: %s (+%s%%)",
			d.Wallet, d.Asset, formatAmount(d.Old, 3), formatAmount(d.New, 3), formatAmount(d.PercentChange, 2))
	default:
		return fmt.Sprintf("Wallet %s sold: %s, Old Balance: %s, New Balance: %s (-%s%%)",
			d.Wallet, d.Asset, formatAmount(d.Old, 3), formatAmount(d.New, 3), formatAmount(d.PercentChange, 2))
	}
}

// Diff classifies every asset whose quantity changed between prev and next.
// Assets present in next come first, then assets that vanished, each group sorted
// by asset id.
func Diff(wallet string, prev, next Holdings) []BalanceDelta {
	var deltas []BalanceDelta

	for _, asset := range sortedAssets(next) {
		newQty := next[asset]
		oldQty := prev[asset]
		delta := newQty - oldQty
		if math.Abs(delta) <= balanceEpsilon {
			continue
		}

		d := BalanceDelta{
			Wallet: wallet,
			Asset:  asset,
			Old:    oldQty,
			New:    newQty,
			Delta:  delta,
		}
		if oldQty == 0 {
			d.Action = notifier.ActionBuy
			d.NewHolding = true
			d.PercentChange = 100
		} else {
			d.PercentChange = math.Abs(delta) / oldQty * 100
			d.Action = notifier.ActionBuy
			if delta < 0 {
				d.Action = notifier.ActionSell
			}
		}
		deltas = append(deltas, d)
	}

	for _, asset := range sortedAssets(prev) {
		if _, ok := next[asset]; ok {
			continue
		}
		oldQty := prev[asset]
		if oldQty <= balanceEpsilon {
			continue
		}
		deltas = append(deltas, BalanceDelta{
			Wallet:        wallet,
			Asset:         asset,
			Old:           oldQty,
			New:           0,
			Delta:         -oldQty,
			Action:        notifier.ActionSell,
			PercentChange: 100,
		})
	}

	return deltas
}

func sortedAssets(h Holdings) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatAmount rounds to places decimals and drops trailing zeros, keeping
// at least one fractional digit so whole amounts read as 100.0.
func formatAmount(v float64, places int) string {
	p := math.Pow(10, float64(places))
	s := strconv.FormatFloat(math.Round(v*p)/p, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
