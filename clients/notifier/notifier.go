package notifier

import (
	"time"
)

// AlertKind indicates which detector produced an alert.
type AlertKind string

const (
	AlertKindCorrelation   AlertKind = "correlation"    // Several wallets moved the same asset in one cycle
	AlertKindBalanceChange AlertKind = "balance_change" // A single wallet's holding changed
)

// Action is the direction of a balance change.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Verb returns the past-tense verb used in alert text.
func (a Action) Verb() string {
	if a == ActionSell {
		return "sold"
	}
	return "bought"
}

// HolderSummary describes the holder distribution of an asset at alert time.
type HolderSummary struct {
	TotalHolders  int
	TopNPercent   float64 // Share of supply held by the top N holders
	TopN          int
	Verdict       string // "Suspicious" or "Potentially Good"
	Whales        []Whale
	TotalSupply   float64
	HasHolderInfo bool
}

// Whale is a holder above the configured amount or supply share.
type Whale struct {
	Address       string
	Amount        float64
	SupplyPercent float64
}

// Alert contains everything a notifier needs to render a wallet alert.
type Alert struct {
	Kind    AlertKind
	Action  Action
	Asset   string
	Wallets []string // Sorted for correlation alerts, single entry for balance changes

	// Rendered plain-text message
	Message string

	// Balance change details (AlertKindBalanceChange only)
	OldBalance    float64
	NewBalance    float64
	PercentChange float64
	NewHolding    bool
	USDValue      float64
	Signature     string

	Threshold int // Correlation threshold in effect

	Holders HolderSummary

	Timestamp time.Time
}

// Notifier is the interface for delivering alerts to a channel.
type Notifier interface {
	// SendAlert delivers an alert. Delivery failures are logged, never returned.
	SendAlert(alert Alert)

	// Close cleans up any resources.
	Close() error
}

// MultiNotifier broadcasts alerts to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a new MultiNotifier with the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &MultiNotifier{notifiers: active}
}

// SendAlert sends the alert to all registered notifiers.
func (m *MultiNotifier) SendAlert(alert Alert) {
	for _, n := range m.notifiers {
		n.SendAlert(alert)
	}
}

// Close closes all registered notifiers.
func (m *MultiNotifier) Close() error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Count returns the number of active notifiers.
func (m *MultiNotifier) Count() int {
	return len(m.notifiers)
}
