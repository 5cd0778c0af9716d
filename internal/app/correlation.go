package app

import (
	"fmt"
	"strings"
	"sync"
	"walletwatch/clients/notifier"
)

type bucketKey struct {
	action notifier.Action
	asset  string
}

// CorrelationAlert reports that more than Threshold wallets moved the same asset
// in the same direction within one cycle.
type CorrelationAlert struct {
	Action    notifier.Action
	Asset     string
	Wallets   []string
	Threshold int
}

// Message renders the alert text.
func (a CorrelationAlert) Message() string {
	return fmt.Sprintf("ALERT: More than %d wallets %s token %s!\nWallets: %s",
		a.Threshold, a.Action.Verb(), a.Asset, strings.Join(a.Wallets, ", "))
}

// CorrelationAggregator groups the wallets of one cycle by (action, asset).
type CorrelationAggregator struct {
	threshold int

	mu      sync.Mutex
	order   []bucketKey
	buckets map[bucketKey][]string
}

func NewCorrelationAggregator(threshold int) *CorrelationAggregator {
	return &CorrelationAggregator{
		threshold: threshold,
		buckets:   make(map[bucketKey][]string),
	}
}

// bucket returns the wallet list for key, creating it on first use.
// Caller must hold mu.
func (c *CorrelationAggregator) bucket(key bucketKey) []string {
	wallets, ok := c.buckets[key]
	if !ok {
		c.order = append(c.order, key)
		c.buckets[key] = nil
	}
	return wallets
}

// Record appends wallet to the (action, asset) bucket. Repeats are kept.
func (c *CorrelationAggregator) Record(action notifier.Action, asset, wallet string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := bucketKey{action: action, asset: asset}
	c.buckets[key] = append(c.bucket(key), wallet)
}

// Flush returns one alert per bucket holding more than threshold wallets, in the
// order buckets were first recorded, and clears all buckets.
func (c *CorrelationAggregator) Flush() []CorrelationAlert {
	c.mu.Lock()
	defer c.mu.Unlock()

	var alerts []CorrelationAlert
	for _, key := range c.order {
		wallets := c.buckets[key]
		if len(wallets) <= c.threshold {
			continue
		}
		alerts = append(alerts, CorrelationAlert{
			Action:    key.action,
			Asset:     key.asset,
			Wallets:   wallets,
			Threshold: c.threshold,
		})
	}

	c.resetLocked()
	return alerts
}

// Reset drops every bucket without emitting alerts.
func (c *CorrelationAggregator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *CorrelationAggregator) resetLocked() {
	c.order = nil
	c.buckets = make(map[bucketKey][]string)
}

// Pending returns the number of open buckets.
func (c *CorrelationAggregator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}
