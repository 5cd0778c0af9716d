package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestOracle(source PriceSource, clock *fakeClock) *PriceOracle {
	o := NewPriceOracle(zap.NewNop(), source, PriceOracleConfig{
		NativeAsset:  "SOL",
		NativeCoinID: "solana",
		TTL:          30 * time.Second,
		DefaultPrice: 150,
		UnitPrice:    1.0,
	})
	o.now = clock.Now
	return o
}

func TestPriceOracle_NonNativeIsUnitPrice(t *testing.T) {
	source := &MockPriceSource{price: 20}
	o := newTestOracle(source, newFakeClock())

	if got := o.ValueOf(context.Background(), "MINTX", 42.5); got != 42.5 {
		t.Errorf("expected 42.5, got %v", got)
	}
	if source.Calls() != 0 {
		t.Errorf("expected no price lookups, got %d", source.Calls())
	}
}

func TestPriceOracle_NativeCachedWithinTTL(t *testing.T) {
	source := &MockPriceSource{price: 20}
	clock := newFakeClock()
	o := newTestOracle(source, clock)
	ctx := context.Background()

	if got := o.ValueOf(ctx, "SOL", 5); got != 100 {
		t.Errorf("expected 100, got %v", got)
	}
	source.set(30, nil)
	clock.Advance(29 * time.Second)
	if got := o.ValueOf(ctx, "SOL", 5); got != 100 {
		t.Errorf("expected cached 100, got %v", got)
	}
	if source.Calls() != 1 {
		t.Errorf("expected 1 lookup within TTL, got %d", source.Calls())
	}

	clock.Advance(2 * time.Second)
	if got := o.ValueOf(ctx, "SOL", 5); got != 150 {
		t.Errorf("expected refreshed 150, got %v", got)
	}
	if source.Calls() != 2 {
		t.Errorf("expected refresh after TTL, got %d lookups", source.Calls())
	}
}

func TestPriceOracle_FailureKeepsLastQuote(t *testing.T) {
	source := &MockPriceSource{price: 20}
	clock := newFakeClock()
	o := newTestOracle(source, clock)
	ctx := context.Background()

	o.NativePrice(ctx)
	source.set(0, errors.New("rate limited"))
	clock.Advance(time.Minute)

	if got := o.NativePrice(ctx); got != 20 {
		t.Errorf("expected stale quote 20, got %v", got)
	}
}

func TestPriceOracle_FailureWithoutQuoteUsesDefault(t *testing.T) {
	source := &MockPriceSource{err: errors.New("down")}
	o := newTestOracle(source, newFakeClock())

	if got := o.NativePrice(context.Background()); got != 150 {
		t.Errorf("expected default 150, got %v", got)
	}
	if _, _, ok := o.Quote(); ok {
		t.Error("expected no cached quote")
	}
}

func TestPriceOracle_NilSourceUsesDefault(t *testing.T) {
	o := newTestOracle(nil, newFakeClock())

	if got := o.ValueOf(context.Background(), "SOL", 2); got != 300 {
		t.Errorf("expected 300, got %v", got)
	}
}
