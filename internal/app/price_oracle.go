package app

import (
	"context"
	"sync"
	"time"
	"walletwatch/config"

	"go.uber.org/zap"
)

// PriceSource looks up a USD price for a coin id.
type PriceSource interface {
	GetUSDPrice(ctx context.Context, coinID string) (float64, error)
}

// PriceOracleConfig holds valuation settings.
type PriceOracleConfig struct {
	NativeAsset  string
	NativeCoinID string
	TTL          time.Duration
	DefaultPrice float64 // Native price used before the first successful lookup
	UnitPrice    float64 // Price applied to every non-native asset
}

// PriceOracle values holdings in USD. The native asset is priced from a cached
// quote; everything else uses a constant unit price.
type PriceOracle struct {
	logger *zap.Logger
	source PriceSource
	cfg    PriceOracleConfig
	now    func() time.Time

	mu        sync.Mutex
	price     float64
	fetchedAt time.Time
	hasQuote  bool
}

func NewPriceOracle(logger *zap.Logger, source PriceSource, cfg PriceOracleConfig) *PriceOracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NativeAsset == "" {
		cfg.NativeAsset = config.NativeAssetID
	}
	if cfg.UnitPrice == 0 {
		cfg.UnitPrice = 1.0
	}
	return &PriceOracle{
		logger: logger,
		source: source,
		cfg:    cfg,
		now:    time.Now,
	}
}

// ValueOf returns the USD value of quantity units of asset.
func (o *PriceOracle) ValueOf(ctx context.Context, asset string, quantity float64) float64 {
	if asset != o.cfg.NativeAsset {
		return quantity * o.cfg.UnitPrice
	}
	return quantity * o.NativePrice(ctx)
}

// NativePrice returns the cached native quote, refreshing it once the TTL has passed.
// A failed refresh keeps the last good quote, or the default when none exists.
func (o *PriceOracle) NativePrice(ctx context.Context) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.hasQuote && o.now().Sub(o.fetchedAt) < o.cfg.TTL {
		return o.price
	}

	if o.source != nil {
		price, err := o.source.GetUSDPrice(ctx, o.cfg.NativeCoinID)
		if err == nil && price > 0 {
			o.price = price
			o.fetchedAt = o.now()
			o.hasQuote = true
			return price
		}
		o.logger.Warn("native price lookup failed",
			zap.String("coinID", o.cfg.NativeCoinID),
			zap.Bool("hasStaleQuote", o.hasQuote),
			zap.Error(err),
		)
	}

	if o.hasQuote {
		return o.price
	}
	return o.cfg.DefaultPrice
}

// Quote returns the cached native quote and when it was fetched.
func (o *PriceOracle) Quote() (price float64, fetchedAt time.Time, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.price, o.fetchedAt, o.hasQuote
}
