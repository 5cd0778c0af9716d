package app

import (
	"context"
	"errors"
	"sync"
	"time"
	"walletwatch/clients/notifier"
	"walletwatch/clients/solanaevents"
	"walletwatch/clients/solanarpc"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var errFetch = errors.New("fetch failed")

// MockFetcher returns queued holdings per wallet. The last queued entry repeats.
type MockFetcher struct {
	mu      sync.Mutex
	results map[string][]fetchResult
	calls   map[string]int
}

type fetchResult struct {
	holdings map[string]float64
	err      error
	panics   bool
}

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		results: make(map[string][]fetchResult),
		calls:   make(map[string]int),
	}
}

// Queue appends a successful fetch for wallet.
func (m *MockFetcher) Queue(wallet string, holdings map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[wallet] = append(m.results[wallet], fetchResult{holdings: holdings})
}

// QueueError appends a failed fetch for wallet.
func (m *MockFetcher) QueueError(wallet string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[wallet] = append(m.results[wallet], fetchResult{err: err})
}

// QueuePanic appends a fetch that panics for wallet.
func (m *MockFetcher) QueuePanic(wallet string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[wallet] = append(m.results[wallet], fetchResult{panics: true})
}

func (m *MockFetcher) FetchBalances(ctx context.Context, wallet string) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[wallet]++
	queue := m.results[wallet]
	if len(queue) == 0 {
		return map[string]float64{}, nil
	}
	next := queue[0]
	if len(queue) > 1 {
		m.results[wallet] = queue[1:]
	}
	if next.panics {
		panic("fetch panic for " + wallet)
	}
	return next.holdings, next.err
}

func (m *MockFetcher) Calls(wallet string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[wallet]
}

// MockActivity serves canned signatures and transactions.
type MockActivity struct {
	mu           sync.Mutex
	signatures   map[string][]solanarpc.SignatureInfo
	transactions map[string]*solanarpc.Transaction
	txErr        error
	sigCalls     int
	txCalls      int
}

func NewMockActivity() *MockActivity {
	return &MockActivity{
		signatures:   make(map[string][]solanarpc.SignatureInfo),
		transactions: make(map[string]*solanarpc.Transaction),
	}
}

// SetTransaction registers a transaction with the given block time.
func (m *MockActivity) SetTransaction(sig string, blockTime time.Time, failed bool) {
	bt := blockTime.Unix()
	tx := &solanarpc.Transaction{BlockTime: &bt}
	if failed {
		tx.Meta = &struct {
			Err any `json:"err"`
		}{Err: map[string]any{"InstructionError": []any{0, "Custom"}}}
	}
	m.mu.Lock()
	m.transactions[sig] = tx
	m.mu.Unlock()
}

func (m *MockActivity) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]solanarpc.SignatureInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sigCalls++
	sigs := m.signatures[address]
	if len(sigs) > limit {
		sigs = sigs[:limit]
	}
	return sigs, nil
}

func (m *MockActivity) GetTransaction(ctx context.Context, signature string) (*solanarpc.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCalls++
	if m.txErr != nil {
		return nil, m.txErr
	}
	return m.transactions[signature], nil
}

// MockNotifier records alerts.
type MockNotifier struct {
	mu     sync.Mutex
	alerts []notifier.Alert
}

func (m *MockNotifier) SendAlert(alert notifier.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
}

func (m *MockNotifier) Close() error { return nil }

func (m *MockNotifier) Alerts() []notifier.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notifier.Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// MockPriceSource returns a fixed price or error and counts lookups.
type MockPriceSource struct {
	mu    sync.Mutex
	price float64
	err   error
	calls int
}

func (m *MockPriceSource) GetUSDPrice(ctx context.Context, coinID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.price, m.err
}

func (m *MockPriceSource) set(price float64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.price = price
	m.err = err
}

func (m *MockPriceSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockHolderSource serves a fixed token distribution.
type MockHolderSource struct {
	supply    solanarpc.TokenSupply
	supplyErr error
	accounts  []solanarpc.TokenAccount
	largest   []solanarpc.LargestAccount
	largeErr  error
}

func (m *MockHolderSource) GetTokenSupply(ctx context.Context, mint string) (solanarpc.TokenSupply, error) {
	return m.supply, m.supplyErr
}

func (m *MockHolderSource) GetTokenAccounts(ctx context.Context, mint string, pageLimit int) ([]solanarpc.TokenAccount, error) {
	return m.accounts, nil
}

func (m *MockHolderSource) GetTokenLargestAccounts(ctx context.Context, mint string) ([]solanarpc.LargestAccount, error) {
	return m.largest, m.largeErr
}

func rawAccount(owner string, raw int64) solanarpc.TokenAccount {
	return solanarpc.TokenAccount{Address: "acct-" + owner, Owner: owner, Amount: decimal.NewFromInt(raw)}
}

// MockEventSource is a channel-backed EventSource.
type MockEventSource struct {
	ch chan solanaevents.Notification
}

func NewMockEventSource() *MockEventSource {
	return &MockEventSource{ch: make(chan solanaevents.Notification, 16)}
}

func (m *MockEventSource) Notifications() <-chan solanaevents.Notification {
	return m.ch
}

// MockSetNX emulates redis SET NX against a map.
type MockSetNX struct {
	mu   sync.Mutex
	keys map[string]time.Duration
	err  error
}

func NewMockSetNX() *MockSetNX {
	return &MockSetNX{keys: make(map[string]time.Duration)}
}

func (m *MockSetNX) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewBoolResult(false, m.err)
	}
	if _, ok := m.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.keys[key] = expiration
	return redis.NewBoolResult(true, nil)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
