package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"walletwatch/clients/notifier"
	"walletwatch/clients/solanaevents"
	"walletwatch/clients/solanarpc"
	"walletwatch/config"

	"go.uber.org/zap"
)

// State is the scheduler's position in its cycle.
type State int32

const (
	StateInitializing State = iota
	StateBaselineEstablished
	StateCycleRunning
	StateFetching
	StateDiffing
	StateValuing
	StateRecording
	StateCycleFlushing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateBaselineEstablished:
		return "BASELINE_ESTABLISHED"
	case StateCycleRunning:
		return "CYCLE_RUNNING"
	case StateFetching:
		return "FETCHING"
	case StateDiffing:
		return "DIFFING"
	case StateValuing:
		return "VALUING"
	case StateRecording:
		return "RECORDING"
	case StateCycleFlushing:
		return "CYCLE_FLUSHING"
	case StateStopped:
		return "STOPPED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// BalanceFetcher returns a wallet's full holdings.
type BalanceFetcher interface {
	FetchBalances(ctx context.Context, wallet string) (map[string]float64, error)
}

// ActivityLookup resolves transaction metadata for a wallet.
type ActivityLookup interface {
	GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]solanarpc.SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*solanarpc.Transaction, error)
}

// EventSource delivers pushed transaction notifications.
type EventSource interface {
	Notifications() <-chan solanaevents.Notification
}

// SchedulerConfig holds scheduling settings.
type SchedulerConfig struct {
	Wallets          []string
	Mode             string
	PollInterval     time.Duration
	FlushInterval    time.Duration // Cycle length in event mode
	Retention        time.Duration // Stale cutoff for pushed transactions
	FetchTimeout     time.Duration
	NotifyChanges    bool
	AttachSignatures bool
}

// SchedulerStats holds counters for the stats endpoint.
type SchedulerStats struct {
	State             string `json:"state"`
	Cycles            int    `json:"cycles"`
	Changes           int    `json:"changes"`
	CorrelationAlerts int    `json:"correlation_alerts"`
	FetchFailures     int    `json:"fetch_failures"`
	Notifications     int    `json:"notifications"`
	Duplicates        int    `json:"duplicates"`
	Stale             int    `json:"stale"`
	NonActionable     int    `json:"non_actionable"`
	LastCycleAt       string `json:"last_cycle_at,omitempty"`
}

// Scheduler drives fetch, diff, valuation and correlation for every watched wallet.
type Scheduler struct {
	logger     *zap.Logger
	cfg        SchedulerConfig
	fetcher    BalanceFetcher
	activity   ActivityLookup
	store      *SnapshotStore
	oracle     *PriceOracle
	aggregator *CorrelationAggregator
	notifier   notifier.Notifier

	// Optional collaborators
	events  EventSource
	dedupe  SignatureSet
	holders *HolderAnalyzer

	now   func() time.Time
	state atomic.Int32

	statsMu sync.Mutex
	stats   SchedulerStats
	lastAt  time.Time
}

func NewScheduler(
	logger *zap.Logger,
	cfg SchedulerConfig,
	fetcher BalanceFetcher,
	activity ActivityLookup,
	store *SnapshotStore,
	oracle *PriceOracle,
	aggregator *CorrelationAggregator,
	n notifier.Notifier,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Mode == "" {
		cfg.Mode = config.WatchModePoll
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = cfg.PollInterval
	}
	return &Scheduler{
		logger:     logger,
		cfg:        cfg,
		fetcher:    fetcher,
		activity:   activity,
		store:      store,
		oracle:     oracle,
		aggregator: aggregator,
		notifier:   n,
		now:        time.Now,
	}
}

// SetEventSource wires the push transport used in event mode.
func (s *Scheduler) SetEventSource(events EventSource) {
	s.events = events
}

// SetSignatureSet wires the processed-signature set used in event mode.
func (s *Scheduler) SetSignatureSet(set SignatureSet) {
	s.dedupe = set
}

// SetHolderAnalyzer enables holder summaries on BUY correlation alerts.
func (s *Scheduler) SetHolderAnalyzer(h *HolderAnalyzer) {
	s.holders = h
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() SchedulerStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	out := s.stats
	out.State = s.State().String()
	if !s.lastAt.IsZero() {
		out.LastCycleAt = s.lastAt.UTC().Format(time.RFC3339)
	}
	return out
}

func (s *Scheduler) count(fn func(st *SchedulerStats)) {
	s.statsMu.Lock()
	fn(&s.stats)
	s.statsMu.Unlock()
}

// Run establishes baselines and then loops in the configured mode until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.setState(StateStopped)

	s.setState(StateInitializing)
	// Records from a cycle aborted before a restart must not leak into this run.
	s.aggregator.Reset()
	s.Baseline(ctx)

	if s.cfg.Mode == config.WatchModeEvent {
		return s.runEvents(ctx)
	}
	return s.runPoll(ctx)
}

// Baseline fetches every wallet that has no stored snapshot yet. Nothing is emitted.
func (s *Scheduler) Baseline(ctx context.Context) {
	for _, wallet := range s.cfg.Wallets {
		if ctx.Err() != nil {
			return
		}
		if s.store.HasBaseline(wallet) {
			continue
		}
		s.processWallet(ctx, wallet, "")
	}
	s.setState(StateBaselineEstablished)

	wallets, baselined, positions := s.store.Stats()
	s.logger.Info("baseline established",
		zap.Int("wallets", wallets),
		zap.Int("baselined", baselined),
		zap.Int("positions", positions),
	)
}

func (s *Scheduler) runPoll(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.logger.Info("poll loop started",
		zap.Duration("interval", s.cfg.PollInterval),
		zap.Int("wallets", len(s.cfg.Wallets)),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

func (s *Scheduler) runEvents(ctx context.Context) error {
	if s.events == nil {
		return fmt.Errorf("event mode requires an event source")
	}

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	s.setState(StateCycleRunning)
	s.logger.Info("event loop started",
		zap.Duration("flushInterval", s.cfg.FlushInterval),
		zap.Int("wallets", len(s.cfg.Wallets)),
	)

	notifications := s.events.Notifications()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notifications:
			if !ok {
				return fmt.Errorf("event source closed")
			}
			s.HandleNotification(ctx, n)
		case <-ticker.C:
			s.Flush(ctx)
			s.setState(StateCycleRunning)
		}
	}
}

// RunCycle processes every wallet in configured order and then flushes the
// correlation buckets. Cancellation is observed between wallets.
func (s *Scheduler) RunCycle(ctx context.Context) []CorrelationAlert {
	s.setState(StateCycleRunning)
	s.aggregator.Reset()

	for _, wallet := range s.cfg.Wallets {
		if ctx.Err() != nil {
			s.logger.Info("cycle interrupted", zap.Error(ctx.Err()))
			return nil
		}
		s.processWallet(ctx, wallet, "")
	}

	alerts := s.Flush(ctx)
	s.setState(StateCycleRunning)
	return alerts
}

// HandleNotification re-samples the wallet named by a pushed notification.
// It reports whether the wallet was processed.
func (s *Scheduler) HandleNotification(ctx context.Context, n solanaevents.Notification) bool {
	s.count(func(st *SchedulerStats) { st.Notifications++ })

	logger := s.logger.With(
		zap.String("wallet", shortID(n.Wallet)),
		zap.String("signature", shortID(n.Signature)),
	)

	if n.Signature == "" || n.Wallet == "" || n.Failed {
		s.count(func(st *SchedulerStats) { st.NonActionable++ })
		logger.Debug("skipping non-actionable notification", zap.Bool("failed", n.Failed))
		return false
	}
	if !s.isWatched(n.Wallet) {
		s.count(func(st *SchedulerStats) { st.NonActionable++ })
		logger.Debug("skipping notification for unwatched wallet")
		return false
	}

	// Duplicates are dropped before any RPC is spent on them.
	if s.dedupe != nil {
		fresh, err := s.dedupe.MarkIfNew(ctx, n.Signature)
		switch {
		case err != nil:
			logger.Warn("signature set unavailable, processing anyway", zap.Error(err))
		case !fresh:
			s.count(func(st *SchedulerStats) { st.Duplicates++ })
			logger.Debug("skipping duplicate signature")
			return false
		}
	}

	if s.activity == nil {
		s.count(func(st *SchedulerStats) { st.NonActionable++ })
		logger.Warn("no transaction lookup configured")
		return false
	}

	tx, err := s.activity.GetTransaction(ctx, n.Signature)
	if err != nil {
		s.count(func(st *SchedulerStats) { st.NonActionable++ })
		logger.Warn("failed to resolve transaction", zap.Error(err))
		return false
	}
	if tx == nil || tx.BlockTime == nil || tx.Failed() {
		s.count(func(st *SchedulerStats) { st.NonActionable++ })
		logger.Debug("skipping unresolved or failed transaction")
		return false
	}

	age := s.now().Sub(time.Unix(*tx.BlockTime, 0))
	if age > s.cfg.Retention {
		s.count(func(st *SchedulerStats) { st.Stale++ })
		logger.Debug("skipping stale transaction", zap.Duration("age", age))
		return false
	}

	s.processWallet(ctx, n.Wallet, n.Signature)
	return true
}

func (s *Scheduler) isWatched(wallet string) bool {
	for _, w := range s.cfg.Wallets {
		if w == wallet {
			return true
		}
	}
	return false
}

// processWallet runs fetch, diff, value and record for one wallet and commits
// the new snapshot. A failed fetch leaves the stored snapshot untouched.
func (s *Scheduler) processWallet(ctx context.Context, wallet, signature string) []BalanceDelta {
	logger := s.logger.With(zap.String("wallet", shortID(wallet)))

	s.setState(StateFetching)
	holdings, err := s.fetch(ctx, wallet)
	if err != nil {
		s.count(func(st *SchedulerStats) { st.FetchFailures++ })
		logger.Warn("fetch failed, keeping previous snapshot", zap.Error(err))
		return nil
	}

	if !s.store.HasBaseline(wallet) {
		s.store.Replace(wallet, holdings)
		logger.Info("wallet baselined", zap.Int("assets", len(holdings)))
		return nil
	}

	s.setState(StateDiffing)
	deltas := Diff(wallet, s.store.Get(wallet), holdings)

	if len(deltas) > 0 {
		s.setState(StateValuing)
		if signature == "" && s.cfg.AttachSignatures {
			signature = s.latestSignature(ctx, wallet)
		}
		for i := range deltas {
			deltas[i].USDValue = s.oracle.ValueOf(ctx, deltas[i].Asset, deltas[i].Quantity())
			deltas[i].Signature = signature
		}

		s.setState(StateRecording)
		for _, d := range deltas {
			s.aggregator.Record(d.Action, d.Asset, d.Wallet)
			logger.Info(d.Message(),
				zap.String("asset", d.Asset),
				zap.String("action", string(d.Action)),
				zap.Float64("usdValue", d.USDValue),
			)
			if s.cfg.NotifyChanges && s.notifier != nil {
				s.notifier.SendAlert(s.changeAlert(d))
			}
		}
		s.count(func(st *SchedulerStats) { st.Changes += len(deltas) })
	}

	s.store.Replace(wallet, holdings)
	return deltas
}

// fetch lets an in-flight fetch finish after cancellation, bounded by the fetch timeout.
func (s *Scheduler) fetch(ctx context.Context, wallet string) (Holdings, error) {
	fetchCtx := context.WithoutCancel(ctx)
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(fetchCtx, s.cfg.FetchTimeout)
		defer cancel()
	}

	balances, err := s.fetcher.FetchBalances(fetchCtx, wallet)
	if err != nil {
		return nil, err
	}
	return Holdings(balances), nil
}

func (s *Scheduler) latestSignature(ctx context.Context, wallet string) string {
	if s.activity == nil {
		return ""
	}
	sigs, err := s.activity.GetSignaturesForAddress(ctx, wallet, 1)
	if err != nil {
		s.logger.Debug("failed to look up latest signature",
			zap.String("wallet", shortID(wallet)),
			zap.Error(err),
		)
		return ""
	}
	if len(sigs) == 0 {
		return ""
	}
	return sigs[0].Signature
}

func (s *Scheduler) changeAlert(d BalanceDelta) notifier.Alert {
	return notifier.Alert{
		Kind:          notifier.AlertKindBalanceChange,
		Action:        d.Action,
		Asset:         d.Asset,
		Wallets:       []string{d.Wallet},
		Message:       d.Message(),
		OldBalance:    d.Old,
		NewBalance:    d.New,
		PercentChange: d.PercentChange,
		NewHolding:    d.NewHolding,
		USDValue:      d.USDValue,
		Signature:     d.Signature,
		Timestamp:     s.now(),
	}
}

// Flush closes the current cycle: correlation alerts are built, enriched and
// delivered, and the buckets are cleared.
func (s *Scheduler) Flush(ctx context.Context) []CorrelationAlert {
	s.setState(StateCycleFlushing)
	alerts := s.aggregator.Flush()

	for _, a := range alerts {
		alert := notifier.Alert{
			Kind:      notifier.AlertKindCorrelation,
			Action:    a.Action,
			Asset:     a.Asset,
			Wallets:   a.Wallets,
			Message:   a.Message(),
			Threshold: a.Threshold,
			Timestamp: s.now(),
		}

		if a.Action == notifier.ActionBuy && s.holders != nil && a.Asset != config.NativeAssetID {
			summary, err := s.holders.Analyze(ctx, a.Asset)
			if err != nil {
				s.logger.Warn("holder analysis failed",
					zap.String("asset", shortID(a.Asset)),
					zap.Error(err),
				)
			} else {
				alert.Holders = summary
			}
		}

		s.logger.Info(alert.Message,
			zap.String("asset", a.Asset),
			zap.String("action", string(a.Action)),
			zap.Int("wallets", len(a.Wallets)),
		)
		if s.notifier != nil {
			s.notifier.SendAlert(alert)
		}
	}

	now := s.now()
	s.statsMu.Lock()
	s.stats.Cycles++
	s.stats.CorrelationAlerts += len(alerts)
	s.lastAt = now
	s.statsMu.Unlock()

	return alerts
}
