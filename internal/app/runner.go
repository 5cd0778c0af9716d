package app

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"
	clts "walletwatch/clients"
	"walletwatch/config"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Build info - populated from embedded VCS info at init time
var (
	BuildCommit = "dev"
	BuildTime   = "unknown"
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if setting.Value != "" {
					BuildCommit = setting.Value
				}
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	}
}

const (
	wsCheckInterval  = 30 * time.Second
	wsStaleAfter     = 2 * time.Minute
	wsReconnectDelay = 5 * time.Second
)

type Runner struct {
	clients *clts.Clients
	cfg     *config.Config

	store        *SnapshotStore
	oracle       *PriceOracle
	aggregator   *CorrelationAggregator
	signatures   SignatureSet
	scheduler    *Scheduler
	healthServer *http.Server
	startTime    time.Time

	// runScheduler is swapped in tests
	runScheduler func(ctx context.Context) error
	restarts     atomic.Int64
	wsConnected  atomic.Bool
}

// ServiceStats holds comprehensive service statistics.
type ServiceStats struct {
	// Build info
	Build struct {
		Commit    string `json:"commit"`
		Time      string `json:"time,omitempty"`
		GoVersion string `json:"go_version"`
	} `json:"build"`

	// Service info
	StartTime string `json:"start_time"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_seconds"`
	Mode      string `json:"mode"`
	Restarts  int64  `json:"restarts"`

	// WebSocket stats
	WebSocket struct {
		Enabled           bool   `json:"enabled"` // true in event mode
		Connected         bool   `json:"connected"`
		MessageCount      uint64 `json:"message_count"`
		NotificationCount uint64 `json:"notification_count"`
		Subscriptions     int    `json:"subscriptions"`
		LastMessageAt     string `json:"last_message_at,omitempty"`
		LastMessageAgo    string `json:"last_message_ago,omitempty"`
	} `json:"websocket"`

	Scheduler SchedulerStats `json:"scheduler"`

	// Snapshot stats
	Snapshots struct {
		Wallets   int `json:"wallets"`
		Baselined int `json:"baselined"`
		Positions int `json:"positions"`
	} `json:"snapshots"`

	// Native price cache
	Prices struct {
		NativePrice   float64 `json:"native_price,omitempty"`
		NativeQuoteAt string  `json:"native_quote_at,omitempty"`
	} `json:"prices"`

	PendingBuckets   int `json:"pending_buckets"`
	SignatureSetSize int `json:"signature_set_size"`

	// Notification status
	Notifications struct {
		Sinks            int    `json:"sinks"`
		DiscordEnabled   bool   `json:"discord_enabled"`
		DiscordChannelID string `json:"discord_channel_id,omitempty"`
		TelegramEnabled  bool   `json:"telegram_enabled"`
		TelegramChatID   string `json:"telegram_chat_id,omitempty"`
		KafkaEnabled     bool   `json:"kafka_enabled"`
	} `json:"notifications"`

	// Runtime stats
	Runtime struct {
		Goroutines int    `json:"goroutines"`
		HeapAlloc  uint64 `json:"heap_alloc"`  // bytes currently allocated on heap
		HeapSys    uint64 `json:"heap_sys"`    // bytes obtained from system for heap
		HeapInuse  uint64 `json:"heap_inuse"`  // bytes in in-use spans
		StackInuse uint64 `json:"stack_inuse"` // bytes in stack spans
		NumGC      uint32 `json:"num_gc"`      // number of completed GC cycles
		LastGC     string `json:"last_gc"`     // time of last GC
		GoVersion  string `json:"go_version"`  // Go version
		NumCPU     int    `json:"num_cpu"`     // number of CPUs
		GOOS       string `json:"goos"`        // operating system
		GOARCH     string `json:"goarch"`      // architecture
	} `json:"runtime"`
}

// NewRunner builds the watcher components. Snapshots live on the runner so they
// survive scheduler restarts.
func NewRunner(clients *clts.Clients, cfg *config.Config) *Runner {
	logger := clients.Logger
	if logger == nil {
		logger = zap.NewNop()
		clients.Logger = logger
	}

	r := &Runner{
		clients:    clients,
		cfg:        cfg,
		store:      NewSnapshotStore(cfg.Watcher.Wallets),
		aggregator: NewCorrelationAggregator(cfg.Watcher.CorrelationThreshold),
	}

	var prices PriceSource
	if clients.Prices != nil {
		prices = clients.Prices
	}
	r.oracle = NewPriceOracle(logger, prices, PriceOracleConfig{
		NativeAsset:  config.NativeAssetID,
		NativeCoinID: cfg.Prices.NativeCoinID,
		TTL:          cfg.Prices.NativeTTL,
		DefaultPrice: cfg.Prices.DefaultNativePrice,
		UnitPrice:    cfg.Prices.FallbackUnitPrice,
	})

	if clients.Redis != nil {
		r.signatures = NewRedisSignatureSet(clients.Redis, cfg.Redis.KeyPrefix, cfg.Watcher.SignatureRetention)
	} else {
		r.signatures = NewMemorySignatureSet(cfg.Watcher.SignatureRetention)
	}

	r.scheduler = r.newScheduler()
	r.runScheduler = r.scheduler.Run

	return r
}

func (r *Runner) newScheduler() *Scheduler {
	cfg := r.cfg
	var fetcher BalanceFetcher
	var activity ActivityLookup
	if r.clients.Solana != nil {
		fetcher = r.clients.Solana
		activity = r.clients.Solana
	}

	s := NewScheduler(
		r.clients.Logger,
		SchedulerConfig{
			Wallets:          cfg.Watcher.Wallets,
			Mode:             cfg.Watcher.Mode,
			PollInterval:     cfg.Watcher.PollInterval,
			FlushInterval:    cfg.Watcher.EventFlushInterval,
			Retention:        cfg.Watcher.SignatureRetention,
			FetchTimeout:     cfg.Watcher.FetchTimeout,
			NotifyChanges:    cfg.Watcher.NotifyChanges,
			AttachSignatures: cfg.Watcher.AttachSignatures,
		},
		fetcher,
		activity,
		r.store,
		r.oracle,
		r.aggregator,
		r.clients.Notifier,
	)
	s.SetSignatureSet(r.signatures)

	if r.clients.SolanaEvents != nil {
		s.SetEventSource(r.clients.SolanaEvents)
	}
	if cfg.Holders.Enabled && r.clients.Solana != nil {
		s.SetHolderAnalyzer(NewHolderAnalyzer(r.clients.Logger, r.clients.Solana, HolderAnalyzerConfig{
			TopN:                  cfg.Holders.TopN,
			SuspiciousPercent:     cfg.Holders.SuspiciousPercent,
			PageLimit:             cfg.Holders.PageLimit,
			WhaleMinAmount:        cfg.Holders.WhaleMinAmount,
			WhaleMinSupplyPercent: cfg.Holders.WhaleMinSupplyPercent,
		}))
	}
	return s
}

func (r *Runner) Run(ctx context.Context) error {
	r.startTime = time.Now()
	logger := r.clients.Logger
	cfg := r.cfg

	logger.Info("starting wallet watcher",
		zap.String("mode", cfg.Watcher.Mode),
		zap.Int("wallets", len(cfg.Watcher.Wallets)),
		zap.Duration("pollInterval", cfg.Watcher.PollInterval),
		zap.Int("correlationThreshold", cfg.Watcher.CorrelationThreshold),
		zap.Bool("holderAnalysis", cfg.Holders.Enabled),
		zap.Bool("redisSignatures", r.clients.Redis != nil),
		zap.String("commit", BuildCommit),
	)

	// Connect WebSocket if available
	if r.clients.SolanaEvents != nil {
		if err := r.connectWebSocket(ctx); err != nil {
			logger.Warn("failed to connect WebSocket, reconnector will retry", zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	// Start health check server if enabled
	if cfg.HealthServer.Enabled {
		r.healthServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.HealthServer.Port),
			Handler: r.statsMux(),
		}
		g.Go(func() error {
			logger.Info("health server started", zap.Int("port", cfg.HealthServer.Port))
			if err := r.healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = r.healthServer.Shutdown(shutdownCtx)
			return nil
		})
	}

	g.Go(func() error {
		return r.superviseScheduler(gctx)
	})

	// Start WebSocket reconnection monitor
	if r.clients.SolanaEvents != nil {
		g.Go(func() error {
			r.runWSReconnector(gctx)
			return nil
		})
	}

	err := g.Wait()
	logger.Info("runner shutting down")

	// Close WebSocket connection
	if r.clients.SolanaEvents != nil {
		_ = r.clients.SolanaEvents.Close()
		r.wsConnected.Store(false)
	}

	return err
}

// superviseScheduler keeps the scheduler running until ctx is done. A panic or
// error is logged and the scheduler restarts after the cool-down.
func (r *Runner) superviseScheduler(ctx context.Context) error {
	logger := r.clients.Logger
	for {
		err := r.runSchedulerOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("scheduler exited unexpectedly")
		}

		n := r.restarts.Add(1)
		logger.Error("scheduler stopped, restarting after cool-down",
			zap.Error(err),
			zap.Int64("restarts", n),
			zap.Duration("cooldown", r.cfg.Watcher.RestartCooldown),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.cfg.Watcher.RestartCooldown):
		}
	}
}

func (r *Runner) runSchedulerOnce(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("scheduler panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return r.runScheduler(ctx)
}

// connectWebSocket subscribes to every watched wallet.
func (r *Runner) connectWebSocket(ctx context.Context) error {
	// Pass the parent context, not a timeout context: Connect closes the
	// connection when ctx is canceled.
	if err := r.clients.SolanaEvents.Connect(ctx, r.cfg.Watcher.Wallets); err != nil {
		return fmt.Errorf("connect solana WebSocket: %w", err)
	}

	r.wsConnected.Store(true)
	r.clients.Logger.Info("WebSocket connected",
		zap.Int("subscribedWallets", len(r.cfg.Watcher.Wallets)),
	)
	return nil
}

// runWSReconnector monitors WebSocket health and reconnects if needed.
func (r *Runner) runWSReconnector(ctx context.Context) {
	logger := r.clients.Logger
	ticker := time.NewTicker(wsCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-r.clients.SolanaEvents.Errors():
			logger.Warn("WebSocket error", zap.Error(err))
		case <-ticker.C:
			if !r.clients.SolanaEvents.Connected() {
				logger.Warn("WebSocket disconnected, attempting reconnect")
				r.attemptReconnect(ctx)
				continue
			}

			stats := r.clients.SolanaEvents.Stats()

			// Check if we haven't received messages in a while (might be disconnected)
			if stats.MessageCount > 0 && time.Since(stats.LastMessageAt) > wsStaleAfter {
				logger.Warn("WebSocket appears stale, attempting reconnect",
					zap.Duration("timeSinceLastMessage", time.Since(stats.LastMessageAt)),
				)
				r.attemptReconnect(ctx)
			}
		}
	}
}

// attemptReconnect attempts to reconnect the WebSocket.
func (r *Runner) attemptReconnect(ctx context.Context) {
	logger := r.clients.Logger

	// Close existing connection
	_ = r.clients.SolanaEvents.Close()
	r.wsConnected.Store(false)

	// Wait a moment before reconnecting
	select {
	case <-ctx.Done():
		return
	case <-time.After(wsReconnectDelay):
	}

	if err := r.connectWebSocket(ctx); err != nil {
		logger.Error("failed to reconnect WebSocket", zap.Error(err))
	}
}

// GetStats returns comprehensive service statistics.
func (r *Runner) GetStats() ServiceStats {
	var stats ServiceStats

	// Build info
	stats.Build.Commit = BuildCommit
	stats.Build.Time = BuildTime
	stats.Build.GoVersion = runtime.Version()

	// Service info
	stats.StartTime = r.startTime.UTC().Format(time.RFC3339)
	uptime := time.Since(r.startTime)
	stats.Uptime = uptime.Round(time.Second).String()
	stats.UptimeSec = int64(uptime.Seconds())
	stats.Mode = r.cfg.Watcher.Mode
	stats.Restarts = r.restarts.Load()

	// WebSocket stats
	stats.WebSocket.Enabled = r.clients.SolanaEvents != nil
	if r.clients.SolanaEvents != nil {
		wsStats := r.clients.SolanaEvents.Stats()
		stats.WebSocket.Connected = r.clients.SolanaEvents.Connected()
		stats.WebSocket.MessageCount = wsStats.MessageCount
		stats.WebSocket.NotificationCount = wsStats.NotificationCount
		stats.WebSocket.Subscriptions = wsStats.Subscriptions
		if !wsStats.LastMessageAt.IsZero() {
			stats.WebSocket.LastMessageAt = wsStats.LastMessageAt.UTC().Format(time.RFC3339)
			stats.WebSocket.LastMessageAgo = time.Since(wsStats.LastMessageAt).Round(time.Second).String()
		}
	}

	if r.scheduler != nil {
		stats.Scheduler = r.scheduler.Stats()
	}
	stats.Snapshots.Wallets, stats.Snapshots.Baselined, stats.Snapshots.Positions = r.store.Stats()

	if price, at, ok := r.oracle.Quote(); ok {
		stats.Prices.NativePrice = price
		stats.Prices.NativeQuoteAt = at.UTC().Format(time.RFC3339)
	}

	stats.PendingBuckets = r.aggregator.Pending()
	if r.signatures != nil {
		stats.SignatureSetSize = r.signatures.Size()
	}

	// Notification status
	if mn, ok := r.clients.Notifier.(interface{ Count() int }); ok {
		stats.Notifications.Sinks = mn.Count()
	}
	stats.Notifications.DiscordEnabled = r.cfg.Discord.BotToken != "" || r.cfg.Discord.WebhookURL != ""
	stats.Notifications.TelegramEnabled = r.cfg.Telegram.BotToken != ""
	stats.Notifications.KafkaEnabled = r.clients.Kafka != nil
	if r.cfg.IsProd {
		stats.Notifications.DiscordChannelID = r.cfg.Discord.ProdChannelID
		stats.Notifications.TelegramChatID = r.cfg.Telegram.ProdChatID
	} else {
		stats.Notifications.DiscordChannelID = r.cfg.Discord.BetaChannelID
		stats.Notifications.TelegramChatID = r.cfg.Telegram.BetaChatID
	}

	// Runtime stats
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.Runtime.Goroutines = runtime.NumGoroutine()
	stats.Runtime.HeapAlloc = m.HeapAlloc
	stats.Runtime.HeapSys = m.HeapSys
	stats.Runtime.HeapInuse = m.HeapInuse
	stats.Runtime.StackInuse = m.StackInuse
	stats.Runtime.NumGC = m.NumGC
	if m.LastGC > 0 {
		stats.Runtime.LastGC = time.Unix(0, int64(m.LastGC)).UTC().Format(time.RFC3339)
	}
	stats.Runtime.GoVersion = runtime.Version()
	stats.Runtime.NumCPU = runtime.NumCPU()
	stats.Runtime.GOOS = runtime.GOOS
	stats.Runtime.GOARCH = runtime.GOARCH

	return stats
}
