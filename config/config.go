package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// WatchModePoll samples every wallet on a fixed interval.
	WatchModePoll = "poll"
	// WatchModeEvent re-samples a wallet when the provider pushes a transaction mentioning it.
	WatchModeEvent = "event"

	// NativeAssetID is the asset identifier used for native SOL holdings.
	NativeAssetID = "SOL"
)

// Config holds all application configuration.
type Config struct {
	// Environment
	IsProd bool `json:"is_prod"`

	// Upstream RPC provider
	Solana SolanaConfig `json:"solana"`

	// Wallet watching
	Watcher WatcherConfig `json:"watcher"`

	// Native asset pricing
	Prices PricesConfig `json:"prices"`

	// Holder distribution analysis
	Holders HoldersConfig `json:"holders"`

	// Discord
	Discord DiscordConfig `json:"discord"`

	// Telegram
	Telegram TelegramConfig `json:"telegram"`

	// Kafka alert stream
	Kafka KafkaConfig `json:"kafka"`

	// Redis-backed signature set
	Redis RedisConfig `json:"redis"`

	// Health server
	HealthServer HealthServerConfig `json:"health_server"`
}

// SolanaConfig holds upstream JSON-RPC and websocket configuration.
type SolanaConfig struct {
	RPCURL         string        `json:"rpc_url"`
	WSURL          string        `json:"ws_url"`         // Derived from RPCURL when empty
	APIKey         string        `json:"-"`              // Excluded - env var only
	RateLimit      float64       `json:"rate_limit"`     // Requests per second
	RequestTimeout time.Duration `json:"request_timeout"`
	MaxRetries     int           `json:"max_retries"`    // Attempts per call, including the first
	BackoffBase    float64       `json:"backoff_base"`   // Sleep base^attempt seconds between attempts
	IncludeNative  bool          `json:"include_native"` // Report native SOL under NativeAssetID
}

// WatcherConfig holds scheduling and correlation configuration.
type WatcherConfig struct {
	Wallets              []string      `json:"wallets"`
	Mode                 string        `json:"mode"` // poll or event
	PollInterval         time.Duration `json:"poll_interval"`
	EventFlushInterval   time.Duration `json:"event_flush_interval"` // Cycle length in event mode
	CorrelationThreshold int           `json:"correlation_threshold"`
	SignatureRetention   time.Duration `json:"signature_retention"`
	RestartCooldown      time.Duration `json:"restart_cooldown"`
	FetchTimeout         time.Duration `json:"fetch_timeout"`     // Upper bound on one wallet fetch including retries
	NotifyChanges        bool          `json:"notify_changes"`    // Send every classified change to the sinks
	AttachSignatures     bool          `json:"attach_signatures"` // Look up the latest signature for changed wallets
}

// PricesConfig holds native asset price lookup configuration.
type PricesConfig struct {
	CoinGeckoURL       string        `json:"coingecko_url"`
	CoinGeckoAPIKey    string        `json:"-"` // Excluded - env var only
	NativeCoinID       string        `json:"native_coin_id"`
	NativeTTL          time.Duration `json:"native_ttl"`
	DefaultNativePrice float64       `json:"default_native_price"` // Used until the first successful lookup
	FallbackUnitPrice  float64       `json:"fallback_unit_price"`  // Placeholder price for every other asset
}

// HoldersConfig holds holder distribution and whale detection configuration.
type HoldersConfig struct {
	Enabled               bool    `json:"enabled"`
	TopN                  int     `json:"top_n"`
	SuspiciousPercent     float64 `json:"suspicious_percent"` // Top-N share above this is flagged
	PageLimit             int     `json:"page_limit"`
	WhaleMinAmount        float64 `json:"whale_min_amount"`
	WhaleMinSupplyPercent float64 `json:"whale_min_supply_percent"`
}

// DiscordConfig holds Discord-related configuration.
type DiscordConfig struct {
	BotToken      string `json:"-"` // Excluded - env var only
	ProdChannelID string `json:"prod_channel_id"`
	BetaChannelID string `json:"beta_channel_id"`
	WebhookURL    string `json:"-"` // Excluded - env var only
}

// TelegramConfig holds Telegram-related configuration.
type TelegramConfig struct {
	BotToken   string `json:"-"` // Excluded - env var only
	ProdChatID string `json:"prod_chat_id"`
	BetaChatID string `json:"beta_chat_id"`
}

// KafkaConfig holds Kafka alert stream configuration.
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

// RedisConfig holds Redis configuration. An empty URL keeps the signature set in memory.
type RedisConfig struct {
	URL       string `json:"-"` // Excluded - env var only
	KeyPrefix string `json:"key_prefix"`
}

// HealthServerConfig holds health check server configuration.
type HealthServerConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// Clone creates a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Watcher.Wallets != nil {
		clone.Watcher.Wallets = make([]string, len(c.Watcher.Wallets))
		copy(clone.Watcher.Wallets, c.Watcher.Wallets)
	}
	if c.Kafka.Brokers != nil {
		clone.Kafka.Brokers = make([]string, len(c.Kafka.Brokers))
		copy(clone.Kafka.Brokers, c.Kafka.Brokers)
	}
	return &clone
}

// ToJSON serializes the config to JSON. Secrets are excluded.
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// WebsocketURL returns the configured websocket endpoint, deriving it from the RPC URL if unset.
func (s SolanaConfig) WebsocketURL() string {
	if s.WSURL != "" {
		return s.WSURL
	}
	switch {
	case strings.HasPrefix(s.RPCURL, "https://"):
		return "wss://" + strings.TrimPrefix(s.RPCURL, "https://")
	case strings.HasPrefix(s.RPCURL, "http://"):
		return "ws://" + strings.TrimPrefix(s.RPCURL, "http://")
	}
	return s.RPCURL
}

// Defaults returns a config with hardcoded default values.
func Defaults() *Config {
	return &Config{
		IsProd: false,
		Solana: SolanaConfig{
			RPCURL:         "https://api.mainnet-beta.solana.com",
			RateLimit:      5,
			RequestTimeout: 30 * time.Second,
			MaxRetries:     5,
			BackoffBase:    2,
			IncludeNative:  true,
		},
		Watcher: WatcherConfig{
			Mode:                 WatchModePoll,
			PollInterval:         15 * time.Second,
			EventFlushInterval:   15 * time.Second,
			CorrelationThreshold: 2,
			SignatureRetention:   10 * time.Minute,
			RestartCooldown:      30 * time.Second,
			FetchTimeout:         2 * time.Minute,
			AttachSignatures:     true,
		},
		Prices: PricesConfig{
			CoinGeckoURL:       "https://api.coingecko.com/api/v3",
			NativeCoinID:       "solana",
			NativeTTL:          30 * time.Second,
			DefaultNativePrice: 150.0,
			FallbackUnitPrice:  1.0,
		},
		Holders: HoldersConfig{
			TopN:                  20,
			SuspiciousPercent:     35,
			PageLimit:             1000,
			WhaleMinAmount:        10000,
			WhaleMinSupplyPercent: 1,
		},
		Kafka: KafkaConfig{
			Topic: "walletwatch.alerts",
		},
		Redis: RedisConfig{
			KeyPrefix: "walletwatch:sig:",
		},
		HealthServer: HealthServerConfig{
			Enabled: true,
			Port:    8080,
		},
	}
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	d := Defaults()
	pollInterval := envSeconds("POLL_INTERVAL", d.Watcher.PollInterval)

	return &Config{
		IsProd: envBool("STAGE", "PROD"),

		Solana: SolanaConfig{
			RPCURL:         envString("SOLANA_RPC_URL", d.Solana.RPCURL),
			WSURL:          envString("SOLANA_WS_URL", ""),
			APIKey:         envString("API_KEY", ""),
			RateLimit:      envFloat("RPC_RATE_LIMIT", d.Solana.RateLimit),
			RequestTimeout: envDuration("RPC_TIMEOUT", d.Solana.RequestTimeout),
			MaxRetries:     envInt("FETCH_MAX_RETRIES", d.Solana.MaxRetries),
			BackoffBase:    envFloat("FETCH_BACKOFF_BASE", d.Solana.BackoffBase),
			IncludeNative:  envBoolDefault("INCLUDE_NATIVE", d.Solana.IncludeNative),
		},

		Watcher: WatcherConfig{
			Wallets:              envStringSlice("WALLETS"),
			Mode:                 strings.ToLower(envString("WATCH_MODE", d.Watcher.Mode)),
			PollInterval:         pollInterval,
			EventFlushInterval:   envDuration("EVENT_FLUSH_INTERVAL", pollInterval),
			CorrelationThreshold: envInt("CORRELATION_THRESHOLD", d.Watcher.CorrelationThreshold),
			SignatureRetention:   envDuration("SIGNATURE_RETENTION", d.Watcher.SignatureRetention),
			RestartCooldown:      envDuration("RESTART_COOLDOWN", d.Watcher.RestartCooldown),
			FetchTimeout:         envDuration("FETCH_TIMEOUT", d.Watcher.FetchTimeout),
			NotifyChanges:        envBoolDefault("NOTIFY_CHANGES", false),
			AttachSignatures:     envBoolDefault("ATTACH_SIGNATURES", d.Watcher.AttachSignatures),
		},

		Prices: PricesConfig{
			CoinGeckoURL:       envString("COINGECKO_API_URL", d.Prices.CoinGeckoURL),
			CoinGeckoAPIKey:    envString("COINGECKO_API_KEY", ""),
			NativeCoinID:       envString("NATIVE_COIN_ID", d.Prices.NativeCoinID),
			NativeTTL:          envDuration("NATIVE_PRICE_TTL", d.Prices.NativeTTL),
			DefaultNativePrice: envFloat("DEFAULT_NATIVE_PRICE", d.Prices.DefaultNativePrice),
			FallbackUnitPrice:  d.Prices.FallbackUnitPrice,
		},

		Holders: HoldersConfig{
			Enabled:               envBoolDefault("HOLDER_ANALYSIS_ENABLED", false),
			TopN:                  envInt("HOLDER_TOP_N", d.Holders.TopN),
			SuspiciousPercent:     envFloat("HOLDER_SUSPICIOUS_PERCENT", d.Holders.SuspiciousPercent),
			PageLimit:             d.Holders.PageLimit,
			WhaleMinAmount:        envFloat("WHALE_MIN_AMOUNT", d.Holders.WhaleMinAmount),
			WhaleMinSupplyPercent: envFloat("WHALE_MIN_SUPPLY_PERCENT", d.Holders.WhaleMinSupplyPercent),
		},

		Discord: DiscordConfig{
			BotToken:      envString("DISCORD_BOT_TOKEN", ""),
			ProdChannelID: envString("DISCORD_PROD_CHANNEL_ID", ""),
			BetaChannelID: envString("DISCORD_BETA_CHANNEL_ID", ""),
			WebhookURL:    envString("DISCORD_WEBHOOK_URL", ""),
		},

		Telegram: TelegramConfig{
			BotToken:   envString("TELEGRAM_BOT_KEY", ""),
			ProdChatID: envString("TELEGRAM_PROD_CHAT_ID", ""),
			BetaChatID: envString("TELEGRAM_BETA_CHAT_ID", ""),
		},

		Kafka: KafkaConfig{
			Brokers: envStringSlice("KAFKA_BROKERS"),
			Topic:   envString("KAFKA_TOPIC", d.Kafka.Topic),
		},

		Redis: RedisConfig{
			URL:       envString("REDIS_URL", ""),
			KeyPrefix: envString("REDIS_KEY_PREFIX", d.Redis.KeyPrefix),
		},

		HealthServer: HealthServerConfig{
			Enabled: envBoolDefault("HEALTH_SERVER_ENABLED", d.HealthServer.Enabled),
			Port:    envInt("HEALTH_SERVER_PORT", d.HealthServer.Port),
		},
	}
}

// Helper functions for parsing environment variables

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// envSeconds accepts either a Go duration ("15s") or a bare number of seconds ("15").
func envSeconds(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(n * float64(time.Second))
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}

func envBool(key, trueValue string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), trueValue)
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1") || strings.EqualFold(v, "yes")
}

func envStringSlice(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
