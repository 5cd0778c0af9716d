package clients

import (
	"strings"
	"walletwatch/clients/coingecko"
	"walletwatch/clients/discord"
	"walletwatch/clients/kafkaemitter"
	"walletwatch/clients/notifier"
	"walletwatch/clients/solanaevents"
	"walletwatch/clients/solanarpc"
	"walletwatch/clients/telegram"
	"walletwatch/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Clients struct {
	Logger *zap.Logger

	Discord      *discord.DiscordClient
	Telegram     *telegram.TelegramClient
	Kafka        *kafkaemitter.KafkaEmitter // nil when KAFKA_BROKERS is unset
	Notifier     notifier.Notifier          // Combined notifier for all channels
	Solana       *solanarpc.Client
	SolanaEvents *solanaevents.Client // nil in poll mode
	Prices       *coingecko.Client
	Redis        *redis.Client // nil when REDIS_URL is unset
}

var newRedisClient = func(opts *redis.Options) *redis.Client {
	return redis.NewClient(opts)
}

func NewClients(logger *zap.Logger, cfg *config.Config) *Clients {
	if logger == nil {
		logger = zap.NewNop()
	}

	discordClient := discord.NewDiscordClient(logger, cfg)
	telegramClient := telegram.NewTelegramClient(logger, cfg)
	kafkaEmitter := kafkaemitter.NewKafkaEmitter(logger, cfg)

	channels := []notifier.Notifier{discordClient, telegramClient}
	if kafkaEmitter != nil {
		channels = append(channels, kafkaEmitter)
	}

	c := &Clients{
		Logger:   logger,
		Discord:  discordClient,
		Telegram: telegramClient,
		Kafka:    kafkaEmitter,
		Notifier: notifier.NewMultiNotifier(channels...),
		Solana:   solanarpc.NewClient(logger, cfg),
		Prices:   coingecko.NewClient(logger, cfg),
	}

	// Only create WebSocket client in event mode
	if cfg.Watcher.Mode == config.WatchModeEvent {
		c.SolanaEvents = solanaevents.NewClient(logger, cfg)
	}

	if cfg.Redis.URL != "" {
		opts := &redis.Options{Addr: cfg.Redis.URL}
		if strings.HasPrefix(cfg.Redis.URL, "redis://") || strings.HasPrefix(cfg.Redis.URL, "rediss://") {
			parsed, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				logger.Error("failed to parse REDIS_URL, using in-memory signature store", zap.Error(err))
				opts = nil
			} else {
				opts = parsed
			}
		}
		if opts != nil {
			c.Redis = newRedisClient(opts)
		}
	}

	return c
}

// Close releases every client holding connections.
func (c *Clients) Close() error {
	var lastErr error
	if c.Notifier != nil {
		if err := c.Notifier.Close(); err != nil {
			lastErr = err
		}
	}
	if c.SolanaEvents != nil {
		if err := c.SolanaEvents.Close(); err != nil {
			lastErr = err
		}
	}
	if c.Solana != nil {
		_ = c.Solana.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
