package clients

import (
	"testing"
	"walletwatch/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestNewClients_EventMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Watcher.Mode = config.WatchModeEvent
	cfg.Discord.BetaChannelID = "beta"

	logger := zap.NewNop()
	clients := NewClients(logger, cfg)

	if clients.Logger != logger {
		t.Error("unexpected logger")
	}
	if clients.Discord == nil || clients.Telegram == nil {
		t.Error("expected Discord and Telegram clients to be set")
	}
	if clients.Solana == nil {
		t.Error("expected Solana client to be set")
	}
	if clients.Prices == nil {
		t.Error("expected price client to be set")
	}
	if clients.SolanaEvents == nil {
		t.Error("expected SolanaEvents client to be set in event mode")
	}
	if clients.Kafka != nil {
		t.Error("expected no Kafka emitter without brokers")
	}
	if clients.Redis != nil {
		t.Error("expected no Redis client without REDIS_URL")
	}
}

func TestNewClients_PollMode(t *testing.T) {
	clients := NewClients(zap.NewNop(), config.Defaults())

	if clients.SolanaEvents != nil {
		t.Error("expected SolanaEvents client to be nil in poll mode")
	}
}

func TestNewClients_NilLogger(t *testing.T) {
	clients := NewClients(nil, config.Defaults())

	if clients.Logger == nil {
		t.Error("expected default logger")
	}
}

func TestNewClients_Notifier(t *testing.T) {
	cfg := config.Defaults()
	cfg.Kafka.Brokers = []string{"localhost:9092"}

	clients := NewClients(zap.NewNop(), cfg)

	if clients.Kafka == nil {
		t.Fatal("expected Kafka emitter with brokers")
	}
	if clients.Notifier == nil {
		t.Fatal("expected combined notifier")
	}
	_ = clients.Close()
}

func TestNewClients_Redis(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantAddr string
		wantNil  bool
	}{
		{"plain addr", "localhost:6380", "localhost:6380", false},
		{"url", "redis://:pw@cache:6379/2", "cache:6379", false},
		{"bad url", "redis://cache:6379/notadb", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := newRedisClient
			t.Cleanup(func() { newRedisClient = orig })

			var captured *redis.Options
			newRedisClient = func(opts *redis.Options) *redis.Client {
				captured = opts
				return redis.NewClient(opts)
			}

			cfg := config.Defaults()
			cfg.Redis.URL = tt.url
			clients := NewClients(zap.NewNop(), cfg)
			defer clients.Close()

			if tt.wantNil {
				if clients.Redis != nil {
					t.Error("expected no Redis client")
				}
				return
			}
			if clients.Redis == nil || captured == nil {
				t.Fatal("expected Redis client")
			}
			if captured.Addr != tt.wantAddr {
				t.Errorf("expected addr %s, got %s", tt.wantAddr, captured.Addr)
			}
		})
	}
}
