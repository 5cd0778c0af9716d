package kafkaemitter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"walletwatch/clients/notifier"
	"walletwatch/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// alertRecord is the JSON value published for each alert.
type alertRecord struct {
	Kind          string    `json:"kind"`
	Action        string    `json:"action"`
	Asset         string    `json:"asset"`
	Wallets       []string  `json:"wallets"`
	Message       string    `json:"message"`
	OldBalance    float64   `json:"old_balance,omitempty"`
	NewBalance    float64   `json:"new_balance,omitempty"`
	PercentChange float64   `json:"percent_change,omitempty"`
	NewHolding    bool      `json:"new_holding,omitempty"`
	USDValue      float64   `json:"usd_value,omitempty"`
	Signature     string    `json:"signature,omitempty"`
	Verdict       string    `json:"holder_verdict,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// KafkaEmitter publishes alerts as JSON to a Kafka topic.
// Implements notifier.Notifier interface.
type KafkaEmitter struct {
	logger       *zap.Logger
	writer       messageWriter
	topic        string
	writeTimeout time.Duration
	mu           sync.Mutex
}

// NewKafkaEmitter returns nil when no brokers are configured.
func NewKafkaEmitter(logger *zap.Logger, cfg *config.Config) *KafkaEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set, Kafka alerts disabled")
		return nil
	}

	logger.Info("kafka emitter initialized",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
	)

	return &KafkaEmitter{
		logger: logger,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Kafka.Brokers...),
			Topic:                  cfg.Kafka.Topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
		topic:        cfg.Kafka.Topic,
		writeTimeout: 10 * time.Second,
	}
}

// SendAlert publishes the alert keyed by action and asset so alerts for one
// asset land on one partition.
// Implements notifier.Notifier interface.
func (k *KafkaEmitter) SendAlert(alert notifier.Alert) {
	if err := k.Emit(context.Background(), alert); err != nil {
		k.logger.Error("failed to emit kafka alert", zap.Error(err))
	}
}

func (k *KafkaEmitter) Emit(ctx context.Context, alert notifier.Alert) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer == nil {
		return fmt.Errorf("kafka emitter closed")
	}

	ts := alert.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	value, err := json.Marshal(alertRecord{
		Kind:          string(alert.Kind),
		Action:        string(alert.Action),
		Asset:         alert.Asset,
		Wallets:       alert.Wallets,
		Message:       alert.Message,
		OldBalance:    alert.OldBalance,
		NewBalance:    alert.NewBalance,
		PercentChange: alert.PercentChange,
		NewHolding:    alert.NewHolding,
		USDValue:      alert.USDValue,
		Signature:     alert.Signature,
		Verdict:       alert.Holders.Verdict,
		Timestamp:     ts.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, k.writeTimeout)
	defer cancel()

	key := strings.Join([]string{string(alert.Action), alert.Asset}, ":")
	if err := k.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  ts,
	}); err != nil {
		return fmt.Errorf("write message to kafka: %w", err)
	}

	k.logger.Info("emitted alert to kafka",
		zap.String("topic", k.topic),
		zap.String("key", key),
	)
	return nil
}

func (k *KafkaEmitter) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer != nil {
		err := k.writer.Close()
		k.writer = nil
		return err
	}
	return nil
}
