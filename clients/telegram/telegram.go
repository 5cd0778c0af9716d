package telegram

import (
	"fmt"
	"net/http"
	"strings"
	"time"
	"walletwatch/clients/notifier"
	"walletwatch/config"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

const solscanTxURL = "https://solscan.io/tx/"

// chatRecipient addresses a chat by numeric id or @username.
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

// TelegramClient sends alerts to Telegram.
// Implements notifier.Notifier interface.
type TelegramClient struct {
	logger *zap.Logger
	bot    *tele.Bot
	chatID string
	isProd bool
}

func NewTelegramClient(logger *zap.Logger, cfg *config.Config) *TelegramClient {
	return newTelegramClient(logger, cfg, "")
}

func newTelegramClient(logger *zap.Logger, cfg *config.Config, apiURL string) *TelegramClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	chatID := cfg.Telegram.BetaChatID
	if cfg.IsProd {
		chatID = cfg.Telegram.ProdChatID
	}

	tc := &TelegramClient{
		logger: logger,
		chatID: chatID,
		isProd: cfg.IsProd,
	}

	token := cfg.Telegram.BotToken
	if token == "" {
		logger.Warn("TELEGRAM_BOT_KEY not set, Telegram alerts disabled")
		return tc
	}

	// Offline skips the getMe round trip; the bot only sends.
	bot, err := tele.NewBot(tele.Settings{
		URL:     apiURL,
		Token:   token,
		Offline: true,
		Client:  &http.Client{Timeout: 10 * time.Second},
	})
	if err != nil {
		logger.Error("failed to create telegram bot", zap.Error(err))
		return tc
	}
	tc.bot = bot

	logger.Info("telegram bot initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("chatID", chatID),
	)

	return tc
}

// SendAlert sends an alert notification.
// Implements notifier.Notifier interface.
func (tc *TelegramClient) SendAlert(alert notifier.Alert) {
	if tc.bot == nil || tc.chatID == "" {
		tc.logger.Warn("telegram not configured, skipping alert")
		return
	}

	if err := tc.sendMessage(tc.buildAlertMessage(alert)); err != nil {
		tc.logger.Error("failed to send telegram message", zap.Error(err))
		return
	}

	tc.logger.Info("sent telegram alert",
		zap.String("kind", string(alert.Kind)),
		zap.String("asset", alert.Asset),
	)
}

func (tc *TelegramClient) buildAlertMessage(alert notifier.Alert) string {
	var sb strings.Builder

	sideEmoji := "🟢"
	if alert.Action == notifier.ActionSell {
		sideEmoji = "🔴"
	}

	switch alert.Kind {
	case notifier.AlertKindCorrelation:
		sb.WriteString(fmt.Sprintf("*%s Correlated %s*\n\n", sideEmoji, escapeMarkdown(string(alert.Action))))
		sb.WriteString(fmt.Sprintf("More than %d wallets %s token `%s`\n\n", alert.Threshold, alert.Action.Verb(), alert.Asset))
		sb.WriteString("*Wallets:*\n")
		for _, w := range alert.Wallets {
			sb.WriteString(fmt.Sprintf("• `%s`\n", w))
		}

	default:
		wallet := ""
		if len(alert.Wallets) > 0 {
			wallet = alert.Wallets[0]
		}
		sb.WriteString(fmt.Sprintf("*%s Wallet %s*\n\n", sideEmoji, escapeMarkdown(alert.Action.Verb())))
		sb.WriteString(fmt.Sprintf("*Wallet:* `%s`\n", wallet))
		sb.WriteString(fmt.Sprintf("*Token:* `%s`\n", alert.Asset))
		if alert.NewHolding {
			sb.WriteString(fmt.Sprintf("*New Balance:* %.4f (new holding)\n", alert.NewBalance))
		} else {
			sb.WriteString(fmt.Sprintf("*Balance:* %.4f → %.4f (%.2f%%)\n", alert.OldBalance, alert.NewBalance, alert.PercentChange))
		}
		sb.WriteString(fmt.Sprintf("*Value:* $%.2f\n", alert.USDValue))
		if alert.Signature != "" {
			sb.WriteString(fmt.Sprintf("*Tx:* [%s](%s%s)\n", shortAddress(alert.Signature), solscanTxURL, alert.Signature))
		}
	}

	if alert.Holders.HasHolderInfo {
		sb.WriteString(fmt.Sprintf("\n*Holders:* %d, top %d own %.2f%% (%s)\n",
			alert.Holders.TotalHolders, alert.Holders.TopN, alert.Holders.TopNPercent, escapeMarkdown(alert.Holders.Verdict)))
		for _, w := range alert.Holders.Whales {
			sb.WriteString(fmt.Sprintf("🐋 `%s` %.2f (%.2f%%)\n", shortAddress(w.Address), w.Amount, w.SupplyPercent))
		}
	}

	ts := alert.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	sb.WriteString(fmt.Sprintf("\n_walletwatch • %s_", ts.UTC().Format("1/2/2006, 3:04:05PM (MST)")))

	return sb.String()
}

func (tc *TelegramClient) sendMessage(text string) error {
	_, err := tc.bot.Send(chatRecipient(tc.chatID), text, &tele.SendOptions{
		ParseMode:             tele.ModeMarkdown,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func shortAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-6:]
}

// escapeMarkdown escapes special characters for Telegram Markdown.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}

// Close is a no-op; the bot holds no open connections.
func (tc *TelegramClient) Close() error {
	return nil
}
