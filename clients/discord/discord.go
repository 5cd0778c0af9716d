package discord

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"walletwatch/clients/notifier"
	"walletwatch/config"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const solscanTxURL = "https://solscan.io/tx/"

// alertSender is the subset of *discordgo.Session used for delivery.
type alertSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordClient sends alerts to a Discord channel through a bot session, a
// channel webhook, or both.
// Implements notifier.Notifier interface.
type DiscordClient struct {
	logger    *zap.Logger
	session   *discordgo.Session
	sender    alertSender
	channelID string
	isProd    bool

	webhookID    string
	webhookToken string
}

func NewDiscordClient(logger *zap.Logger, cfg *config.Config) *DiscordClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	channelID := cfg.Discord.BetaChannelID
	if cfg.IsProd {
		channelID = cfg.Discord.ProdChannelID
	}

	dc := &DiscordClient{
		logger:    logger,
		channelID: channelID,
		isProd:    cfg.IsProd,
	}

	if cfg.Discord.WebhookURL != "" {
		id, token, err := parseWebhookURL(cfg.Discord.WebhookURL)
		if err != nil {
			logger.Error("invalid DISCORD_WEBHOOK_URL, webhook alerts disabled", zap.Error(err))
		} else {
			dc.webhookID = id
			dc.webhookToken = token
		}
	}

	token := cfg.Discord.BotToken
	if token == "" && dc.webhookID == "" {
		logger.Warn("DISCORD_BOT_TOKEN and DISCORD_WEBHOOK_URL not set, Discord alerts disabled")
		return dc
	}
	if token == "" {
		dc.channelID = ""
	}

	// Webhook execution needs no authorization, so an empty token is fine there.
	authorization := ""
	if token != "" {
		authorization = "Bot " + token
	}
	session, err := discordgo.New(authorization)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return dc
	}
	dc.session = session
	dc.sender = session

	logger.Info("discord initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("channelID", dc.channelID),
		zap.Bool("webhook", dc.webhookID != ""),
	)

	return dc
}

// parseWebhookURL extracts the id and token from
// https://discord.com/api/webhooks/{id}/{token}.
func parseWebhookURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse webhook url: %w", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("webhook url %q has no /webhooks/{id}/{token} path", u.Redacted())
}

// SendAlert sends a rich embedded alert.
// Implements notifier.Notifier interface.
func (dc *DiscordClient) SendAlert(alert notifier.Alert) {
	if dc.sender == nil {
		dc.logger.Warn("discord session not initialized, skipping alert")
		return
	}

	embed := dc.buildAlertEmbed(alert)

	// Each destination is attempted independently.
	delivered := false
	if dc.channelID != "" {
		if _, err := dc.sender.ChannelMessageSendEmbed(dc.channelID, embed); err != nil {
			dc.logger.Error("failed to send discord embed", zap.Error(err))
		} else {
			delivered = true
		}
	}
	if dc.webhookID != "" {
		params := &discordgo.WebhookParams{
			Content: alert.Message,
			Embeds:  []*discordgo.MessageEmbed{embed},
		}
		if _, err := dc.sender.WebhookExecute(dc.webhookID, dc.webhookToken, false, params); err != nil {
			dc.logger.Error("failed to execute discord webhook", zap.Error(err))
		} else {
			delivered = true
		}
	}
	if !delivered {
		return
	}

	dc.logger.Info("sent discord alert",
		zap.String("kind", string(alert.Kind)),
		zap.String("asset", alert.Asset),
		zap.Int("wallets", len(alert.Wallets)),
	)
}

func (dc *DiscordClient) buildAlertEmbed(alert notifier.Alert) *discordgo.MessageEmbed {
	color := 0x2ECC71 // Green for BUY
	sideEmoji := "🟢"
	if alert.Action == notifier.ActionSell {
		color = 0xE74C3C // Red for SELL
		sideEmoji = "🔴"
	}

	var title, description string
	var fields []*discordgo.MessageEmbedField

	switch alert.Kind {
	case notifier.AlertKindCorrelation:
		title = fmt.Sprintf("%s %d Wallets %s the Same Token", sideEmoji, len(alert.Wallets), capitalize(alert.Action.Verb()))
		description = fmt.Sprintf("More than %d watched wallets %s `%s` this cycle.", alert.Threshold, alert.Action.Verb(), alert.Asset)

		wallets := make([]string, 0, len(alert.Wallets))
		for _, w := range alert.Wallets {
			wallets = append(wallets, "`"+shortAddress(w)+"`")
		}
		fields = append(fields,
			&discordgo.MessageEmbedField{Name: "Token", Value: shortAddress(alert.Asset), Inline: true},
			&discordgo.MessageEmbedField{Name: "Side", Value: fmt.Sprintf("%s %s", sideEmoji, alert.Action), Inline: true},
			&discordgo.MessageEmbedField{Name: "Wallets", Value: strings.Join(wallets, "\n"), Inline: false},
		)

	default:
		wallet := ""
		if len(alert.Wallets) > 0 {
			wallet = alert.Wallets[0]
		}
		title = fmt.Sprintf("%s Wallet %s %s", sideEmoji, capitalize(alert.Action.Verb()), shortAddress(alert.Asset))
		description = fmt.Sprintf("`%s`", wallet)

		change := fmt.Sprintf("%.2f → %.2f", alert.OldBalance, alert.NewBalance)
		pct := fmt.Sprintf("%.2f%%", alert.PercentChange)
		if alert.NewHolding {
			change = fmt.Sprintf("%.2f (new holding)", alert.NewBalance)
			pct = "100%"
		}
		fields = append(fields,
			&discordgo.MessageEmbedField{Name: "Token", Value: shortAddress(alert.Asset), Inline: true},
			&discordgo.MessageEmbedField{Name: "Balance", Value: change, Inline: true},
			&discordgo.MessageEmbedField{Name: "Change", Value: pct, Inline: true},
			&discordgo.MessageEmbedField{Name: "Value", Value: fmt.Sprintf("$%.2f", alert.USDValue), Inline: true},
		)
		if alert.Signature != "" {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name:   "Transaction",
				Value:  fmt.Sprintf("[%s](%s%s)", shortAddress(alert.Signature), solscanTxURL, alert.Signature),
				Inline: true,
			})
		}
	}

	if alert.Holders.HasHolderInfo {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Holders",
			Value: fmt.Sprintf("%d holders, top %d own %.2f%%\n**%s**",
				alert.Holders.TotalHolders, alert.Holders.TopN, alert.Holders.TopNPercent, alert.Holders.Verdict),
			Inline: false,
		})
		if len(alert.Holders.Whales) > 0 {
			lines := make([]string, 0, len(alert.Holders.Whales))
			for _, w := range alert.Holders.Whales {
				lines = append(lines, fmt.Sprintf("`%s` %.2f (%.2f%%)", shortAddress(w.Address), w.Amount, w.SupplyPercent))
			}
			fields = append(fields, &discordgo.MessageEmbedField{
				Name:   "Whales",
				Value:  strings.Join(lines, "\n"),
				Inline: false,
			})
		}
	}

	ts := alert.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	footerText := fmt.Sprintf("walletwatch * %s", ts.UTC().Format("1/2/2006, 3:04:05PM (MST)"))

	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: footerText,
		},
		Timestamp: ts.Format(time.RFC3339),
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func shortAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-6:]
}

// Close closes the Discord session.
func (dc *DiscordClient) Close() error {
	if dc.session != nil {
		return dc.session.Close()
	}
	return nil
}
