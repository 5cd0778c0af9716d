package telegram

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"walletwatch/clients/notifier"
	"walletwatch/config"

	"go.uber.org/zap"
)

func testConfig(isProd bool, token string) *config.Config {
	return &config.Config{
		IsProd: isProd,
		Telegram: config.TelegramConfig{
			BotToken:   token,
			ProdChatID: "prod-chat",
			BetaChatID: "beta-chat",
		},
	}
}

// fakeBotAPI records sendMessage payloads and replies with a minimal message.
func fakeBotAPI(t *testing.T, ok bool, got *[]map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottest-token/sendMessage") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		*got = append(*got, payload)

		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
}

func TestNewTelegramClient_NoToken(t *testing.T) {
	client := NewTelegramClient(zap.NewNop(), testConfig(false, ""))

	if client.bot != nil {
		t.Error("expected no bot without token")
	}
	if client.chatID != "beta-chat" {
		t.Errorf("expected beta chat, got: %s", client.chatID)
	}
}

func TestNewTelegramClient_ProdChat(t *testing.T) {
	client := NewTelegramClient(nil, testConfig(true, ""))

	if client.chatID != "prod-chat" {
		t.Errorf("expected prod chat, got: %s", client.chatID)
	}
	if !client.isProd {
		t.Error("expected isProd to be true")
	}
}

func TestNewTelegramClient_WithToken(t *testing.T) {
	client := NewTelegramClient(nil, testConfig(false, "test-token"))

	if client.bot == nil {
		t.Fatal("expected bot to be created offline")
	}
}

func TestSendAlert_NotConfigured(t *testing.T) {
	client := &TelegramClient{logger: zap.NewNop()}

	// Should not panic
	client.SendAlert(notifier.Alert{Kind: notifier.AlertKindCorrelation})
}

func TestSendAlert_Success(t *testing.T) {
	var payloads []map[string]any
	server := fakeBotAPI(t, true, &payloads)
	defer server.Close()

	client := newTelegramClient(zap.NewNop(), testConfig(false, "test-token"), server.URL)
	client.SendAlert(notifier.Alert{
		Kind:      notifier.AlertKindCorrelation,
		Action:    notifier.ActionBuy,
		Asset:     "MINTX",
		Wallets:   []string{"A", "B", "C"},
		Threshold: 2,
	})

	if len(payloads) != 1 {
		t.Fatalf("expected 1 request, got %d", len(payloads))
	}
	if payloads[0]["chat_id"] != "beta-chat" {
		t.Errorf("unexpected chat_id: %v", payloads[0]["chat_id"])
	}
	if payloads[0]["parse_mode"] != "Markdown" {
		t.Errorf("unexpected parse_mode: %v", payloads[0]["parse_mode"])
	}
	if text, _ := payloads[0]["text"].(string); !strings.Contains(text, "More than 2 wallets bought token `MINTX`") {
		t.Errorf("unexpected text: %s", text)
	}
}

func TestSendMessage_APIError(t *testing.T) {
	var payloads []map[string]any
	server := fakeBotAPI(t, false, &payloads)
	defer server.Close()

	client := newTelegramClient(zap.NewNop(), testConfig(false, "test-token"), server.URL)

	if err := client.sendMessage("hello"); err == nil {
		t.Error("expected error from API")
	}
	// Error path through SendAlert only logs
	client.SendAlert(notifier.Alert{Kind: notifier.AlertKindBalanceChange})
}

func TestBuildAlertMessage_Correlation(t *testing.T) {
	client := &TelegramClient{logger: zap.NewNop()}

	msg := client.buildAlertMessage(notifier.Alert{
		Kind:      notifier.AlertKindCorrelation,
		Action:    notifier.ActionSell,
		Asset:     "MINTX",
		Wallets:   []string{"walletA", "walletB", "walletC"},
		Threshold: 2,
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})

	if !strings.Contains(msg, "🔴 Correlated SELL") {
		t.Errorf("expected sell title, got %s", msg)
	}
	if !strings.Contains(msg, "wallets sold token") {
		t.Errorf("expected sold verb, got %s", msg)
	}
	if strings.Count(msg, "• `wallet") != 3 {
		t.Errorf("expected 3 wallet lines, got %s", msg)
	}
	if !strings.Contains(msg, "1/2/2024, 3:04:05AM (UTC)") {
		t.Errorf("expected formatted timestamp, got %s", msg)
	}
}

func TestBuildAlertMessage_BalanceChange(t *testing.T) {
	client := &TelegramClient{logger: zap.NewNop()}

	msg := client.buildAlertMessage(notifier.Alert{
		Kind:          notifier.AlertKindBalanceChange,
		Action:        notifier.ActionSell,
		Asset:         config.NativeAssetID,
		Wallets:       []string{"walletA"},
		OldBalance:    10,
		NewBalance:    5,
		PercentChange: 50,
		USDValue:      100,
		Signature:     "5h6xsignature",
	})

	if !strings.Contains(msg, "*Balance:* 10.0000 → 5.0000 (50.00%)") {
		t.Errorf("unexpected balance line: %s", msg)
	}
	if !strings.Contains(msg, "*Value:* $100.00") {
		t.Errorf("unexpected value line: %s", msg)
	}
	if !strings.Contains(msg, solscanTxURL+"5h6xsignature") {
		t.Errorf("expected transaction link: %s", msg)
	}
}

func TestBuildAlertMessage_NewHoldingWithHolders(t *testing.T) {
	client := &TelegramClient{logger: zap.NewNop()}

	msg := client.buildAlertMessage(notifier.Alert{
		Kind:       notifier.AlertKindBalanceChange,
		Action:     notifier.ActionBuy,
		Asset:      "MINTX",
		Wallets:    []string{"walletA"},
		NewBalance: 7,
		NewHolding: true,
		Holders: notifier.HolderSummary{
			HasHolderInfo: true,
			TotalHolders:  10,
			TopN:          20,
			TopNPercent:   100,
			Verdict:       "Suspicious",
			Whales:        []notifier.Whale{{Address: "whale1", Amount: 1, SupplyPercent: 50}},
		},
	})

	if !strings.Contains(msg, "(new holding)") {
		t.Errorf("expected new holding marker: %s", msg)
	}
	if !strings.Contains(msg, "top 20 own 100.00% (Suspicious)") {
		t.Errorf("expected holder summary: %s", msg)
	}
	if !strings.Contains(msg, "whale1") {
		t.Errorf("expected whale line: %s", msg)
	}
	if strings.Contains(msg, "*Tx:*") {
		t.Errorf("expected no tx line without signature: %s", msg)
	}
}

func TestChatRecipient(t *testing.T) {
	if chatRecipient("-100123").Recipient() != "-100123" {
		t.Error("expected numeric chat id to pass through")
	}
	if chatRecipient("@channel").Recipient() != "@channel" {
		t.Error("expected username to pass through")
	}
}

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"hello_world", "hello\\_world"},
		{"*bold*", "\\*bold\\*"},
		{"[link]", "\\[link\\]"},
		{"`code`", "\\`code\\`"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := escapeMarkdown(tt.input); result != tt.expected {
				t.Errorf("escapeMarkdown(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestClose(t *testing.T) {
	client := &TelegramClient{logger: zap.NewNop()}

	if err := client.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
