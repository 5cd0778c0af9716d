package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"walletwatch/clients"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func newStatsServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := NewRunner(&clients.Clients{Logger: zap.NewNop()}, testRunnerConfig())
	r.startTime = time.Now()
	server := httptest.NewServer(r.statsMux())
	t.Cleanup(server.Close)
	return server
}

func TestStatsServer_Health(t *testing.T) {
	server := newStatsServer(t)

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("unexpected response: %d %q", resp.StatusCode, body)
	}
}

func TestStatsServer_Stats(t *testing.T) {
	server := newStatsServer(t)

	resp, err := http.Get(server.URL + "/stats")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type: %s", ct)
	}
	var stats ServiceStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if stats.Snapshots.Wallets != 2 {
		t.Errorf("expected 2 wallets, got %d", stats.Snapshots.Wallets)
	}
}

func TestStatsServer_WebSocket(t *testing.T) {
	server := newStatsServer(t)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var stats ServiceStats
	if err := conn.ReadJSON(&stats); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if stats.Mode != "poll" {
		t.Errorf("expected poll mode, got %s", stats.Mode)
	}
}
