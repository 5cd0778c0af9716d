package solanaevents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"walletwatch/config"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Notification is one logsNotification resolved back to the wallet whose
// subscription produced it.
type Notification struct {
	Wallet     string
	Signature  string
	Slot       uint64
	Failed     bool
	ReceivedAt time.Time
}

// Client subscribes to transaction logs mentioning each watched wallet over the
// provider's websocket endpoint.
type Client struct {
	logger *zap.Logger

	wsURL        string
	dialer       *websocket.Dialer
	pingInterval time.Duration
	commitment   string

	connMu  sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn

	subMu   sync.Mutex
	pending map[uint64]string // request id -> wallet
	subs    map[uint64]string // subscription id -> wallet
	nextID  uint64

	notifCh chan Notification
	errCh   chan error
	closeCh chan struct{}

	msgCount        uint64
	notifCount      uint64
	lastMsgUnixNano int64
}

func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		logger:       logger,
		wsURL:        cfg.Solana.WebsocketURL(),
		dialer:       websocket.DefaultDialer,
		pingInterval: 30 * time.Second,
		commitment:   "confirmed",

		pending: make(map[uint64]string),
		subs:    make(map[uint64]string),

		notifCh: make(chan Notification, 1024),
		errCh:   make(chan error, 64),
		closeCh: make(chan struct{}),
	}
}

// Connect dials the websocket and sends one logsSubscribe per wallet. The
// connection is closed when ctx is done.
func (c *Client) Connect(ctx context.Context, wallets []string) error {
	c.connMu.Lock()
	alreadyConnected := c.conn != nil
	c.connMu.Unlock()
	if alreadyConnected {
		return fmt.Errorf("already connected")
	}
	if len(wallets) == 0 {
		return fmt.Errorf("no wallets to subscribe")
	}

	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial solana ws: %w", err)
	}

	c.logger.Info("solana ws dialed", zap.Int("wallets", len(wallets)))

	conn.SetCloseHandler(func(code int, text string) error {
		c.logger.Warn("solana ws close frame received",
			zap.Int("code", code),
			zap.String("reason", text),
		)
		return nil
	})

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.subMu.Lock()
	c.pending = make(map[uint64]string, len(wallets))
	c.subs = make(map[uint64]string, len(wallets))
	c.subMu.Unlock()

	for _, wallet := range wallets {
		if err := c.subscribe(wallet); err != nil {
			_ = c.Close()
			return fmt.Errorf("subscribe %s: %w", wallet, err)
		}
	}

	c.logger.Info("solana ws subscriptions sent", zap.Int("count", len(wallets)))

	go c.readLoop()
	go c.pingLoop()

	closeCh := c.closeSignal()
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-closeCh:
		}
	}()

	return nil
}

func (c *Client) subscribe(wallet string) error {
	id := atomic.AddUint64(&c.nextID, 1)

	c.subMu.Lock()
	c.pending[id] = wallet
	c.subMu.Unlock()

	return c.writeJSON(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "logsSubscribe",
		"params": []any{
			map[string][]string{"mentions": {wallet}},
			map[string]string{"commitment": c.commitment},
		},
	})
}

func (c *Client) Notifications() <-chan Notification {
	return c.notifCh
}

func (c *Client) Errors() <-chan error {
	return c.errCh
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

type WSStats struct {
	MessageCount      uint64
	NotificationCount uint64
	Subscriptions     int
	LastMessageAt     time.Time
}

func (c *Client) Stats() WSStats {
	ns := atomic.LoadInt64(&c.lastMsgUnixNano)

	var t time.Time
	if ns > 0 {
		t = time.Unix(0, ns)
	}

	c.subMu.Lock()
	subs := len(c.subs)
	c.subMu.Unlock()

	return WSStats{
		MessageCount:      atomic.LoadUint64(&c.msgCount),
		NotificationCount: atomic.LoadUint64(&c.notifCount),
		Subscriptions:     subs,
		LastMessageAt:     t,
	}
}

func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	select {
	case <-c.closeCh:
	default:
		close(c.closeCh)
	}

	// Fresh channel for reconnection
	c.closeCh = make(chan struct{})

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}

func (c *Client) closeSignal() chan struct{} {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.closeCh
}

func (c *Client) writeJSON(v any) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return conn.WriteJSON(v)
}

func (c *Client) pingLoop() {
	closeCh := c.closeSignal()
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			c.connMu.Lock()
			conn := c.conn
			c.connMu.Unlock()

			if conn != nil {
				c.writeMu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				c.writeMu.Unlock()
			}

		case <-closeCh:
			return
		}
	}
}

func (c *Client) readLoop() {
	closeCh := c.closeSignal()

	for {
		select {
		case <-closeCh:
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			return
		}

		_, b, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("solana ws read loop exiting: read error", zap.Error(err))
			select {
			case c.errCh <- err:
			default:
			}
			_ = c.Close()
			return
		}

		atomic.AddUint64(&c.msgCount, 1)
		atomic.StoreInt64(&c.lastMsgUnixNano, time.Now().UnixNano())

		c.handleFrame(b)
	}
}

type wsFrame struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Method string `json:"method"`
	Params *struct {
		Subscription uint64          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

func (c *Client) handleFrame(b []byte) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return
	}

	var frame wsFrame
	if err := json.Unmarshal(b, &frame); err != nil {
		c.logger.Warn("solana ws bad json frame", zap.Error(err), zap.ByteString("frame", b))
		return
	}

	switch {
	case frame.ID != nil:
		c.handleSubscribeAck(frame)
	case frame.Method == "logsNotification" && frame.Params != nil:
		c.subMu.Lock()
		wallet := c.subs[frame.Params.Subscription]
		c.subMu.Unlock()

		n, ok := ParseLogsResult(frame.Params.Result)
		if !ok {
			c.logger.Debug("solana ws notification without signature",
				zap.Uint64("subscription", frame.Params.Subscription),
			)
			return
		}
		n.Wallet = wallet
		n.ReceivedAt = time.Now()
		atomic.AddUint64(&c.notifCount, 1)
		c.forward(n)
	}
}

func (c *Client) handleSubscribeAck(frame wsFrame) {
	c.subMu.Lock()
	wallet, ok := c.pending[*frame.ID]
	delete(c.pending, *frame.ID)
	c.subMu.Unlock()

	if !ok {
		return
	}

	if frame.Error != nil {
		err := fmt.Errorf("logsSubscribe %s: rpc error %d: %s", wallet, frame.Error.Code, frame.Error.Message)
		c.logger.Error("solana ws subscription rejected", zap.String("wallet", wallet), zap.Error(err))
		select {
		case c.errCh <- err:
		default:
		}
		return
	}

	var subID uint64
	if err := json.Unmarshal(frame.Result, &subID); err != nil {
		c.logger.Warn("solana ws bad subscription ack", zap.String("wallet", wallet), zap.Error(err))
		return
	}

	c.subMu.Lock()
	c.subs[subID] = wallet
	c.subMu.Unlock()

	c.logger.Info("solana ws subscribed",
		zap.String("wallet", wallet),
		zap.Uint64("subscription", subID),
	)
}

// ParseLogsResult extracts the signature from a logsNotification result. Both the
// standard {context, value:{signature}} shape and a flattened {signature} shape are
// accepted. ok is false when no signature is present.
func ParseLogsResult(data json.RawMessage) (Notification, bool) {
	var result struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value *struct {
			Signature string `json:"signature"`
			Err       any    `json:"err"`
		} `json:"value"`
		Signature string `json:"signature"`
		Err       any    `json:"err"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return Notification{}, false
	}

	n := Notification{Slot: result.Context.Slot}
	if result.Value != nil {
		n.Signature = result.Value.Signature
		n.Failed = result.Value.Err != nil
	}
	if n.Signature == "" {
		n.Signature = result.Signature
		n.Failed = result.Err != nil
	}
	return n, n.Signature != ""
}

func (c *Client) forward(n Notification) {
	select {
	case c.notifCh <- n:
	default:
		c.logger.Warn("dropping ws notification: channel full", zap.String("signature", n.Signature))
	}
}
